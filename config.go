package main

import (
	"net"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/the-lightning-land/netcheckd/reachability"
)

const (
	defaultSource         = "auto"
	defaultListen         = "localhost:9080"
	defaultAddressTimeout = 5 * time.Second
)

type profilingConfig struct {
	Listen string `long:"listen" description:"Address the pprof server listens on, disabled when empty"`
}

type config struct {
	ConfigFile     string          `long:"configfile" description:"Path to an ini configuration file, command line options take precedence"`
	ShowVersion    bool            `short:"v" long:"version" description:"Display version information and exit"`
	Debug          bool            `long:"debug" description:"Start in debug mode"`
	Source         string          `long:"source" description:"Where connectivity changes come from" choice:"auto" choice:"networkmanager" choice:"netlink" choice:"mock"`
	Target         string          `long:"target" description:"Url checked for reachability on every connectivity change"`
	Listen         string          `long:"listen" description:"Address the status api listens on"`
	ProbeTimeout   time.Duration   `long:"probe-timeout" description:"Timeout of a single reachability request, none when zero"`
	Check          bool            `long:"check" description:"Check reachability of --target or --address once and exit"`
	Address        string          `long:"address" description:"host:port checked for a TCP connection with --check"`
	AddressTimeout time.Duration   `long:"address-timeout" description:"Timeout of the TCP connection check"`
	Profiling      profilingConfig `group:"Profiling" namespace:"profiling"`
}

func defaultConfig() config {
	return config{
		Source:         defaultSource,
		Listen:         defaultListen,
		AddressTimeout: defaultAddressTimeout,
	}
}

// loadConfig reads the configuration from args on top of an optional config
// file, on top of the defaults.
func loadConfig(args []string) (*config, error) {
	// a first pass only finds the config file and handles --help
	preCfg := defaultConfig()
	if _, err := flags.NewParser(&preCfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if preCfg.ConfigFile != "" {
		parser := flags.NewParser(&cfg, flags.Default)

		err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			return nil, errors.Errorf("could not read config file %v: %v", preCfg.ConfigFile, err)
		}
	}

	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateConfig(cfg *config) error {
	if cfg.Target != "" {
		if err := reachability.ValidateTarget(cfg.Target); err != nil {
			return errors.Errorf("invalid target %v: %v", cfg.Target, err)
		}
	}

	if cfg.Address != "" {
		if _, _, err := splitAddress(cfg.Address); err != nil {
			return err
		}
	}

	if cfg.Check && cfg.Target == "" && cfg.Address == "" {
		return errors.New("--check needs --target or --address")
	}

	if cfg.ProbeTimeout < 0 || cfg.AddressTimeout <= 0 {
		return errors.New("timeouts must not be negative, the address timeout must be set")
	}

	return nil
}

func splitAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, errors.Errorf("invalid address %v: %v", address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.Errorf("invalid port in address %v", address)
	}

	return host, port, nil
}
