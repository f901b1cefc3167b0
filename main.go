package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/netcheckd/api"
	"github.com/the-lightning-land/netcheckd/connectivity"
	"github.com/the-lightning-land/netcheckd/mainloop"
	"github.com/the-lightning-land/netcheckd/network"
	"github.com/the-lightning-land/netcheckd/reachability"
	"golang.org/x/sync/errgroup"

	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// netcheckdMain is the true entry point for netcheckd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func netcheckdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig(os.Args[1:])
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	// subsystems log through the same logger
	logger := log.StandardLogger()

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// Where connectivity changes come from
	source, err := startSource(logger, cfg.Source)
	if err != nil {
		return err
	}

	defer func() {
		err := source.Stop()
		if err != nil {
			log.Errorf("Could not properly stop connectivity source: %v", err)
		} else {
			log.Info("Stopped connectivity source.")
		}
	}()

	if cfg.Check {
		return check(logger, cfg, source)
	}

	// results of reachability checks are handed to listeners on this loop
	loop := mainloop.New()

	prober := reachability.New(&reachability.Config{
		Network:  source,
		MainLoop: loop,
		Timeout:  cfg.ProbeTimeout,
		Logger:   logger.WithField("system", "reachability"),
	})

	log.Info("Created reachability prober.")

	a := api.New(&api.Config{
		Log: logger.WithField("system", "api"),
	})

	log.Info("Created API.")

	observer := connectivity.NewObserver(&connectivity.ObserverConfig{
		Source:           source,
		Prober:           prober,
		MainLoop:         loop,
		Target:           cfg.Target,
		Logger:           logger.WithField("system", "connectivity"),
		NetworkListeners: []connectivity.NetworkChangeListener{a},
		HostListeners:    []connectivity.HostConnectionListener{a},
	})

	a.SetObserver(observer)

	log.Infof("Created connectivity observer checking %q.", cfg.Target)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Errorf("Could not listen on %v: %v", cfg.Listen, err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(loop.Run)

	g.Go(func() error {
		log.Infof("Serving API on %v", lis.Addr())
		return a.Serve(lis)
	})

	err = observer.Start()
	if err != nil {
		loop.Shutdown()
		_ = lis.Close()
		_ = g.Wait()
		return errors.Errorf("Could not start connectivity observer: %v", err)
	}

	log.Info("Started connectivity observer.")

	defer func() {
		err := observer.Stop()
		if err != nil {
			log.Errorf("Could not properly stop connectivity observer: %v", err)
		} else {
			log.Info("Stopped connectivity observer.")
		}
	}()

	// Handle interrupt signals correctly
	g.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			log.Info(sig)
			log.Info("Received an interrupt, stopping netcheckd...")
		case <-ctx.Done():
		}

		loop.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return a.Shutdown(shutdownCtx)
	})

	// blocks until the main loop and the api are shut down
	err = g.Wait()
	if err != nil {
		return errors.Errorf("Failed running netcheckd: %v", err)
	}

	// finish with no error
	return nil
}

func startSource(logger *log.Logger, kind string) (network.Source, error) {
	var source network.Source

	switch kind {
	case "auto":
		nmSource := network.NewNmSource(&network.NmSourceConfig{
			Logger: logger.WithField("system", "networkmanager"),
		})

		err := nmSource.Start()
		if err == nil {
			log.Info("Started NetworkManager connectivity source.")
			return nmSource, nil
		}

		log.Warnf("NetworkManager is not available, falling back to netlink: %v", err)

		source = network.NewNetlinkSource(&network.NetlinkSourceConfig{
			Logger: logger.WithField("system", "netlink"),
		})
	case "networkmanager":
		source = network.NewNmSource(&network.NmSourceConfig{
			Logger: logger.WithField("system", "networkmanager"),
		})
	case "netlink":
		source = network.NewNetlinkSource(&network.NetlinkSourceConfig{
			Logger: logger.WithField("system", "netlink"),
		})
	case "mock":
		source = network.NewMockSource()
	default:
		return nil, errors.Errorf("Unknown connectivity source %v", kind)
	}

	err := source.Start()
	if err != nil {
		return nil, errors.Errorf("Could not start connectivity source: %v", err)
	}

	log.Infof("Started %v connectivity source.", kind)

	return source, nil
}

// check runs a single reachability check and reports failure as an error.
func check(logger *log.Logger, cfg *config, source network.Source) error {
	log.Infof("Network available: %v", connectivity.HasAvailableNetwork(source))

	if t := connectivity.GetConnectionType(source); t != nil {
		log.Infof("Connection type: %v", t)
	}

	prober := reachability.New(&reachability.Config{
		Network: source,
		Timeout: cfg.ProbeTimeout,
		Logger:  logger.WithField("system", "reachability"),
	})

	if cfg.Address != "" {
		host, port, err := splitAddress(cfg.Address)
		if err != nil {
			return err
		}

		if !prober.CheckAddressReachable(host, port, cfg.AddressTimeout) {
			return errors.Errorf("%v is not reachable", cfg.Address)
		}

		log.Infof("%v is reachable.", cfg.Address)
	}

	if cfg.Target != "" {
		reachable, err := prober.Reachable(context.Background(), cfg.Target)
		if err != nil {
			return errors.Errorf("Could not reach %v: %v", cfg.Target, err)
		}

		if !reachable {
			return errors.Errorf("%v is not reachable", cfg.Target)
		}

		log.Infof("%v is reachable.", cfg.Target)
	}

	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := netcheckdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running netcheckd.")
		}
		os.Exit(1)
	}
}
