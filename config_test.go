package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	want := defaultConfig()

	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netcheckd.conf")

	err := os.WriteFile(path, []byte(`
[Application Options]
source = netlink
target = https://example.com
probe-timeout = 3s
listen = 0.0.0.0:9080
`), 0600)
	if err != nil {
		t.Fatalf("could not write config file: %v", err)
	}

	// the command line takes precedence over the file
	cfg, err := loadConfig([]string{"--configfile", path, "--listen", "localhost:1234", "--debug"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	want := defaultConfig()
	want.ConfigFile = path
	want.Source = "netlink"
	want.Target = "https://example.com"
	want.ProbeTimeout = 3 * time.Second
	want.Listen = "localhost:1234"
	want.Debug = true

	if diff := cmp.Diff(&want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown source", []string{"--source", "carrier-pigeon"}},
		{"check without anything to check", []string{"--check"}},
		{"unsupported target scheme", []string{"--target", "ftp://example.com"}},
		{"target without host", []string{"--target", "http:foo"}},
		{"address without port", []string{"--address", "example.com"}},
		{"address with bad port", []string{"--address", "example.com:http"}},
		{"missing config file", []string{"--configfile", "/nonexistent/netcheckd.conf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.args); err == nil {
				t.Errorf("loadConfig(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestSplitAddress(t *testing.T) {
	host, port, err := splitAddress("localhost:8080")
	if err != nil {
		t.Fatalf("splitAddress() error = %v", err)
	}

	if host != "localhost" || port != 8080 {
		t.Errorf("splitAddress() = %v, %v, want localhost, 8080", host, port)
	}
}

func TestLoadConfigTargetSchemeIgnoresCase(t *testing.T) {
	cfg, err := loadConfig([]string{"--target", "HTTPS://example.com"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Target != "HTTPS://example.com" {
		t.Errorf("Target = %v, want HTTPS://example.com", cfg.Target)
	}
}
