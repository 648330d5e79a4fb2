package config

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if want := netip.MustParseAddrPort("127.0.0.1:1080"); cfg.Listen() != want {
		t.Errorf("Listen() = %s, want %s", cfg.Listen(), want)
	}
	if cfg.Server.HandshakeTimeout != 10*time.Second || cfg.Server.ConnectTimeout != 10*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.Server.HandshakeTimeout, cfg.Server.ConnectTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo || cfg.Logging.Format != "text" {
		t.Errorf("logging = %v/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	cfg, err := Load(
		[]string{"-port", "9050", "-log-level", "debug"},
		env(map[string]string{"SOCKS_PORT": "2000", "SOCKS_ADDRESS": "0.0.0.0", "LOG_FORMAT": "json"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 9050 {
		t.Errorf("Port = %d, want flag value 9050", cfg.Server.Port)
	}
	if cfg.Server.Address != netip.IPv4Unspecified() {
		t.Errorf("Address = %s, want env value 0.0.0.0", cfg.Server.Address)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port zero", []string{"-port", "0"}},
		{"port too large", []string{"-port", "70000"}},
		{"port not a number", []string{"-port", "socks"}},
		{"ipv6 address", []string{"-address", "::1"}},
		{"bad address", []string{"-address", "localhost"}},
		{"bad log level", []string{"-log-level", "verbose"}},
		{"bad log format", []string{"-log-format", "xml"}},
		{"negative timeout", []string{"-connect-timeout", "-1s"}},
		{"bad timeout", []string{"-handshake-timeout", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args, nil); err == nil {
				t.Fatalf("Load(%v) expected error, got nil", tt.args)
			}
		})
	}
}

func TestZeroTimeoutDisables(t *testing.T) {
	cfg, err := Load([]string{"-handshake-timeout", "0s", "-connect-timeout", "0"}, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.HandshakeTimeout != 0 || cfg.Server.ConnectTimeout != 0 {
		t.Errorf("timeouts = %s/%s, want 0", cfg.Server.HandshakeTimeout, cfg.Server.ConnectTimeout)
	}
}
