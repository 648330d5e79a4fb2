package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Address          netip.Addr
	Port             uint16
	HandshakeTimeout time.Duration
	ConnectTimeout   time.Duration
}

type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// Listen is the address the proxy listens on.
func (c *Config) Listen() netip.AddrPort {
	return netip.AddrPortFrom(c.Server.Address, c.Server.Port)
}

// Load parses command-line args (without the program name). Unset flags
// fall back to environment variables read through getenv, then to defaults.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	or := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("socks-relay", flag.ContinueOnError)

	address := fs.String("address", or("SOCKS_ADDRESS", "127.0.0.1"), "IPv4 address to listen on")
	port := fs.String("port", or("SOCKS_PORT", "1080"), "Port to listen on")
	handshakeTimeout := fs.String("handshake-timeout", or("SOCKS_HANDSHAKE_TIMEOUT", "10s"), "Time allowed for greeting and request, 0 disables")
	connectTimeout := fs.String("connect-timeout", or("SOCKS_CONNECT_TIMEOUT", "10s"), "Time allowed for the upstream connect, 0 disables")
	logLevel := fs.String("log-level", or("LOG_LEVEL", "info"), "Log level")
	logFormat := fs.String("log-format", or("LOG_FORMAT", "text"), "Log format (text or json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{}

	addr, err := netip.ParseAddr(*address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if !addr.Unmap().Is4() {
		return nil, fmt.Errorf("invalid address: %s is not IPv4", addr)
	}
	cfg.Server.Address = addr.Unmap()

	p, err := parsePort(*port)
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	cfg.Server.Port = p

	if cfg.Server.HandshakeTimeout, err = parseTimeout(*handshakeTimeout); err != nil {
		return nil, fmt.Errorf("invalid handshake-timeout: %w", err)
	}
	if cfg.Server.ConnectTimeout, err = parseTimeout(*connectTimeout); err != nil {
		return nil, fmt.Errorf("invalid connect-timeout: %w", err)
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = level

	switch f := strings.ToLower(*logFormat); f {
	case "text", "json":
		cfg.Logging.Format = f
	default:
		return nil, fmt.Errorf("invalid log format: %s", *logFormat)
	}

	return cfg, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if v == 0 || v > 65535 {
		return 0, fmt.Errorf("port must be between 1 and 65535")
	}
	return uint16(v), nil
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "info", "INFO":
		return slog.LevelInfo, nil
	case "warn", "WARN":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
