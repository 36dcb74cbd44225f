// Package config loads settings shared by the client and the fake broker
// from an optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvHost         = "STOMP_HOST"
	EnvTransport    = "STOMP_TRANSPORT"
	EnvLoginTimeout = "STOMP_LOGIN_TIMEOUT"
	EnvLogLevel     = "STOMP_LOG_LEVEL"
	EnvMetricsAddr  = "STOMP_METRICS_ADDR"
	EnvSummaryDir   = "STOMP_SUMMARY_DIR"

	EnvBrokerAddr      = "FAKESTOMP_ADDR"
	EnvBrokerWSAddr    = "FAKESTOMP_WS_ADDR"
	EnvBrokerAdminAddr = "FAKESTOMP_ADMIN_ADDR"
	EnvBrokerUsers     = "FAKESTOMP_USERS"
)

// Transports accepted in STOMP_TRANSPORT.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// DefaultHost is the broker address used when STOMP_HOST is unset.
const DefaultHost = "127.0.0.1:7777"

// Config is the resolved configuration.
type Config struct {
	Host         string
	Transport    string
	LoginTimeout time.Duration
	LogLevel     slog.Level
	MetricsAddr  string
	SummaryDir   string

	Broker Broker
}

// Broker holds the fake broker listeners and its preloaded accounts.
type Broker struct {
	Addr      string
	WSAddr    string
	AdminAddr string
	Users     map[string]string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Host:      DefaultHost,
		Transport: TransportTCP,
		LogLevel:  slog.LevelInfo,
		Broker: Broker{
			Addr:  DefaultHost,
			Users: map[string]string{},
		},
	}
}

// Load reads path as a .env file when it exists, then the environment.
// Variables already present in the environment win over the file. An empty
// path means ".env" in the working directory.
func Load(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv resolves a Config through lookup, which has the shape of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	if value := get(EnvHost); value != "" {
		cfg.Host = value
	}
	if value := get(EnvTransport); value != "" {
		switch strings.ToLower(value) {
		case TransportTCP:
			cfg.Transport = TransportTCP
		case TransportWebSocket, "websocket":
			cfg.Transport = TransportWebSocket
		default:
			return Config{}, fmt.Errorf("%s: unknown transport %q", EnvTransport, value)
		}
	}
	if value := get(EnvLoginTimeout); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout < 0 {
			return Config{}, fmt.Errorf("%s: invalid duration %q", EnvLoginTimeout, value)
		}
		cfg.LoginTimeout = timeout
	}
	if value := get(EnvLogLevel); value != "" {
		level, err := ParseLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}
	cfg.MetricsAddr = get(EnvMetricsAddr)
	cfg.SummaryDir = get(EnvSummaryDir)

	if value := get(EnvBrokerAddr); value != "" {
		cfg.Broker.Addr = value
	}
	cfg.Broker.WSAddr = get(EnvBrokerWSAddr)
	cfg.Broker.AdminAddr = get(EnvBrokerAdminAddr)
	if value := get(EnvBrokerUsers); value != "" {
		users, err := ParseUsers(value)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvBrokerUsers, err)
		}
		cfg.Broker.Users = users
	}
	return cfg, nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

// ParseUsers parses "user:pass,user2:pass2".
func ParseUsers(value string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, password, found := strings.Cut(pair, ":")
		if !found || user == "" {
			return nil, fmt.Errorf("invalid user entry %q", pair)
		}
		users[user] = password
	}
	return users, nil
}

// WithScheme returns host as a dial address for transport: ws:// URLs for the
// WebSocket transport, host:port otherwise.
func (cfg Config) WithScheme(host string) string {
	if cfg.Transport != TransportWebSocket || strings.Contains(host, "://") {
		return host
	}
	return "ws://" + host + "/stomp"
}
