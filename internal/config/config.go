// Package config loads broker and client configuration from YAML,
// modeled directly on the teacher's own internal/config package: a
// struct tree tagged with `yaml:"..."`, a Load function that fills
// defaults after unmarshaling, and validation of the values that can be
// meaningfully out of range.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TLSConfig configures the optional TLS variant of a transport.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// KeepaliveConfig mirrors spec.md §4.4's command.create ping.* options.
type KeepaliveConfig struct {
	IntervalMS  int `yaml:"interval_ms"`
	TimeoutMS   int `yaml:"timeout_ms"`
	Threshold   int `yaml:"threshold"`
}

// BrokerConfig configures the broker's listeners and runtime behavior.
type BrokerConfig struct {
	TCPAddr  string    `yaml:"tcp_addr"`
	UnixAddr string    `yaml:"unix_addr"`
	WSAddr   string    `yaml:"ws_addr"`
	WSPath   string    `yaml:"ws_path"`
	TLS      TLSConfig `yaml:"tls"`

	Password string `yaml:"password"`

	Compressions []string `yaml:"compressions"`

	Debug          bool `yaml:"debug"`
	RunTimeoutMS   int  `yaml:"run_timeout_ms"`
	MaxInboundKB   int  `yaml:"max_inbound_kb"`
}

// ClientConfig configures one mbus client connection.
type ClientConfig struct {
	Address  string    `yaml:"address"`
	Network  string    `yaml:"network"` // "tcp", "unix", or "ws"
	TLS      TLSConfig `yaml:"tls"`

	Identifier string `yaml:"identifier"`
	Password   string `yaml:"password"`

	Keepalive    KeepaliveConfig `yaml:"keepalive"`
	Compressions []string        `yaml:"compressions"`

	ConnectIntervalMS int `yaml:"connect_interval_ms"`
	ConnectTimeoutMS  int `yaml:"connect_timeout_ms"`

	// ChunkTokenBudget, when positive, splits a Call payload whose
	// estimated token footprint exceeds it across multiple envelopes.
	ChunkTokenBudget int `yaml:"chunk_token_budget"`

	Debug bool `yaml:"debug"`
}

// Config is the top-level configuration document loaded by cmd/mbus-broker
// (its -config flag) and by the FromConfigFile helpers of public/broker
// and public/client.
type Config struct {
	AppName string       `yaml:"app_name"`
	Debug   bool         `yaml:"debug"`
	Broker  BrokerConfig `yaml:"broker"`
	Client  ClientConfig `yaml:"client"`
}

// Load reads and parses filename, applying defaults and validating the
// result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Broker.TCPAddr == "" && cfg.Broker.UnixAddr == "" && cfg.Broker.WSAddr == "" {
		cfg.Broker.TCPAddr = "127.0.0.1:8000"
	}
	if cfg.Broker.UnixAddr == "" {
		// left empty means "do not listen on UDS"; transport.ListenUnix
		// falls back to "/tmp/mbus-server-uds" only when given an empty path.
	}
	if len(cfg.Broker.Compressions) == 0 {
		cfg.Broker.Compressions = []string{"zlib", "none"}
	}
	if cfg.Broker.RunTimeoutMS == 0 {
		cfg.Broker.RunTimeoutMS = 10000
	}
	if cfg.Broker.MaxInboundKB == 0 {
		cfg.Broker.MaxInboundKB = 16 * 1024 // 16 MiB
	}

	if cfg.Client.Network == "" {
		cfg.Client.Network = "tcp"
	}
	if cfg.Client.Address == "" {
		cfg.Client.Address = "127.0.0.1:8000"
	}
	if len(cfg.Client.Compressions) == 0 {
		cfg.Client.Compressions = []string{"zlib", "none"}
	}
	if cfg.Client.ConnectIntervalMS == 0 {
		cfg.Client.ConnectIntervalMS = 1000
	}
	if cfg.Client.ConnectTimeoutMS == 0 {
		cfg.Client.ConnectTimeoutMS = 5000
	}
	if cfg.Client.Keepalive.IntervalMS > 0 && cfg.Client.Keepalive.TimeoutMS == 0 {
		cfg.Client.Keepalive.TimeoutMS = cfg.Client.Keepalive.IntervalMS
	}
	if cfg.Client.Keepalive.TimeoutMS > cfg.Client.Keepalive.IntervalMS && cfg.Client.Keepalive.IntervalMS > 0 {
		// spec.md §4.4: ping.timeout is clamped to <= interval.
		cfg.Client.Keepalive.TimeoutMS = cfg.Client.Keepalive.IntervalMS
	}
}

func validate(cfg *Config) error {
	if cfg.Broker.RunTimeoutMS < 0 {
		return fmt.Errorf("config: broker.run_timeout_ms cannot be negative: %d", cfg.Broker.RunTimeoutMS)
	}
	if cfg.Client.ConnectIntervalMS < 0 || cfg.Client.ConnectTimeoutMS < 0 {
		return fmt.Errorf("config: client connect timing cannot be negative")
	}
	if cfg.Client.Keepalive.IntervalMS < 0 || cfg.Client.Keepalive.TimeoutMS < 0 || cfg.Client.Keepalive.Threshold < 0 {
		return fmt.Errorf("config: client keepalive settings cannot be negative")
	}
	return nil
}

// Default returns the hardcoded configuration used when no config file is
// available, mirroring the teacher's getDefaultConfig fallback.
func Default() *Config {
	cfg := &Config{AppName: "mbus"}
	applyDefaults(cfg)
	return cfg
}
