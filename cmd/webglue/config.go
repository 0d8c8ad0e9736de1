package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the serve command
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Protocol  ProtocolConfig `yaml:"protocol"`
	Logging   LoggingConfig  `yaml:"logging"`
	Resources []string       `yaml:"resources"`
	Demo      DemoConfig     `yaml:"demo"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Path        string `yaml:"path"`
	Minify      bool   `yaml:"minify"`
	Watch       bool   `yaml:"watch"`
	MetricsPath string `yaml:"metrics_path"`
	// TCPAddress additionally serves raw TCP connections, e.g. "127.0.0.1:8007"
	TCPAddress string `yaml:"tcp_address"`
}

// ProtocolConfig configures the webglue server
type ProtocolConfig struct {
	SupportedVersions    []string      `yaml:"supported_versions"`
	EventBufferCapacity  uint          `yaml:"event_buffer_capacity"`
	Timeout              time.Duration `yaml:"timeout"`
	KeepAliveInterval    time.Duration `yaml:"keep_alive_interval"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	EnableDetailedErrors bool          `yaml:"enable_detailed_errors"`
	AllowOriginPatterns  []string      `yaml:"allow_origin_patterns"`
}

// LoggingConfig configures the go-kit logger
type LoggingConfig struct {
	Format string `yaml:"format"` // "logfmt" or "json"
	Debug  bool   `yaml:"debug"`
}

// DemoConfig configures the demo modules
type DemoConfig struct {
	TickInterval time.Duration     `yaml:"tick_interval"`
	Users        map[string]string `yaml:"users"`
}

// LoadConfig reads the YAML file at path. Environment variables in the file are expanded.
// An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	setDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/webglue"
	}
	if len(cfg.Protocol.SupportedVersions) == 0 {
		cfg.Protocol.SupportedVersions = []string{"1.0", "1.1"}
	}
	if cfg.Protocol.EventBufferCapacity == 0 {
		cfg.Protocol.EventBufferCapacity = 64
	}
	if cfg.Protocol.Timeout == 0 {
		cfg.Protocol.Timeout = 30 * time.Second
	}
	if cfg.Protocol.KeepAliveInterval == 0 {
		cfg.Protocol.KeepAliveInterval = 5 * time.Second
	}
	if cfg.Protocol.HandshakeTimeout == 0 {
		cfg.Protocol.HandshakeTimeout = 15 * time.Second
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "logfmt"
	}
	if cfg.Demo.TickInterval == 0 {
		cfg.Demo.TickInterval = time.Second
	}
	if cfg.Demo.Users == nil {
		cfg.Demo.Users = map[string]string{"demo": "demo"}
	}
}

func validate(cfg *Config) error {
	var err error
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %v out of range", cfg.Server.Port))
	}
	if cfg.Server.Path[0] != '/' {
		err = multierr.Append(err, fmt.Errorf("server.path %q must start with /", cfg.Server.Path))
	}
	if cfg.Server.MetricsPath != "" && cfg.Server.MetricsPath[0] != '/' {
		err = multierr.Append(err, fmt.Errorf("server.metrics_path %q must start with /", cfg.Server.MetricsPath))
	}
	if cfg.Logging.Format != "logfmt" && cfg.Logging.Format != "json" {
		err = multierr.Append(err, fmt.Errorf("logging.format %q is neither logfmt nor json", cfg.Logging.Format))
	}
	if cfg.Protocol.KeepAliveInterval >= cfg.Protocol.Timeout {
		err = multierr.Append(err, errors.New("protocol.keep_alive_interval must be less than protocol.timeout"))
	}
	if cfg.Demo.TickInterval < 0 {
		err = multierr.Append(err, errors.New("demo.tick_interval must not be negative"))
	}
	return err
}
