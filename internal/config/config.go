// Package config loads listener settings from a YAML file and LES02_*
// environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSocketCAN   = "socketcan"
	SourceReplay      = "replay"
	SourceMockCounter = "mock-counter"
	SourceMockTrip    = "mock-trip"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LES02_"

type Config struct {
	Source SourceConfig `yaml:"source" envPrefix:"SOURCE_"`
	Bridge BridgeConfig `yaml:"bridge" envPrefix:"BRIDGE_"`
	WS     WSConfig     `yaml:"ws" envPrefix:"WS_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

type SourceConfig struct {
	Kind       string `yaml:"kind" env:"KIND"`
	Interface  string `yaml:"interface" env:"INTERFACE"`
	ReplayFile string `yaml:"replay_file" env:"REPLAY_FILE"`
	ReplayPace bool   `yaml:"replay_pace" env:"REPLAY_PACE"`
	// MockInterval paces mock-counter only; mock-trip samples at its
	// profile frequency.
	MockInterval time.Duration `yaml:"mock_interval" env:"MOCK_INTERVAL"`
}

type BridgeConfig struct {
	HandoffCapacity int `yaml:"handoff_capacity" env:"HANDOFF_CAPACITY"`
}

type WSConfig struct {
	Listen         string        `yaml:"listen" env:"LISTEN"`
	Path           string        `yaml:"path" env:"PATH"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	OutboxSize     int           `yaml:"outbox_size" env:"OUTBOX_SIZE"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	Codec          string        `yaml:"codec" env:"CODEC"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Kind:         SourceSocketCAN,
			Interface:    "vcan0",
			MockInterval: 2 * time.Millisecond,
		},
		Bridge: BridgeConfig{
			HandoffCapacity: 4096,
		},
		WS: WSConfig{
			Listen:       "localhost:8765",
			Path:         "/",
			OutboxSize:   256,
			WriteTimeout: 10 * time.Second,
			Codec:        "json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (optional; empty skips the file), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field combinations.
func (c Config) Validate() error {
	var errs []error

	switch c.Source.Kind {
	case SourceSocketCAN:
		if c.Source.Interface == "" {
			errs = append(errs, errors.New("source.interface is required for socketcan"))
		}
	case SourceReplay:
		if c.Source.ReplayFile == "" {
			errs = append(errs, errors.New("source.replay_file is required for replay"))
		}
	case SourceMockCounter:
		if c.Source.MockInterval <= 0 {
			errs = append(errs, errors.New("source.mock_interval must be positive"))
		}
	case SourceMockTrip:
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not one of socketcan, replay, mock-counter, mock-trip", c.Source.Kind))
	}

	if c.Bridge.HandoffCapacity < 1 {
		errs = append(errs, errors.New("bridge.handoff_capacity must be at least 1"))
	}
	if c.WS.Listen == "" {
		errs = append(errs, errors.New("ws.listen is required"))
	}
	if c.WS.Path == "" || c.WS.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("ws.path %q must start with /", c.WS.Path))
	}
	if c.WS.OutboxSize < 1 {
		errs = append(errs, errors.New("ws.outbox_size must be at least 1"))
	}
	if c.WS.WriteTimeout <= 0 {
		errs = append(errs, errors.New("ws.write_timeout must be positive"))
	}
	if c.WS.Codec != "json" && c.WS.Codec != "cbor" {
		errs = append(errs, fmt.Errorf("ws.codec %q must be json or cbor", c.WS.Codec))
	}

	return errors.Join(errs...)
}
