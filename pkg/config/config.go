// Package config provides YAML-based configuration loading for the SCADA
// coordinator and its remote peers.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the process
	AppName string `mapstructure:"app_name"`

	// StationID is the local station identifier carried in packet headers
	StationID uint64 `mapstructure:"station_id"`

	// AuthKey is the optional process-wide authentication key. When empty,
	// packets are exchanged without an authentication tag.
	AuthKey string `mapstructure:"auth_key"`

	// AcceptTagged controls whether tagged frames are accepted while no
	// auth key is configured (the tag is ignored). When false such frames
	// are dropped.
	AcceptTagged bool `mapstructure:"accept_tagged"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Channels list to configure radio channels (transports)
	Channels []ChannelConfig `mapstructure:"channels"`

	// Link holds session/link timing options
	Link LinkConfig `mapstructure:"link"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName:   "scada-coordinator",
		StationID: 1,
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/scada.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Channels: []ChannelConfig{
			{
				Kind:   "udp",
				Listen: ":16000",
			},
		},
		Link: LinkConfig{
			ConnectTimeoutMS: 5000,
			LinkTimeoutMS:    25000,
			TickIntervalMS:   250,
			CloseGraceMS:     2000,
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix SCADA and `.`/`-` are replaced with `_`.
// Example: SCADA_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCADA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("station_id", cfg.StationID)
	v.SetDefault("auth_key", cfg.AuthKey)
	v.SetDefault("accept_tagged", cfg.AcceptTagged)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	// Channels default
	v.SetDefault("channels", cfg.Channels)
	// Link defaults
	v.SetDefault("link.connect_timeout_ms", cfg.Link.ConnectTimeoutMS)
	v.SetDefault("link.link_timeout_ms", cfg.Link.LinkTimeoutMS)
	v.SetDefault("link.tick_interval_ms", cfg.Link.TickIntervalMS)
	v.SetDefault("link.close_grace_ms", cfg.Link.CloseGraceMS)
	v.SetDefault("link.supervisor_addr", cfg.Link.SupervisorAddr)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("SCADA_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `scada`
		v.SetConfigName("scada")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scada"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.StationID == 0 {
		return fmt.Errorf("station_id must be non-zero")
	}
	if c.Link.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("link.connect_timeout_ms must be positive")
	}
	if c.Link.LinkTimeoutMS < c.Link.ConnectTimeoutMS {
		return fmt.Errorf("link.link_timeout_ms must be >= link.connect_timeout_ms")
	}
	for i := range c.Channels {
		c.Channels[i].Kind = strings.ToLower(strings.TrimSpace(c.Channels[i].Kind))
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
