// Package daemon manages the scalewatch daemon lifecycle and
// configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	TTN       TTNConfig       `toml:"ttn"`
	API       APIConfig       `toml:"api"`
	History   HistoryConfig   `toml:"history"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// TTNConfig identifies the Things Stack application this bridge serves.
type TTNConfig struct {
	Host              string `toml:"host"`
	AppID             string `toml:"app_id"`
	Tenant            string `toml:"tenant"`
	APIKey            string `toml:"api_key"`
	ReconnectInterval string `toml:"reconnect_interval"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// HistoryConfig bounds the in-memory record window.
type HistoryConfig struct {
	MaxRecords int `toml:"max_records"`
}

// StorageConfig locates the durable state on disk.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		TTN: TTNConfig{
			Host:              "eu1.cloud.thethings.network",
			Tenant:            "ttn",
			ReconnectInterval: "5s",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		History: HistoryConfig{
			MaxRecords: 2000,
		},
		Storage: StorageConfig{
			Dir: filepath.Join(scalewatchHome(), "data"),
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.scalewatch/config.toml, falling back
// to defaults. TTS_* environment variables override the [ttn] section,
// matching the deployment contract of the original bridge.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(scalewatchHome(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment overrides
	if v := os.Getenv("TTS_HOST"); v != "" {
		cfg.TTN.Host = v
	}
	if v := os.Getenv("TTS_APP_ID"); v != "" {
		cfg.TTN.AppID = v
	}
	if v := os.Getenv("TTS_TENANT"); v != "" {
		cfg.TTN.Tenant = v
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" {
		cfg.TTN.APIKey = v
	}

	return cfg, nil
}

// ReconnectIntervalDuration parses the configured retry interval,
// defaulting to 5 seconds.
func (c TTNConfig) ReconnectIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.ReconnectInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Validate checks the fields without which the bridge cannot start.
func (c Config) Validate() error {
	if c.TTN.Host == "" {
		return fmt.Errorf("ttn.host is required")
	}
	if c.TTN.AppID == "" {
		return fmt.Errorf("ttn.app_id is required (or TTS_APP_ID)")
	}
	if c.TTN.APIKey == "" {
		return fmt.Errorf("ttn.api_key is required (or TTS_API_KEY)")
	}
	return nil
}

// scalewatchHome returns the state directory, honoring SCALEWATCH_HOME.
func scalewatchHome() string {
	if dir := os.Getenv("SCALEWATCH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scalewatch"
	}
	return filepath.Join(home, ".scalewatch")
}
