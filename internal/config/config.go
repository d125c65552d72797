// Package config loads sync daemon settings from a YAML file overlaid
// with environment variables. A .env file in the working directory is
// honored for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/opentab/possync/internal/pos"
)

// envPrefix namespaces the override variables: POSSYNC_TOKEN,
// POSSYNC_MODE and so on.
const envPrefix = "possync"

// Config is the full runtime configuration.
type Config struct {
	// BaseURL is the platform REST endpoint.
	BaseURL string `yaml:"baseURL" envconfig:"BASE_URL"`
	// Token authenticates every platform call.
	Token string `yaml:"token" envconfig:"TOKEN"`
	// Venue scopes the connection; one daemon serves one venue.
	Venue string `yaml:"venue" envconfig:"VENUE"`
	// SocketAddr is the realtime push channel address.
	SocketAddr string `yaml:"socketAddr" envconfig:"SOCKET_ADDR"`
	// Mode selects single-pass (bistro) or multi-pass (restaurant)
	// payment capture.
	Mode string `yaml:"mode" envconfig:"MODE"`
	// WatchdogTimeout is how long the channel may stay silent before the
	// POS is released to run autonomously.
	WatchdogTimeout time.Duration `yaml:"watchdogTimeout" envconfig:"WATCHDOG_TIMEOUT"`
	// StorePath is the SQLite file backing the reference POS adapter.
	StorePath string `yaml:"storePath" envconfig:"STORE_PATH"`
}

// Default returns the baseline configuration before any file or
// environment overlay.
func Default() Config {
	return Config{
		Mode:            string(pos.CaptureRestaurant),
		WatchdogTimeout: 30 * time.Second,
		StorePath:       "possync.db",
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is ""), then environment variables. A .env file is
// loaded into the environment first when present.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the fields every run needs.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: baseURL is required")
	}
	if c.Token == "" {
		return errors.New("config: token is required")
	}
	if c.Venue == "" {
		return errors.New("config: venue is required")
	}
	if !pos.CaptureMode(c.Mode).Valid() {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.WatchdogTimeout <= 0 {
		return errors.New("config: watchdogTimeout must be positive")
	}
	return nil
}

// CaptureMode returns the validated capture mode.
func (c Config) CaptureMode() pos.CaptureMode {
	return pos.CaptureMode(c.Mode)
}
