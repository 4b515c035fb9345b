// Package config provides configuration types and loading for splitclock.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".splitclock"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// DBFile is the default database file name.
	DBFile = "splitclock.db"
)

// Config is the root configuration struct.
type Config struct {
	MachineID string       `json:"machineId" envconfig:"MACHINE_ID"`
	Paths     PathsConfig  `json:"paths"`
	Engine    EngineConfig `json:"engine"`
	Apps      AppsConfig   `json:"apps"`
	Sync      SyncConfig   `json:"sync"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	DBPath  string `json:"dbPath" envconfig:"DB_PATH"`
}

// EngineConfig holds the allocation engine parameters. Changing them
// changes what recomputation produces, so they are tunable but retained
// verbatim across runs.
type EngineConfig struct {
	AttentionWindowMS int64 `json:"attentionWindowMs" envconfig:"ATTENTION_WINDOW_MS"`
	SessionTimeoutMS  int64 `json:"sessionTimeoutMs" envconfig:"SESSION_TIMEOUT_MS"`
}

// AppsConfig lists the terminal-class and browser-class application names
// used by the focus hierarchy.
type AppsConfig struct {
	TerminalApps []string `json:"terminalApps"`
	BrowserApps  []string `json:"browserApps"`
}

// SyncConfig configures the Kafka event sync adapter.
type SyncConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers       string `json:"brokers" envconfig:"BROKERS"`
	Topic         string `json:"topic" envconfig:"TOPIC"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"CONSUMER_GROUP"`
}

// Default returns the stock configuration.
func Default() Config {
	hostname, _ := os.Hostname()
	return Config{
		MachineID: hostname,
		Engine: EngineConfig{
			AttentionWindowMS: 120_000,
			SessionTimeoutMS:  1_800_000,
		},
		Apps: AppsConfig{
			TerminalApps: []string{"Terminal", "iTerm2", "Alacritty", "kitty", "WezTerm", "Ghostty"},
			BrowserApps:  []string{"Safari", "Google Chrome", "Chrome", "Chromium", "Firefox", "Arc", "Brave Browser"},
		},
		Sync: SyncConfig{
			Topic:         "splitclock.events",
			ConsumerGroup: "splitclock",
		},
	}
}

// ConfigPath returns the path to the config file, honoring
// SPLITCLOCK_CONFIG with ~ expansion.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SPLITCLOCK_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file (if present), applies SPLITCLOCK_* env
// overrides, and fills defaults for anything unset.
func Load() (Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := envconfig.Process("SPLITCLOCK", &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	if err := envconfig.Process("SPLITCLOCK_PATHS", &cfg.Paths); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	if err := envconfig.Process("SPLITCLOCK_ENGINE", &cfg.Engine); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	if err := envconfig.Process("SPLITCLOCK_SYNC", &cfg.Sync); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}

	if cfg.Paths.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, err
		}
		cfg.Paths.DataDir = filepath.Join(home, ConfigDir)
	}
	if cfg.Paths.DBPath == "" {
		cfg.Paths.DBPath = filepath.Join(cfg.Paths.DataDir, DBFile)
	}
	if cfg.Engine.AttentionWindowMS <= 0 {
		cfg.Engine.AttentionWindowMS = 120_000
	}
	if cfg.Engine.SessionTimeoutMS <= 0 {
		cfg.Engine.SessionTimeoutMS = 1_800_000
	}
	return cfg, nil
}

// EnsureDataDir creates the data directory when missing.
func (c Config) EnsureDataDir() error {
	return os.MkdirAll(c.Paths.DataDir, 0o755)
}
