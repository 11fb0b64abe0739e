package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Gateway  GatewayConfig
	Notify   NotifyConfig
	Reminder ReminderConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
	Backend string // sqlite, disk or none
}

type GatewayConfig struct {
	Origin    string
	CacheName string
	Timeout   time.Duration
}

type NotifyConfig struct {
	WebhookURL string
}

type ReminderConfig struct {
	Poll time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

const (
	BackendSQLite = "sqlite"
	BackendDisk   = "disk"
	BackendNone   = "none"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: BackendSQLite,
		},
		Gateway: GatewayConfig{
			Origin:    "http://127.0.0.1:5173",
			CacheName: "pulse-v1",
			Timeout:   10 * time.Second,
		},
		Reminder: ReminderConfig{
			Poll: time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/pulse/config.json. Environment variables (PULSE_*)
// override file values.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	var err error
	if cfg.Storage.DataDir, err = homedir.Expand(cfg.Storage.DataDir); err != nil {
		return fmt.Errorf("expanding storage.data_dir: %w", err)
	}
	if cfg.Log.File, err = homedir.Expand(cfg.Log.File); err != nil {
		return fmt.Errorf("expanding log.file: %w", err)
	}

	switch cfg.Storage.Backend {
	case BackendSQLite, BackendDisk, BackendNone:
	default:
		return fmt.Errorf("invalid storage.backend %q: want sqlite, disk or none", cfg.Storage.Backend)
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: want debug, info, warn or error", cfg.Log.Level)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is outside valid range (1-65535)", cfg.Server.Port)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := homedir.Dir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "pulse-data"
		}
	}
	return filepath.Join(dir, "pulse")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := homedir.Dir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "pulse", "config.json")
}
