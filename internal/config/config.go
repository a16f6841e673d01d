package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SocketPath        string        `env:"SHOWRUNNER_SOCKET"`
	DBPath            string        `env:"SHOWRUNNER_DB"`
	DefaultConfigPath string        `env:"SHOWRUNNER_CONFIG"`
	BroadcastAddr     string        `env:"SHOWRUNNER_BROADCAST_ADDR"`
	ListenAddr        string        `env:"SHOWRUNNER_LISTEN_ADDR"`
	NodeID            uint32        `env:"SHOWRUNNER_NODE_ID"`
	CheckSceneOnFire  bool          `env:"SHOWRUNNER_CHECK_SCENE_ON_FIRE"`
	FireShiftedPast   bool          `env:"SHOWRUNNER_FIRE_SHIFTED_PAST"`
	CoalesceDelay     time.Duration `env:"SHOWRUNNER_COALESCE_DELAY"`
	LogLevel          string        `env:"SHOWRUNNER_LOG_LEVEL"`
	LogFormat         string        `env:"SHOWRUNNER_LOG_FORMAT"`
	NotificationTTL   time.Duration `env:"SHOWRUNNER_NOTIFICATION_TTL"`
	NotifyBuffer      int           `env:"SHOWRUNNER_NOTIFY_BUFFER"`
	UpdateBuffer      int           `env:"SHOWRUNNER_UPDATE_BUFFER"`
	ClientBuffer      int           `env:"SHOWRUNNER_CLIENT_BUFFER"`
	CommandTimeout    time.Duration `env:"SHOWRUNNER_COMMAND_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		SocketPath:       defaultSocketPath(),
		DBPath:           defaultDBPath(),
		CheckSceneOnFire: true,
		CoalesceDelay:    10 * time.Microsecond,
		LogLevel:         "info",
		LogFormat:        "text",
		NotificationTTL:  14 * 24 * time.Hour,
		NotifyBuffer:     256,
		UpdateBuffer:     1024,
		ClientBuffer:     64,
		CommandTimeout:   5 * time.Second,
	}
}

// FromEnv starts from DefaultConfig and applies SHOWRUNNER_* overrides.
// Unset variables keep their defaults.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.CoalesceDelay < 0 {
		return fmt.Errorf("coalesce delay must not be negative")
	}
	if c.NotifyBuffer <= 0 || c.UpdateBuffer <= 0 || c.ClientBuffer <= 0 {
		return fmt.Errorf("buffer sizes must be positive")
	}
	if c.BroadcastAddr != "" && c.NodeID == 0 {
		return fmt.Errorf("node id is required when broadcasting")
	}
	return nil
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "showrunner", "showrunnerd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".showrunnerd.sock"
	}
	return filepath.Join(home, ".local", "state", "showrunner", "showrunnerd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "showrunner.db"
	}
	return filepath.Join(home, ".local", "state", "showrunner", "state.db")
}
