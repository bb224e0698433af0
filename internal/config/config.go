package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string ("2s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.sbc/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	Backend        BackendConfig  `toml:"backend"`
	Identity       IdentityConfig `toml:"identity"`
	Chat           ChatConfig     `toml:"chat"`
	Feed           FeedConfig     `toml:"feed"`
	Daemon         DaemonConfig   `toml:"daemon"`
}

type BackendConfig struct {
	BaseURL string   `toml:"base_url"`
	FeedURL string   `toml:"feed_url,omitempty"`
	Token   string   `toml:"token,omitempty"`
	Timeout Duration `toml:"timeout"`
}

// IdentityConfig is the signed-in user. UserID drives self-detection in
// the transcript.
type IdentityConfig struct {
	UserID   int64  `toml:"user_id"`
	Username string `toml:"username"`
}

type ChatConfig struct {
	DefaultGroup string   `toml:"default_group,omitempty"`
	SendTimeout  Duration `toml:"send_timeout"`
	SyncTimeout  Duration `toml:"sync_timeout"`
}

type FeedConfig struct {
	ReconnectInterval Duration `toml:"reconnect_interval"`
	ReconnectBurst    int      `toml:"reconnect_burst"`
}

type DaemonConfig struct {
	// MetricsAddr serves /metrics and /healthz. Empty disables it.
	MetricsAddr string `toml:"metrics_addr,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8080",
			Timeout: Duration{15 * time.Second},
		},
		Chat: ChatConfig{
			SendTimeout: Duration{30 * time.Second},
			SyncTimeout: Duration{10 * time.Second},
		},
		Feed: FeedConfig{
			ReconnectInterval: Duration{2 * time.Second},
			ReconnectBurst:    3,
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve layers defaults, the TOML file at path, the profile .env file at
// envPath and the process environment, in that order. Missing files are
// skipped.
func Resolve(path, envPath string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if envPath != "" {
		vars, err := godotenv.Read(envPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envPath, err)
		}
		if err := applyEnv(cfg, func(k string) (string, bool) {
			v, ok := vars[k]
			return v, ok
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", envPath, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SBC_BASE_URL":      &cfg.Backend.BaseURL,
		"SBC_FEED_URL":      &cfg.Backend.FeedURL,
		"SBC_TOKEN":         &cfg.Backend.Token,
		"SBC_USERNAME":      &cfg.Identity.Username,
		"SBC_DEFAULT_GROUP": &cfg.Chat.DefaultGroup,
		"SBC_METRICS_ADDR":  &cfg.Daemon.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("SBC_USER_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SBC_USER_ID: %w", err)
		}
		cfg.Identity.UserID = id
	}
	return nil
}

// Validate reports settings the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Identity.UserID == 0 && c.Identity.Username == "" {
		return errors.New("identity.user_id or identity.username is required")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
