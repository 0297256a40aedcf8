// Package config handles the XDG configuration directory, file paths and the
// environment block that points the client at its backend and providers.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// AppName is the application directory name.
	AppName = "doit"

	// TokenFile is the stored bearer token filename.
	TokenFile = "token.json"

	// SessionFile is the stored signed-in user filename.
	SessionFile = "session.json"

	// SettingsFile is the optional settings file read before the environment.
	SettingsFile = "config.yaml"
)

// Firebase holds the identity/storage project credentials.
type Firebase struct {
	APIKey            string `yaml:"api_key" env:"FIREBASE_API_KEY"`
	ProjectID         string `yaml:"project_id" env:"FIREBASE_PROJECT_ID"`
	StorageBucket     string `yaml:"storage_bucket" env:"FIREBASE_STORAGE_BUCKET"`
	MessagingSenderID string `yaml:"messaging_sender_id" env:"FIREBASE_MESSAGING_SENDER_ID"`
	AppID             string `yaml:"app_id" env:"FIREBASE_APP_ID"`
}

// Complete reports whether every credential is present.
func (f Firebase) Complete() bool {
	return f.APIKey != "" && f.ProjectID != "" && f.StorageBucket != "" &&
		f.MessagingSenderID != "" && f.AppID != ""
}

// Env is the environment-supplied part of the configuration.
type Env struct {
	APIURL           string        `yaml:"api_url" env:"DOIT_API_URL"`
	Origin           string        `yaml:"origin" env:"DOIT_ORIGIN" env-default:"http://localhost"`
	BackendPort      int           `yaml:"backend_port" env:"DOIT_BACKEND_PORT" env-default:"5000"`
	MapsAPIKey       string        `yaml:"maps_api_key" env:"GOOGLE_MAPS_API_KEY"`
	Region           string        `yaml:"region" env:"DOIT_REGION" env-default:"de"`
	Position         string        `yaml:"position" env:"DOIT_POSITION"`
	NotifyInterval   time.Duration `yaml:"notify_interval" env:"DOIT_NOTIFY_INTERVAL" env-default:"30s"`
	NotifyMaxBackoff time.Duration `yaml:"notify_max_backoff" env:"DOIT_NOTIFY_MAX_BACKOFF" env-default:"5m"`
	LogLevel         string        `yaml:"log_level" env:"DOIT_LOG_LEVEL" env-default:"INFO"`
	Firebase         Firebase      `yaml:"firebase"`
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Env holds the backend and provider settings.
	Env Env
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/doit or $HOME/.config/doit.
// Settings are read from config.yaml in that directory when it exists and
// from the environment otherwise.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir}
	if err := LoadEnv(filepath.Join(dir, SettingsFile), &cfg.Env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv fills env from the settings file at path, falling back to the
// environment alone when the file does not exist.
func LoadEnv(path string, env *Env) error {
	err := cleanenv.ReadConfig(path, env)
	if err == nil {
		return nil
	}
	var pe *os.PathError
	if !errors.As(err, &pe) {
		return fmt.Errorf("cannot read config %q: %w", path, err)
	}
	if err := cleanenv.ReadEnv(env); err != nil {
		return fmt.Errorf("cannot read env: %w", err)
	}
	return nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// DemoMode reports whether provider credentials are missing, in which case
// the identity provider is unavailable and the client stays signed out.
func (c *Config) DemoMode() bool {
	return !c.Env.Firebase.Complete()
}

// TokenPath returns the path to the stored bearer token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// SessionPath returns the path to the stored session file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, SessionFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
