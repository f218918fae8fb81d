package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults for a locally running chat backend.
const (
	DefaultServerURL = "http://localhost:8080/api/chat"
	DefaultSocketURL = "ws://localhost:8080/ws/chat"
)

// Config represents the global ~/.scribble/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	ServerURL      string `toml:"server_url"`
	SocketURL      string `toml:"socket_url"`

	// Credentials for unattended logins. Optional; an interactive consumer
	// authenticates through the engine instead.
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// Load reads config from the given path and fills in endpoint defaults.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
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

// Default returns a config with endpoint defaults, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if c.SocketURL == "" {
		c.SocketURL = DefaultSocketURL
	}
}
