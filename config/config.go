package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlServer configures the REST and realtime listeners
type TomlServer struct {
	Address         string `toml:"address"`
	RealtimeAddress string `toml:"realtime_address"`
	AllowedOrigins  string `toml:"allowed_origins"`
}

// TomlDatabase selects the backing store
type TomlDatabase struct {
	Driver string `toml:"driver"` // postgres or sqlite
	DSN    string `toml:"dsn"`    // postgres://... URL or SQLite file path
}

// TomlAuth holds the secret access keys are signed with
type TomlAuth struct {
	JWTSecret string `toml:"jwt_secret"`
}

// TomlClient points the CLI views at a running service
type TomlClient struct {
	Endpoint         string `toml:"endpoint"`
	RealtimeEndpoint string `toml:"realtime_endpoint"`
	AccessKey        string `toml:"access_key"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	LogLevel string       `toml:"log_level"`
	Server   TomlServer   `toml:"server"`
	Database TomlDatabase `toml:"database"`
	Auth     TomlAuth     `toml:"auth"`
	Client   TomlClient   `toml:"client"`
}

// Default is what a local SQLite setup runs with
func Default() *TomlConfig {
	return &TomlConfig{
		LogLevel: "info",
		Server: TomlServer{
			Address:         ":3000",
			RealtimeAddress: ":3001",
			AllowedOrigins:  "*",
		},
		Database: TomlDatabase{
			Driver: "sqlite",
			DSN:    "noticeboard.db",
		},
		Client: TomlClient{
			Endpoint:         "http://localhost:3000",
			RealtimeEndpoint: "ws://localhost:3001",
		},
	}
}

// LoadConfig reads path over the defaults, a missing file leaves the defaults
func LoadConfig(path string) (*TomlConfig, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *TomlConfig) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q, expected postgres or sqlite", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	return nil
}
