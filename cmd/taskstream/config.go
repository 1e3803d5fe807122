// ABOUTME: Configuration loading for the taskstream client CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389/taskstream/internal/client"
)

const (
	defaultServerURL    = "http://localhost:8080"
	defaultDedupeWindow = 1024
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	URL string `toml:"url"`
}

type ClientConfig struct {
	SeedTimeout  duration `toml:"seed_timeout"`
	DedupeWindow int      `toml:"dedupe_window"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// duration decodes TOML strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{URL: defaultServerURL},
		Client: ClientConfig{
			SeedTimeout:  duration{client.DefaultSeedTimeout},
			DedupeWindow: defaultDedupeWindow,
		},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// configPath returns the client config location.
// Priority: TASKSTREAM_CONFIG env var > XDG_CONFIG_HOME/taskstream/client.toml > ~/.config/taskstream/client.toml
func configPath() string {
	if envPath := os.Getenv("TASKSTREAM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "taskstream", "client.toml")
}

// LoadConfig reads config from path, expanding environment variables. A
// missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("server.url must include a host")
	}
	if c.Client.SeedTimeout.Duration <= 0 {
		return fmt.Errorf("client.seed_timeout must be positive")
	}
	if c.Client.DedupeWindow <= 0 {
		return fmt.Errorf("client.dedupe_window must be positive")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
