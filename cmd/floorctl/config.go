package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 15 * time.Second
)

// cliConfig is the optional ~/.config/floorctl/config.toml file.
type cliConfig struct {
	Server  string `toml:"server"`
	User    string `toml:"user"`
	Timeout string `toml:"timeout"`

	timeout time.Duration
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "floorctl", "config.toml")
}

// loadConfig reads path. An empty path falls back to the default location,
// and a missing default file yields the defaults. An explicit path must exist.
func loadConfig(path string) (*cliConfig, error) {
	cfg := &cliConfig{Server: defaultServer}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			decoder := toml.NewDecoder(file)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("open config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cliConfig) normalize() error {
	c.Server = strings.TrimRight(strings.TrimSpace(c.Server), "/")
	if c.Server == "" {
		c.Server = defaultServer
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server must be an http(s) URL, got %q", c.Server)
	}
	c.User = strings.TrimSpace(c.User)

	c.timeout = defaultTimeout
	if strings.TrimSpace(c.Timeout) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(c.Timeout))
		if err != nil || d <= 0 {
			return fmt.Errorf("timeout must be a positive duration, got %q", c.Timeout)
		}
		c.timeout = d
	}
	return nil
}
