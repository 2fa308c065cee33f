// Package config loads server settings from defaults, an optional YAML
// file, a .env file and JEDILNIK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/jedilnik/internal/staging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "JEDILNIK_"

// Config holds the server settings.
type Config struct {
	DBPath      string `yaml:"db"`
	Addr        string `yaml:"addr"`
	ContentRoot string `yaml:"content"`
	LogPath     string `yaml:"log"`

	// SiteAdmin is the principal that approves restaurants and manages users.
	SiteAdmin string `yaml:"site_admin"`

	StagingTTL time.Duration `yaml:"staging_ttl"`
	// MaxUploadBytes bounds import documents and image archives.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DBPath:         "jedilnik.db",
		Addr:           ":8080",
		ContentRoot:    "content",
		SiteAdmin:      "admin@jedilnik.local",
		StagingTTL:     staging.DefaultTTL,
		MaxUploadBytes: 32 << 20,
	}
}

// Load builds the configuration. An empty path skips the YAML file; a
// named file that does not exist is an error. A missing .env is ignored.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.DBPath, "DB")
	setString(&c.Addr, "ADDR")
	setString(&c.ContentRoot, "CONTENT")
	setString(&c.LogPath, "LOG")
	setString(&c.SiteAdmin, "SITE_ADMIN")

	if v := env("STAGING_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %sSTAGING_TTL: %w", EnvPrefix, err)
		}
		c.StagingTTL = d
	}
	if v := env("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if !strings.Contains(c.SiteAdmin, "@") {
		return fmt.Errorf("site admin %q is not an email address", c.SiteAdmin)
	}
	if c.StagingTTL <= 0 {
		return fmt.Errorf("staging ttl must be positive, got %s", c.StagingTTL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}
