// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads and validates the server configuration from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
)

// Config represents the complete server configuration
type Config struct {
	Server       ServerConfig  `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig `yaml:"logging" mapstructure:"logging"`
	CORS         CORSConfig    `yaml:"cors" mapstructure:"cors"`
	RelyingParty fido2.Config  `yaml:"relying_party" mapstructure:"relying_party"`
	Storage      StorageConfig `yaml:"storage" mapstructure:"storage"`
	Auth         AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Metrics      MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string    `yaml:"host" mapstructure:"host"`
	Port int       `yaml:"port" mapstructure:"port"`
	TLS  TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// TLSConfig controls TLS settings for the REST listener
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// CORSConfig controls cross-origin request handling
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// StorageConfig selects and configures the credential store backend
type StorageConfig struct {
	// Backend is "sqlite" or "memory"
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the SQLite database file location
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig controls post-authentication token issuance
type AuthConfig struct {
	// JWT enables signed token issuance after a successful authentication
	JWT *JWTConfig `yaml:"jwt,omitempty" mapstructure:"jwt"`
}

// JWTConfig controls the JWT issuer
type JWTConfig struct {
	Secret    string   `yaml:"secret" mapstructure:"secret"`
	Issuer    string   `yaml:"issuer" mapstructure:"issuer"`
	Audience  []string `yaml:"audience" mapstructure:"audience"`
	ExpiresIn string   `yaml:"expires_in" mapstructure:"expires_in"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "",
			Port: 8443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://localhost:8443"},
		},
		RelyingParty: fido2.Config{
			RPID:          "localhost",
			RPDisplayName: "FIDO2 Server",
			RPOrigins:     []string{"https://localhost:8443"},
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "fido2.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. A missing file is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("FIDO2_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("FIDO2_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("FIDO2_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("FIDO2_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if rpid := os.Getenv("FIDO2_RP_ID"); rpid != "" {
		cfg.RelyingParty.RPID = rpid
	}
	if origins := os.Getenv("FIDO2_RP_ORIGINS"); origins != "" {
		cfg.RelyingParty.RPOrigins = strings.Split(origins, ",")
	}
	if backend := os.Getenv("FIDO2_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("FIDO2_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if secret := os.Getenv("FIDO2_JWT_SECRET"); secret != "" {
		if cfg.Auth.JWT == nil {
			cfg.Auth.JWT = &JWTConfig{}
		}
		cfg.Auth.JWT.Secret = secret
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("tls enabled but cert_file or key_file missing")
		}
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("sqlite backend requires a path")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}

	if c.Auth.JWT != nil && c.Auth.JWT.Secret == "" {
		return fmt.Errorf("jwt auth requires a secret")
	}

	c.RelyingParty.SetDefaults()
	if err := c.RelyingParty.Validate(); err != nil {
		return fmt.Errorf("relying_party: %w", err)
	}

	return nil
}
