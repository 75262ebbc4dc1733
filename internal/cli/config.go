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

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-fido2-server/internal/config"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/jeremyhahn/go-fido2-server/pkg/storage/memory"
	"github.com/jeremyhahn/go-fido2-server/pkg/storage/sqlite"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Verbose:      false,
	}
}

// LoadServerConfig reads the server configuration via viper, layering the
// config file and FIDO2_* environment variables over the built-in defaults.
func (c *Config) LoadServerConfig() (*config.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if c.ConfigFile != "" {
		v.SetConfigFile(c.ConfigFile)
	} else {
		v.SetConfigName("fido2-server")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fido2-server")
	}

	v.SetEnvPrefix("FIDO2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees env values for explicitly bound keys. These match
	// the variables the config package documents.
	bindings := map[string]string{
		"server.host":           "FIDO2_HOST",
		"server.port":           "FIDO2_PORT",
		"logging.level":         "FIDO2_LOG_LEVEL",
		"logging.format":        "FIDO2_LOG_FORMAT",
		"relying_party.id":      "FIDO2_RP_ID",
		"relying_party.origins": "FIDO2_RP_ORIGINS",
		"storage.backend":       "FIDO2_STORAGE_BACKEND",
		"storage.path":          "FIDO2_STORAGE_PATH",
		"auth.jwt.secret":       "FIDO2_JWT_SECRET",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		printVerbose("Using config file: %s", v.ConfigFileUsed())
	}

	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// CreateStore creates the credential store selected by the server
// configuration. The returned closer is a no-op for the memory backend.
func CreateStore(cfg *config.Config) (fido2.CredentialStore, func() error, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, store.Close, nil
	case "memory":
		return memory.NewCredentialStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// configCmd prints the effective server configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective server configuration",
	Long: `Load the configuration the same way the serve command does and print
the result after defaults and environment overrides are applied`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			return err
		}

		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return printer.PrintServerConfig(cfg)
	},
}
