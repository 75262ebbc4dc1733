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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-fido2-server/internal/config"
	"github.com/jeremyhahn/go-fido2-server/internal/metrics"
	"github.com/jeremyhahn/go-fido2-server/internal/rest"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/jeremyhahn/go-fido2-server/pkg/logging"
)

// challengeCleanupInterval controls how often expired challenges are swept.
const challengeCleanupInterval = time.Minute

// serveCmd starts the relying party server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FIDO2 relying party server",
	Long: `Start the REST server that drives the WebAuthn registration and
authentication ceremonies. Configuration is read from the config file
and FIDO2_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig().LoadServerConfig()
		if err != nil {
			return err
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		return runServer(cfg)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listen address (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
}

// runServer wires the store, verifier, cache and REST server together and
// blocks until a shutdown signal arrives.
func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)

	store, closeStore, err := CreateStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	verifier, err := fido2.NewWebAuthnVerifier(&cfg.RelyingParty)
	if err != nil {
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	tokens, err := newTokenIssuer(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := fido2.NewMemoryChallengeCache(cfg.RelyingParty.ChallengeTTL)
	stopCleanup := cache.StartCleanupRoutine(ctx, challengeCleanupInterval)
	defer stopCleanup()

	service, err := fido2.NewService(fido2.ServiceParams{
		Config:          &cfg.RelyingParty,
		CredentialStore: store,
		ChallengeCache:  cache,
		Verifier:        verifier,
		TokenIssuer:     tokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create ceremony service: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
		collector := metrics.StartResourceCollector(ctx, 15*time.Second)
		defer collector.Stop()
	} else {
		metrics.Disable()
	}

	serverCfg := &rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Service:        service,
		Logger:         logger,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.Server.TLS.Enabled {
		serverCfg.CertFile = cfg.Server.TLS.CertFile
		serverCfg.KeyFile = cfg.Server.TLS.KeyFile
	}
	if cfg.CORS.Enabled {
		serverCfg.CORSAllowedOrigins = cfg.CORS.AllowedOrigins
	}

	server, err := rest.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Starting fido2-server",
		logging.String("addr", server.Addr()),
		logging.String("rp_id", cfg.RelyingParty.RPID),
		logging.String("storage", cfg.Storage.Backend),
		logging.Bool("tls", cfg.Server.TLS.Enabled))

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalCh:
		logger.Info("Shutdown signal received", logging.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("Server error", logging.Error(err))
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// newLogger builds the logging adapter from the logging configuration.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewSlogAdapter(&logging.SlogConfig{
		Level: logging.ParseLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.Format == "json",
	})
}

// newTokenIssuer builds the optional JWT issuer from the auth configuration.
func newTokenIssuer(cfg *config.Config) (fido2.TokenIssuer, error) {
	if cfg.Auth.JWT == nil {
		return nil, nil
	}

	var expiresIn time.Duration
	if cfg.Auth.JWT.ExpiresIn != "" {
		parsed, err := time.ParseDuration(cfg.Auth.JWT.ExpiresIn)
		if err != nil {
			return nil, fmt.Errorf("invalid jwt expires_in: %w", err)
		}
		expiresIn = parsed
	}

	issuer, err := fido2.NewJWTIssuer(&fido2.JWTIssuerConfig{
		SigningKey: []byte(cfg.Auth.JWT.Secret),
		Issuer:     cfg.Auth.JWT.Issuer,
		Audience:   cfg.Auth.JWT.Audience,
		ExpiresIn:  expiresIn,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create jwt issuer: %w", err)
	}
	return issuer, nil
}
