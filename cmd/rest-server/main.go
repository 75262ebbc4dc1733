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

// Command rest-server runs the relying party REST server directly from a
// YAML config file, without the CLI wrapper. Intended for container images
// and service managers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-fido2-server/internal/config"
	"github.com/jeremyhahn/go-fido2-server/internal/metrics"
	"github.com/jeremyhahn/go-fido2-server/internal/rest"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
	"github.com/jeremyhahn/go-fido2-server/pkg/logging"
	"github.com/jeremyhahn/go-fido2-server/pkg/storage/memory"
	"github.com/jeremyhahn/go-fido2-server/pkg/storage/sqlite"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/fido2-server/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("fido2-server REST server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("FIDO2_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting REST server",
		"config", *configPath,
		"version", version)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewSlogAdapter(&logging.SlogConfig{
		Level: logging.ParseLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.Format == "json",
	})

	// Create the credential store
	var store fido2.CredentialStore
	switch cfg.Storage.Backend {
	case "sqlite":
		sqlStore, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			logger.Fatal("Failed to open credential store", logging.Error(err))
		}
		defer func() { _ = sqlStore.Close() }()
		store = sqlStore
	case "memory":
		store = memory.NewCredentialStore()
	default:
		logger.Fatal("Unknown storage backend", logging.String("backend", cfg.Storage.Backend))
	}

	verifier, err := fido2.NewWebAuthnVerifier(&cfg.RelyingParty)
	if err != nil {
		logger.Fatal("Failed to create verifier", logging.Error(err))
	}

	var tokens fido2.TokenIssuer
	if cfg.Auth.JWT != nil {
		var expiresIn time.Duration
		if cfg.Auth.JWT.ExpiresIn != "" {
			expiresIn, err = time.ParseDuration(cfg.Auth.JWT.ExpiresIn)
			if err != nil {
				logger.Fatal("Invalid jwt expires_in", logging.Error(err))
			}
		}
		issuer, err := fido2.NewJWTIssuer(&fido2.JWTIssuerConfig{
			SigningKey: []byte(cfg.Auth.JWT.Secret),
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			ExpiresIn:  expiresIn,
		})
		if err != nil {
			logger.Fatal("Failed to create jwt issuer", logging.Error(err))
		}
		tokens = issuer
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := fido2.NewMemoryChallengeCache(cfg.RelyingParty.ChallengeTTL)
	stopCleanup := cache.StartCleanupRoutine(ctx, time.Minute)
	defer stopCleanup()

	service, err := fido2.NewService(fido2.ServiceParams{
		Config:          &cfg.RelyingParty,
		CredentialStore: store,
		ChallengeCache:  cache,
		Verifier:        verifier,
		TokenIssuer:     tokens,
	})
	if err != nil {
		logger.Fatal("Failed to create ceremony service", logging.Error(err))
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

	restServer, err := rest.NewServer(serverCfg)
	if err != nil {
		logger.Fatal("Failed to create REST server", logging.Error(err))
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler()

	// Start the REST server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := restServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("REST server started",
		logging.String("addr", restServer.Addr()),
		logging.String("rp_id", cfg.RelyingParty.RPID))

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", logging.Error(err))
	}

	// Gracefully shutdown
	shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := restServer.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during shutdown", logging.Error(err))
		os.Exit(1)
	}

	logger.Info("REST server stopped")
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}
