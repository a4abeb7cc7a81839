// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keygate/internal/api"
	"github.com/autobrr/keygate/internal/config"
	"github.com/autobrr/keygate/internal/database"
	"github.com/autobrr/keygate/internal/license"
	"github.com/autobrr/keygate/internal/metrics"
	"github.com/autobrr/keygate/internal/models"
)

func runServer(configDir string) {
	log.Info().Str("version", Version).Msg("Starting keygate")

	cfg, err := config.New(configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	cfg.ApplyLogConfig()

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// the keypair is loaded once and held for the process lifetime
	privateKeyPath, publicKeyPath := cfg.GetSigningKeyPaths()
	signer, err := license.NewSignerFromFiles(privateKeyPath, publicKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load signing keys (run `keygate generate-keys` first)")
	}

	deriver := license.NewKeyDeriver(signer.ShortKeySecret())

	licenseStore := models.NewLicenseStore(db.Conn())
	ledger := models.NewActivationLedger(db.Conn())
	apiKeyStore := models.NewAPIKeyStore(db.Conn())

	allowlist, err := models.NewDeviceAllowlistStore(db.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize device allowlist")
	}

	issuer := license.NewIssuer(signer, deriver, licenseStore, allowlist)
	issuer.SetDefaults(cfg.Config.License.DefaultDurationDays, cfg.Config.License.DefaultMaxActivations)

	deps := &api.Dependencies{
		Issuer:         issuer,
		Validator:      license.NewValidator(signer, deriver, licenseStore, ledger),
		LicenseStore:   licenseStore,
		Ledger:         ledger,
		Allowlist:      allowlist,
		APIKeyStore:    apiKeyStore,
		MetricsManager: metrics.NewManager(db.Conn()),
	}

	router := api.NewRouter(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second,
	}

	useTLS := cfg.Config.TLS.CertFile != "" && cfg.Config.TLS.KeyFile != ""

	go func() {
		log.Info().
			Str("address", srv.Addr).
			Bool("tls", useTLS).
			Msg("Starting HTTP server")

		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(cfg.Config.TLS.CertFile, cfg.Config.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
