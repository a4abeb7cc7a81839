// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autobrr/keygate/internal/api/handlers"
	apimiddleware "github.com/autobrr/keygate/internal/api/middleware"
	"github.com/autobrr/keygate/internal/license"
	"github.com/autobrr/keygate/internal/metrics"
	"github.com/autobrr/keygate/internal/models"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	Issuer         *license.Issuer
	Validator      *license.Validator
	LicenseStore   *models.LicenseStore
	Ledger         *models.ActivationLedger
	Allowlist      *models.DeviceAllowlistStore
	APIKeyStore    *models.APIKeyStore
	MetricsManager *metrics.Manager
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	licensesHandler := handlers.NewLicensesHandler(deps.Issuer, deps.Validator)
	adminHandler := handlers.NewAdminHandler(deps.LicenseStore, deps.Ledger, deps.Allowlist)

	r.Route("/api", func(r chi.Router) {
		// device-facing routes, no auth: the allowlist is the gate
		licensesHandler.RegisterRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(apimiddleware.RequireAPIKey(deps.APIKeyStore))
			adminHandler.RegisterRoutes(r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsManager != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.MetricsManager.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP)
	}

	return r
}
