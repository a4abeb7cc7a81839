// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector
}

func NewManager(db *sql.DB) *Manager {
	registry := prometheus.NewRegistry()

	licenseCollector := NewLicenseCollector(db)
	registry.MustRegister(licenseCollector)

	log.Info().Msg("Metrics manager initialized with license collector")

	return &Manager{
		registry:         registry,
		licenseCollector: licenseCollector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
