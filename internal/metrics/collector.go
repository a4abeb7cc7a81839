// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// LicenseCollector reads license and ledger counts straight from the
// database at scrape time.
type LicenseCollector struct {
	db *sql.DB

	licensesTotalDesc   *prometheus.Desc
	licensesRevokedDesc *prometheus.Desc
	activationsUsedDesc *prometheus.Desc
	attemptsTotalDesc   *prometheus.Desc
	approvedDevicesDesc *prometheus.Desc
	scrapeErrorsDesc    *prometheus.Desc
}

func NewLicenseCollector(db *sql.DB) *LicenseCollector {
	return &LicenseCollector{
		db: db,

		licensesTotalDesc: prometheus.NewDesc(
			"keygate_licenses_total",
			"Number of issued licenses",
			nil,
			nil,
		),
		licensesRevokedDesc: prometheus.NewDesc(
			"keygate_licenses_revoked",
			"Number of revoked licenses",
			nil,
			nil,
		),
		activationsUsedDesc: prometheus.NewDesc(
			"keygate_activations_used_total",
			"Sum of consumed activations across all licenses",
			nil,
			nil,
		),
		attemptsTotalDesc: prometheus.NewDesc(
			"keygate_validation_attempts_total",
			"Number of validation attempts by outcome",
			[]string{"outcome"},
			nil,
		),
		approvedDevicesDesc: prometheus.NewDesc(
			"keygate_approved_devices",
			"Number of devices on the allowlist",
			nil,
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"keygate_scrape_errors_total",
			"Number of errors encountered while collecting metrics",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesTotalDesc
	ch <- c.licensesRevokedDesc
	ch <- c.activationsUsedDesc
	ch <- c.attemptsTotalDesc
	ch <- c.approvedDevicesDesc
	ch <- c.scrapeErrorsDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var scrapeErrors float64

	gauges := []struct {
		desc  *prometheus.Desc
		query string
	}{
		{c.licensesTotalDesc, "SELECT COUNT(*) FROM licenses"},
		{c.licensesRevokedDesc, "SELECT COUNT(*) FROM licenses WHERE revoked = 1"},
		{c.activationsUsedDesc, "SELECT COALESCE(SUM(activations), 0) FROM licenses"},
		{c.approvedDevicesDesc, "SELECT COUNT(*) FROM approved_devices"},
	}

	for _, g := range gauges {
		var value float64
		if err := c.db.QueryRowContext(ctx, g.query).Scan(&value); err != nil {
			log.Error().Err(err).Msg("Failed to collect license metric")
			scrapeErrors++
			continue
		}
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, value)
	}

	for outcome, success := range map[string]int{"success": 1, "failure": 0} {
		var value float64
		err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activations_log WHERE success = ?", success).Scan(&value)
		if err != nil {
			log.Error().Err(err).Msg("Failed to collect attempt metric")
			scrapeErrors++
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.attemptsTotalDesc, prometheus.CounterValue, value, outcome)
	}

	ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.CounterValue, scrapeErrors)
}
