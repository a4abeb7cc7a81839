// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"
)

// ActivationRecord is one row of the append-only activation ledger. Records
// are written once per validation attempt and never updated or deleted.
type ActivationRecord struct {
	ID         int64     `json:"id"`
	MACAddress string    `json:"macAddress"`
	ShortKey   string    `json:"licenseKey"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Reason     *string   `json:"reason,omitempty"`
}

type ActivationLedger struct {
	db *sql.DB
}

func NewActivationLedger(db *sql.DB) *ActivationLedger {
	return &ActivationLedger{db: db}
}

// Append writes one attempt to the ledger. Persistence failures propagate
// to the caller; a validation that cannot be recorded is a server fault.
func (l *ActivationLedger) Append(ctx context.Context, record *ActivationRecord) error {
	query := `
		INSERT INTO activations_log (mac_address, short_key, success, reason)
		VALUES (?, ?, ?, ?)
		RETURNING id, timestamp
	`

	return l.db.QueryRowContext(ctx, query,
		record.MACAddress,
		record.ShortKey,
		record.Success,
		record.Reason,
	).Scan(&record.ID, &record.Timestamp)
}

func (l *ActivationLedger) ListByShortKey(ctx context.Context, shortKey string) ([]*ActivationRecord, error) {
	query := `
		SELECT id, mac_address, short_key, timestamp, success, reason
		FROM activations_log
		WHERE short_key = ?
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := l.db.QueryContext(ctx, query, shortKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ActivationRecord
	for rows.Next() {
		record := &ActivationRecord{}
		err := rows.Scan(
			&record.ID,
			&record.MACAddress,
			&record.ShortKey,
			&record.Timestamp,
			&record.Success,
			&record.Reason,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
