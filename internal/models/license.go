// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrLicenseNotFound = errors.New("license not found")
	ErrLicenseExists   = errors.New("license already exists for this MAC address")
	ErrShortKeyTaken   = errors.New("short key already in use")
)

// License represents one issued license, bound to a single device identity.
// The token column holds the exact signed variant that produced the short
// key; the two must never drift apart.
type License struct {
	ID             int64     `json:"id"`
	MACAddress     string    `json:"macAddress"`
	ShortKey       string    `json:"licenseKey"`
	Token          string    `json:"-"`
	ExpiryDate     string    `json:"expiryDate"`
	MaxActivations int       `json:"maxActivations"`
	Activations    int       `json:"activations"`
	Revoked        bool      `json:"revoked"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type LicenseStore struct {
	db *sql.DB
}

func NewLicenseStore(db *sql.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

// Create persists a new license with zero activations. Unique-constraint
// violations are mapped to the corresponding sentinel errors so the issuer
// can distinguish a duplicate device from a short key collision.
func (s *LicenseStore) Create(ctx context.Context, license *License) error {
	query := `
		INSERT INTO licenses (mac_address, short_key, token, expiry_date, max_activations, activations, revoked)
		VALUES (?, ?, ?, ?, ?, 0, 0)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		license.MACAddress,
		license.ShortKey,
		license.Token,
		license.ExpiryDate,
		license.MaxActivations,
	).Scan(&license.ID, &license.CreatedAt, &license.UpdatedAt)

	if err != nil {
		// modernc/sqlite reports constraint violations by column name
		if strings.Contains(err.Error(), "licenses.mac_address") {
			return ErrLicenseExists
		}
		if strings.Contains(err.Error(), "licenses.short_key") {
			return ErrShortKeyTaken
		}
		return err
	}

	license.Activations = 0
	license.Revoked = false

	return nil
}

func (s *LicenseStore) GetByMAC(ctx context.Context, macAddress string) (*License, error) {
	return s.getBy(ctx, "mac_address", macAddress)
}

func (s *LicenseStore) GetByShortKey(ctx context.Context, shortKey string) (*License, error) {
	return s.getBy(ctx, "short_key", shortKey)
}

func (s *LicenseStore) getBy(ctx context.Context, column, value string) (*License, error) {
	query := `
		SELECT id, mac_address, short_key, token, expiry_date, max_activations, activations, revoked, created_at, updated_at
		FROM licenses
		WHERE ` + column + ` = ?
	`

	license := &License{}
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&license.ID,
		&license.MACAddress,
		&license.ShortKey,
		&license.Token,
		&license.ExpiryDate,
		&license.MaxActivations,
		&license.Activations,
		&license.Revoked,
		&license.CreatedAt,
		&license.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}

	return license, nil
}

// ShortKeyExists reports whether a derived key is already taken.
func (s *LicenseStore) ShortKeyExists(ctx context.Context, shortKey string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM licenses WHERE short_key = ?", shortKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// ConsumeActivation atomically spends one activation. The limit check and
// the increment run as a single conditional UPDATE so concurrent
// validations of the same key cannot overshoot max_activations.
func (s *LicenseStore) ConsumeActivation(ctx context.Context, shortKey string) (bool, error) {
	query := `
		UPDATE licenses
		SET activations = activations + 1, updated_at = CURRENT_TIMESTAMP
		WHERE short_key = ? AND activations < max_activations AND revoked = 0
	`

	result, err := s.db.ExecContext(ctx, query, shortKey)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// Revoke sets the one-way revoked flag. It is idempotent and deliberately
// does not distinguish an already-revoked or unknown key.
func (s *LicenseStore) Revoke(ctx context.Context, shortKey string) error {
	query := `
		UPDATE licenses
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE short_key = ?
	`

	_, err := s.db.ExecContext(ctx, query, shortKey)
	return err
}

func (s *LicenseStore) List(ctx context.Context) ([]*License, error) {
	query := `
		SELECT id, mac_address, short_key, token, expiry_date, max_activations, activations, revoked, created_at, updated_at
		FROM licenses
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*License
	for rows.Next() {
		license := &License{}
		err := rows.Scan(
			&license.ID,
			&license.MACAddress,
			&license.ShortKey,
			&license.Token,
			&license.ExpiryDate,
			&license.MaxActivations,
			&license.Activations,
			&license.Revoked,
			&license.CreatedAt,
			&license.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, license)
	}

	return licenses, rows.Err()
}
