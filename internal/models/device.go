// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

var ErrDeviceNotFound = errors.New("device not found")

// cache approvals briefly; validation traffic hits the allowlist far more
// often than the admin workflow changes it
const deviceCacheTTL = 30 * time.Second

// ApprovedDevice is one allowlist entry: a device permitted to request a
// license. Entries are managed by the administrative API and CLI and only
// consulted by the issuer.
type ApprovedDevice struct {
	ID         int64     `json:"id"`
	MACAddress string    `json:"macAddress"`
	CreatedAt  time.Time `json:"createdAt"`
}

type DeviceAllowlistStore struct {
	db    *sql.DB
	cache *ristretto.Cache
}

func NewDeviceAllowlistStore(db *sql.DB) (*DeviceAllowlistStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create allowlist cache")
	}

	return &DeviceAllowlistStore{db: db, cache: cache}, nil
}

// Contains reports whether the normalized address is approved.
func (s *DeviceAllowlistStore) Contains(ctx context.Context, macAddress string) (bool, error) {
	if cached, found := s.cache.Get(macAddress); found {
		return cached.(bool), nil
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM approved_devices WHERE mac_address = ?", macAddress).Scan(&exists)

	approved := true
	if err == sql.ErrNoRows {
		approved = false
	} else if err != nil {
		return false, err
	}

	s.cache.SetWithTTL(macAddress, approved, 1, deviceCacheTTL)

	return approved, nil
}

// Add approves a device. Adding an already-approved device is a no-op.
func (s *DeviceAllowlistStore) Add(ctx context.Context, macAddress string) error {
	query := `INSERT OR IGNORE INTO approved_devices (mac_address) VALUES (?)`

	if _, err := s.db.ExecContext(ctx, query, macAddress); err != nil {
		return err
	}

	s.cache.Del(macAddress)

	return nil
}

func (s *DeviceAllowlistStore) Remove(ctx context.Context, macAddress string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM approved_devices WHERE mac_address = ?", macAddress)
	if err != nil {
		return err
	}

	s.cache.Del(macAddress)

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrDeviceNotFound
	}

	return nil
}

func (s *DeviceAllowlistStore) List(ctx context.Context) ([]*ApprovedDevice, error) {
	query := `
		SELECT id, mac_address, created_at
		FROM approved_devices
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*ApprovedDevice
	for rows.Next() {
		device := &ApprovedDevice{}
		if err := rows.Scan(&device.ID, &device.MACAddress, &device.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}
