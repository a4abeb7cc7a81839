// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrInvalidAPIKey  = errors.New("invalid api key")
)

// APIKey authenticates the administrative API. Only the SHA256 hash is
// stored; the raw key is shown once at creation time.
type APIKey struct {
	ID         int        `json:"id"`
	KeyHash    string     `json:"-"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// GenerateAPIKey generates a new raw API key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey creates a SHA256 hash of the raw key for storage and lookup.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Create generates a key, stores its hash, and returns the raw key exactly
// once along with the stored record.
func (s *APIKeyStore) Create(ctx context.Context, name string) (string, *APIKey, error) {
	rawKey, err := GenerateAPIKey()
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to generate api key")
	}

	query := `
		INSERT INTO api_keys (key_hash, name)
		VALUES (?, ?)
		RETURNING id, key_hash, name, created_at, last_used_at
	`

	apiKey := &APIKey{}
	err = s.db.QueryRowContext(ctx, query, HashAPIKey(rawKey), name).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.Name,
		&apiKey.CreatedAt,
		&apiKey.LastUsedAt,
	)
	if err != nil {
		return "", nil, err
	}

	return rawKey, apiKey, nil
}

// Validate checks a raw key and returns the matching record. The last-used
// timestamp is updated in the background.
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) (*APIKey, error) {
	query := `
		SELECT id, key_hash, name, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = ?
	`

	apiKey := &APIKey{}
	err := s.db.QueryRowContext(ctx, query, HashAPIKey(rawKey)).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.Name,
		&apiKey.CreatedAt,
		&apiKey.LastUsedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, err
	}

	go func() {
		_, _ = s.db.Exec("UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?", apiKey.ID)
	}()

	return apiKey, nil
}

func (s *APIKeyStore) List(ctx context.Context) ([]*APIKey, error) {
	query := `
		SELECT id, key_hash, name, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		apiKey := &APIKey{}
		err := rows.Scan(&apiKey.ID, &apiKey.KeyHash, &apiKey.Name, &apiKey.CreatedAt, &apiKey.LastUsedAt)
		if err != nil {
			return nil, err
		}
		keys = append(keys, apiKey)
	}

	return keys, rows.Err()
}

func (s *APIKeyStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}
