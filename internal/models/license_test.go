// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keygate/internal/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Failed to initialize test database")
	t.Cleanup(func() { db.Close() })

	return db.Conn()
}

func testLicense(macAddress, shortKey string, maxActivations int) *License {
	return &License{
		MACAddress:     macAddress,
		ShortKey:       shortKey,
		Token:          "token-" + shortKey,
		ExpiryDate:     "2030-01-15",
		MaxActivations: maxActivations,
	}
}

func TestLicenseStoreCreate(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	license := testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)
	require.NoError(t, store.Create(ctx, license))

	assert.NotZero(t, license.ID)
	assert.NotZero(t, license.CreatedAt)
	assert.Equal(t, 0, license.Activations)
	assert.False(t, license.Revoked)
}

func TestLicenseStoreCreateDuplicateMAC(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)))

	err := store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "MNOP-QRST-UVWX", 3))
	assert.ErrorIs(t, err, ErrLicenseExists)
}

func TestLicenseStoreCreateDuplicateShortKey(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)))

	err := store.Create(ctx, testLicense("11-22-33-44-55-66", "ABCD-EFGH-IJKL", 3))
	assert.ErrorIs(t, err, ErrShortKeyTaken)
}

func TestLicenseStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	created := testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)
	require.NoError(t, store.Create(ctx, created))

	byMAC, err := store.GetByMAC(ctx, "AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.Equal(t, created.ShortKey, byMAC.ShortKey)
	assert.Equal(t, created.Token, byMAC.Token)

	byKey, err := store.GetByShortKey(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.Equal(t, created.MACAddress, byKey.MACAddress)

	_, err = store.GetByMAC(ctx, "00-00-00-00-00-00")
	assert.ErrorIs(t, err, ErrLicenseNotFound)

	_, err = store.GetByShortKey(ctx, "ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, ErrLicenseNotFound)
}

func TestLicenseStoreShortKeyExists(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)))

	taken, err := store.ShortKeyExists(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.True(t, taken)

	free, err := store.ShortKeyExists(ctx, "ZZZZ-ZZZZ-ZZZZ")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestLicenseStoreConsumeActivation(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 2)))

	for i := 0; i < 2; i++ {
		consumed, err := store.ConsumeActivation(ctx, "ABCD-EFGH-IJKL")
		require.NoError(t, err)
		assert.True(t, consumed, "activation %d should be within the limit", i+1)
	}

	consumed, err := store.ConsumeActivation(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.False(t, consumed, "limit reached, no further activation may be consumed")

	license, err := store.GetByShortKey(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.Equal(t, 2, license.Activations)
}

func TestLicenseStoreConsumeActivationRevoked(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)))
	require.NoError(t, store.Revoke(ctx, "ABCD-EFGH-IJKL"))

	consumed, err := store.ConsumeActivation(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.False(t, consumed, "revoked licenses must not consume activations")
}

func TestLicenseStoreRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-FF", "ABCD-EFGH-IJKL", 3)))

	require.NoError(t, store.Revoke(ctx, "ABCD-EFGH-IJKL"))
	require.NoError(t, store.Revoke(ctx, "ABCD-EFGH-IJKL"))

	// unknown keys are deliberately not an error
	require.NoError(t, store.Revoke(ctx, "ZZZZ-ZZZZ-ZZZZ"))

	license, err := store.GetByShortKey(ctx, "ABCD-EFGH-IJKL")
	require.NoError(t, err)
	assert.True(t, license.Revoked)
}

func TestLicenseStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewLicenseStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-01", "AAAA-AAAA-AAAA", 3)))
	require.NoError(t, store.Create(ctx, testLicense("AA-BB-CC-DD-EE-02", "BBBB-BBBB-BBBB", 3)))

	licenses, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, licenses, 2)
}
