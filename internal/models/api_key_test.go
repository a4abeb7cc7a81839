// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyCreateAndValidate(t *testing.T) {
	ctx := context.Background()
	store := NewAPIKeyStore(newTestDB(t))

	rawKey, apiKey, err := store.Create(ctx, "test-key")
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)
	assert.Equal(t, "test-key", apiKey.Name)
	assert.Equal(t, HashAPIKey(rawKey), apiKey.KeyHash)

	validated, err := store.Validate(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, apiKey.ID, validated.ID)

	_, err = store.Validate(ctx, "wrong-key")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestAPIKeyDelete(t *testing.T) {
	ctx := context.Background()
	store := NewAPIKeyStore(newTestDB(t))

	rawKey, apiKey, err := store.Create(ctx, "doomed")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, apiKey.ID))

	_, err = store.Validate(ctx, rawKey)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	err = store.Delete(ctx, apiKey.ID)
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
}

func TestGenerateAPIKey(t *testing.T) {
	first, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
