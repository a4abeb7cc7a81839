// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlistAddAndContains(t *testing.T) {
	ctx := context.Background()

	store, err := NewDeviceAllowlistStore(newTestDB(t))
	require.NoError(t, err)

	approved, err := store.Contains(ctx, "AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.False(t, approved)

	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-FF"))

	approved, err = store.Contains(ctx, "AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestAllowlistAddIdempotent(t *testing.T) {
	ctx := context.Background()

	store, err := NewDeviceAllowlistStore(newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-FF"))
	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-FF"))

	devices, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestAllowlistRemove(t *testing.T) {
	ctx := context.Background()

	store, err := NewDeviceAllowlistStore(newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-FF"))
	require.NoError(t, store.Remove(ctx, "AA-BB-CC-DD-EE-FF"))

	err = store.Remove(ctx, "AA-BB-CC-DD-EE-FF")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	approved, err := store.Contains(ctx, "AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestAllowlistList(t *testing.T) {
	ctx := context.Background()

	store, err := NewDeviceAllowlistStore(newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-01"))
	require.NoError(t, store.Add(ctx, "AA-BB-CC-DD-EE-02"))

	devices, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	for _, device := range devices {
		assert.NotZero(t, device.ID)
		assert.NotZero(t, device.CreatedAt)
	}
}
