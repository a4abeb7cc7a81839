// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shortKeyPattern = regexp.MustCompile(`^[A-Z2-7]{4}-[A-Z2-7]{4}-[A-Z2-7]{4}$`)

func TestDeriveFormat(t *testing.T) {
	deriver := NewKeyDeriver([]byte("test-secret"))

	key := deriver.Derive("some.signed.token")
	assert.Regexp(t, shortKeyPattern, key, "short key should be three dash-separated base32 groups")
}

func TestDeriveDeterministic(t *testing.T) {
	deriver := NewKeyDeriver([]byte("test-secret"))

	first := deriver.Derive("some.signed.token")
	second := deriver.Derive("some.signed.token")
	assert.Equal(t, first, second, "same token must always derive the same key")
}

func TestDeriveDependsOnToken(t *testing.T) {
	deriver := NewKeyDeriver([]byte("test-secret"))

	assert.NotEqual(t, deriver.Derive("token-a"), deriver.Derive("token-b"))
}

func TestDeriveDependsOnSecret(t *testing.T) {
	a := NewKeyDeriver([]byte("secret-a"))
	b := NewKeyDeriver([]byte("secret-b"))

	assert.NotEqual(t, a.Derive("same.token"), b.Derive("same.token"))
}

func TestDeriveNonceChangesKey(t *testing.T) {
	deriver := NewKeyDeriver([]byte("test-secret"))

	nonce, err := deriver.Nonce()
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	original := deriver.Derive("some.signed.token")
	variant := deriver.Derive("some.signed.token" + nonce)

	assert.NotEqual(t, original, variant)
	assert.Regexp(t, shortKeyPattern, variant)
}

func TestNonceUnique(t *testing.T) {
	deriver := NewKeyDeriver([]byte("test-secret"))

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		nonce, err := deriver.Nonce()
		require.NoError(t, err)
		assert.False(t, seen[nonce], "nonce %q repeated", nonce)
		seen[nonce] = true
	}
}
