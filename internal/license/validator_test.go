// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) issueFor(t *testing.T, macAddress string, maxActivations int) *IssueResult {
	t.Helper()

	e.approve(t, macAddress)
	result, err := e.issuer.Issue(context.Background(), macAddress, 30, maxActivations)
	require.NoError(t, err)
	return result
}

func TestValidateSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-10", 3)

	claims, err := env.validator.Validate(ctx, issued.ShortKey, "aa:bb:cc:dd:ee:10")
	require.NoError(t, err)
	assert.Equal(t, "AA-BB-CC-DD-EE-10", claims.MACAddress)
	assert.Equal(t, issued.ExpiryDate, claims.ExpiryDate)

	stored, err := env.licenses.GetByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations, "success should consume one activation")

	records, err := env.ledger.ListByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Nil(t, records[0].Reason)
}

func TestValidateMissingFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.validator.Validate(ctx, "", "AA-BB-CC-DD-EE-11")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	assert.Equal(t, "License key and MAC address are required", ReasonOf(err))

	// the failed attempt is still on the ledger
	records, err := env.ledger.ListByShortKey(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestValidateUnknownKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.validator.Validate(ctx, "XXXX-YYYY-ZZZZ", "AA-BB-CC-DD-EE-12")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "License key not found", ReasonOf(err))

	records, err := env.ledger.ListByShortKey(ctx, "XXXX-YYYY-ZZZZ")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Reason)
	assert.Equal(t, "License key not found", *records[0].Reason)
}

func TestValidateRevokedIsTerminal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-13", 3)

	_, err := env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-13")
	require.NoError(t, err)

	require.NoError(t, env.licenses.Revoke(ctx, issued.ShortKey))

	// activations remain, revocation wins anyway
	_, err = env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-13")
	require.Error(t, err)
	assert.Equal(t, CodeRevoked, CodeOf(err))
	assert.Equal(t, "License has been revoked", ReasonOf(err))
}

func TestValidateActivationLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-14", 2)

	for i := 0; i < 2; i++ {
		_, err := env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-14")
		require.NoError(t, err, "activation %d should still be within the limit", i+1)
	}

	_, err := env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-14")
	require.Error(t, err)
	assert.Equal(t, CodeLimitExceeded, CodeOf(err))
	assert.Equal(t, "Activation limit exceeded", ReasonOf(err))

	records, err := env.ledger.ListByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)
	assert.Len(t, records, 3, "every attempt lands on the ledger")
}

func TestValidateMACMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-15", 3)

	_, err := env.validator.Validate(ctx, issued.ShortKey, "11-22-33-44-55-66")
	require.Error(t, err)
	assert.Equal(t, "MAC address does not match license", ReasonOf(err))

	stored, err := env.licenses.GetByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Activations, "mismatch must not consume an activation")
}

func TestValidateUnparseableMACFallsThrough(t *testing.T) {
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-16", 3)

	// an unnormalizable identity can never equal the stored one
	_, err := env.validator.Validate(context.Background(), issued.ShortKey, "total garbage")
	require.Error(t, err)
	assert.Equal(t, "MAC address does not match license", ReasonOf(err))
}

func TestValidateExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-17", 10)

	expiresOn, err := time.ParseInLocation("2006-01-02", issued.ExpiryDate, time.UTC)
	require.NoError(t, err)

	// late on the expiry day itself the license is still valid
	env.validator.now = func() time.Time { return expiresOn.Add(23 * time.Hour) }
	_, err = env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-17")
	require.NoError(t, err)

	// at the following midnight UTC it is dead
	env.validator.now = func() time.Time { return expiresOn.AddDate(0, 0, 1) }
	_, err = env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-17")
	require.Error(t, err)
	assert.Equal(t, CodeExpired, CodeOf(err))
	assert.Equal(t, "License expired", ReasonOf(err))
}

func TestValidateTamperedShortKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-18", 3)

	// rewrite the row's key so it no longer derives from its token
	_, err := env.db.ExecContext(ctx,
		"UPDATE licenses SET short_key = ? WHERE short_key = ?", "AAAA-BBBB-CCCC", issued.ShortKey)
	require.NoError(t, err)

	_, err = env.validator.Validate(ctx, "AAAA-BBBB-CCCC", "AA-BB-CC-DD-EE-18")
	require.Error(t, err)
	assert.Equal(t, CodeKeyMismatch, CodeOf(err))
	assert.Equal(t, "License key does not match license data", ReasonOf(err))
}

func TestValidateTamperedToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-19", 3)

	stored, err := env.licenses.GetByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)

	tampered := []byte(stored.Token)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = env.db.ExecContext(ctx,
		"UPDATE licenses SET token = ? WHERE short_key = ?", string(tampered), issued.ShortKey)
	require.NoError(t, err)

	_, err = env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-19")
	require.Error(t, err)
	assert.Equal(t, "Invalid license token", ReasonOf(err))
}

func TestValidateConcurrentSingleActivation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	issued := env.issueFor(t, "AA-BB-CC-DD-EE-20", 1)

	const attempts = 8

	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.validator.Validate(ctx, issued.ShortKey, "AA-BB-CC-DD-EE-20")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.Equal(t, CodeLimitExceeded, CodeOf(err))
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent validation may win the last activation")

	stored, err := env.licenses.GetByShortKey(ctx, issued.ShortKey)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Activations, "activations must never overshoot the limit")
}
