// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keygate/internal/hwaddr"
	"github.com/autobrr/keygate/internal/models"
)

const (
	DefaultDurationDays   = 30
	DefaultMaxActivations = 3
)

// Issuer creates licenses for approved devices: it signs the claim set,
// derives a unique short key from the signed token, and persists the pair.
type Issuer struct {
	signer    *Signer
	deriver   *KeyDeriver
	licenses  *models.LicenseStore
	allowlist *models.DeviceAllowlistStore

	defaultDurationDays   int
	defaultMaxActivations int
}

func NewIssuer(signer *Signer, deriver *KeyDeriver, licenses *models.LicenseStore, allowlist *models.DeviceAllowlistStore) *Issuer {
	return &Issuer{
		signer:                signer,
		deriver:               deriver,
		licenses:              licenses,
		allowlist:             allowlist,
		defaultDurationDays:   DefaultDurationDays,
		defaultMaxActivations: DefaultMaxActivations,
	}
}

// SetDefaults overrides the values applied when a request omits duration or
// activation limit. Non-positive arguments keep the current defaults.
func (i *Issuer) SetDefaults(durationDays, maxActivations int) {
	if durationDays > 0 {
		i.defaultDurationDays = durationDays
	}
	if maxActivations > 0 {
		i.defaultMaxActivations = maxActivations
	}
}

// IssueResult is what the client gets back. The signed token stays on the
// server; the short key is the only credential a device ever holds.
type IssueResult struct {
	MACAddress string `json:"macAddress"`
	ShortKey   string `json:"licenseKey"`
	ExpiryDate string `json:"expiryDate"`
}

// Issue creates a license for the given device. Checks run in a fixed
// order: identity normalizable, device approved, no license issued yet.
// Re-issuing for a device that already holds a license is rejected.
func (i *Issuer) Issue(ctx context.Context, rawMAC string, durationDays, maxActivations int) (*IssueResult, error) {
	macAddress, err := hwaddr.Normalize(rawMAC)
	if err != nil {
		return nil, newError(CodeInvalidRequest, "MAC address is required")
	}

	if durationDays <= 0 {
		durationDays = i.defaultDurationDays
	}
	if maxActivations <= 0 {
		maxActivations = i.defaultMaxActivations
	}

	approved, err := i.allowlist.Contains(ctx, macAddress)
	if err != nil {
		return nil, wrapError(CodeStorage, "failed to check device approval", err)
	}
	if !approved {
		return nil, newError(CodeNotApproved, "MAC address not authorized for license")
	}

	_, err = i.licenses.GetByMAC(ctx, macAddress)
	if err == nil {
		return nil, newError(CodeConflict, "License already exists for this MAC address")
	}
	if !errors.Is(err, models.ErrLicenseNotFound) {
		return nil, wrapError(CodeStorage, "failed to look up existing license", err)
	}

	expiryDate := time.Now().UTC().AddDate(0, 0, durationDays).Format(expiryDateLayout)

	signed, err := i.signer.Sign(&Claims{
		MACAddress:     macAddress,
		ExpiryDate:     expiryDate,
		MaxActivations: maxActivations,
	})
	if err != nil {
		return nil, wrapError(CodeStorage, "failed to sign license token", err)
	}

	token, shortKey, err := i.deriveUnique(ctx, signed)
	if err != nil {
		return nil, err
	}

	license := &models.License{
		MACAddress:     macAddress,
		ShortKey:       shortKey,
		Token:          token,
		ExpiryDate:     expiryDate,
		MaxActivations: maxActivations,
	}

	if err := i.licenses.Create(ctx, license); err != nil {
		switch {
		case errors.Is(err, models.ErrLicenseExists):
			return nil, newError(CodeConflict, "License already exists for this MAC address")
		case errors.Is(err, models.ErrShortKeyTaken):
			// lost a race on the uniqueness check
			return nil, newError(CodeKeyExhausted, "Could not generate unique license key, try again")
		default:
			return nil, wrapError(CodeStorage, "failed to store license", err)
		}
	}

	log.Info().
		Str("macAddress", macAddress).
		Str("licenseKey", maskShortKey(shortKey)).
		Str("expiryDate", expiryDate).
		Int("maxActivations", maxActivations).
		Msg("License issued")

	return &IssueResult{
		MACAddress: macAddress,
		ShortKey:   shortKey,
		ExpiryDate: expiryDate,
	}, nil
}

// deriveUnique resolves short key collisions by appending a fresh nonce to
// the signed token and re-deriving, bounded by maxDeriveRetries. The token
// variant that produced the accepted key is the one returned: persisting
// the original would break the validator's re-derivation check.
func (i *Issuer) deriveUnique(ctx context.Context, signed string) (token, shortKey string, err error) {
	token = signed
	shortKey = i.deriver.Derive(token)

	for attempt := 0; ; attempt++ {
		taken, err := i.licenses.ShortKeyExists(ctx, shortKey)
		if err != nil {
			return "", "", wrapError(CodeStorage, "failed to check short key uniqueness", err)
		}
		if !taken {
			return token, shortKey, nil
		}
		if attempt == maxDeriveRetries {
			return "", "", newError(CodeKeyExhausted, "Could not generate unique license key, try again")
		}

		nonce, err := i.deriver.Nonce()
		if err != nil {
			return "", "", wrapError(CodeStorage, "failed to generate nonce", err)
		}

		token = signed + nonce
		shortKey = i.deriver.Derive(token)

		log.Debug().
			Int("attempt", attempt+1).
			Str("licenseKey", maskShortKey(shortKey)).
			Msg("Short key collision, re-deriving with nonce")
	}
}

func maskShortKey(key string) string {
	if len(key) <= 4 {
		return "***"
	}
	return key[:4] + "***"
}
