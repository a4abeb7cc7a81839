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

// Validator checks a presented short key and device identity against the
// stored license. Checks run in a fixed order and the first failure wins;
// the reason written to the ledger and returned to the client comes from
// whichever check tripped.
type Validator struct {
	signer   *Signer
	deriver  *KeyDeriver
	licenses *models.LicenseStore
	ledger   *models.ActivationLedger

	// now is swappable for expiry tests
	now func() time.Time
}

func NewValidator(signer *Signer, deriver *KeyDeriver, licenses *models.LicenseStore, ledger *models.ActivationLedger) *Validator {
	return &Validator{
		signer:   signer,
		deriver:  deriver,
		licenses: licenses,
		ledger:   ledger,
		now:      time.Now,
	}
}

// Validate runs the full check sequence and, on success, consumes one
// activation. Every call appends exactly one ledger record, success or not;
// if the ledger write fails the whole validation fails.
func (v *Validator) Validate(ctx context.Context, shortKey, rawMAC string) (*Claims, error) {
	macAddress := rawMAC
	if normalized, err := hwaddr.Normalize(rawMAC); err == nil {
		macAddress = normalized
	}

	claims, vErr := v.evaluate(ctx, shortKey, macAddress)

	record := &models.ActivationRecord{
		MACAddress: macAddress,
		ShortKey:   shortKey,
		Success:    vErr == nil,
	}
	if vErr != nil {
		reason := ReasonOf(vErr)
		record.Reason = &reason
	}

	if err := v.ledger.Append(ctx, record); err != nil {
		return nil, wrapError(CodeStorage, "failed to record activation attempt", err)
	}

	if vErr != nil {
		log.Debug().
			Str("macAddress", macAddress).
			Str("licenseKey", maskShortKey(shortKey)).
			Str("reason", ReasonOf(vErr)).
			Msg("License validation failed")
		return nil, vErr
	}

	log.Info().
		Str("macAddress", macAddress).
		Str("licenseKey", maskShortKey(shortKey)).
		Msg("License validated")

	return claims, nil
}

func (v *Validator) evaluate(ctx context.Context, shortKey, macAddress string) (*Claims, error) {
	if shortKey == "" || macAddress == "" {
		return nil, newError(CodeInvalidRequest, reasonMissingFields)
	}

	license, err := v.licenses.GetByShortKey(ctx, shortKey)
	if err != nil {
		if errors.Is(err, models.ErrLicenseNotFound) {
			return nil, newError(CodeNotFound, reasonNotFound)
		}
		return nil, wrapError(CodeStorage, "failed to load license", err)
	}

	// revocation is terminal and checked before anything else that could
	// mask it
	if license.Revoked {
		return nil, newError(CodeRevoked, reasonRevoked)
	}

	if license.Activations >= license.MaxActivations {
		return nil, newError(CodeLimitExceeded, reasonLimitExceeded)
	}

	claims, err := v.signer.Verify(license.Token)
	if err != nil {
		return nil, err
	}

	if claims.MACAddress != macAddress {
		return nil, newError(CodeInvalidRequest, reasonMACMismatch)
	}

	expiresOn, err := claims.ExpiresOn()
	if err != nil {
		return nil, wrapError(CodeTokenMalformed, reasonInvalidToken, err)
	}

	// the expiry day itself is still valid; the license dies at the
	// following midnight UTC
	if !v.now().UTC().Before(expiresOn.AddDate(0, 0, 1)) {
		return nil, newError(CodeExpired, reasonExpired)
	}

	// a short key that does not re-derive from the stored token means the
	// row was tampered with independently of its token
	if v.deriver.Derive(license.Token) != shortKey {
		return nil, newError(CodeKeyMismatch, reasonKeyMismatch)
	}

	consumed, err := v.licenses.ConsumeActivation(ctx, shortKey)
	if err != nil {
		return nil, wrapError(CodeStorage, "failed to consume activation", err)
	}
	if !consumed {
		// lost the race against a concurrent validation (or a concurrent
		// revoke); the conditional update is the source of truth
		return nil, newError(CodeLimitExceeded, reasonLimitExceeded)
	}

	return claims, nil
}
