// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import "fmt"

// Code classifies issuance and validation failures. Codes are part of the
// wire contract: handlers map them to HTTP statuses and clients switch on
// them, so they must stay stable.
type Code string

const (
	CodeInvalidRequest Code = "invalid_request"
	CodeNotApproved    Code = "device_not_approved"
	CodeConflict       Code = "license_exists"
	CodeKeyExhausted   Code = "key_generation_exhausted"
	CodeNotFound       Code = "license_not_found"
	CodeRevoked        Code = "license_revoked"
	CodeLimitExceeded  Code = "activation_limit_exceeded"
	CodeTokenMalformed Code = "token_malformed"
	CodeBadSignature   Code = "token_signature_invalid"
	CodeTokenExpired   Code = "token_expired"
	CodeExpired        Code = "license_expired"
	CodeKeyMismatch    Code = "key_mismatch"
	CodeStorage        Code = "storage_error"
)

// Error carries a stable code plus the human-readable reason that is
// reported to the client and written to the activation ledger verbatim.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func wrapError(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, cause: cause}
}

// CodeOf extracts the failure code from an error, or CodeStorage for
// anything that did not originate in this package.
func CodeOf(err error) Code {
	if lerr, ok := err.(*Error); ok {
		return lerr.Code
	}
	return CodeStorage
}

// ReasonOf extracts the client-facing reason from an error.
func ReasonOf(err error) string {
	if lerr, ok := err.(*Error); ok {
		return lerr.Reason
	}
	return "internal error"
}

// Reason strings mirror what the service has always sent on the wire.
const (
	reasonMissingFields = "License key and MAC address are required"
	reasonNotFound      = "License key not found"
	reasonRevoked       = "License has been revoked"
	reasonLimitExceeded = "Activation limit exceeded"
	reasonMACMismatch   = "MAC address does not match license"
	reasonExpired       = "License expired"
	reasonKeyMismatch   = "License key does not match license data"
	reasonInvalidToken  = "Invalid license token"
)
