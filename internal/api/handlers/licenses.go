// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keygate/internal/license"
)

// LicensesHandler serves the device-facing issuance and validation
// endpoints.
type LicensesHandler struct {
	issuer    *license.Issuer
	validator *license.Validator
	validate  *validator.Validate
}

func NewLicensesHandler(issuer *license.Issuer, licenseValidator *license.Validator) *LicensesHandler {
	return &LicensesHandler{
		issuer:    issuer,
		validator: licenseValidator,
		validate:  validator.New(),
	}
}

func (h *LicensesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/licenses", func(r chi.Router) {
		r.Post("/request", h.RequestLicense)
		r.Post("/validate", h.ValidateLicense)
	})
}

// RequestLicenseRequest is the issuance request body
type RequestLicenseRequest struct {
	MACAddress     string `json:"macAddress" validate:"required"`
	DurationDays   int    `json:"durationDays" validate:"omitempty,min=1,max=3650"`
	MaxActivations int    `json:"maxActivations" validate:"omitempty,min=1,max=1000"`
}

// ValidateLicenseRequest is the validation request body
type ValidateLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
	MACAddress string `json:"macAddress"`
}

// ValidateLicenseResponse mirrors the validation outcome: either valid with
// claims, or invalid with the reason that tripped
type ValidateLicenseResponse struct {
	Valid  bool            `json:"valid"`
	Claims *license.Claims `json:"claims,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// RequestLicense issues a new license for an approved device
func (h *LicensesHandler) RequestLicense(w http.ResponseWriter, r *http.Request) {
	var req RequestLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "MAC address is required")
		return
	}

	result, err := h.issuer.Issue(r.Context(), req.MACAddress, req.DurationDays, req.MaxActivations)
	if err != nil {
		status := issueStatus(license.CodeOf(err))
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("macAddress", req.MACAddress).Msg("License issuance failed")
		}
		RespondError(w, status, license.ReasonOf(err))
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// ValidateLicense checks a presented key against the stored license and
// consumes one activation on success
func (h *LicensesHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req ValidateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// missing fields are handled by the validator so the attempt still
	// lands in the activation ledger
	claims, err := h.validator.Validate(r.Context(), req.LicenseKey, req.MACAddress)
	if err != nil {
		code := license.CodeOf(err)
		if code == license.CodeStorage {
			log.Error().Err(err).Str("licenseKey", maskShortKey(req.LicenseKey)).Msg("License validation failed")
			RespondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		RespondJSON(w, validateStatus(code), ValidateLicenseResponse{
			Valid:  false,
			Reason: license.ReasonOf(err),
		})
		return
	}

	RespondJSON(w, http.StatusOK, ValidateLicenseResponse{
		Valid:  true,
		Claims: claims,
	})
}

func issueStatus(code license.Code) int {
	switch code {
	case license.CodeInvalidRequest:
		return http.StatusBadRequest
	case license.CodeNotApproved:
		return http.StatusForbidden
	case license.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// validateStatus keeps the historical wire behavior: business-state
// rejections (revoked, exhausted, expired) ride a 200 with valid=false,
// request-shaped failures are a 400.
func validateStatus(code license.Code) int {
	switch code {
	case license.CodeRevoked, license.CodeLimitExceeded, license.CodeExpired, license.CodeTokenExpired:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}
