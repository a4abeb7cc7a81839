// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keygate/internal/hwaddr"
	"github.com/autobrr/keygate/internal/models"
)

// AdminHandler serves the administrative surface: revocation, license and
// ledger inspection, and allowlist management.
type AdminHandler struct {
	licenses  *models.LicenseStore
	ledger    *models.ActivationLedger
	allowlist *models.DeviceAllowlistStore
}

func NewAdminHandler(licenses *models.LicenseStore, ledger *models.ActivationLedger, allowlist *models.DeviceAllowlistStore) *AdminHandler {
	return &AdminHandler{
		licenses:  licenses,
		ledger:    ledger,
		allowlist: allowlist,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/licenses", func(r chi.Router) {
		r.Get("/", h.ListLicenses)
		r.Post("/revoke", h.RevokeLicense)
		r.Get("/{licenseKey}/activations", h.ListActivations)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.ListDevices)
		r.Post("/", h.AddDevice)
		r.Delete("/{macAddress}", h.RemoveDevice)
	})
}

// RevokeLicenseRequest is the revocation request body
type RevokeLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

// RevokeLicense idempotently flags a license as revoked. An unknown or
// already-revoked key still reports success; revocation only ever moves in
// one direction.
func (h *AdminHandler) RevokeLicense(w http.ResponseWriter, r *http.Request) {
	var req RevokeLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.LicenseKey == "" {
		RespondError(w, http.StatusBadRequest, "License key required")
		return
	}

	if err := h.licenses.Revoke(r.Context(), req.LicenseKey); err != nil {
		log.Error().Err(err).Str("licenseKey", maskShortKey(req.LicenseKey)).Msg("Failed to revoke license")
		RespondError(w, http.StatusInternalServerError, "Failed to revoke license")
		return
	}

	log.Info().Str("licenseKey", maskShortKey(req.LicenseKey)).Msg("License revoked")

	RespondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "License revoked successfully",
	})
}

func (h *AdminHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	licenses, err := h.licenses.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list licenses")
		RespondError(w, http.StatusInternalServerError, "Failed to list licenses")
		return
	}

	RespondJSON(w, http.StatusOK, licenses)
}

func (h *AdminHandler) ListActivations(w http.ResponseWriter, r *http.Request) {
	licenseKey := chi.URLParam(r, "licenseKey")
	if licenseKey == "" {
		RespondError(w, http.StatusBadRequest, "License key required")
		return
	}

	records, err := h.ledger.ListByShortKey(r.Context(), licenseKey)
	if err != nil {
		log.Error().Err(err).Str("licenseKey", maskShortKey(licenseKey)).Msg("Failed to list activations")
		RespondError(w, http.StatusInternalServerError, "Failed to list activations")
		return
	}

	RespondJSON(w, http.StatusOK, records)
}

// AddDeviceRequest is the allowlist request body
type AddDeviceRequest struct {
	MACAddress string `json:"macAddress"`
}

func (h *AdminHandler) AddDevice(w http.ResponseWriter, r *http.Request) {
	var req AddDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	macAddress, err := hwaddr.Normalize(req.MACAddress)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid MAC address")
		return
	}

	if err := h.allowlist.Add(r.Context(), macAddress); err != nil {
		log.Error().Err(err).Str("macAddress", macAddress).Msg("Failed to approve device")
		RespondError(w, http.StatusInternalServerError, "Failed to approve device")
		return
	}

	log.Info().Str("macAddress", macAddress).Msg("Device approved")

	RespondJSON(w, http.StatusCreated, map[string]string{
		"macAddress": macAddress,
	})
}

func (h *AdminHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	macAddress, err := hwaddr.Normalize(chi.URLParam(r, "macAddress"))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid MAC address")
		return
	}

	if err := h.allowlist.Remove(r.Context(), macAddress); err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			RespondError(w, http.StatusNotFound, "Device not found")
			return
		}
		log.Error().Err(err).Str("macAddress", macAddress).Msg("Failed to remove device")
		RespondError(w, http.StatusInternalServerError, "Failed to remove device")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"macAddress": macAddress,
	})
}

func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.allowlist.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list devices")
		RespondError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}

	RespondJSON(w, http.StatusOK, devices)
}
