// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keygate/internal/models"
)

// RequireAPIKey guards the administrative routes. Keys are created with the
// `keygate apikey create` command and presented via the X-API-Key header.
func RequireAPIKey(apiKeys *models.APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			apiKey, err := apiKeys.Validate(r.Context(), rawKey)
			if err != nil {
				log.Warn().Err(err).Msg("Invalid API key")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			log.Debug().Int("apiKeyID", apiKey.ID).Str("name", apiKey.Name).Msg("API key authenticated")
			next.ServeHTTP(w, r)
		})
	}
}
