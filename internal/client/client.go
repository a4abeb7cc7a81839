// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package client is the device side of the license protocol: it requests a
// license once, caches the returned key locally, and revalidates against
// the server on each activation.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a license client. caFile optionally pins a self-signed
// server certificate; when empty the system trust store is used.
func NewClient(baseURL, caFile string) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if caFile != "" {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CA certificate")
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("no certificates found in CA file")
		}

		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

// IssueResponse is the server's issuance reply
type IssueResponse struct {
	MACAddress string `json:"macAddress"`
	LicenseKey string `json:"licenseKey"`
	ExpiryDate string `json:"expiryDate"`
}

// ValidateResponse is the server's validation reply
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Claims *struct {
		MACAddress     string `json:"mac_address"`
		ExpiryDate     string `json:"expiry_date"`
		MaxActivations int    `json:"max_activations"`
	} `json:"claims,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RequestLicense asks the server to issue a license for this device.
func (c *Client) RequestLicense(ctx context.Context, macAddress string, durationDays, maxActivations int) (*IssueResponse, error) {
	log.Debug().Str("macAddress", macAddress).Msg("Requesting license")

	body := map[string]any{
		"macAddress":     macAddress,
		"durationDays":   durationDays,
		"maxActivations": maxActivations,
	}

	var result IssueResponse
	if err := c.post(ctx, "/api/licenses/request", body, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ValidateLicense presents the cached key and this device's address.
func (c *Client) ValidateLicense(ctx context.Context, licenseKey, macAddress string) (*ValidateResponse, error) {
	body := map[string]any{
		"licenseKey": licenseKey,
		"macAddress": macAddress,
	}

	// the validate endpoint answers with valid=false on both 200 and 400,
	// so decode the body before judging the status
	req, err := c.newRequest(ctx, "/api/licenses/validate", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "validation request failed")
	}
	defer resp.Body.Close()

	var result ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode validation response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Errorf("server error: status %d", resp.StatusCode)
	}

	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return errors.Errorf("server rejected request (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return errors.Errorf("server rejected request: status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
