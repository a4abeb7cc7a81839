// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrNoLicense is a purely local condition: no cached license on this
// device. It never involves the server.
var ErrNoLicense = errors.New("no license found, request one first")

// StoredLicense is the single local record a device keeps after issuance.
type StoredLicense struct {
	LicenseKey string `json:"licenseKey"`
	ExpiryDate string `json:"expiryDate"`
}

// Storage persists the stored license as a JSON file.
type Storage struct {
	path string
}

func NewStorage(path string) *Storage {
	return &Storage{path: path}
}

func (s *Storage) Save(license *StoredLicense) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create license directory")
	}

	data, err := json.MarshalIndent(license, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode license")
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write license file")
	}

	return nil
}

func (s *Storage) Load() (*StoredLicense, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLicense
		}
		return nil, errors.Wrap(err, "failed to read license file")
	}

	license := &StoredLicense{}
	if err := json.Unmarshal(data, license); err != nil {
		return nil, errors.Wrap(err, "failed to decode license file")
	}

	if license.LicenseKey == "" {
		return nil, ErrNoLicense
	}

	return license, nil
}
