// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const rsaKeyBits = 2048

// GenerateKeyPair writes a fresh RSA keypair to the given paths in PEM
// format. Existing files are never overwritten.
func GenerateKeyPair(privatePath, publicPath string) error {
	for _, path := range []string{privatePath, publicPath} {
		if _, err := os.Stat(path); err == nil {
			return errors.Errorf("refusing to overwrite existing key file %s", path)
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return errors.Wrap(err, "failed to generate RSA key")
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return errors.Wrap(err, "failed to marshal private key")
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return errors.Wrap(err, "failed to marshal public key")
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	if err := writeKeyFile(privatePath, privatePEM, 0600); err != nil {
		return err
	}

	return writeKeyFile(publicPath, publicPEM, 0644)
}

func writeKeyFile(path string, data []byte, mode os.FileMode) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory for %s", path)
		}
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}
