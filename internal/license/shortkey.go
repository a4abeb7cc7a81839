// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

const (
	// shortKeyLength is the number of alphabet characters in a display key
	// before grouping, e.g. ABCD-EFGH-IJKL.
	shortKeyLength = 12
	shortKeyGroup  = 4

	// maxDeriveRetries bounds the collision-resolution loop during issuance.
	maxDeriveRetries = 5

	nonceBytes = 4
)

var shortKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// KeyDeriver turns signed tokens into short human-typeable license keys.
// Derivation is a pure function of the secret and the token: the validator
// re-derives the stored token's key and compares it against the presented
// one, so the same token must always produce the same key.
type KeyDeriver struct {
	secret []byte
}

func NewKeyDeriver(secret []byte) *KeyDeriver {
	return &KeyDeriver{secret: secret}
}

// Derive computes the short key for a token: HMAC-SHA256 digest, base32
// encoded, truncated and grouped with dashes for readability.
func (d *KeyDeriver) Derive(token string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(token))

	encoded := shortKeyEncoding.EncodeToString(mac.Sum(nil))
	encoded = encoded[:shortKeyLength]

	groups := make([]string, 0, shortKeyLength/shortKeyGroup)
	for i := 0; i < shortKeyLength; i += shortKeyGroup {
		groups = append(groups, encoded[i:i+shortKeyGroup])
	}

	return strings.Join(groups, "-")
}

// Nonce returns fresh random material to append to a token when its derived
// key collides with an existing one. Appending the nonce produces a new
// token variant, which is what gets persisted if its key is accepted.
func (d *KeyDeriver) Nonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to read random nonce")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
