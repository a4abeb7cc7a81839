// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const expiryDateLayout = "2006-01-02"

// Claims is the signed payload bound into every license token. The business
// expiry travels as a calendar date string rather than the JWT exp claim;
// expiry is enforced by the validator, not by signature verification.
type Claims struct {
	MACAddress     string `json:"mac_address"`
	ExpiryDate     string `json:"expiry_date"`
	MaxActivations int    `json:"max_activations"`
	jwt.RegisteredClaims
}

// ExpiresOn parses the business expiry date in UTC.
func (c *Claims) ExpiresOn() (time.Time, error) {
	return time.ParseInLocation(expiryDateLayout, c.ExpiryDate, time.UTC)
}

// Signer holds the process-wide RSA keypair. It is loaded once at startup
// and never mutated; there is no reload path.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	publicPEM  []byte
}

// NewSigner parses PEM-encoded key material.
func NewSigner(privatePEM, publicPEM []byte) (*Signer, error) {
	privateKey, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	publicKey, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}

	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicPEM:  publicPEM,
	}, nil
}

// NewSignerFromFiles loads the keypair from disk.
func NewSignerFromFiles(privatePath, publicPath string) (*Signer, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read private key file")
	}

	publicPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read public key file")
	}

	return NewSigner(privatePEM, publicPEM)
}

// Sign encodes the claims into a signed RS256 token.
func (s *Signer) Sign(claims *Claims) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(time.Now().UTC())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}

	return signed, nil
}

// Verify checks the token's structure and signature and returns its claims.
// Failures map onto the token_* error codes; a token carrying its own exp
// claim that has passed reports token_expired.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.publicKey, nil
	})

	switch {
	case err == nil && token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, wrapError(CodeTokenExpired, reasonExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, wrapError(CodeBadSignature, reasonInvalidToken, err)
	default:
		return nil, wrapError(CodeTokenMalformed, reasonInvalidToken, err)
	}
}

// ShortKeySecret returns the keying material for short key derivation. The
// derived key only needs to be reproducible from the same token, so the
// public key PEM is sufficient.
func (s *Signer) ShortKeySecret() []byte {
	if len(s.publicPEM) < 32 {
		return s.publicPEM
	}
	return s.publicPEM[:32]
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}

	return rsaKey, nil
}
