/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keyutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/square/go-jose"
)

const (
	// DefaultKeySize is the RSA key size used for person keys.
	DefaultKeySize = 4096

	pemTypePublicKey     = "PUBLIC KEY"
	pemTypeRSAPublicKey  = "RSA PUBLIC KEY"
	pemTypePrivateKey    = "PRIVATE KEY"
	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"
)

var errNotRSAKey = errors.New("key is not an RSA key")

// GenerateKey generates a new RSA key pair of the given size.
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return key, nil
}

// EncodePublicKeyPEM encodes a public key as a PKIX PEM block.
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der})), nil
}

// EncodePrivateKeyPEM encodes a private key as a PKCS#1 PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAPrivateKey, Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

// ParsePublicKey parses a public key given as PEM, base64-encoded PEM (the WebFinger form) or a JWK.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)

	switch {
	case strings.HasPrefix(encoded, "{"):
		return parseJWKPublicKey(encoded)
	case strings.HasPrefix(encoded, "-----BEGIN"):
		return parsePEMPublicKey([]byte(encoded))
	default:
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("public key is neither PEM, base64 PEM nor JWK: %w", err)
		}

		return parsePEMPublicKey(decoded)
	}
}

func parsePEMPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}

	switch block.Type {
	case pemTypeRSAPublicKey:
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case pemTypePublicKey:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}

		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errNotRSAKey
		}

		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

func parseJWKPublicKey(data string) (*rsa.PublicKey, error) {
	var jwk jose.JSONWebKey

	if err := jwk.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}

	switch key := jwk.Key.(type) {
	case *rsa.PublicKey:
		return key, nil
	case *rsa.PrivateKey:
		return &key.PublicKey, nil
	default:
		return nil, errNotRSAKey
	}
}

// ParsePrivateKeyPEM parses a PKCS#1 or PKCS#8 PEM encoded RSA private key.
func ParsePrivateKeyPEM(encoded string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	switch block.Type {
	case pemTypeRSAPrivateKey:
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case pemTypePrivateKey:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errNotRSAKey
		}

		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// PublicKeyJWK returns the JWK JSON encoding of a public key.
func PublicKeyJWK(pub *rsa.PublicKey) ([]byte, error) {
	return jose.JSONWebKey{Key: pub}.MarshalJSON()
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of a public key, base64url encoded.
// It identifies keys in logs without printing the key itself.
func Thumbprint(pub *rsa.PublicKey) string {
	thumbprint, err := (&jose.JSONWebKey{Key: pub}).Thumbprint(crypto.SHA256)
	if err != nil {
		return ""
	}

	return base64.RawURLEncoding.EncodeToString(thumbprint)
}
