/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	// registers SHA-256 and SHA-512 with crypto.Hash
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/trustbloc/federation/pkg/messages"
)

// Algorithm names as they appear on the wire.
const (
	RSASHA256 = "RSA-SHA256"
	RSASHA512 = "RSA-SHA512"
)

var algorithms = map[string]crypto.Hash{ //nolint: gochecknoglobals
	RSASHA256: crypto.SHA256,
	RSASHA512: crypto.SHA512,
}

// Supported reports whether alg is a known signature algorithm.
func Supported(alg string) bool {
	_, ok := algorithms[alg]

	return ok
}

// Sign signs data with key using alg (RSASSA-PKCS1-v1_5).
func Sign(alg string, key *rsa.PrivateKey, data []byte) ([]byte, error) {
	hash, ok := algorithms[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported signature algorithm %q: %w", alg, messages.ErrConfiguration)
	}

	if key == nil {
		return nil, fmt.Errorf("no signing key: %w", messages.ErrKeyNotFound)
	}

	digest := hash.New()
	digest.Write(data) //nolint: errcheck

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, hash, digest.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	return sig, nil
}

// Verify checks sig over data against pub. A mismatch yields messages.ErrSignatureInvalid.
func Verify(alg string, pub *rsa.PublicKey, data, sig []byte) error {
	hash, ok := algorithms[alg]
	if !ok {
		return fmt.Errorf("unsupported signature algorithm %q: %w", alg, messages.ErrMalformedDocument)
	}

	digest := hash.New()
	digest.Write(data) //nolint: errcheck

	if err := rsa.VerifyPKCS1v15(pub, hash, digest.Sum(nil), sig); err != nil {
		return fmt.Errorf("%s verification failed: %w", alg, messages.ErrSignatureInvalid)
	}

	return nil
}
