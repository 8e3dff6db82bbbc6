/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/messages"
)

const (
	// EncryptedContentType is the HTTP content type of an encrypted envelope.
	EncryptedContentType = "application/xml"

	symmetricKeySize = 32
)

type encryptedEnvelope struct {
	XMLName    xml.Name `xml:"encrypted_envelope"`
	Key        string   `xml:"key"`
	IV         string   `xml:"iv"`
	Ciphertext string   `xml:"ciphertext"`
}

// EncryptedCodec writes and reads encrypted envelopes: a magic envelope encrypted with a fresh AES-256-GCM key,
// the key itself wrapped with the recipient's RSA public key (RSA-OAEP with SHA-256).
type EncryptedCodec struct {
	codec  *Codec
	random io.Reader
}

// NewEncryptedCodec returns an EncryptedCodec that builds on codec for the inner envelope.
func NewEncryptedCodec(codec *Codec) *EncryptedCodec {
	return &EncryptedCodec{codec: codec, random: rand.Reader}
}

// Codec returns the codec used for the inner envelope.
func (c *EncryptedCodec) Codec() *Codec {
	return c.codec
}

// Envelop signs e with signingKey and encrypts the result for the holder of recipientPub.
func (c *EncryptedCodec) Envelop(e entity.Entity, signingKey *rsa.PrivateKey, recipientPub *rsa.PublicKey) ([]byte, error) {
	if recipientPub == nil {
		return nil, fmt.Errorf("no recipient public key: %w", messages.ErrKeyNotFound)
	}

	inner, err := c.codec.Envelop(e, signingKey)
	if err != nil {
		return nil, err
	}

	key := make([]byte, symmetricKeySize)
	if _, err = io.ReadFull(c.random, key); err != nil {
		return nil, fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err = io.ReadFull(c.random, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), c.random, recipientPub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap symmetric key: %w", err)
	}

	data, err := xml.Marshal(encryptedEnvelope{
		Key:        base64.StdEncoding.EncodeToString(wrappedKey),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, iv, inner, nil)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal encrypted envelope: %w", err)
	}

	return data, nil
}

// Decrypt unwraps the symmetric key with recipientKey and returns the inner magic envelope.
func (c *EncryptedCodec) Decrypt(data []byte, recipientKey *rsa.PrivateKey) ([]byte, error) {
	if recipientKey == nil {
		return nil, fmt.Errorf("no recipient private key: %w", messages.ErrRecipientKeyNotFound)
	}

	var env encryptedEnvelope

	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse encrypted envelope: %s: %w", err, messages.ErrMalformedDocument)
	}

	wrappedKey, iv, ciphertext, err := decodeEncryptedParts(&env)
	if err != nil {
		return nil, err
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, recipientKey, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap symmetric key: %w", messages.ErrDecryptionFailed)
	}

	if len(key) != symmetricKeySize {
		return nil, fmt.Errorf("symmetric key has %d bytes: %w", len(key), messages.ErrDecryptionFailed)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("iv has %d bytes: %w", len(iv), messages.ErrDecryptionFailed)
	}

	inner, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt envelope: %w", messages.ErrDecryptionFailed)
	}

	return inner, nil
}

// Unenvelop decrypts an encrypted envelope and parses the inner magic envelope. The inner signature
// is not verified: the sender's key has to be looked up by Envelope.Author first.
func (c *EncryptedCodec) Unenvelop(data []byte, recipientKey *rsa.PrivateKey) (*Envelope, error) {
	inner, err := c.Decrypt(data, recipientKey)
	if err != nil {
		return nil, err
	}

	return c.codec.Parse(inner)
}

func decodeEncryptedParts(env *encryptedEnvelope) (wrappedKey, iv, ciphertext []byte, err error) {
	parts := []struct {
		name  string
		value string
		out   *[]byte
	}{
		{"key", env.Key, &wrappedKey},
		{"iv", env.IV, &iv},
		{"ciphertext", env.Ciphertext, &ciphertext},
	}

	for _, part := range parts {
		value := strings.Join(strings.Fields(part.value), "")
		if value == "" {
			return nil, nil, nil, fmt.Errorf("encrypted envelope has no %s: %w", part.name, messages.ErrMalformedDocument)
		}

		decoded, errDecode := base64.StdEncoding.DecodeString(value)
		if errDecode != nil {
			return nil, nil, nil, fmt.Errorf("encrypted envelope %s is not base64: %s: %w", part.name, errDecode,
				messages.ErrMalformedDocument)
		}

		*part.out = decoded
	}

	return wrappedKey, iv, ciphertext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}
