/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package envelope implements the signed magic envelope that wraps one entity for transport, and the
// encrypted envelope that additionally hides a magic envelope from everybody but one recipient.
package envelope

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/keyutil"
	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/pkg/signature"
)

const (
	logModuleName = "federation-envelope"

	// Namespace is the XML namespace of magic envelopes.
	Namespace = "http://salmon-protocol.org/ns/magic-env"
	// ContentType is the HTTP content type of a magic envelope.
	ContentType = "application/magic-envelope+xml"

	dataType = "application/xml"
	encoding = "base64url"
)

var logger = log.New(logModuleName)

// magicEnvOut is the form written on the wire. The "me" prefix is spelled out literally since
// encoding/xml would otherwise redeclare the default namespace on every element.
type magicEnvOut struct {
	XMLName  xml.Name   `xml:"me:env"`
	XMLNS    string     `xml:"xmlns:me,attr"`
	Data     envDataOut `xml:"me:data"`
	Encoding string     `xml:"me:encoding"`
	Alg      string     `xml:"me:alg"`
	Sig      envSigOut  `xml:"me:sig"`
}

type envDataOut struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type envSigOut struct {
	KeyID string `xml:"key_id,attr"`
	Value string `xml:",chardata"`
}

// magicEnvIn matches on local names so documents with any prefix binding for the namespace are accepted.
type magicEnvIn struct {
	XMLName  xml.Name `xml:"env"`
	Data     *envIn   `xml:"data"`
	Encoding string   `xml:"encoding"`
	Alg      *string  `xml:"alg"`
	Sig      *envIn   `xml:"sig"`
}

type envIn struct {
	Type  string `xml:"type,attr"`
	KeyID string `xml:"key_id,attr"`
	Value string `xml:",chardata"`
}

// Envelope is a parsed magic envelope.
type Envelope struct {
	// Entity is the wrapped entity.
	Entity entity.Entity
	// Author is the federation handle of the signer.
	Author string
	// Algorithm is the signature algorithm in effect for this envelope.
	Algorithm string
	// Signature is the raw signature.
	Signature []byte

	canonicalizer *signature.Canonicalizer
}

// Verify checks the envelope's signature against the author's public key. The signature is checked
// over the descriptor recomputed from the parsed entity, and the signer must be the entity's author.
func (e *Envelope) Verify(authorPub *rsa.PublicKey) error {
	if authorPub == nil {
		return fmt.Errorf("no public key for %s: %w", e.Author, messages.ErrSenderKeyNotFound)
	}

	if e.Author != e.Entity.Author() {
		return fmt.Errorf("envelope signed by %s but %s %s is authored by %s: %w",
			e.Author, e.Entity.Type(), e.Entity.GUID(), e.Entity.Author(), messages.ErrSignatureInvalid)
	}

	descriptor, err := e.canonicalizer.Descriptor(e.Entity)
	if err != nil {
		return err
	}

	if err := signature.Verify(e.Algorithm, authorPub, descriptor, e.Signature); err != nil {
		return fmt.Errorf("%s %s from %s (key %s): %w", e.Entity.Type(), e.Entity.GUID(), e.Author,
			keyutil.Thumbprint(authorPub), err)
	}

	return nil
}

// Codec writes and reads magic envelopes.
type Codec struct {
	registry        *entity.Registry
	canonicalizer   *signature.Canonicalizer
	algorithm       string
	legacyAlgorithm string
}

// Option configures a Codec.
type Option func(c *Codec)

// WithAlgorithm sets the algorithm used to sign new envelopes. Defaults to RSA-SHA256.
func WithAlgorithm(alg string) Option {
	return func(c *Codec) {
		c.algorithm = alg
	}
}

// WithLegacyAlgorithm sets the algorithm assumed for envelopes that carry no algorithm element.
// Without it such envelopes are rejected as malformed.
func WithLegacyAlgorithm(alg string) Option {
	return func(c *Codec) {
		c.legacyAlgorithm = alg
	}
}

// NewCodec returns a Codec that serializes entities with registry.
func NewCodec(registry *entity.Registry, opts ...Option) *Codec {
	c := &Codec{
		registry:      registry,
		canonicalizer: signature.NewCanonicalizer(registry),
		algorithm:     signature.RSASHA256,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Registry returns the entity registry used by the codec.
func (c *Codec) Registry() *entity.Registry {
	return c.registry
}

// Envelop serializes e and signs its descriptor with signingKey.
func (c *Codec) Envelop(e entity.Entity, signingKey *rsa.PrivateKey) ([]byte, error) {
	payload, err := c.registry.Marshal(e)
	if err != nil {
		return nil, err
	}

	descriptor, err := c.canonicalizer.Descriptor(e)
	if err != nil {
		return nil, err
	}

	sig, err := signature.Sign(c.algorithm, signingKey, descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s %s: %w", e.Type(), e.GUID(), err)
	}

	env := magicEnvOut{
		XMLNS:    Namespace,
		Data:     envDataOut{Type: dataType, Value: base64.URLEncoding.EncodeToString(payload)},
		Encoding: encoding,
		Alg:      c.algorithm,
		Sig: envSigOut{
			KeyID: base64.URLEncoding.EncodeToString([]byte(e.Author())),
			Value: base64.URLEncoding.EncodeToString(sig),
		},
	}

	data, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal magic envelope: %w", err)
	}

	logger.Debugf("Enveloped %s %s by %s", e.Type(), e.GUID(), e.Author())

	return data, nil
}

// Parse reads a magic envelope without verifying it. Callers look up the author's key by
// Envelope.Author and then call Envelope.Verify.
func (c *Codec) Parse(data []byte) (*Envelope, error) {
	var env magicEnvIn

	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse magic envelope: %s: %w", err, messages.ErrMalformedDocument)
	}

	if env.Data == nil || strings.TrimSpace(env.Data.Value) == "" {
		return nil, fmt.Errorf("magic envelope has no payload: %w", messages.ErrMalformedDocument)
	}

	if env.Sig == nil || strings.TrimSpace(env.Sig.Value) == "" {
		return nil, fmt.Errorf("magic envelope has no signature: %w", messages.ErrMalformedDocument)
	}

	author, err := decodeBase64(env.Sig.KeyID)
	if err != nil || len(author) == 0 {
		return nil, fmt.Errorf("magic envelope has no author: %w", messages.ErrMalformedDocument)
	}

	alg, err := c.algorithmOf(&env)
	if err != nil {
		return nil, err
	}

	payload, err := decodeBase64(env.Data.Value)
	if err != nil {
		return nil, fmt.Errorf("magic envelope payload is not base64url: %s: %w", err, messages.ErrMalformedDocument)
	}

	sig, err := decodeBase64(env.Sig.Value)
	if err != nil {
		return nil, fmt.Errorf("magic envelope signature is not base64url: %s: %w", err, messages.ErrMalformedDocument)
	}

	e, err := c.registry.Unmarshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Entity:        e,
		Author:        string(author),
		Algorithm:     alg,
		Signature:     sig,
		canonicalizer: c.canonicalizer,
	}, nil
}

// Unenvelop parses a magic envelope and, if authorPub is not nil, verifies it.
func (c *Codec) Unenvelop(data []byte, authorPub *rsa.PublicKey) (*Envelope, error) {
	env, err := c.Parse(data)
	if err != nil {
		return nil, err
	}

	if authorPub != nil {
		if err := env.Verify(authorPub); err != nil {
			return nil, err
		}
	}

	return env, nil
}

func (c *Codec) algorithmOf(env *magicEnvIn) (string, error) {
	if env.Alg == nil || strings.TrimSpace(*env.Alg) == "" {
		if c.legacyAlgorithm == "" {
			return "", fmt.Errorf("magic envelope has no signature algorithm and no legacy fallback is configured: %w",
				messages.ErrMalformedDocument)
		}

		return c.legacyAlgorithm, nil
	}

	alg := strings.TrimSpace(*env.Alg)
	if !signature.Supported(alg) {
		return "", fmt.Errorf("unsupported signature algorithm %q: %w", alg, messages.ErrMalformedDocument)
	}

	return alg, nil
}

func decodeBase64(value string) ([]byte, error) {
	value = strings.Join(strings.Fields(value), "")

	decoded, err := base64.URLEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}

	decoded, errRaw := base64.RawURLEncoding.DecodeString(value)
	if errRaw == nil {
		return decoded, nil
	}

	decoded, errStd := base64.StdEncoding.DecodeString(value)
	if errStd == nil {
		return decoded, nil
	}

	return nil, err
}
