/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package signature turns entities into the exact byte sequence that is signed and provides the
// signature algorithms used by envelopes.
package signature

import (
	"fmt"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/messages"
)

// Serializer produces the canonical serialization of an entity.
// It is used as the signed bytes for entity kinds that declare no signature descriptor.
type Serializer interface {
	Marshal(e entity.Entity) ([]byte, error)
}

// Canonicalizer computes the signed bytes of an entity.
type Canonicalizer struct {
	serializer Serializer
}

// NewCanonicalizer returns a Canonicalizer. serializer may be nil, in which case only Signable
// entities can be canonicalized.
func NewCanonicalizer(serializer Serializer) *Canonicalizer {
	return &Canonicalizer{serializer: serializer}
}

// Descriptor returns the signature descriptor of e: the entity's own descriptor if it is Signable,
// otherwise its canonical serialization.
func (c *Canonicalizer) Descriptor(e entity.Entity) ([]byte, error) {
	if signable, ok := e.(entity.Signable); ok {
		return []byte(signable.SignatureDescriptor()), nil
	}

	if c.serializer == nil {
		return nil, fmt.Errorf("%s declares no signature descriptor and no serializer is configured: %w",
			e.Type(), messages.ErrConfiguration)
	}

	data, err := c.serializer.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s for signing: %w", e.Type(), err)
	}

	return data, nil
}
