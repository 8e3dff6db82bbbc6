/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package entity defines the federated entity model: the Entity interface every kind implements,
// the Signable capability, and a Registry that serializes entities to and from their XML wire form.
package entity

import (
	"strings"

	"github.com/google/uuid"
)

// Entity is a federated object exchanged between pods.
type Entity interface {
	// Type returns the kind name of the entity. It is used as the XML element name and in fetch URLs.
	Type() string
	// GUID returns the globally unique identifier of the entity.
	GUID() string
	// Author returns the federation handle of the entity's author, who is also its signer.
	Author() string
}

// Signable is implemented by entity kinds that declare a canonical signature descriptor.
// The descriptor must be reproducible from the entity's immutable fields alone.
type Signable interface {
	SignatureDescriptor() string
}

// Publishable is implemented by entity kinds that carry their own visibility.
// Kinds that don't implement it are public when received publicly.
type Publishable interface {
	IsPublic() bool
}

// NewGUID generates a new entity GUID (32 lowercase hex characters).
func NewGUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
