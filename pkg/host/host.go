/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package host defines the callback host: the application behavior the federation core depends on.
// Implementations must be safe for concurrent use.
package host

import (
	"crypto/rsa"

	"github.com/trustbloc/federation/pkg/discovery"
	"github.com/trustbloc/federation/pkg/entity"
)

// KeyStore looks up the keys of people. A nil key with a nil error means the key is not known.
type KeyStore interface {
	FetchPublicKeyByHandle(handle string) (*rsa.PublicKey, error)
	FetchPrivateKeyByRecipientID(recipientID string) (*rsa.PrivateKey, error)
	FetchPrivateKeyByHandle(handle string) (*rsa.PrivateKey, error)
}

// EntityStore persists received entities.
type EntityStore interface {
	EntityKnownLocally(kind, guid string) (bool, error)
	// PersistEntity stores a verified entity. recipientID is empty for public entities.
	PersistEntity(e entity.Entity, recipientID, senderHandle string) error
	// FetchPublicEntity returns a public entity by kind and guid, or messages.ErrEntityNotFound.
	FetchPublicEntity(kind, guid string) (entity.Entity, error)
}

// FetchURLResolver resolves URLs on the home pod of a person.
type FetchURLResolver interface {
	ResolveFetchURL(authorHandle, path string) (string, error)
}

// ReachabilityReporter records whether a pod accepted a delivery. status is the HTTP status code as a
// string, or a transport error code.
type ReachabilityReporter interface {
	ReportPodReachability(effectiveURL, status string)
}

// ReceiveQueue accepts raw envelopes for asynchronous receiving.
type ReceiveQueue interface {
	QueuePublicReceive(data []byte) error
	// QueuePrivateReceive returns false if the recipient is not known.
	QueuePrivateReceive(recipientGUID string, data []byte) (bool, error)
}

// PersonDirectory looks up local people for discovery.
type PersonDirectory interface {
	// LocalPerson returns the WebFinger profile of a local person, or nil if the handle is not local.
	LocalPerson(handle string) (*discovery.WebFinger, error)
}

// Host is the complete callback host.
type Host interface {
	KeyStore
	EntityStore
	FetchURLResolver
	ReachabilityReporter
	ReceiveQueue
	PersonDirectory
}
