/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package entity

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/trustbloc/federation/pkg/messages"
)

// Factory returns a new zero value of an entity kind, ready to be unmarshalled into.
type Factory func() Entity

// Registry maps kind names to factories and serializes entities in their XML wire form.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), aliases: make(map[string]string)}
}

// DefaultRegistry returns a Registry with all built-in kinds registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(StatusMessageType, func() Entity { return &StatusMessage{} })
	r.Register(ProfileType, func() Entity { return &Profile{} })
	r.Register(AccountMigrationType, func() Entity { return &AccountMigration{} })
	r.RegisterAlias(PostAlias, StatusMessageType)

	return r
}

// Register adds a kind. Registering a kind twice replaces the earlier factory.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = factory
}

// RegisterAlias makes alias resolve to kind in Resolve and New.
func (r *Registry) RegisterAlias(alias, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.aliases[alias] = kind
}

// Resolve returns the kind name for a kind name or alias, and whether it is known.
func (r *Registry) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind, ok := r.aliases[name]; ok {
		name = kind
	}

	_, ok := r.factories[name]

	return name, ok
}

// New returns a new zero entity of the given kind or alias.
func (r *Registry) New(name string) (Entity, error) {
	kind, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q: %w", name, messages.ErrMalformedDocument)
	}

	r.mu.RLock()
	factory := r.factories[kind]
	r.mu.RUnlock()

	return factory(), nil
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// Marshal serializes an entity into its XML wire form. The output is deterministic for a given entity.
func (r *Registry) Marshal(e Entity) ([]byte, error) {
	if _, ok := r.Resolve(e.Type()); !ok {
		return nil, fmt.Errorf("entity type %q is not registered: %w", e.Type(), messages.ErrConfiguration)
	}

	data, err := xml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Type(), err)
	}

	return data, nil
}

// Unmarshal parses an entity from its XML wire form. The root element name selects the kind.
func (r *Registry) Unmarshal(data []byte) (Entity, error) {
	kind, err := rootElementName(data)
	if err != nil {
		return nil, err
	}

	e, err := r.New(kind)
	if err != nil {
		return nil, err
	}

	if err := xml.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %s: %w", kind, err, messages.ErrMalformedDocument)
	}

	if e.Author() == "" {
		return nil, fmt.Errorf("%s has no author: %w", kind, messages.ErrMalformedDocument)
	}

	if e.GUID() == "" {
		return nil, fmt.Errorf("%s has no guid: %w", kind, messages.ErrMalformedDocument)
	}

	return e, nil
}

func rootElementName(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("entity document is empty: %w", messages.ErrMalformedDocument)
		}

		if err != nil {
			return "", fmt.Errorf("failed to read entity document: %s: %w", err, messages.ErrMalformedDocument)
		}

		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
