/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package resolver finds entity references embedded in text and fetches the referenced entities
// that are not known locally from their authors' pods.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/trustbloc/edge-core/pkg/log"
	"golang.org/x/sync/errgroup"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/pkg/receiver"
)

const (
	logModuleName = "federation-resolver"

	defaultConcurrency = 4
)

var logger = log.New(logModuleName)

// diaspora://[<author-handle>/]<type>/<guid>
var referencePattern = regexp.MustCompile(`diaspora://(?:([^/@\s]+@[^/\s]+)/)?([a-z_]+)/([0-9A-Za-z\-]{16,64})`)

// Reference is an entity reference found in text.
type Reference struct {
	// Author is the handle given in the reference, if any.
	Author string
	Type   string
	GUID   string
}

func (r Reference) String() string {
	if r.Author != "" {
		return "diaspora://" + r.Author + "/" + r.Type + "/" + r.GUID
	}

	return "diaspora://" + r.Type + "/" + r.GUID
}

// FetchPath returns the path of the fetch endpoint for the referenced entity.
func (r Reference) FetchPath() string {
	return "/fetch/" + r.Type + "/" + r.GUID
}

// FindReferences returns the distinct references in text, in order of appearance.
func FindReferences(text string) []Reference {
	var refs []Reference

	seen := make(map[Reference]struct{})

	for _, match := range referencePattern.FindAllStringSubmatch(text, -1) {
		ref := Reference{Author: match[1], Type: match[2], GUID: match[3]}

		if _, ok := seen[ref]; ok {
			continue
		}

		seen[ref] = struct{}{}

		refs = append(refs, ref)
	}

	return refs
}

// Host is the part of the callback host the resolver depends on.
type Host interface {
	receiver.Host
	EntityKnownLocally(kind, guid string) (bool, error)
	ResolveFetchURL(authorHandle, path string) (string, error)
}

// Fetcher retrieves a magic envelope over HTTP.
type Fetcher interface {
	FetchEntity(ctx context.Context, endpoint string) ([]byte, error)
}

// Resolver resolves entity references.
type Resolver struct {
	host         Host
	fetcher      Fetcher
	codec        *envelope.Codec
	concurrency  int
	receiverOpts []receiver.Option
}

// Option configures a Resolver.
type Option func(r *Resolver)

// WithCodec sets the envelope codec used to read fetched entities.
func WithCodec(codec *envelope.Codec) Option {
	return func(r *Resolver) {
		r.codec = codec
	}
}

// WithConcurrency bounds the number of concurrent fetches.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithReceiverOptions passes options to the receivers that verify fetched entities.
func WithReceiverOptions(opts ...receiver.Option) Option {
	return func(r *Resolver) {
		r.receiverOpts = append(r.receiverOpts, opts...)
	}
}

// New returns a Resolver.
func New(h Host, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{host: h, fetcher: fetcher, concurrency: defaultConcurrency}

	for _, opt := range opts {
		opt(r)
	}

	if r.codec == nil {
		r.codec = envelope.NewCodec(entity.DefaultRegistry())
	}

	return r
}

// ResolveReferences fetches every entity referenced in text that is not known locally. A failed reference
// is logged and does not stop the others. The references that could not be resolved are returned.
func (r *Resolver) ResolveReferences(ctx context.Context, senderHandle, text string) []Reference {
	refs := FindReferences(text)

	var (
		mu     sync.Mutex
		failed []Reference
	)

	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)

	for _, ref := range refs {
		ref := ref

		g.Go(func() error {
			if err := r.Resolve(ctx, senderHandle, ref); err != nil {
				logger.Warnf(messages.ResolveReferenceFailure, ref, senderHandle, err)

				mu.Lock()
				failed = append(failed, ref)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait() //nolint: errcheck

	return failed
}

// Resolve fetches a single referenced entity unless it is known locally.
func (r *Resolver) Resolve(ctx context.Context, senderHandle string, ref Reference) error {
	kind, ok := r.codec.Registry().Resolve(ref.Type)
	if !ok {
		return fmt.Errorf("unknown entity type %q: %w", ref.Type, messages.ErrMalformedDocument)
	}

	known, err := r.host.EntityKnownLocally(kind, ref.GUID)
	if err != nil {
		return fmt.Errorf("failed to look up %s %s: %w", kind, ref.GUID, err)
	}

	if known {
		logger.Debugf("%s is known locally", ref)

		return nil
	}

	author := ref.Author
	if author == "" {
		author = senderHandle
	}

	endpoint, err := r.host.ResolveFetchURL(author, ref.FetchPath())
	if err != nil {
		return fmt.Errorf("failed to resolve fetch URL on the pod of %s: %w", author, err)
	}

	data, err := r.fetcher.FetchEntity(ctx, endpoint)
	if err != nil {
		return err
	}

	opts := append([]receiver.Option{
		receiver.WithCodec(r.codec),
		receiver.WithValidator(func(e entity.Entity, _ string) error {
			if e.Type() != kind || e.GUID() != ref.GUID {
				return fmt.Errorf("fetched %s %s for %s: %w", e.Type(), e.GUID(), ref, messages.ErrMalformedDocument)
			}

			return nil
		}),
	}, r.receiverOpts...)

	if err := receiver.NewPublic(data, r.host, opts...).Receive(); err != nil {
		return err
	}

	logger.Debugf("Resolved %s from %s", ref, endpoint)

	return nil
}
