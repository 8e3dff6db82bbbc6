/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package receiver implements the receive pipeline for public and private federation messages.
//
// A Receiver moves through Initialized, KeysResolved and Decoded to either Delivered or Failed.
// The sender's public key is looked up by the handle found inside the envelope, so an envelope
// is always parsed before it is verified.
package receiver

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/messages"
)

const logModuleName = "federation-receiver"

var logger = log.New(logModuleName)

// State is the state of a Receiver.
type State int

// Receiver states.
const (
	Initialized State = iota
	KeysResolved
	Decoded
	Delivered
	Failed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case KeysResolved:
		return "keys_resolved"
	case Decoded:
		return "decoded"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Host is the part of the callback host a Receiver depends on.
type Host interface {
	FetchPublicKeyByHandle(handle string) (*rsa.PublicKey, error)
	FetchPrivateKeyByRecipientID(recipientID string) (*rsa.PrivateKey, error)
	PersistEntity(e entity.Entity, recipientID, senderHandle string) error
}

// Validator checks a verified entity before it is delivered.
type Validator func(e entity.Entity, senderHandle string) error

// Receiver receives a single message.
type Receiver struct {
	data        []byte
	recipientID string
	private     bool

	host      Host
	codec     *envelope.Codec
	encrypted *envelope.EncryptedCodec
	validator Validator
	metrics   *Metrics

	state        State
	failedIn     State
	reason       error
	recipientKey *rsa.PrivateKey
	parsed       *envelope.Envelope
	env          *envelope.Envelope
}

// Option configures a Receiver.
type Option func(r *Receiver)

// WithCodec sets the envelope codec. Defaults to a codec over the default entity registry.
func WithCodec(codec *envelope.Codec) Option {
	return func(r *Receiver) {
		r.codec = codec
	}
}

// WithValidator sets a check that runs on the verified entity before delivery.
func WithValidator(validator Validator) Option {
	return func(r *Receiver) {
		r.validator = validator
	}
}

// WithMetrics records the outcome of the receive in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// NewPublic returns a Receiver for a public magic envelope.
func NewPublic(data []byte, h Host, opts ...Option) *Receiver {
	return newReceiver(data, "", false, h, opts)
}

// NewPrivate returns a Receiver for an encrypted envelope addressed to recipientID.
func NewPrivate(data []byte, recipientID string, h Host, opts ...Option) *Receiver {
	return newReceiver(data, recipientID, true, h, opts)
}

func newReceiver(data []byte, recipientID string, private bool, h Host, opts []Option) *Receiver {
	r := &Receiver{
		data:        data,
		recipientID: recipientID,
		private:     private,
		host:        h,
		state:       Initialized,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.codec == nil {
		r.codec = envelope.NewCodec(entity.DefaultRegistry())
	}

	r.encrypted = envelope.NewEncryptedCodec(r.codec)

	return r
}

// Receive runs the receiver to a terminal state and returns the failure reason, if any.
// A Receiver can only be run once.
func (r *Receiver) Receive() error {
	if r.state != Initialized {
		return fmt.Errorf("receiver is already %s", r.state)
	}

	steps := []func() error{r.resolveKeys, r.decode, r.deliver}

	for _, step := range steps {
		if err := step(); err != nil {
			r.fail(err)

			return err
		}
	}

	r.metrics.observe(r.variant(), resultDelivered)

	logger.Debugf("Delivered %s %s from %s", r.env.Entity.Type(), r.env.Entity.GUID(), r.env.Author)

	return nil
}

// State returns the current state.
func (r *Receiver) State() State {
	return r.state
}

// FailureReason returns the reason of a failed receive, or nil.
func (r *Receiver) FailureReason() error {
	return r.reason
}

// FailedIn returns the state the receiver was in when it failed.
func (r *Receiver) FailedIn() State {
	return r.failedIn
}

// Entity returns the verified entity once the receiver has decoded the message.
func (r *Receiver) Entity() entity.Entity {
	if r.env == nil {
		return nil
	}

	return r.env.Entity
}

// Sender returns the handle of the verified sender once the receiver has decoded the message.
func (r *Receiver) Sender() string {
	if e := r.Entity(); e == nil {
		return ""
	}

	return r.env.Author
}

// RecipientID returns the recipient of a private message, empty for public messages.
func (r *Receiver) RecipientID() string {
	return r.recipientID
}

func (r *Receiver) resolveKeys() error {
	if r.private {
		key, err := r.host.FetchPrivateKeyByRecipientID(r.recipientID)
		if err != nil {
			return fmt.Errorf("failed to fetch private key of recipient %s: %s: %w", r.recipientID, err,
				messages.ErrRecipientKeyNotFound)
		}

		if key == nil {
			return fmt.Errorf("recipient %s: %w", r.recipientID, messages.ErrRecipientKeyNotFound)
		}

		r.recipientKey = key
	}

	r.state = KeysResolved

	return nil
}

func (r *Receiver) decode() error {
	data := r.data

	if r.private {
		inner, err := r.encrypted.Decrypt(r.data, r.recipientKey)
		if err != nil {
			return err
		}

		data = inner
	}

	env, err := r.codec.Parse(data)
	if err != nil {
		return err
	}

	r.parsed = env

	senderKey, err := r.host.FetchPublicKeyByHandle(env.Author)
	if err != nil {
		return fmt.Errorf("failed to fetch public key of %s: %s: %w", env.Author, err, messages.ErrSenderKeyNotFound)
	}

	if senderKey == nil {
		return fmt.Errorf("sender %s: %w", env.Author, messages.ErrSenderKeyNotFound)
	}

	if err := env.Verify(senderKey); err != nil {
		return err
	}

	r.env = env
	r.state = Decoded

	return nil
}

func (r *Receiver) deliver() error {
	if r.validator != nil {
		if err := r.validator(r.env.Entity, r.env.Author); err != nil {
			return err
		}
	}

	if err := r.host.PersistEntity(r.env.Entity, r.recipientID, r.env.Author); err != nil {
		return fmt.Errorf("failed to persist %s %s: %w", r.env.Entity.Type(), r.env.Entity.GUID(), err)
	}

	r.state = Delivered

	return nil
}

func (r *Receiver) fail(err error) {
	r.failedIn = r.state
	r.state = Failed
	r.reason = err

	r.metrics.observe(r.variant(), resultOf(err))

	switch {
	case errors.Is(err, messages.ErrSignatureInvalid):
		logger.Errorf(messages.SignatureInvalidSecurityEvent, r.source(), err)
	case errors.Is(err, messages.ErrMalformedDocument), errors.Is(err, messages.ErrDecryptionFailed):
		logger.Warnf(messages.MalformedMessage, err)
	default:
		logger.Infof("Failed to receive %s message in state %s: %s", r.variant(), r.failedIn, err)
	}

	if log.IsEnabledFor(logModuleName, log.DEBUG) {
		logger.Debugf("Rejected %s payload: %s", r.variant(), r.data)
	}
}

func (r *Receiver) source() string {
	if r.parsed != nil {
		return r.parsed.Author
	}

	return "unknown sender"
}

func (r *Receiver) variant() string {
	if r.private {
		return variantPrivate
	}

	return variantPublic
}
