/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messages

import "fmt"

const (
	// ErrMalformedDocument is used when an envelope or discovery document can't be parsed or is missing
	// required elements.
	ErrMalformedDocument = federationError("malformed document")
	// ErrSignatureInvalid is used when a signature does not verify against the purported author's public key.
	ErrSignatureInvalid = federationError("signature is invalid")
	// ErrKeyNotFound is used when a public or private key required to process a message is unavailable.
	ErrKeyNotFound = federationError("key not found")
	// ErrDecryptionFailed is used when an encrypted envelope can't be decrypted with the given key.
	ErrDecryptionFailed = federationError("decryption failed")
	// ErrTransportFailure is used when an HTTP request to a remote pod fails.
	ErrTransportFailure = federationError("transport failure")
	// ErrConfiguration is used when a required process-wide setting is missing or invalid.
	ErrConfiguration = federationError("configuration error")
	// ErrInvalidData is used when a discovery document does not carry the data a caller needs.
	ErrInvalidData = federationError("invalid data")
	// ErrEntityNotFound is used when a requested entity is not known to this pod.
	ErrEntityNotFound = federationError("entity not found")
	// ErrRecipientNotFound is used when a private message is addressed to an unknown recipient.
	ErrRecipientNotFound = federationError("recipient not found")
	// ErrPersonNotFound is used when a handle can't be resolved to a known or discoverable person.
	ErrPersonNotFound = federationError("person not found")
)

var (
	// ErrRecipientKeyNotFound is used when the recipient's private key can't be obtained.
	// It satisfies errors.Is(err, ErrKeyNotFound).
	ErrRecipientKeyNotFound = fmt.Errorf("recipient private %w", ErrKeyNotFound)
	// ErrSenderKeyNotFound is used when the sender's public key can't be obtained.
	// It satisfies errors.Is(err, ErrKeyNotFound).
	ErrSenderKeyNotFound = fmt.Errorf("sender public %w", ErrKeyNotFound)
)

const (
	// DebugLogEvent is used for debug log entries that have no received data attached.
	DebugLogEvent = `Event: %s`
	// DebugLogEventWithReceivedData is used for debug log entries that carry the received data.
	DebugLogEventWithReceivedData = DebugLogEvent + ` Received data: %s`

	// UnescapeFailure is used when an escaped path variable can't be unescaped.
	UnescapeFailure = "Failed to unescape %s: %s."

	// FailWriteResponse is logged when a ResponseWriter fails to write.
	FailWriteResponse = ` Failed to write response back to sender: %s.`

	// ReceiveFailReadRequestBody is used when the incoming receive request body can't be read.
	ReceiveFailReadRequestBody = "Received a federation message, but failed to read the request body: %s."
	// ReceiveMissingPayload is used when a receive request carries no envelope.
	ReceiveMissingPayload = "Received a federation message without a payload."
	// ReceivePublicAccepted is used when a public message was queued.
	ReceivePublicAccepted = "Accepted public federation message."
	// ReceivePrivateAccepted is used when a private message was queued for a recipient.
	ReceivePrivateAccepted = "Accepted private federation message for recipient %s."
	// ReceiveUnknownRecipient is used when a private message is sent to a recipient this pod doesn't know.
	ReceiveUnknownRecipient = "Received a private federation message for unknown recipient %s."
	// ReceiveQueueFailure is used when a message could not be handed to the receive queue.
	ReceiveQueueFailure = "Failed to queue federation message: %s."

	// FetchEntityFailure is used when a fetch request could not be served.
	FetchEntityFailure = "Failed to fetch %s %s: %s."
	// FetchEntityRedirect is used when a fetch request is redirected to the author's pod.
	FetchEntityRedirect = "Redirecting fetch of %s %s to %s."

	// WebFingerMissingResource is used when a webfinger request has no resource parameter.
	WebFingerMissingResource = "WebFinger request is missing the resource parameter."
	// WebFingerUnknownPerson is used when a webfinger request names a person this pod doesn't know.
	WebFingerUnknownPerson = "No person found for %s."
	// DiscoveryRenderFailure is used when a discovery document could not be rendered.
	DiscoveryRenderFailure = "Failed to render discovery document: %s."

	// ResolveReferenceFailure is logged when a referenced entity could not be fetched.
	ResolveReferenceFailure = "Failed to resolve %s referenced by %s: %s"

	// SignatureInvalidSecurityEvent is logged when a message fails signature verification.
	// This is kept distinct from malformed input since it may indicate a forgery attempt.
	SignatureInvalidSecurityEvent = "SECURITY: rejected message from %s: %s"
	// MalformedMessage is logged when a message can't be decoded.
	MalformedMessage = "Rejected malformed message: %s"

	// InvalidLogSpec is used when a request is made to change the current log specification
	// but it is in an invalid format.
	InvalidLogSpec = `Invalid log spec. It needs to be in the following format: ` +
		`ModuleName1=Level1:ModuleName2=Level2:ModuleNameN=LevelN:AllOtherModuleDefaultLevel
Valid log levels: critical,error,warn,info,debug
Error: %s`
	// SetLogSpecSuccess is used when the current log specification is successfully changed.
	SetLogSpecSuccess = "Successfully set log level(s)."
	// PutLogSpecFailReadRequestBody is used when the incoming request body can't be read.
	PutLogSpecFailReadRequestBody = "Received request to change the log spec, but failed to read the request body: %s."
)

type federationError string

// Error returns the associated federation error message.
// This satisfies the built-in error interface.
func (e federationError) Error() string { return string(e) }
