/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package receiver

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trustbloc/federation/pkg/messages"
)

const (
	variantPublic  = "public"
	variantPrivate = "private"

	resultDelivered        = "delivered"
	resultMalformed        = "malformed"
	resultSignatureInvalid = "signature_invalid"
	resultKeyNotFound      = "key_not_found"
	resultDecryptionFailed = "decryption_failed"
	resultError            = "error"
)

// Metrics counts received messages by variant and result.
type Metrics struct {
	Received *prometheus.CounterVec
}

// NewMetrics creates and registers the receive metrics with registry, or the default registerer if nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &Metrics{
		Received: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_receive_total",
			Help: "Total number of received federation messages",
		}, []string{"variant", "result"}),
	}
}

func (m *Metrics) observe(variant, result string) {
	if m == nil {
		return
	}

	m.Received.WithLabelValues(variant, result).Inc()
}

func resultOf(err error) string {
	switch {
	case errors.Is(err, messages.ErrMalformedDocument):
		return resultMalformed
	case errors.Is(err, messages.ErrSignatureInvalid):
		return resultSignatureInvalid
	case errors.Is(err, messages.ErrKeyNotFound):
		return resultKeyNotFound
	case errors.Is(err, messages.ErrDecryptionFailed):
		return resultDecryptionFailed
	default:
		return resultError
	}
}
