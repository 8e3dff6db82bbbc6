/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultDelivered = "delivered"
	resultFailed    = "failed"
)

// Metrics tracks deliveries.
type Metrics struct {
	Deliveries *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// NewMetrics creates and registers the delivery metrics with registry, or the default registerer if nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &Metrics{
		Deliveries: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_deliveries_total",
			Help: "Total number of envelope deliveries by result",
		}, []string{"result"}),
		Duration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "federation_delivery_duration_seconds",
			Help:    "Duration of envelope deliveries",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(result string, duration time.Duration) {
	if m == nil {
		return
	}

	m.Deliveries.WithLabelValues(result).Inc()
	m.Duration.Observe(duration.Seconds())
}
