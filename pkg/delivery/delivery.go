/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package delivery sends envelopes to remote pods in parallel and reports the destinations that have to be retried.
package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"
	"golang.org/x/sync/errgroup"

	"github.com/trustbloc/federation/pkg/client"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/host"
)

const logModuleName = "federation-delivery"

var logger = log.New(logModuleName)

// Poster posts an envelope to a remote pod.
type Poster interface {
	PostEnvelope(ctx context.Context, endpoint, contentType string, body []byte) (*client.PostResult, error)
}

// Sender dispatches deliveries concurrently, at most maxConcurrency at a time.
type Sender struct {
	poster         Poster
	reporter       host.ReachabilityReporter
	maxConcurrency int
	metrics        *Metrics
}

// Option configures a Sender.
type Option func(s *Sender)

// WithMetrics records every delivery in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

// New returns a Sender. Every finished delivery is reported to reporter.
func New(poster Poster, reporter host.ReachabilityReporter, maxConcurrency int, opts ...Option) *Sender {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	s := &Sender{poster: poster, reporter: reporter, maxConcurrency: maxConcurrency}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type job struct {
	url         string
	contentType string
	payload     []byte
}

// SendPublic posts the same magic envelope to every URL and returns the URLs that failed.
// objectLabel identifies the sent object in logs.
func (s *Sender) SendPublic(ctx context.Context, senderID, objectLabel string, urls []string, payload []byte) []string {
	seen := make(map[string]struct{}, len(urls))
	jobs := make([]job, 0, len(urls))

	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}

		jobs = append(jobs, job{url: u, contentType: envelope.ContentType, payload: payload})
	}

	failed := s.dispatch(ctx, senderID, objectLabel, jobs)

	urlsFailed := make([]string, 0, len(failed))
	for _, j := range failed {
		urlsFailed = append(urlsFailed, j.url)
	}

	return urlsFailed
}

// SendPrivate posts each encrypted envelope to its URL and returns the targets that failed.
func (s *Sender) SendPrivate(ctx context.Context, senderID, objectLabel string,
	targets map[string][]byte) map[string][]byte {
	jobs := make([]job, 0, len(targets))

	for u, payload := range targets {
		jobs = append(jobs, job{url: u, contentType: envelope.EncryptedContentType, payload: payload})
	}

	failed := s.dispatch(ctx, senderID, objectLabel, jobs)

	targetsFailed := make(map[string][]byte, len(failed))
	for _, j := range failed {
		targetsFailed[j.url] = j.payload
	}

	return targetsFailed
}

// dispatch blocks until every job has finished.
func (s *Sender) dispatch(ctx context.Context, senderID, objectLabel string, jobs []job) []job {
	var (
		mu     sync.Mutex
		failed []job
	)

	g := &errgroup.Group{}
	g.SetLimit(s.maxConcurrency)

	for _, j := range jobs {
		j := j

		g.Go(func() error {
			if !s.deliver(ctx, senderID, objectLabel, j) {
				mu.Lock()
				failed = append(failed, j)
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait() //nolint: errcheck

	logger.Infof("Delivered %s from %s to %d of %d destinations", objectLabel, senderID,
		len(jobs)-len(failed), len(jobs))

	return failed
}

func (s *Sender) deliver(ctx context.Context, senderID, objectLabel string, j job) bool {
	start := time.Now()

	result, err := s.poster.PostEnvelope(ctx, j.url, j.contentType, j.payload)
	if err != nil {
		effectiveURL, code := j.url, client.ErrorCode(err)

		var transportErr *client.TransportError
		if errors.As(err, &transportErr) {
			effectiveURL = transportErr.URL
		}

		s.report(effectiveURL, code)
		s.metrics.observe(resultFailed, time.Since(start))

		logger.Warnf("Failed to deliver %s from %s to %s: %s", objectLabel, senderID, j.url, err)

		return false
	}

	s.report(result.EffectiveURL, strconv.Itoa(result.StatusCode))

	if !result.Success() {
		s.metrics.observe(resultFailed, time.Since(start))

		logger.Warnf("Delivery of %s from %s to %s failed with status %d", objectLabel, senderID, j.url,
			result.StatusCode)

		return false
	}

	s.metrics.observe(resultDelivered, time.Since(start))

	logger.Debugf("Delivered %s from %s to %s", objectLabel, senderID, result.EffectiveURL)

	return true
}

func (s *Sender) report(effectiveURL, status string) {
	if s.reporter != nil {
		s.reporter.ReportPodReachability(effectiveURL, status)
	}
}
