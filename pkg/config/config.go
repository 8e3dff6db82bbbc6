/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config holds the process-wide federation configuration.
//
// Defaults are applied first, then an optional YAML file, then command line flags and environment
// variables set by the start command. Validate must be called once all sources have been applied.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/pkg/signature"
)

// Version is the version of the federation software, advertised in the default user agent.
const Version = "0.1.0"

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRedirects     = 4
	defaultMaxConcurrency   = 20
	defaultReceiveWorkers   = 4
	defaultFetchConcurrency = 4
)

// Federation is the process-wide federation configuration.
type Federation struct {
	// ServerURI is the public base URL of this pod. Required.
	ServerURI string `yaml:"server_uri"`
	// UserAgent is sent with every outgoing request.
	UserAgent string `yaml:"user_agent"`
	// HTTPTimeout bounds every outgoing request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// MaxRedirects is the number of redirects an outgoing request follows.
	MaxRedirects int `yaml:"max_redirects"`
	// MaxConcurrency bounds the number of deliveries in flight for one send.
	MaxConcurrency int `yaml:"max_concurrency"`
	// CAFile is a PEM bundle of trusted certificate authorities. Empty means the system pool.
	CAFile string `yaml:"ca_file"`
	// LegacySignatureAlgorithm is assumed for envelopes without an algorithm element.
	// Empty rejects such envelopes.
	LegacySignatureAlgorithm string `yaml:"legacy_signature_algorithm"`
	// ReceiveWorkers is the number of goroutines draining the receive queue.
	ReceiveWorkers int `yaml:"receive_workers"`
	// FetchConcurrency bounds the number of concurrent entity fetches when resolving references.
	FetchConcurrency int `yaml:"fetch_concurrency"`
}

// Default returns the default configuration. ServerURI has no default.
func Default() *Federation {
	return &Federation{
		UserAgent:        "DiasporaFederation/" + Version,
		HTTPTimeout:      defaultHTTPTimeout,
		MaxRedirects:     defaultMaxRedirects,
		MaxConcurrency:   defaultMaxConcurrency,
		ReceiveWorkers:   defaultReceiveWorkers,
		FetchConcurrency: defaultFetchConcurrency,
	}
}

// LoadFile returns the defaults overlaid with the YAML file at path.
func LoadFile(path string) (*Federation, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %s: %w", path, err, messages.ErrConfiguration)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. Every failure is an ErrConfiguration.
func (f *Federation) Validate() error {
	if strings.TrimSpace(f.ServerURI) == "" {
		return fmt.Errorf("server URI is not set: %w", messages.ErrConfiguration)
	}

	u, err := url.Parse(f.ServerURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server URI %q is not an absolute URL: %w", f.ServerURI, messages.ErrConfiguration)
	}

	checks := []struct {
		name  string
		value int
	}{
		{"max concurrency", f.MaxConcurrency},
		{"receive workers", f.ReceiveWorkers},
		{"fetch concurrency", f.FetchConcurrency},
	}

	for _, c := range checks {
		if c.value < 1 {
			return fmt.Errorf("%s must be at least 1, got %d: %w", c.name, c.value, messages.ErrConfiguration)
		}
	}

	if f.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must not be negative: %w", messages.ErrConfiguration)
	}

	if f.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive: %w", messages.ErrConfiguration)
	}

	if f.LegacySignatureAlgorithm != "" && !signature.Supported(f.LegacySignatureAlgorithm) {
		return fmt.Errorf("unsupported legacy signature algorithm %q: %w", f.LegacySignatureAlgorithm,
			messages.ErrConfiguration)
	}

	return nil
}

// ServerURL returns ServerURI with a trailing slash.
func (f *Federation) ServerURL() string {
	if strings.HasSuffix(f.ServerURI, "/") {
		return f.ServerURI
	}

	return f.ServerURI + "/"
}
