/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/federation/pkg/messages"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "DiasporaFederation/"+Version, cfg.UserAgent)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 4, cfg.MaxRedirects)
	require.Equal(t, 20, cfg.MaxConcurrency)

	err := cfg.Validate()
	require.ErrorIs(t, err, messages.ErrConfiguration)
	require.Contains(t, err.Error(), "server URI is not set")
}

func TestLoadFile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		path := writeFile(t, `
server_uri: https://pod.example.tld
http_timeout: 5s
max_concurrency: 50
legacy_signature_algorithm: RSA-SHA256
`)

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		require.Equal(t, "https://pod.example.tld", cfg.ServerURI)
		require.Equal(t, "https://pod.example.tld/", cfg.ServerURL())
		require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
		require.Equal(t, 50, cfg.MaxConcurrency)
		require.Equal(t, 4, cfg.MaxRedirects)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
	t.Run("invalid YAML", func(t *testing.T) {
		_, err := LoadFile(writeFile(t, "server_uri: [unterminated"))
		require.ErrorIs(t, err, messages.ErrConfiguration)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Federation {
		cfg := Default()
		cfg.ServerURI = "https://pod.example.tld/"

		return cfg
	}

	require.NoError(t, valid().Validate())

	for name, modify := range map[string]func(cfg *Federation){
		"relative server URI":   func(cfg *Federation) { cfg.ServerURI = "pod.example.tld" },
		"zero concurrency":      func(cfg *Federation) { cfg.MaxConcurrency = 0 },
		"zero receive workers":  func(cfg *Federation) { cfg.ReceiveWorkers = 0 },
		"zero fetch workers":    func(cfg *Federation) { cfg.FetchConcurrency = 0 },
		"negative redirects":    func(cfg *Federation) { cfg.MaxRedirects = -1 },
		"no timeout":            func(cfg *Federation) { cfg.HTTPTimeout = 0 },
		"unsupported algorithm": func(cfg *Federation) { cfg.LegacySignatureAlgorithm = "RSA-MD5" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			modify(cfg)

			require.ErrorIs(t, cfg.Validate(), messages.ErrConfiguration)
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "federation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
