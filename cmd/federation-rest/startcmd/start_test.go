/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/client"
	"github.com/trustbloc/federation/pkg/config"
)

const testServerURI = "https://pod.example.tld"

type mockServer struct {
	err error
}

func (s *mockServer) ListenAndServe(host, certFile, keyFile string, handler http.Handler) error {
	return s.err
}

func TestStartCmdContents(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start federation server", startCmd.Short)
	require.Equal(t, "Start federation server", startCmd.Long)

	checkFlagPropertiesCorrect(t, startCmd, hostURLFlagName, hostURLFlagShorthand, hostURLFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, serverURIFlagName, serverURIFlagShorthand, serverURIFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, databaseTypeFlagName, databaseTypeFlagShorthand, databaseTypeFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, configFileFlagName, configFileFlagShorthand, configFileFlagUsage)
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})
	startCmd.SetArgs([]string{})

	err := startCmd.Execute()

	require.Equal(t,
		"Neither host-url (command line flag) nor FEDERATION_HOST_URL (environment variable) have been set.",
		err.Error())
}

func TestStartCmdWithMissingDatabaseType(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	startCmd.SetArgs([]string{"--" + hostURLFlagName, "localhost:8080"})

	err := startCmd.Execute()

	require.Equal(t,
		"Neither database-type (command line flag) nor FEDERATION_DATABASE_TYPE (environment variable) have been set.",
		err.Error())
}

func TestStartFederation(t *testing.T) {
	t.Run("missing host URL", func(t *testing.T) {
		err := startFederation(&federationParameters{})
		require.Equal(t, errMissingHostURL, err)
	})
	t.Run("invalid database type", func(t *testing.T) {
		parameters := &federationParameters{hostURL: "NotBlank", serverURI: testServerURI, databaseType: "NotAValidType"}

		err := startFederation(parameters)
		require.Equal(t, errInvalidDatabaseType, err)
	})
	t.Run("missing server URI", func(t *testing.T) {
		parameters := &federationParameters{hostURL: "NotBlank", databaseType: databaseTypeMemOption}

		err := startFederation(parameters)
		require.Error(t, err)
	})
	t.Run("invalid local username", func(t *testing.T) {
		parameters := &federationParameters{
			srv:          &mockServer{},
			hostURL:      "localhost:8080",
			serverURI:    testServerURI,
			databaseType: databaseTypeMemOption,
			localUsers:   []string{"not a username"},
		}

		err := startFederation(parameters)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to set up local person not a username")
	})
	t.Run("server failure", func(t *testing.T) {
		parameters := &federationParameters{
			srv:          &mockServer{err: errors.New("listen failure")},
			hostURL:      "localhost:8080",
			serverURI:    testServerURI,
			databaseType: databaseTypeMemOption,
		}

		err := startFederation(parameters)
		require.EqualError(t, err, "listen failure")
	})
}

func TestStartCmdValidArgs(t *testing.T) {
	t.Run("database type: mem", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + serverURIFlagName, testServerURI}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.NoError(t, err)
	})
	t.Run("all optional flags", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{
			"--" + hostURLFlagName, "localhost:8080",
			"--" + databaseTypeFlagName, "mem",
			"--" + serverURIFlagName, testServerURI,
			"--" + databasePrefixFlagName, "federation",
			"--" + databaseTimeoutFlagName, "1s",
			"--" + maxConcurrencyFlagName, "5",
			"--" + userAgentFlagName, "TestAgent/1.0",
		}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.NoError(t, err)
	})
	t.Run("config file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "federation.yaml")
		require.NoError(t, os.WriteFile(file, []byte("server_uri: "+testServerURI+"\n"), 0o600))

		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + configFileFlagName, file}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.NoError(t, err)
	})
	t.Run("invalid max concurrency", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + serverURIFlagName, testServerURI, "--" + maxConcurrencyFlagName, "many"}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.Error(t, err)
	})
	t.Run("invalid database timeout", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + serverURIFlagName, testServerURI, "--" + databaseTimeoutFlagName, "soon"}
		startCmd.SetArgs(args)

		err := startCmd.Execute()

		require.Error(t, err)
	})
}

func TestStartCmdLogLevels(t *testing.T) {
	defer log.SetLevel("", log.INFO)

	tests := []struct {
		name     string
		logLevel string
		expected log.Level
	}{
		{name: `Log level not specified - default to "info"`, expected: log.INFO},
		{name: "Log level: critical", logLevel: logLevelCritical, expected: log.CRITICAL},
		{name: "Log level: error", logLevel: logLevelError, expected: log.ERROR},
		{name: "Log level: warn", logLevel: logLevelWarn, expected: log.WARNING},
		{name: "Log level: info", logLevel: logLevelInfo, expected: log.INFO},
		{name: "Log level: debug", logLevel: logLevelDebug, expected: log.DEBUG},
		{name: "Invalid log level - default to info", logLevel: "mango", expected: log.INFO},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			startCmd := GetStartCmd(&mockServer{})

			args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
				"--" + serverURIFlagName, testServerURI}
			if tc.logLevel != "" {
				args = append(args, "--"+logLevelFlagName, tc.logLevel)
			}

			startCmd.SetArgs(args)

			err := startCmd.Execute()
			require.Nil(t, err)
			require.Equal(t, tc.expected, log.GetLevel(""))
		})
	}
}

func TestStartCmdBlankTLSArgs(t *testing.T) {
	t.Run("Blank cert file arg", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + tlsCertFileFlagName, ""}
		startCmd.SetArgs(args)

		err := startCmd.Execute()
		require.EqualError(t, err, fmt.Sprintf("%s value is empty", tlsCertFileFlagName))
	})
	t.Run("Blank key file arg", func(t *testing.T) {
		startCmd := GetStartCmd(&mockServer{})

		args := []string{"--" + hostURLFlagName, "localhost:8080", "--" + databaseTypeFlagName, "mem",
			"--" + tlsKeyFileFlagName, ""}
		startCmd.SetArgs(args)

		err := startCmd.Execute()
		require.EqualError(t, err, fmt.Sprintf("%s value is empty", tlsKeyFileFlagName))
	})
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	startCmd := GetStartCmd(&mockServer{})

	t.Setenv(hostURLEnvKey, "localhost:8080")
	t.Setenv(databaseTypeEnvKey, "mem")
	t.Setenv(serverURIEnvKey, testServerURI)

	startCmd.SetArgs([]string{})

	err := startCmd.Execute()

	require.Nil(t, err)
}

func TestCreateProvider(t *testing.T) {
	t.Run("Successfully create memory storage provider", func(t *testing.T) {
		parameters := federationParameters{databaseType: databaseTypeMemOption}

		provider, err := createStorageProvider(&parameters)
		require.NoError(t, err)
		require.IsType(t, &mem.Provider{}, provider)
	})
	t.Run("Successfully create MongoDB storage provider", func(t *testing.T) {
		parameters := federationParameters{
			databaseType:    databaseTypeMongoDBOption,
			databaseURL:     "mongodb://localhost:27017",
			databaseTimeout: time.Second,
		}

		provider, err := createStorageProvider(&parameters)
		require.NoError(t, err)
		require.IsType(t, &mongodb.Provider{}, provider)
	})
	t.Run("Error - invalid database type", func(t *testing.T) {
		parameters := federationParameters{databaseType: "NotARealDatabaseType"}

		provider, err := createStorageProvider(&parameters)
		require.Nil(t, provider)
		require.Equal(t, errInvalidDatabaseType, err)
	})
	t.Run("Error - MongoDB url is blank", func(t *testing.T) {
		parameters := federationParameters{databaseType: databaseTypeMongoDBOption}

		provider, err := createStorageProvider(&parameters)
		require.Nil(t, provider)
		require.Equal(t, errMissingDatabaseURL, err)
	})
}

func TestCreateHost(t *testing.T) {
	cfg := config.Default()
	cfg.ServerURI = testServerURI

	t.Run("success", func(t *testing.T) {
		h, err := createHost(mem.NewProvider(), cfg, client.New(), prometheus.NewRegistry(), time.Second)
		require.NoError(t, err)
		require.NotNil(t, h)
		require.NotNil(t, h.Codec())
	})
	t.Run("database never becomes available", func(t *testing.T) {
		provider := &mock.Provider{ErrOpenStore: errors.New("connection refused")}

		h, err := createHost(provider, cfg, client.New(), prometheus.NewRegistry(), 50*time.Millisecond)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to open the database")
		require.Contains(t, err.Error(), "connection refused")
		require.Nil(t, h)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("flags override defaults", func(t *testing.T) {
		cfg, err := loadConfig(&federationParameters{
			serverURI:      testServerURI,
			maxConcurrency: 7,
			userAgent:      "TestAgent/1.0",
		})
		require.NoError(t, err)
		require.Equal(t, testServerURI, cfg.ServerURI)
		require.Equal(t, 7, cfg.MaxConcurrency)
		require.Equal(t, "TestAgent/1.0", cfg.UserAgent)
	})
	t.Run("missing config file", func(t *testing.T) {
		cfg, err := loadConfig(&federationParameters{configFile: filepath.Join(t.TempDir(), "missing.yaml")})
		require.Error(t, err)
		require.Nil(t, cfg)
	})
}

func TestSplitList(t *testing.T) {
	require.Nil(t, splitList(""))
	require.Equal(t, []string{"alice", "bob"}, splitList(" alice, ,bob "))
}

func TestListenAndServe(t *testing.T) {
	h := HTTPServer{}
	err := h.ListenAndServe("localhost:8080", "test.key", "test.cert", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "open test.key: no such file or directory")
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagShorthand, flagUsage string) {
	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, "", flag.Value.String())

	flagAnnotations := flag.Annotations
	require.Nil(t, flagAnnotations)
}
