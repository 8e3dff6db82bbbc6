/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go-ext/component/storage/mongodb"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/client"
	"github.com/trustbloc/federation/pkg/config"
	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/host/storehost"
	"github.com/trustbloc/federation/pkg/receiver"
	"github.com/trustbloc/federation/pkg/restapi"
	"github.com/trustbloc/federation/pkg/restapi/operation"
	cmdutils "github.com/trustbloc/federation/pkg/utils/cmd"
)

const (
	logModuleName = "federation-rest"

	hostURLFlagName      = "host-url"
	hostURLEnvKey        = "FEDERATION_HOST_URL"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "URL to run the federation instance on. Format: HostName:Port." +
		" Alternatively, this can be set with the following environment variable: " + hostURLEnvKey

	serverURIFlagName      = "server-uri"
	serverURIEnvKey        = "FEDERATION_SERVER_URI"
	serverURIFlagShorthand = "s"
	serverURIFlagUsage     = "The public base URL of this pod, for example https://pod.example.com." +
		" Required unless set in the config file." +
		" Alternatively, this can be set with the following environment variable: " + serverURIEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "FEDERATION_DATABASE_TYPE"
	databaseTypeFlagShorthand = "t"
	databaseTypeFlagUsage     = "The type of database to use. Supported options: mem, mongodb." +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseTypeMemOption     = "mem"
	databaseTypeMongoDBOption = "mongodb"

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "FEDERATION_DATABASE_URL"
	databaseURLFlagShorthand = "l"
	databaseURLFlagUsage     = "The URL of the database. Not needed if using mem." +
		" For MongoDB, this is a connection string such as mongodb://mongodb.example.com:27017." +
		" Alternatively, this can be set with the following environment variable: " + databaseURLEnvKey

	databasePrefixFlagName      = "database-prefix"
	databasePrefixEnvKey        = "FEDERATION_DATABASE_PREFIX"
	databasePrefixFlagShorthand = "p"
	databasePrefixFlagUsage     = "An optional prefix to be used when creating and retrieving underlying databases." +
		" Alternatively, this can be set with the following environment variable: " + databasePrefixEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutEnvKey    = "FEDERATION_DATABASE_TIMEOUT"
	databaseTimeoutFlagUsage = "Total time to wait for the database to become available, as a duration" +
		" such as 30s. Defaults to 10s." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey

	configFileFlagName      = "config-file"
	configFileEnvKey        = "FEDERATION_CONFIG_FILE"
	configFileFlagShorthand = "c"
	configFileFlagUsage     = "Path to a YAML file with the federation settings. Flags take precedence." +
		" Alternatively, this can be set with the following environment variable: " + configFileEnvKey

	logLevelFlagName  = "log-level"
	logLevelEnvKey    = "FEDERATION_LOGLEVEL"
	logLevelFlagUsage = "Logging level to set. Supported options: critical, error, warning, info, debug." +
		` Defaults to "info" if not set. Setting to "debug" may adversely impact performance. Alternatively, this can be` +
		" set with the following environment variable: " + logLevelEnvKey

	logLevelCritical = "critical"
	logLevelError    = "error"
	logLevelWarn     = "warning"
	logLevelInfo     = "info"
	logLevelDebug    = "debug"

	tlsCertFileFlagName  = "tls-cert-file"
	tlsCertFileEnvKey    = "FEDERATION_TLS_CERT_FILE"
	tlsCertFileFlagUsage = "TLS certificate file." +
		" Alternatively, this can be set with the following environment variable: " + tlsCertFileEnvKey

	tlsKeyFileFlagName  = "tls-key-file"
	tlsKeyFileEnvKey    = "FEDERATION_TLS_KEY_FILE"
	tlsKeyFileFlagUsage = "TLS key file." +
		" Alternatively, this can be set with the following environment variable: " + tlsKeyFileEnvKey

	caFileFlagName  = "ca-file"
	caFileEnvKey    = "FEDERATION_CA_FILE"
	caFileFlagUsage = "PEM bundle of the certificate authorities trusted for outgoing requests." +
		" Alternatively, this can be set with the following environment variable: " + caFileEnvKey

	maxConcurrencyFlagName  = "max-concurrency"
	maxConcurrencyEnvKey    = "FEDERATION_MAX_CONCURRENCY"
	maxConcurrencyFlagUsage = "Maximum number of deliveries in flight for one send." +
		" Alternatively, this can be set with the following environment variable: " + maxConcurrencyEnvKey

	userAgentFlagName  = "user-agent"
	userAgentEnvKey    = "FEDERATION_USER_AGENT"
	userAgentFlagUsage = "User agent sent with outgoing requests." +
		" Alternatively, this can be set with the following environment variable: " + userAgentEnvKey

	localUsersFlagName  = "local-users"
	localUsersEnvKey    = "FEDERATION_LOCAL_USERS"
	localUsersFlagUsage = "Comma-separated usernames of local people to create on startup if they don't exist." +
		" Alternatively, this can be set with the following environment variable: " + localUsersEnvKey

	defaultDatabaseTimeout = 10 * time.Second
)

var logger = log.New(logModuleName)

var (
	errMissingHostURL      = errors.New("host URL not provided")
	errMissingDatabaseURL  = errors.New("database URL not provided")
	errInvalidDatabaseType = errors.New("database type not set to a valid type." +
		" run start --help to see the available options")
)

type federationParameters struct {
	srv             server
	hostURL         string
	serverURI       string
	databaseType    string
	databaseURL     string
	databasePrefix  string
	databaseTimeout time.Duration
	configFile      string
	logLevel        string
	tlsCertFile     string
	tlsKeyFile      string
	caFile          string
	maxConcurrency  int
	userAgent       string
	localUsers      []string
}

type server interface {
	ListenAndServe(host, certFile, keyFile string, router http.Handler) error
}

// HTTPServer represents an actual HTTP server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
// TLS is used if both certFile and keyFile are set.
func (s *HTTPServer) ListenAndServe(host, certFile, keyFile string, router http.Handler) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router)
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start federation server",
		Long:  "Start federation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getFederationParameters(cmd)
			if err != nil {
				return err
			}

			parameters.srv = srv

			return startFederation(parameters)
		},
	}
}

func getFederationParameters(cmd *cobra.Command) (*federationParameters, error) { //nolint: funlen
	hostURL, err := cmdutils.GetUserSetVar(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	serverURI, err := cmdutils.GetUserSetVar(cmd, serverURIFlagName, serverURIEnvKey, true)
	if err != nil {
		return nil, err
	}

	databaseType, err := cmdutils.GetUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseURL, err := cmdutils.GetUserSetVar(cmd, databaseURLFlagName, databaseURLEnvKey, true)
	if err != nil {
		return nil, err
	}

	databasePrefix, err := cmdutils.GetUserSetVar(cmd, databasePrefixFlagName, databasePrefixEnvKey, true)
	if err != nil {
		return nil, err
	}

	databaseTimeout, err := cmdutils.GetUserSetDuration(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey,
		defaultDatabaseTimeout)
	if err != nil {
		return nil, err
	}

	configFile, err := cmdutils.GetUserSetVar(cmd, configFileFlagName, configFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	logLevel, err := cmdutils.GetUserSetVar(cmd, logLevelFlagName, logLevelEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsCertFile, err := cmdutils.GetUserSetVar(cmd, tlsCertFileFlagName, tlsCertFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	tlsKeyFile, err := cmdutils.GetUserSetVar(cmd, tlsKeyFileFlagName, tlsKeyFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	caFile, err := cmdutils.GetUserSetVar(cmd, caFileFlagName, caFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	maxConcurrency, err := cmdutils.GetUserSetInt(cmd, maxConcurrencyFlagName, maxConcurrencyEnvKey, 0)
	if err != nil {
		return nil, err
	}

	userAgent, err := cmdutils.GetUserSetVar(cmd, userAgentFlagName, userAgentEnvKey, true)
	if err != nil {
		return nil, err
	}

	localUsers, err := cmdutils.GetUserSetVar(cmd, localUsersFlagName, localUsersEnvKey, true)
	if err != nil {
		return nil, err
	}

	return &federationParameters{
		hostURL:         hostURL,
		serverURI:       serverURI,
		databaseType:    databaseType,
		databaseURL:     databaseURL,
		databasePrefix:  databasePrefix,
		databaseTimeout: databaseTimeout,
		configFile:      configFile,
		logLevel:        logLevel,
		tlsCertFile:     tlsCertFile,
		tlsKeyFile:      tlsKeyFile,
		caFile:          caFile,
		maxConcurrency:  maxConcurrency,
		userAgent:       userAgent,
		localUsers:      splitList(localUsers),
	}, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(serverURIFlagName, serverURIFlagShorthand, "", serverURIFlagUsage)
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databasePrefixFlagName, databasePrefixFlagShorthand, "", databasePrefixFlagUsage)
	startCmd.Flags().String(databaseTimeoutFlagName, "", databaseTimeoutFlagUsage)
	startCmd.Flags().StringP(configFileFlagName, configFileFlagShorthand, "", configFileFlagUsage)
	startCmd.Flags().String(logLevelFlagName, "", logLevelFlagUsage)
	startCmd.Flags().String(tlsCertFileFlagName, "", tlsCertFileFlagUsage)
	startCmd.Flags().String(tlsKeyFileFlagName, "", tlsKeyFileFlagUsage)
	startCmd.Flags().String(caFileFlagName, "", caFileFlagUsage)
	startCmd.Flags().String(maxConcurrencyFlagName, "", maxConcurrencyFlagUsage)
	startCmd.Flags().String(userAgentFlagName, "", userAgentFlagUsage)
	startCmd.Flags().String(localUsersFlagName, "", localUsersFlagUsage)
}

func startFederation(parameters *federationParameters) error {
	if parameters.hostURL == "" {
		return errMissingHostURL
	}

	setLogLevel(parameters.logLevel)

	cfg, err := loadConfig(parameters)
	if err != nil {
		return err
	}

	provider, err := createStorageProvider(parameters)
	if err != nil {
		return err
	}

	httpClient, err := client.NewHTTPClient(cfg)
	if err != nil {
		return err
	}

	federationClient := client.New(client.WithHTTPClient(httpClient))

	registry := prometheus.NewRegistry()

	h, err := createHost(provider, cfg, federationClient, registry, parameters.databaseTimeout)
	if err != nil {
		return err
	}

	for _, username := range parameters.localUsers {
		p, errPerson := h.EnsureLocalPerson(username)
		if errPerson != nil {
			return fmt.Errorf("failed to set up local person %s: %w", username, errPerson)
		}

		logger.Infof("Local person %s has GUID %s", p.Handle, p.GUID)
	}

	federationService, err := restapi.New(&operation.Config{
		Host:      h,
		Codec:     h.Codec(),
		ServerURL: cfg.ServerURL(),
		Gatherer:  registry,
	})
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.UseEncodedPath()

	for _, handler := range federationService.GetOperations() {
		router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Start(ctx)

	logger.Infof("Starting federation rest server on host %s for pod %s", parameters.hostURL, cfg.ServerURL())

	err = parameters.srv.ListenAndServe(parameters.hostURL, parameters.tlsCertFile, parameters.tlsKeyFile, router)

	cancel()
	h.Wait()

	return err
}

// loadConfig reads the config file, if any, and applies the flags on top of it.
func loadConfig(parameters *federationParameters) (*config.Federation, error) {
	cfg := config.Default()

	if parameters.configFile != "" {
		var err error

		cfg, err = config.LoadFile(parameters.configFile)
		if err != nil {
			return nil, err
		}
	}

	if parameters.serverURI != "" {
		cfg.ServerURI = parameters.serverURI
	}

	if parameters.caFile != "" {
		cfg.CAFile = parameters.caFile
	}

	if parameters.maxConcurrency != 0 {
		cfg.MaxConcurrency = parameters.maxConcurrency
	}

	if parameters.userAgent != "" {
		cfg.UserAgent = parameters.userAgent
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func createStorageProvider(parameters *federationParameters) (storage.Provider, error) {
	switch {
	case strings.EqualFold(parameters.databaseType, databaseTypeMemOption):
		logger.Warnf("Using the in-memory database. Nothing will be kept across restarts.")

		return mem.NewProvider(), nil
	case strings.EqualFold(parameters.databaseType, databaseTypeMongoDBOption):
		if parameters.databaseURL == "" {
			return nil, errMissingDatabaseURL
		}

		return mongodb.NewProvider(parameters.databaseURL,
			mongodb.WithDBPrefix(parameters.databasePrefix),
			mongodb.WithTimeout(parameters.databaseTimeout))
	default:
		return nil, errInvalidDatabaseType
	}
}

// createHost opens the host's stores, retrying until the database is reachable or timeout has passed.
func createHost(provider storage.Provider, cfg *config.Federation, federationClient *client.Client,
	registry prometheus.Registerer, timeout time.Duration) (*storehost.Host, error) {
	codec := envelope.NewCodec(entity.DefaultRegistry(), envelope.WithLegacyAlgorithm(cfg.LegacySignatureAlgorithm))
	receiverMetrics := receiver.NewMetrics(registry)

	var h *storehost.Host

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout

	err := backoff.RetryNotify(
		func() error {
			var errNew error

			h, errNew = storehost.New(provider, cfg, federationClient,
				storehost.WithCodec(codec),
				storehost.WithDiscoverer(federationClient),
				storehost.WithReceiverOptions(receiver.WithMetrics(receiverMetrics)))

			return errNew
		},
		b,
		func(err error, wait time.Duration) {
			logger.Warnf("Failed to open the database, retrying in %s: %s", wait, err)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open the database: %w", err)
	}

	return h, nil
}

func setLogLevel(logLevel string) {
	if logLevel == "" {
		logLevel = logLevelInfo
	}

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		logger.Warnf("%s is not a valid logging level. It must be one of the following: "+
			"critical, error, warning, info, debug. Defaulting to info.", logLevel)

		level = log.INFO
	}

	log.SetLevel("", level)
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
