/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/config"
	"github.com/trustbloc/federation/pkg/discovery"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/messages"
)

// Transport error codes reported for failed requests.
const (
	CodeTimeout           = "timeout"
	CodeDNS               = "dns"
	CodeConnectionRefused = "connection_refused"
	CodeTLS               = "tls"
	CodeTooManyRedirects  = "too_many_redirects"
	CodeTransport         = "transport"
)

const (
	failSendRequest     = "failure while sending %s request to %s: %w"
	unexpectedStatusMsg = "%s returned status code %d along with the following message: %s: %w"

	hostMetaPath = "/.well-known/host-meta"
)

var logger = log.New("federation-client")

// ErrTooManyRedirects is returned when a request exceeds the configured redirect limit.
var ErrTooManyRedirects = errors.New("too many redirects")

type addHeaders func(req *http.Request) (*http.Header, error)

// TransportError is a request that failed before a response was received. It satisfies
// errors.Is(err, messages.ErrTransportFailure).
type TransportError struct {
	// URL is the last URL requested, after following redirects.
	URL string
	// Code classifies the failure.
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", messages.ErrTransportFailure, e.Err, e.Code)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransportFailure as a match.
func (e *TransportError) Is(target error) bool {
	return target == messages.ErrTransportFailure //nolint: errorlint
}

// Client is used to talk to remote pods.
type Client struct {
	httpClient  *http.Client
	headersFunc addHeaders
	scheme      string
}

// Option configures the federation client.
type Option func(opts *Client)

// WithHTTPClient sets the HTTP client, usually one built by NewHTTPClient.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Client) {
		opts.httpClient = httpClient
	}
}

// WithTLSConfig option is for definition of secured HTTP transport using a tls.Config instance
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(opts *Client) {
		opts.httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}
}

// WithHeaders option is for setting additional http request headers
func WithHeaders(addHeadersFunc addHeaders) Option {
	return func(opts *Client) {
		opts.headersFunc = addHeadersFunc
	}
}

// WithScheme sets the scheme used to reach the host-meta document of a pod. Defaults to https.
func WithScheme(scheme string) Option {
	return func(opts *Client) {
		opts.scheme = scheme
	}
}

// New returns a new federation client.
func New(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}, scheme: "https"}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewHTTPClient returns an HTTP client with the process-wide transport settings of cfg: timeout, redirect limit,
// trusted certificate authorities and user agent.
func NewHTTPClient(cfg *config.Federation) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pem, err := ioutil.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cfg.CAFile, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in CA file %s: %w", cfg.CAFile, messages.ErrConfiguration)
		}

		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint: forcetypeassert
	transport.TLSClientConfig = tlsConfig

	return &http.Client{
		Timeout:       cfg.HTTPTimeout,
		Transport:     &userAgentTransport{userAgent: cfg.UserAgent, next: transport},
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}, nil
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// FetchEntity retrieves the magic envelope at endpoint.
func (c *Client) FetchEntity(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.sendHTTPRequest(ctx, http.MethodGet, endpoint, nil, "", envelope.ContentType)
	if err != nil {
		return nil, fmt.Errorf(failSendRequest, http.MethodGet, endpoint, err)
	}

	if resp.statusCode != http.StatusOK {
		return nil, fmt.Errorf(unexpectedStatusMsg, endpoint, resp.statusCode, resp.body, messages.ErrTransportFailure)
	}

	return resp.body, nil
}

// PostResult is the outcome of a POST that received a response.
type PostResult struct {
	StatusCode int
	// EffectiveURL is the URL that produced the response, after following redirects.
	EffectiveURL string
}

// Success tells whether the remote pod accepted the request.
func (r *PostResult) Success() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// PostEnvelope sends body to endpoint. An error is returned only if no response was received;
// it is then a *TransportError.
func (c *Client) PostEnvelope(ctx context.Context, endpoint, contentType string, body []byte) (*PostResult, error) {
	resp, err := c.sendHTTPRequest(ctx, http.MethodPost, endpoint, body, contentType, "")
	if err != nil {
		return nil, err
	}

	return &PostResult{StatusCode: resp.statusCode, EffectiveURL: resp.effectiveURL}, nil
}

// FetchHostMeta retrieves the host-meta document of the pod at host.
func (c *Client) FetchHostMeta(ctx context.Context, host string) (*discovery.HostMeta, error) {
	endpoint := c.scheme + "://" + host + hostMetaPath

	resp, err := c.sendHTTPRequest(ctx, http.MethodGet, endpoint, nil, "", discovery.XRDContentType)
	if err != nil {
		return nil, fmt.Errorf(failSendRequest, http.MethodGet, endpoint, err)
	}

	if resp.statusCode != http.StatusOK {
		return nil, fmt.Errorf(unexpectedStatusMsg, endpoint, resp.statusCode, resp.body, messages.ErrTransportFailure)
	}

	return discovery.ParseHostMeta(resp.body)
}

// Discover looks up the WebFinger profile of handle through the host-meta document of its pod.
func (c *Client) Discover(ctx context.Context, handle string) (*discovery.WebFinger, error) {
	at := strings.LastIndex(handle, "@")
	if at <= 0 || at == len(handle)-1 {
		return nil, fmt.Errorf("invalid handle %q: %w", handle, messages.ErrInvalidData)
	}

	hostMeta, err := c.FetchHostMeta(ctx, handle[at+1:])
	if err != nil {
		return nil, err
	}

	template, err := hostMeta.WebfingerTemplateURL()
	if err != nil {
		return nil, err
	}

	endpoint := discovery.ExpandTemplate(template, discovery.AcctURI(handle))

	resp, err := c.sendHTTPRequest(ctx, http.MethodGet, endpoint, nil, "", discovery.XRDContentType)
	if err != nil {
		return nil, fmt.Errorf(failSendRequest, http.MethodGet, endpoint, err)
	}

	if resp.statusCode != http.StatusOK {
		return nil, fmt.Errorf(unexpectedStatusMsg, endpoint, resp.statusCode, resp.body, messages.ErrTransportFailure)
	}

	var webFinger *discovery.WebFinger

	if strings.Contains(resp.header.Get("Content-Type"), "json") {
		webFinger, err = discovery.ParseWebFingerJSON(resp.body)
	} else {
		webFinger, err = discovery.ParseWebFinger(resp.body)
	}

	if err != nil {
		return nil, err
	}

	if webFinger.Handle() != handle {
		return nil, fmt.Errorf("webfinger of %s describes %s: %w", handle, webFinger.AcctURI, messages.ErrInvalidData)
	}

	return webFinger, nil
}

type response struct {
	statusCode   int
	header       http.Header
	body         []byte
	effectiveURL string
}

func (c *Client) sendHTTPRequest(ctx context.Context, method, endpoint string, body []byte,
	contentType, accept string) (*response, error) {
	req, errReq := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(body))
	if errReq != nil {
		return nil, errReq
	}

	if c.headersFunc != nil {
		httpHeaders, err := c.headersFunc(req)
		if err != nil {
			return nil, fmt.Errorf("add optional request headers error: %w", err)
		}

		if httpHeaders != nil {
			req.Header = httpHeaders.Clone()
		}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req) //nolint: bodyclose
	if err != nil {
		return nil, newTransportError(endpoint, err)
	}

	defer closeReadCloser(resp.Body)

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(resp.Request.URL.String(), err)
	}

	logger.Debugf(`sent %s request to %s response status code: %d response body: %s`, method, endpoint,
		resp.StatusCode, respBytes)

	return &response{
		statusCode:   resp.StatusCode,
		header:       resp.Header,
		body:         respBytes,
		effectiveURL: resp.Request.URL.String(),
	}, nil
}

func newTransportError(endpoint string, err error) *TransportError {
	effectiveURL := endpoint

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.URL != "" {
		effectiveURL = urlErr.URL
	}

	return &TransportError{URL: effectiveURL, Code: ErrorCode(err), Err: err}
}

// ErrorCode classifies a request failure as one of the Code constants.
func ErrorCode(err error) string {
	var (
		netErr    net.Error
		dnsErr    *net.DNSError
		unknownCA x509.UnknownAuthorityError
		invalid   x509.CertificateInvalidError
		hostname  x509.HostnameError
		recordErr tls.RecordHeaderError
		transport *TransportError
	)

	switch {
	case errors.As(err, &transport):
		return transport.Code
	case errors.Is(err, ErrTooManyRedirects):
		return CodeTooManyRedirects
	case errors.As(err, &dnsErr):
		return CodeDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused
	case errors.As(err, &unknownCA), errors.As(err, &invalid), errors.As(err, &hostname), errors.As(err, &recordErr):
		return CodeTLS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	default:
		return CodeTransport
	}
}

func redirectPolicy(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, ErrTooManyRedirects)
		}

		return nil
	}
}

type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	return t.next.RoundTrip(req)
}

func closeReadCloser(respBody io.ReadCloser) {
	err := respBody.Close()
	if err != nil {
		logger.Errorf("Failed to close response body: %s", err)
	}
}
