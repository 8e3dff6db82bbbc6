/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/federation/pkg/discovery"
	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/envelope"
	"github.com/trustbloc/federation/pkg/host"
	"github.com/trustbloc/federation/pkg/internal/common/support"
	"github.com/trustbloc/federation/pkg/messages"
)

const (
	logModuleName = "restapi"

	typePathVariable = "type"
	guidPathVariable = "guid"

	fetchEndpoint          = "/fetch/{" + typePathVariable + "}/{" + guidPathVariable + "}"
	receivePublicEndpoint  = "/receive/public"
	receivePrivateEndpoint = "/receive/users/{" + guidPathVariable + "}"
	hostMetaEndpoint       = "/.well-known/host-meta"
	webFingerJRDEndpoint   = "/.well-known/webfinger"
	webFingerXRDEndpoint   = "/webfinger"
	metricsEndpoint        = "/metrics"
	logLevelsEndpoint      = "/loglevels"

	payloadFormField = "xml"
	formContentType  = "application/x-www-form-urlencoded"

	// Larger bodies are cut off; an envelope this size is not a federation message.
	maxPayloadSize = 10 << 20
)

var logger = log.New(logModuleName)

// logModules are the modules listed by the log level endpoint.
var logModules = []string{ //nolint: gochecknoglobals
	logModuleName,
	"federation-rest",
	"federation-receiver",
	"federation-delivery",
	"federation-resolver",
	"federation-storehost",
	"federation-client",
}

// Handler represents an HTTP handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// Config defines configuration for the federation operations.
type Config struct {
	Host host.Host
	// Codec signs the envelopes served by the fetch endpoint.
	Codec *envelope.Codec
	// ServerURL is the public base URL of this pod, announced in host-meta.
	ServerURL string
	// Gatherer is exposed on the metrics endpoint. Defaults to the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Operation defines handler logic for the federation endpoints.
type Operation struct {
	handlers  []Handler
	host      host.Host
	codec     *envelope.Codec
	serverURL string
	metrics   http.Handler
}

type logSpec struct {
	Spec string `json:"spec"`
}

// New returns a new federation operations instance.
func New(config *Config) *Operation {
	codec := config.Codec
	if codec == nil {
		codec = envelope.NewCodec(entity.DefaultRegistry())
	}

	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	svc := &Operation{
		host:      config.Host,
		codec:     codec,
		serverURL: config.ServerURL,
		metrics:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}

	svc.registerHandler()

	return svc
}

// registerHandler register handlers to be exposed from this service as REST API endpoints.
func (c *Operation) registerHandler() {
	c.handlers = []Handler{
		support.NewHTTPHandler(fetchEndpoint, http.MethodGet, c.fetchEntityHandler),
		support.NewHTTPHandler(receivePublicEndpoint, http.MethodPost, c.receivePublicHandler),
		support.NewHTTPHandler(receivePrivateEndpoint, http.MethodPost, c.receivePrivateHandler),
		support.NewHTTPHandler(hostMetaEndpoint, http.MethodGet, c.hostMetaHandler),
		support.NewHTTPHandler(webFingerJRDEndpoint, http.MethodGet, c.webFingerJRDHandler),
		support.NewHTTPHandler(webFingerXRDEndpoint, http.MethodGet, c.webFingerXRDHandler),
		support.NewHTTPHandler(metricsEndpoint, http.MethodGet, c.metrics.ServeHTTP),
		support.NewHTTPHandler(logLevelsEndpoint, http.MethodPut, c.changeLogSpecHandler),
		support.NewHTTPHandler(logLevelsEndpoint, http.MethodGet, c.getLogSpecHandler),
	}
}

// GetRESTHandlers gets all controller API handler available for this service.
func (c *Operation) GetRESTHandlers() []Handler {
	return c.handlers
}

// Fetch Entity swagger:route GET /fetch/{type}/{guid} fetchEntityReq
//
// Returns a public entity as a magic envelope signed by its local author, or redirects to the author's pod.
//
// Responses:
//    default: genericError
//        200: fetchEntityRes
//        302: fetchEntityRedirectRes
func (c *Operation) fetchEntityHandler(rw http.ResponseWriter, req *http.Request) {
	typeName, ok := unescapePathVar(typePathVariable, mux.Vars(req), rw)
	if !ok {
		return
	}

	guid, ok := unescapePathVar(guidPathVariable, mux.Vars(req), rw)
	if !ok {
		return
	}

	kind, known := c.codec.Registry().Resolve(typeName)
	if !known {
		writeFetchEntityFailure(rw, http.StatusNotFound, typeName, guid,
			fmt.Errorf("unknown entity type: %w", messages.ErrEntityNotFound))

		return
	}

	e, err := c.host.FetchPublicEntity(kind, guid)
	if err != nil {
		writeFetchEntityFailure(rw, statusOf(err), kind, guid, err)

		return
	}

	key, err := c.host.FetchPrivateKeyByHandle(e.Author())
	if err != nil {
		writeFetchEntityFailure(rw, http.StatusInternalServerError, kind, guid, err)

		return
	}

	if key == nil {
		location, errResolve := c.host.ResolveFetchURL(e.Author(), req.URL.Path)
		if errResolve != nil {
			writeFetchEntityFailure(rw, http.StatusNotFound, kind, guid, errResolve)

			return
		}

		writeFetchEntityRedirect(rw, req, kind, guid, location)

		return
	}

	envelopeBytes, err := c.codec.Envelop(e, key)
	if err != nil {
		writeFetchEntityFailure(rw, http.StatusInternalServerError, kind, guid, err)

		return
	}

	writeFetchEntitySuccess(rw, kind, guid, envelopeBytes)
}

// Receive Public swagger:route POST /receive/public receivePublicReq
//
// Queues a public magic envelope for receiving.
//
// Responses:
//    default: genericError
//        202: receiveRes
func (c *Operation) receivePublicHandler(rw http.ResponseWriter, req *http.Request) {
	payload, ok := readPayload(rw, req)
	if !ok {
		return
	}

	if err := c.host.QueuePublicReceive(payload); err != nil {
		writeReceiveQueueFailure(rw, err, payload)

		return
	}

	writeReceiveAccepted(rw, messages.ReceivePublicAccepted, payload)
}

// Receive Private swagger:route POST /receive/users/{guid} receivePrivateReq
//
// Queues an encrypted envelope for the local person with the given GUID.
//
// Responses:
//    default: genericError
//        202: receiveRes
//        404: genericError
func (c *Operation) receivePrivateHandler(rw http.ResponseWriter, req *http.Request) {
	guid, ok := unescapePathVar(guidPathVariable, mux.Vars(req), rw)
	if !ok {
		return
	}

	payload, ok := readPayload(rw, req)
	if !ok {
		return
	}

	queued, err := c.host.QueuePrivateReceive(guid, payload)
	if err != nil {
		writeReceiveQueueFailure(rw, err, payload)

		return
	}

	if !queued {
		writeReceiveUnknownRecipient(rw, guid)

		return
	}

	writeReceiveAccepted(rw, fmt.Sprintf(messages.ReceivePrivateAccepted, guid), payload)
}

// Host Meta swagger:route GET /.well-known/host-meta hostMetaReq
//
// Returns the host-meta document of this pod.
//
// Responses:
//    default: genericError
//        200: discoveryRes
func (c *Operation) hostMetaHandler(rw http.ResponseWriter, _ *http.Request) {
	hostMeta, err := discovery.HostMetaFromBaseURL(c.serverURL)
	if err != nil {
		writeDiscoveryRenderFailure(rw, err)

		return
	}

	doc, err := hostMeta.ToXML()
	if err != nil {
		writeDiscoveryRenderFailure(rw, err)

		return
	}

	writeDiscoveryDocument(rw, discovery.XRDContentType, doc)
}

// WebFinger swagger:route GET /.well-known/webfinger webFingerJRDReq
//
// Returns the WebFinger profile of a local person as a JRD document.
//
// Responses:
//    default: genericError
//        200: discoveryRes
//        404: genericError
func (c *Operation) webFingerJRDHandler(rw http.ResponseWriter, req *http.Request) {
	wf, ok := c.lookupPerson(rw, req.URL.Query().Get("resource"))
	if !ok {
		return
	}

	doc, err := wf.ToJSON()
	if err != nil {
		writeDiscoveryRenderFailure(rw, err)

		return
	}

	writeDiscoveryDocument(rw, discovery.JRDContentType, doc)
}

// Legacy WebFinger swagger:route GET /webfinger webFingerXRDReq
//
// Returns the WebFinger profile of a local person as an XRD document.
//
// Responses:
//    default: genericError
//        200: discoveryRes
//        404: genericError
func (c *Operation) webFingerXRDHandler(rw http.ResponseWriter, req *http.Request) {
	wf, ok := c.lookupPerson(rw, req.URL.Query().Get("q"))
	if !ok {
		return
	}

	doc, err := wf.ToXML()
	if err != nil {
		writeDiscoveryRenderFailure(rw, err)

		return
	}

	writeDiscoveryDocument(rw, discovery.XRDContentType, doc)
}

func (c *Operation) lookupPerson(rw http.ResponseWriter, resource string) (*discovery.WebFinger, bool) {
	if resource == "" {
		writeWebFingerMissingResource(rw)

		return nil, false
	}

	wf, err := c.host.LocalPerson(resource)
	if err != nil {
		writeDiscoveryRenderFailure(rw, err)

		return nil, false
	}

	if wf == nil {
		writeWebFingerUnknownPerson(rw, resource)

		return nil, false
	}

	return wf, true
}

// Change Log Spec swagger:route PUT /loglevels changeLogSpecReq
//
// Changes the current log specification.
// Format: ModuleName1=Level1:ModuleName2=Level2:ModuleNameN=LevelN:AllOtherModuleDefaultLevel
// Valid log levels: critical,error,warn,info,debug
//
// Responses:
//    default: genericError
//        200: changeLogSpecRes
func (c *Operation) changeLogSpecHandler(rw http.ResponseWriter, req *http.Request) {
	requestBody, err := io.ReadAll(req.Body)
	if err != nil {
		writePutLogSpecRequestReadFailure(rw, err)

		return
	}

	var incoming logSpec

	if err := json.Unmarshal(requestBody, &incoming); err != nil {
		writeInvalidLogSpec(rw, err, requestBody)

		return
	}

	if err := setLogSpec(incoming.Spec); err != nil {
		writeInvalidLogSpec(rw, err, requestBody)

		return
	}

	writePutLogSpecSuccess(rw, requestBody)
}

// Get Log Spec swagger:route GET /loglevels getLogSpecReq
//
// Gets the current log specification.
//
// Responses:
//    default: genericError
//        200: getLogSpecRes
func (c *Operation) getLogSpecHandler(rw http.ResponseWriter, _ *http.Request) {
	var spec strings.Builder

	for _, module := range logModules {
		spec.WriteString(module + "=" + log.ParseString(log.GetLevel(module)) + ":")
	}

	spec.WriteString(log.ParseString(log.GetLevel("")))

	writeGetLogSpecSuccess(rw, spec.String())
}

// setLogSpec applies a spec of the form module1=level1:module2=level2:defaultLevel.
// Nothing is changed if any part of the spec is invalid.
func setLogSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return errors.New("log spec is empty")
	}

	levels := make(map[string]log.Level)
	defaultSet := false

	for _, part := range strings.Split(spec, ":") {
		module, levelName, hasModule := strings.Cut(part, "=")
		if !hasModule {
			if defaultSet {
				return errors.New("multiple default log levels found")
			}

			levelName, module, defaultSet = module, "", true
		}

		level, err := log.ParseLevel(levelName)
		if err != nil {
			return err
		}

		levels[module] = level
	}

	for module, level := range levels {
		log.SetLevel(module, level)
	}

	return nil
}

// readPayload returns the envelope of a receive request. The envelope is sent either as the URL-escaped
// form field "xml" or as the raw request body.
func readPayload(rw http.ResponseWriter, req *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxPayloadSize))
	if err != nil {
		writeReceiveRequestReadFailure(rw, err)

		return nil, false
	}

	payload := body

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type")) //nolint: errcheck
	if mediaType == formContentType {
		values, errParse := url.ParseQuery(string(body))
		if errParse != nil {
			writeReceiveMissingPayload(rw)

			return nil, false
		}

		payload = []byte(values.Get(payloadFormField))
	}

	if len(strings.TrimSpace(string(payload))) == 0 {
		writeReceiveMissingPayload(rw)

		return nil, false
	}

	return payload, true
}

func statusOf(err error) int {
	if errors.Is(err, messages.ErrEntityNotFound) {
		return http.StatusNotFound
	}

	return http.StatusInternalServerError
}
