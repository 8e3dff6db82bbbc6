/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package support

import "net/http"

// NewHTTPHandler returns an instance of HTTPHandler which can be used to handle HTTP requests.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{path: path, method: method, handle: handle}
}

// HTTPHandler contains REST API handling details which can be used to build routers
// for HTTP requests for the given path.
type HTTPHandler struct {
	path   string
	method string
	handle http.HandlerFunc
}

// Path returns the HTTP path.
func (h *HTTPHandler) Path() string {
	return h.path
}

// Method returns the HTTP method.
func (h *HTTPHandler) Method() string {
	return h.method
}

// Handle returns the HTTP handler function.
func (h *HTTPHandler) Handle() http.HandlerFunc {
	return h.handle
}
