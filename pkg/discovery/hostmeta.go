/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discovery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/trustbloc/federation/pkg/messages"
)

const (
	// LRDDRel is the relation of the link to the WebFinger endpoint in host-meta.
	LRDDRel = "lrdd"

	uriPlaceholder      = "{uri}"
	webfingerQueryParam = "q"
)

// HostMeta is the host-meta document of a pod. It carries a single lrdd link whose template
// points to the pod's WebFinger endpoint.
type HostMeta struct {
	doc *Document
}

// HostMetaFromBaseURL builds the host-meta document of the pod at baseURL.
func HostMetaFromBaseURL(baseURL string) (*HostMeta, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("host-meta needs a base URL: %w", messages.ErrInvalidData)
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %s: %w", baseURL, err, messages.ErrInvalidData)
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &HostMeta{doc: &Document{
		Links: []Link{{
			Rel:      LRDDRel,
			Type:     XRDContentType,
			Template: baseURL + "webfinger?q=" + uriPlaceholder,
		}},
	}}, nil
}

// ParseHostMeta reads a host-meta document.
func ParseHostMeta(data []byte) (*HostMeta, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return &HostMeta{doc: doc}, nil
}

// Document returns the underlying discovery document.
func (h *HostMeta) Document() *Document {
	return h.doc
}

// ToXML renders the host-meta document.
func (h *HostMeta) ToXML() ([]byte, error) {
	return h.doc.ToXML()
}

// WebfingerTemplateURL returns the WebFinger URL template of the lrdd link. The template must have a query
// parameter carrying the {uri} placeholder.
func (h *HostMeta) WebfingerTemplateURL() (string, error) {
	var template string

	for _, l := range h.doc.Links {
		if l.Rel == LRDDRel && l.Template != "" {
			template = l.Template

			break
		}
	}

	if template == "" {
		return "", fmt.Errorf("host-meta has no lrdd template: %w", messages.ErrInvalidData)
	}

	u, err := url.Parse(template)
	if err != nil {
		return "", fmt.Errorf("invalid lrdd template %q: %s: %w", template, err, messages.ErrInvalidData)
	}

	if !strings.Contains(u.Query().Get(webfingerQueryParam), uriPlaceholder) {
		return "", fmt.Errorf("lrdd template %q has no %s=%s query parameter: %w", template, webfingerQueryParam,
			uriPlaceholder, messages.ErrInvalidData)
	}

	return template, nil
}

// ExpandTemplate substitutes the query-escaped uri into a WebFinger URL template.
func ExpandTemplate(template, uri string) string {
	return strings.ReplaceAll(template, uriPlaceholder, url.QueryEscape(uri))
}
