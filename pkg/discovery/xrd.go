/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package discovery implements the XRD discovery document and the host-meta and WebFinger documents
// built on it, in both the XML (XRD) and JSON (JRD) forms.
package discovery

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/trustbloc/federation/pkg/messages"
)

const (
	// XRDNamespace is the XML namespace of XRD documents.
	XRDNamespace = "http://docs.oasis-open.org/ns/xri/xrd-1.0"
	// XRDContentType is the content type of XRD documents.
	XRDContentType = "application/xrd+xml"
	// JRDContentType is the content type of JRD documents.
	JRDContentType = "application/jrd+json"
)

// Property is a typed property of a document. A nil Value is a property without a value.
// An empty Value is written as an empty element and parses back as nil.
type Property struct {
	Type  string
	Value *string
}

// Link is a link descriptor. Exactly one of Href and Template is set.
type Link struct {
	Rel      string
	Type     string
	Href     string
	Template string
}

// Document is a generic XRD discovery document. Aliases, properties and links keep insertion order.
// Expires is written in UTC with second precision.
type Document struct {
	Subject    string
	Expires    *time.Time
	Aliases    []string
	Properties []Property
	Links      []Link
}

// StringValue is a helper that returns a pointer to s, for building property values.
func StringValue(s string) *string {
	return &s
}

// SetProperty sets the value of the property typ. An existing property keeps its position.
func (d *Document) SetProperty(typ string, value *string) {
	for i := range d.Properties {
		if d.Properties[i].Type == typ {
			d.Properties[i].Value = value

			return
		}
	}

	d.Properties = append(d.Properties, Property{Type: typ, Value: value})
}

// Property returns the value of the property typ and whether the property is present.
func (d *Document) Property(typ string) (*string, bool) {
	for _, p := range d.Properties {
		if p.Type == typ {
			return p.Value, true
		}
	}

	return nil, false
}

// Link returns the first link with relation rel.
func (d *Document) Link(rel string) (Link, bool) {
	for _, l := range d.Links {
		if l.Rel == rel {
			return l, true
		}
	}

	return Link{}, false
}

// Validate checks that every link has exactly one of href and template.
func (d *Document) Validate() error {
	for _, l := range d.Links {
		if l.Rel == "" {
			return fmt.Errorf("link without rel: %w", messages.ErrInvalidData)
		}

		if (l.Href == "") == (l.Template == "") {
			return fmt.Errorf("link %q must have exactly one of href and template: %w", l.Rel, messages.ErrInvalidData)
		}
	}

	return nil
}

type xrdOut struct {
	XMLName    xml.Name      `xml:"XRD"`
	XMLNS      string        `xml:"xmlns,attr"`
	Subject    string        `xml:"Subject,omitempty"`
	Expires    string        `xml:"Expires,omitempty"`
	Aliases    []string      `xml:"Alias"`
	Properties []propertyXML `xml:"Property"`
	Links      []linkXML     `xml:"Link"`
}

// xrdIn matches on local names; historic producers are not consistent about namespaces.
type xrdIn struct {
	XMLName    xml.Name      `xml:"XRD"`
	Subject    string        `xml:"Subject"`
	Expires    string        `xml:"Expires"`
	Aliases    []string      `xml:"Alias"`
	Properties []propertyXML `xml:"Property"`
	Links      []linkXML     `xml:"Link"`
}

type propertyXML struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type linkXML struct {
	Rel      string `xml:"rel,attr"`
	Type     string `xml:"type,attr,omitempty"`
	Href     string `xml:"href,attr,omitempty"`
	Template string `xml:"template,attr,omitempty"`
}

// ToXML renders the document as XRD.
func (d *Document) ToXML() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := xrdOut{XMLNS: XRDNamespace, Subject: d.Subject, Aliases: d.Aliases}

	if d.Expires != nil {
		out.Expires = d.Expires.UTC().Format(time.RFC3339)
	}

	for _, p := range d.Properties {
		prop := propertyXML{Type: p.Type}
		if p.Value != nil {
			prop.Value = *p.Value
		}

		out.Properties = append(out.Properties, prop)
	}

	for _, l := range d.Links {
		out.Links = append(out.Links, linkXML(l))
	}

	data, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal XRD: %w", err)
	}

	return append([]byte(xml.Header), data...), nil
}

// Parse reads an XRD document. Comments and whitespace between elements are ignored. A property element
// without text is read as a property without a value.
func Parse(data []byte) (*Document, error) {
	var in xrdIn

	if err := xml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse XRD: %s: %w", err, messages.ErrMalformedDocument)
	}

	doc := &Document{Subject: strings.TrimSpace(in.Subject)}

	if expires := strings.TrimSpace(in.Expires); expires != "" {
		t, err := time.Parse(time.RFC3339, expires)
		if err != nil {
			return nil, fmt.Errorf("invalid XRD expiry %q: %w", expires, messages.ErrInvalidData)
		}

		doc.Expires = &t
	}

	for _, alias := range in.Aliases {
		doc.Aliases = append(doc.Aliases, strings.TrimSpace(alias))
	}

	for _, p := range in.Properties {
		prop := Property{Type: p.Type}
		if p.Value != "" {
			prop.Value = StringValue(p.Value)
		}

		doc.Properties = append(doc.Properties, prop)
	}

	for _, l := range in.Links {
		doc.Links = append(doc.Links, Link(l))
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}
