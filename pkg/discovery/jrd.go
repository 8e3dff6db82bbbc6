/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trustbloc/federation/pkg/messages"
)

type jrd struct {
	Subject    string        `json:"subject,omitempty"`
	Expires    string        `json:"expires,omitempty"`
	Aliases    []string      `json:"aliases,omitempty"`
	Properties jrdProperties `json:"properties,omitempty"`
	Links      []jrdLink     `json:"links,omitempty"`
}

type jrdLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// jrdProperties is a JSON object that keeps the order of its members.
type jrdProperties []Property

func (p jrdProperties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(prop.Type)
		if err != nil {
			return nil, err
		}

		value, err := json.Marshal(prop.Value)
		if err != nil {
			return nil, err
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (p *jrdProperties) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}

	if token == nil {
		*p = nil

		return nil
	}

	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be an object")
	}

	var props jrdProperties

	for decoder.More() {
		token, err = decoder.Token()
		if err != nil {
			return err
		}

		key, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected property key %v", token)
		}

		var value *string

		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}

		props = append(props, Property{Type: key, Value: value})
	}

	*p = props

	return nil
}

// ToJSON renders the document as JRD.
func (d *Document) ToJSON() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := jrd{Subject: d.Subject, Aliases: d.Aliases, Properties: d.Properties}

	if d.Expires != nil {
		out.Expires = d.Expires.UTC().Format(time.RFC3339)
	}

	for _, l := range d.Links {
		out.Links = append(out.Links, jrdLink(l))
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JRD: %w", err)
	}

	return data, nil
}

// ParseJSON reads a JRD document.
func ParseJSON(data []byte) (*Document, error) {
	var in jrd

	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse JRD: %s: %w", err, messages.ErrMalformedDocument)
	}

	doc := &Document{Subject: in.Subject, Aliases: in.Aliases, Properties: in.Properties}

	if in.Expires != "" {
		t, err := time.Parse(time.RFC3339, in.Expires)
		if err != nil {
			return nil, fmt.Errorf("invalid JRD expiry %q: %w", in.Expires, messages.ErrInvalidData)
		}

		doc.Expires = &t
	}

	for _, l := range in.Links {
		doc.Links = append(doc.Links, Link(l))
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}
