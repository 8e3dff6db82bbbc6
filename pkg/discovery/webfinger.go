/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discovery

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/trustbloc/federation/pkg/messages"
)

// Link relations of a WebFinger document.
const (
	RelHcard        = "http://microformats.org/profile/hcard"
	RelSeedLocation = "http://joindiaspora.com/seed_location"
	RelGUID         = "http://joindiaspora.com/guid"
	RelProfilePage  = "http://webfinger.net/rel/profile-page"
	RelAtom         = "http://schemas.google.com/g/2010#updates-from"
	RelSalmon       = "salmon"
	RelPublicKey    = "diaspora-public-key"

	acctScheme = "acct:"
	htmlType   = "text/html"
	atomType   = "application/atom+xml"
	keyType    = "RSA"
)

// WebFinger is the federation profile of one person.
type WebFinger struct {
	// AcctURI is the acct: URI of the person.
	AcctURI    string
	AliasURL   string
	HcardURL   string
	SeedURL    string
	ProfileURL string
	AtomURL    string
	SalmonURL  string
	GUID       string
	// PublicKey is the PEM encoded public key of the person.
	PublicKey string
}

// Handle returns the federation handle of the AcctURI.
func (w *WebFinger) Handle() string {
	return strings.TrimPrefix(w.AcctURI, acctScheme)
}

// AcctURI returns the acct: URI of a federation handle.
func AcctURI(handle string) string {
	if strings.HasPrefix(handle, acctScheme) {
		return handle
	}

	return acctScheme + handle
}

// ToDocument maps the WebFinger fields to a discovery document.
func (w *WebFinger) ToDocument() (*Document, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	doc := &Document{Subject: AcctURI(w.AcctURI)}

	if w.AliasURL != "" {
		doc.Aliases = []string{w.AliasURL}
	}

	doc.Links = append(doc.Links,
		Link{Rel: RelHcard, Type: htmlType, Href: w.HcardURL},
		Link{Rel: RelSeedLocation, Type: htmlType, Href: w.SeedURL},
		Link{Rel: RelGUID, Type: htmlType, Href: w.GUID},
	)

	if w.ProfileURL != "" {
		doc.Links = append(doc.Links, Link{Rel: RelProfilePage, Type: htmlType, Href: w.ProfileURL})
	}

	if w.AtomURL != "" {
		doc.Links = append(doc.Links, Link{Rel: RelAtom, Type: atomType, Href: w.AtomURL})
	}

	if w.SalmonURL != "" {
		doc.Links = append(doc.Links, Link{Rel: RelSalmon, Href: w.SalmonURL})
	}

	doc.Links = append(doc.Links, Link{
		Rel:  RelPublicKey,
		Type: keyType,
		Href: base64.StdEncoding.EncodeToString([]byte(w.PublicKey)),
	})

	return doc, nil
}

// ToXML renders the WebFinger document as XRD.
func (w *WebFinger) ToXML() ([]byte, error) {
	doc, err := w.ToDocument()
	if err != nil {
		return nil, err
	}

	return doc.ToXML()
}

// ToJSON renders the WebFinger document as JRD.
func (w *WebFinger) ToJSON() ([]byte, error) {
	doc, err := w.ToDocument()
	if err != nil {
		return nil, err
	}

	return doc.ToJSON()
}

// WebFingerFromDocument reads the WebFinger fields from a discovery document.
func WebFingerFromDocument(doc *Document) (*WebFinger, error) {
	w := &WebFinger{AcctURI: doc.Subject}

	if len(doc.Aliases) > 0 {
		w.AliasURL = doc.Aliases[0]
	}

	hrefs := map[string]*string{
		RelHcard:        &w.HcardURL,
		RelSeedLocation: &w.SeedURL,
		RelGUID:         &w.GUID,
		RelProfilePage:  &w.ProfileURL,
		RelAtom:         &w.AtomURL,
		RelSalmon:       &w.SalmonURL,
	}

	for _, l := range doc.Links {
		if field, ok := hrefs[l.Rel]; ok && *field == "" {
			*field = l.Href
		}

		if l.Rel == RelPublicKey && w.PublicKey == "" {
			pem, err := base64.StdEncoding.DecodeString(l.Href)
			if err != nil {
				return nil, fmt.Errorf("public key is not base64: %s: %w", err, messages.ErrInvalidData)
			}

			w.PublicKey = string(pem)
		}
	}

	if err := w.validate(); err != nil {
		return nil, err
	}

	return w, nil
}

// ParseWebFinger reads a WebFinger document in XRD form.
func ParseWebFinger(data []byte) (*WebFinger, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return WebFingerFromDocument(doc)
}

// ParseWebFingerJSON reads a WebFinger document in JRD form.
func ParseWebFingerJSON(data []byte) (*WebFinger, error) {
	doc, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}

	return WebFingerFromDocument(doc)
}

func (w *WebFinger) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"acct URI", w.AcctURI},
		{"hcard URL", w.HcardURL},
		{"seed URL", w.SeedURL},
		{"guid", w.GUID},
		{"public key", w.PublicKey},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("webfinger has no %s: %w", r.name, messages.ErrInvalidData)
		}
	}

	return nil
}
