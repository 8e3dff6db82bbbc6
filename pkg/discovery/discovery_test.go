/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/federation/pkg/messages"
)

const testPublicKey = "-----BEGIN PUBLIC KEY-----\nMIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEA\n-----END PUBLIC KEY-----\n"

func TestDocument_RoundTrip(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	docs := map[string]*Document{
		"empty": {},
		"one of each": {
			Subject:    "acct:alice@pod.example.tld",
			Aliases:    []string{"https://pod.example.tld/people/0123456789abcdef"},
			Properties: []Property{{Type: "http://spec.example.net/version", Value: StringValue("1.0")}},
			Links:      []Link{{Rel: "lrdd", Type: XRDContentType, Template: "https://pod.example.tld/webfinger?q={uri}"}},
		},
		"many with a property without value": {
			Subject: "http://blog.example.com/article/id/314",
			Expires: &expires,
			Aliases: []string{"http://blog.example.com/cool_new_thing", "http://blog.example.com/steve/article/7"},
			Properties: []Property{
				{Type: "http://blgx.example.net/ns/version", Value: StringValue("1.3")},
				{Type: "http://blgx.example.net/ns/ext", Value: nil},
				{Type: "http://blgx.example.net/ns/author", Value: StringValue("Steve & <co>")},
			},
			Links: []Link{
				{Rel: "author", Type: "text/html", Href: "http://blog.example.com/author/steve"},
				{Rel: "author", Href: "http://example.com/author/john"},
				{Rel: "copyright", Template: "http://example.com/copyright?id={uri}"},
			},
		},
	}

	for name, doc := range docs {
		doc := doc

		t.Run(name+" XML", func(t *testing.T) {
			data, err := doc.ToXML()
			require.NoError(t, err)
			require.Contains(t, string(data), `xmlns="`+XRDNamespace+`"`)

			parsed, err := Parse(data)
			require.NoError(t, err)
			require.Equal(t, doc, parsed)
		})
		t.Run(name+" JSON", func(t *testing.T) {
			data, err := doc.ToJSON()
			require.NoError(t, err)

			parsed, err := ParseJSON(data)
			require.NoError(t, err)
			require.Equal(t, doc, parsed)
		})
	}
}

func TestParse_Lenient(t *testing.T) {
	doc, err := Parse([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <!-- Resource-specific Information -->

  <Subject>acct:alice@pod.example.tld</Subject>
  <!-- no aliases yet -->
  <Property type="http://example.com/empty"></Property>
  <Property type="http://example.com/closed"/>

  <!-- Resource-specific Links -->
  <Link rel="lrdd" type="application/xrd+xml" template="https://pod.example.tld/webfinger?q={uri}"/>
</XRD>`))
	require.NoError(t, err)
	require.Equal(t, "acct:alice@pod.example.tld", doc.Subject)
	require.Len(t, doc.Properties, 2)

	value, ok := doc.Property("http://example.com/closed")
	require.True(t, ok)
	require.Nil(t, value)

	_, ok = doc.Property("http://example.com/missing")
	require.False(t, ok)

	link, ok := doc.Link(LRDDRel)
	require.True(t, ok)
	require.Equal(t, "https://pod.example.tld/webfinger?q={uri}", link.Template)
}

func TestDocument_LossyRoundTrip(t *testing.T) {
	expires := time.Date(2026, 10, 17, 12, 30, 45, 999999999, time.FixedZone("CEST", 2*60*60))

	doc := &Document{
		Subject:    "acct:alice@pod.example.tld",
		Expires:    &expires,
		Properties: []Property{{Type: "http://example.net/empty", Value: StringValue("")}},
	}

	data, err := doc.ToXML()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	t.Run("empty property value parses back as nil", func(t *testing.T) {
		require.Equal(t, []Property{{Type: "http://example.net/empty"}}, parsed.Properties)
	})
	t.Run("expiry is kept to the second in UTC", func(t *testing.T) {
		require.NotNil(t, parsed.Expires)
		require.Equal(t, time.UTC, parsed.Expires.Location())
		require.True(t, parsed.Expires.Equal(time.Date(2026, 10, 17, 10, 30, 45, 0, time.UTC)))
	})
}

func TestParse_Failures(t *testing.T) {
	t.Run("not XML", func(t *testing.T) {
		_, err := Parse([]byte("{}"))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("link with href and template", func(t *testing.T) {
		_, err := Parse([]byte(`<XRD><Link rel="lrdd" href="https://a" template="https://b?q={uri}"/></XRD>`))
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("link with neither href nor template", func(t *testing.T) {
		_, err := Parse([]byte(`<XRD><Link rel="lrdd"/></XRD>`))
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("bad expiry", func(t *testing.T) {
		_, err := Parse([]byte(`<XRD><Expires>tomorrow</Expires></XRD>`))
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("JRD not JSON", func(t *testing.T) {
		_, err := ParseJSON([]byte("<XRD/>"))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
}

func TestDocument_SetProperty(t *testing.T) {
	doc := &Document{}
	doc.SetProperty("a", StringValue("1"))
	doc.SetProperty("b", nil)
	doc.SetProperty("a", StringValue("2"))

	require.Equal(t, []Property{{Type: "a", Value: StringValue("2")}, {Type: "b"}}, doc.Properties)
}

func TestHostMeta(t *testing.T) {
	const template = "https://pod.example.tld/webfinger?q={uri}"

	t.Run("trailing slash does not matter", func(t *testing.T) {
		withoutSlash, err := HostMetaFromBaseURL("https://pod.example.tld")
		require.NoError(t, err)

		withSlash, err := HostMetaFromBaseURL("https://pod.example.tld/")
		require.NoError(t, err)

		require.Equal(t, withoutSlash, withSlash)

		url, err := withSlash.WebfingerTemplateURL()
		require.NoError(t, err)
		require.Equal(t, template, url)
	})
	t.Run("round trip", func(t *testing.T) {
		hostMeta, err := HostMetaFromBaseURL("https://pod.example.tld")
		require.NoError(t, err)

		data, err := hostMeta.ToXML()
		require.NoError(t, err)

		parsed, err := ParseHostMeta(data)
		require.NoError(t, err)
		require.Equal(t, hostMeta.Document(), parsed.Document())

		url, err := parsed.WebfingerTemplateURL()
		require.NoError(t, err)
		require.Equal(t, template, url)
	})
	t.Run("empty base URL", func(t *testing.T) {
		_, err := HostMetaFromBaseURL("")
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("no lrdd link", func(t *testing.T) {
		hostMeta, err := ParseHostMeta([]byte(`<XRD xmlns="` + XRDNamespace + `">` +
			`<Link rel="author" href="https://pod.example.tld/about"/></XRD>`))
		require.NoError(t, err)

		_, err = hostMeta.WebfingerTemplateURL()
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("lrdd template without query", func(t *testing.T) {
		hostMeta, err := ParseHostMeta([]byte(`<XRD xmlns="` + XRDNamespace + `">` +
			`<Link rel="lrdd" template="https://pod.example.tld/webfinger/{uri}"/></XRD>`))
		require.NoError(t, err)

		_, err = hostMeta.WebfingerTemplateURL()
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("lrdd template with another parameter name", func(t *testing.T) {
		hostMeta, err := ParseHostMeta([]byte(`<XRD xmlns="` + XRDNamespace + `">` +
			`<Link rel="lrdd" template="https://pod.example.tld/webfinger?resource={uri}"/></XRD>`))
		require.NoError(t, err)

		url, err := hostMeta.WebfingerTemplateURL()
		require.ErrorIs(t, err, messages.ErrInvalidData)
		require.Empty(t, url)
	})
	t.Run("lrdd template with q among other parameters", func(t *testing.T) {
		hostMeta, err := ParseHostMeta([]byte(`<XRD xmlns="` + XRDNamespace + `">` +
			`<Link rel="lrdd" template="https://pod.example.tld/webfinger?format=xml&amp;q={uri}"/></XRD>`))
		require.NoError(t, err)

		url, err := hostMeta.WebfingerTemplateURL()
		require.NoError(t, err)
		require.Equal(t, "https://pod.example.tld/webfinger?format=xml&q=acct%3Aalice%40pod.example.tld",
			ExpandTemplate(url, "acct:alice@pod.example.tld"))
	})
}

func TestWebFinger(t *testing.T) {
	webFinger := &WebFinger{
		AcctURI:    "acct:alice@pod.example.tld",
		AliasURL:   "https://pod.example.tld/people/0123456789abcdef",
		HcardURL:   "https://pod.example.tld/hcard/users/0123456789abcdef",
		SeedURL:    "https://pod.example.tld/",
		ProfileURL: "https://pod.example.tld/u/alice",
		AtomURL:    "https://pod.example.tld/public/alice.atom",
		SalmonURL:  "https://pod.example.tld/receive/users/0123456789abcdef",
		GUID:       "0123456789abcdef",
		PublicKey:  testPublicKey,
	}

	t.Run("XML round trip", func(t *testing.T) {
		data, err := webFinger.ToXML()
		require.NoError(t, err)

		parsed, err := ParseWebFinger(data)
		require.NoError(t, err)
		require.Equal(t, webFinger, parsed)
		require.Equal(t, "alice@pod.example.tld", parsed.Handle())
	})
	t.Run("JSON round trip", func(t *testing.T) {
		data, err := webFinger.ToJSON()
		require.NoError(t, err)

		parsed, err := ParseWebFingerJSON(data)
		require.NoError(t, err)
		require.Equal(t, webFinger, parsed)
	})
	t.Run("optional links omitted", func(t *testing.T) {
		minimal := *webFinger
		minimal.ProfileURL, minimal.AtomURL, minimal.SalmonURL = "", "", ""

		doc, err := minimal.ToDocument()
		require.NoError(t, err)
		require.Len(t, doc.Links, 4)

		_, ok := doc.Link(RelSalmon)
		require.False(t, ok)
	})
	t.Run("missing public key", func(t *testing.T) {
		incomplete := *webFinger
		incomplete.PublicKey = ""

		_, err := incomplete.ToXML()
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("public key not base64", func(t *testing.T) {
		_, err := WebFingerFromDocument(&Document{
			Subject: "acct:alice@pod.example.tld",
			Links:   []Link{{Rel: RelPublicKey, Href: "%%%"}},
		})
		require.ErrorIs(t, err, messages.ErrInvalidData)
	})
	t.Run("acct URI", func(t *testing.T) {
		require.Equal(t, "acct:alice@pod.example.tld", AcctURI("alice@pod.example.tld"))
		require.Equal(t, "acct:alice@pod.example.tld", AcctURI("acct:alice@pod.example.tld"))
	})
}
