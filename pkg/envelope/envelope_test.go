/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package envelope

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/federation/pkg/entity"
	"github.com/trustbloc/federation/pkg/messages"
	"github.com/trustbloc/federation/pkg/signature"
)

const (
	testAuthor    = "alice@pod.example.tld"
	testRecipient = "bob@other.example.tld"
)

var (
	aliceKey = mustGenerateKey() //nolint: gochecknoglobals
	bobKey   = mustGenerateKey() //nolint: gochecknoglobals
	eveKey   = mustGenerateKey() //nolint: gochecknoglobals
)

func mustGenerateKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	return key
}

func testPost() *entity.StatusMessage {
	return &entity.StatusMessage{
		Handle:    testAuthor,
		ID:        entity.NewGUID(),
		CreatedAt: time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC),
		Public:    true,
		Text:      "federation & friends <3",
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(entity.DefaultRegistry())

	t.Run("generic entity", func(t *testing.T) {
		post := testPost()

		data, err := codec.Envelop(post, aliceKey)
		require.NoError(t, err)
		require.Contains(t, string(data), `xmlns:me="`+Namespace+`"`)

		env, err := codec.Unenvelop(data, &aliceKey.PublicKey)
		require.NoError(t, err)
		require.Equal(t, testAuthor, env.Author)
		require.Equal(t, signature.RSASHA256, env.Algorithm)
		require.Equal(t, post.ID, env.Entity.GUID())
		require.Equal(t, post.Text, env.Entity.(*entity.StatusMessage).Text)
	})
	t.Run("signable entity", func(t *testing.T) {
		migration := &entity.AccountMigration{OldIdentity: testAuthor, NewIdentity: "alice@new.example.tld"}

		data, err := codec.Envelop(migration, aliceKey)
		require.NoError(t, err)

		env, err := codec.Unenvelop(data, &aliceKey.PublicKey)
		require.NoError(t, err)
		require.Equal(t, migration.SignatureDescriptor(), env.Entity.(*entity.AccountMigration).SignatureDescriptor())
		require.Equal(t, migration.GUID(), env.Entity.GUID())
	})
	t.Run("parse without key defers verification", func(t *testing.T) {
		data, err := codec.Envelop(testPost(), aliceKey)
		require.NoError(t, err)

		env, err := codec.Unenvelop(data, nil)
		require.NoError(t, err)
		require.NoError(t, env.Verify(&aliceKey.PublicKey))
		require.ErrorIs(t, env.Verify(nil), messages.ErrKeyNotFound)
	})
	t.Run("SHA-512", func(t *testing.T) {
		codec512 := NewCodec(entity.DefaultRegistry(), WithAlgorithm(signature.RSASHA512))

		data, err := codec512.Envelop(testPost(), aliceKey)
		require.NoError(t, err)

		env, err := codec.Unenvelop(data, &aliceKey.PublicKey)
		require.NoError(t, err)
		require.Equal(t, signature.RSASHA512, env.Algorithm)
	})
}

func TestCodec_SignatureInvalid(t *testing.T) {
	codec := NewCodec(entity.DefaultRegistry())

	t.Run("different public key", func(t *testing.T) {
		data, err := codec.Envelop(testPost(), aliceKey)
		require.NoError(t, err)

		_, err = codec.Unenvelop(data, &eveKey.PublicKey)
		require.ErrorIs(t, err, messages.ErrSignatureInvalid)
	})
	t.Run("altered descriptor", func(t *testing.T) {
		migration := &entity.AccountMigration{OldIdentity: testAuthor, NewIdentity: "alice@new.example.tld"}

		data, err := codec.Envelop(migration, aliceKey)
		require.NoError(t, err)

		env, err := codec.Parse(data)
		require.NoError(t, err)

		env.Entity.(*entity.AccountMigration).NewIdentity = "alice@evil.example.tld"
		require.ErrorIs(t, env.Verify(&aliceKey.PublicKey), messages.ErrSignatureInvalid)
	})
	t.Run("altered payload", func(t *testing.T) {
		post := testPost()

		data, err := codec.Envelop(post, aliceKey)
		require.NoError(t, err)

		tampered := *post
		tampered.Text = "federation & enemies"

		payload, err := entity.DefaultRegistry().Marshal(&tampered)
		require.NoError(t, err)

		data = replaceData(t, data, base64.URLEncoding.EncodeToString(payload))

		_, err = codec.Unenvelop(data, &aliceKey.PublicKey)
		require.ErrorIs(t, err, messages.ErrSignatureInvalid)
	})
	t.Run("signer is not the author", func(t *testing.T) {
		post := testPost()
		post.Handle = testRecipient

		data, err := codec.Envelop(post, eveKey)
		require.NoError(t, err)

		env, err := codec.Parse(data)
		require.NoError(t, err)

		env.Author = "eve@evil.example.tld"
		require.ErrorIs(t, env.Verify(&eveKey.PublicKey), messages.ErrSignatureInvalid)
	})
}

func TestCodec_Malformed(t *testing.T) {
	codec := NewCodec(entity.DefaultRegistry())

	for name, doc := range map[string]string{
		"not xml":           "this is not xml",
		"wrong root":        `<foo/>`,
		"missing payload":   `<me:env xmlns:me="` + Namespace + `"><me:alg>RSA-SHA256</me:alg><me:sig key_id="YQ==">c2ln</me:sig></me:env>`,
		"missing signature": `<me:env xmlns:me="` + Namespace + `"><me:data>PGEvPg==</me:data><me:alg>RSA-SHA256</me:alg></me:env>`,
		"missing author":    `<me:env xmlns:me="` + Namespace + `"><me:data>PGEvPg==</me:data><me:alg>RSA-SHA256</me:alg><me:sig>c2ln</me:sig></me:env>`,
		"bad algorithm":     `<me:env xmlns:me="` + Namespace + `"><me:data>PGEvPg==</me:data><me:alg>ROT13</me:alg><me:sig key_id="YQ==">c2ln</me:sig></me:env>`,
		"bad payload":       `<me:env xmlns:me="` + Namespace + `"><me:data>***</me:data><me:alg>RSA-SHA256</me:alg><me:sig key_id="YQ==">c2ln</me:sig></me:env>`,
		"unknown entity":    `<me:env xmlns:me="` + Namespace + `"><me:data>PGEvPg==</me:data><me:alg>RSA-SHA256</me:alg><me:sig key_id="YQ==">c2ln</me:sig></me:env>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Unenvelop([]byte(doc), &aliceKey.PublicKey)
			require.ErrorIs(t, err, messages.ErrMalformedDocument)
		})
	}
}

func TestCodec_LegacyAlgorithm(t *testing.T) {
	data, err := NewCodec(entity.DefaultRegistry()).Envelop(testPost(), aliceKey)
	require.NoError(t, err)

	legacy := bytes.Replace(data, []byte("<me:alg>RSA-SHA256</me:alg>"), nil, 1)
	require.NotEqual(t, data, legacy)

	t.Run("no fallback configured", func(t *testing.T) {
		_, err := NewCodec(entity.DefaultRegistry()).Unenvelop(legacy, &aliceKey.PublicKey)
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("fallback configured", func(t *testing.T) {
		codec := NewCodec(entity.DefaultRegistry(), WithLegacyAlgorithm(signature.RSASHA256))

		env, err := codec.Unenvelop(legacy, &aliceKey.PublicKey)
		require.NoError(t, err)
		require.Equal(t, signature.RSASHA256, env.Algorithm)
	})
	t.Run("foreign prefix and decorative whitespace", func(t *testing.T) {
		relabeled := strings.NewReplacer("me:", "magic:", "xmlns:me", "xmlns:magic").Replace(string(data))
		relabeled = strings.Replace(relabeled, "<magic:data", "\n  <!-- payload -->\n  <magic:data", 1)

		env, err := NewCodec(entity.DefaultRegistry()).Unenvelop([]byte(relabeled), &aliceKey.PublicKey)
		require.NoError(t, err)
		require.Equal(t, testAuthor, env.Author)
	})
}

func TestEncryptedCodec_RoundTrip(t *testing.T) {
	codec := NewEncryptedCodec(NewCodec(entity.DefaultRegistry()))
	post := testPost()

	data, err := codec.Envelop(post, aliceKey, &bobKey.PublicKey)
	require.NoError(t, err)
	require.NotContains(t, string(data), post.Text)

	env, err := codec.Unenvelop(data, bobKey)
	require.NoError(t, err)
	require.Equal(t, testAuthor, env.Author)
	require.NoError(t, env.Verify(&aliceKey.PublicKey))
	require.Equal(t, post.ID, env.Entity.GUID())

	t.Run("wrong recipient key", func(t *testing.T) {
		_, err := codec.Unenvelop(data, eveKey)
		require.ErrorIs(t, err, messages.ErrDecryptionFailed)
	})
	t.Run("no recipient key", func(t *testing.T) {
		_, err := codec.Unenvelop(data, nil)
		require.ErrorIs(t, err, messages.ErrKeyNotFound)
	})
	t.Run("no recipient public key", func(t *testing.T) {
		_, err := codec.Envelop(post, aliceKey, nil)
		require.ErrorIs(t, err, messages.ErrKeyNotFound)
	})
	t.Run("corrupted ciphertext", func(t *testing.T) {
		var env encryptedEnvelope
		require.NoError(t, xml.Unmarshal(data, &env))

		ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
		require.NoError(t, err)

		ciphertext[len(ciphertext)/2] ^= 0xff
		env.Ciphertext = base64.StdEncoding.EncodeToString(ciphertext)

		corrupted, err := xml.Marshal(env)
		require.NoError(t, err)

		_, err = codec.Unenvelop(corrupted, bobKey)
		require.ErrorIs(t, err, messages.ErrDecryptionFailed)
	})
	t.Run("inner signature from a different key", func(t *testing.T) {
		forged, err := codec.Envelop(post, eveKey, &bobKey.PublicKey)
		require.NoError(t, err)

		env, err := codec.Unenvelop(forged, bobKey)
		require.NoError(t, err)
		require.ErrorIs(t, env.Verify(&aliceKey.PublicKey), messages.ErrSignatureInvalid)
	})
}

func TestEncryptedCodec_Malformed(t *testing.T) {
	codec := NewEncryptedCodec(NewCodec(entity.DefaultRegistry()))

	for name, doc := range map[string]string{
		"not xml":        "{}",
		"missing key":    `<encrypted_envelope><iv>AAAA</iv><ciphertext>AAAA</ciphertext></encrypted_envelope>`,
		"missing iv":     `<encrypted_envelope><key>AAAA</key><ciphertext>AAAA</ciphertext></encrypted_envelope>`,
		"bad ciphertext": `<encrypted_envelope><key>AAAA</key><iv>AAAA</iv><ciphertext>!!!</ciphertext></encrypted_envelope>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decrypt([]byte(doc), bobKey)
			require.ErrorIs(t, err, messages.ErrMalformedDocument)
		})
	}
}

func replaceData(t *testing.T, data []byte, newValue string) []byte {
	t.Helper()

	doc := string(data)
	start := strings.Index(doc, `<me:data type="application/xml">`) + len(`<me:data type="application/xml">`)
	end := strings.Index(doc, "</me:data>")
	require.True(t, start > 0 && end > start)

	return []byte(doc[:start] + newValue + doc[end:])
}
