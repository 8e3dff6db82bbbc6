/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trustbloc/federation/pkg/messages"
)

const testAuthor = "alice@pod.example.tld"

func TestNewGUID(t *testing.T) {
	guid := NewGUID()
	require.Len(t, guid, 32)
	require.NotEqual(t, guid, NewGUID())
}

func TestRegistry_MarshalUnmarshal(t *testing.T) {
	registry := DefaultRegistry()

	t.Run("status message", func(t *testing.T) {
		post := &StatusMessage{
			Handle:    testAuthor,
			ID:        NewGUID(),
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Public:    true,
			Text:      "hello <world> & friends",
		}

		data, err := registry.Marshal(post)
		require.NoError(t, err)

		parsed, err := registry.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, post.Handle, parsed.Author())
		require.Equal(t, post.ID, parsed.GUID())

		parsedPost, ok := parsed.(*StatusMessage)
		require.True(t, ok)
		require.Equal(t, post.Text, parsedPost.Text)
		require.True(t, post.CreatedAt.Equal(parsedPost.CreatedAt))

		again, err := registry.Marshal(parsed)
		require.NoError(t, err)
		require.Equal(t, data, again)
	})
	t.Run("profile", func(t *testing.T) {
		profile := &Profile{Handle: testAuthor, ID: NewGUID(), FirstName: "Alice", Searchable: true}

		data, err := registry.Marshal(profile)
		require.NoError(t, err)

		parsed, err := registry.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, profile.Type(), parsed.Type())
		require.Equal(t, "Alice", parsed.(*Profile).FirstName)
	})
	t.Run("account migration", func(t *testing.T) {
		migration := &AccountMigration{OldIdentity: testAuthor, NewIdentity: "alice@new.example.tld"}

		data, err := registry.Marshal(migration)
		require.NoError(t, err)

		parsed, err := registry.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, migration.GUID(), parsed.GUID())
		require.Equal(t, "AccountMigration:alice@pod.example.tld:alice@new.example.tld",
			parsed.(Signable).SignatureDescriptor())
	})
}

func TestRegistry_UnmarshalFailures(t *testing.T) {
	registry := DefaultRegistry()

	t.Run("unknown kind", func(t *testing.T) {
		_, err := registry.Unmarshal([]byte(`<poll><author>a@b</author><guid>1234</guid></poll>`))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("empty document", func(t *testing.T) {
		_, err := registry.Unmarshal([]byte("  "))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("missing author", func(t *testing.T) {
		_, err := registry.Unmarshal([]byte(`<status_message><guid>1234</guid></status_message>`))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("missing guid", func(t *testing.T) {
		_, err := registry.Unmarshal([]byte(`<profile><author>a@b</author></profile>`))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
	t.Run("broken xml", func(t *testing.T) {
		_, err := registry.Unmarshal([]byte(`<status_message><author>a@b</author>`))
		require.ErrorIs(t, err, messages.ErrMalformedDocument)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	registry := DefaultRegistry()

	kind, ok := registry.Resolve(PostAlias)
	require.True(t, ok)
	require.Equal(t, StatusMessageType, kind)

	_, ok = registry.Resolve("photo")
	require.False(t, ok)

	require.Equal(t, []string{AccountMigrationType, ProfileType, StatusMessageType}, registry.Kinds())

	e, err := registry.New(PostAlias)
	require.NoError(t, err)
	require.IsType(t, &StatusMessage{}, e)
}

func TestRegistry_MarshalUnregistered(t *testing.T) {
	_, err := NewRegistry().Marshal(&Profile{Handle: testAuthor, ID: NewGUID()})
	require.ErrorIs(t, err, messages.ErrConfiguration)
}
