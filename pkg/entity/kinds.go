/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"time"
)

const (
	// StatusMessageType is the kind name of a StatusMessage.
	StatusMessageType = "status_message"
	// ProfileType is the kind name of a Profile.
	ProfileType = "profile"
	// AccountMigrationType is the kind name of an AccountMigration.
	AccountMigrationType = "account_migration"

	// PostAlias is the name used for status messages in fetch URLs and references.
	PostAlias = "post"
)

// StatusMessage is a post written by a person.
type StatusMessage struct {
	XMLName   xml.Name  `xml:"status_message"`
	Handle    string    `xml:"author"`
	ID        string    `xml:"guid"`
	CreatedAt time.Time `xml:"created_at"`
	Public    bool      `xml:"public"`
	Text      string    `xml:"text"`
}

// Type returns the kind name.
func (s *StatusMessage) Type() string { return StatusMessageType }

// GUID returns the GUID of the post.
func (s *StatusMessage) GUID() string { return s.ID }

// Author returns the handle of the author.
func (s *StatusMessage) Author() string { return s.Handle }

// IsPublic reports whether the post may be served to anyone.
func (s *StatusMessage) IsPublic() bool { return s.Public }

// Profile is the public profile of a person.
type Profile struct {
	XMLName    xml.Name `xml:"profile"`
	Handle     string   `xml:"author"`
	ID         string   `xml:"guid"`
	FirstName  string   `xml:"first_name,omitempty"`
	LastName   string   `xml:"last_name,omitempty"`
	ImageURL   string   `xml:"image_url,omitempty"`
	Bio        string   `xml:"bio,omitempty"`
	Searchable bool     `xml:"searchable"`
	Public     bool     `xml:"public"`
}

// Type returns the kind name.
func (p *Profile) Type() string { return ProfileType }

// GUID returns the GUID of the profile.
func (p *Profile) GUID() string { return p.ID }

// Author returns the handle of the profile owner.
func (p *Profile) Author() string { return p.Handle }

// IsPublic reports whether the profile may be served to anyone.
func (p *Profile) IsPublic() bool { return p.Public }

// AccountMigration announces that the identity OldIdentity moved to NewIdentity.
// It is signed by the old identity.
type AccountMigration struct {
	XMLName     xml.Name `xml:"account_migration"`
	OldIdentity string   `xml:"author"`
	NewIdentity string   `xml:"profile"`
}

// Type returns the kind name.
func (a *AccountMigration) Type() string { return AccountMigrationType }

// GUID is derived from the signature descriptor since migrations carry no GUID of their own.
func (a *AccountMigration) GUID() string {
	sum := sha256.Sum256([]byte(a.SignatureDescriptor()))

	return hex.EncodeToString(sum[:16])
}

// Author returns the old identity, which signs the migration.
func (a *AccountMigration) Author() string { return a.OldIdentity }

// SignatureDescriptor returns "AccountMigration:<old-identity>:<new-identity>".
func (a *AccountMigration) SignatureDescriptor() string {
	return "AccountMigration:" + a.OldIdentity + ":" + a.NewIdentity
}
