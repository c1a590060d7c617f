// Package domain contains the core business entities for Castellan.
// These are pure Go structs with no external dependencies, representing
// the fundamental concepts of the identity and authorization engine.
package domain

import (
	"time"
)

// Language is the preferred interface language of an account.
type Language string

// Supported languages.
const (
	LanguageKorean  Language = "ko"
	LanguageEnglish Language = "en"
)

// Valid reports whether the language is one of the supported values.
func (l Language) Valid() bool {
	return l == LanguageKorean || l == LanguageEnglish
}

// Account represents a registered account in the system.
// Accounts are the authoritative identity record; the directory projection
// is derived from them.
type Account struct {
	// Idx is the unique, stable identifier for the account (auto-generated).
	Idx int64 `json:"idx"`

	// Username is the login name. It is nullable: accounts without a
	// username exist (e.g. imported records) but cannot be projected into
	// the directory.
	Username *string `json:"username"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// UID is the POSIX numeric user id. Nullable; unique among accounts
	// that have one. Allocated from the configured floor, reusing gaps
	// left by deleted accounts.
	UID *int64 `json:"uid"`

	// Shell is the login shell. Accounts without a shell are not
	// projected into the directory.
	Shell *string `json:"shell"`

	// PreferredLanguage is "ko" or "en".
	PreferredLanguage Language `json:"preferred_language"`

	// Activated indicates whether the account may authenticate.
	Activated bool `json:"activated"`

	// PasswordDigest is the encoded password digest. Current records use
	// bcrypt; legacy records keep their original encoding until the first
	// successful authentication migrates them. Never exposed.
	PasswordDigest string `json:"-"`

	// LastLoginAt is the time of the last successful authentication.
	LastLoginAt *time.Time `json:"last_login_at"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewAccount creates a new Account with default values.
func NewAccount(username, name, shell string, lang Language, digest string) *Account {
	return &Account{
		Username:          &username,
		Name:              name,
		Shell:             &shell,
		PreferredLanguage: lang,
		Activated:         true,
		PasswordDigest:    digest,
		CreatedAt:         time.Now().UTC(),
	}
}

// CanAuthenticate returns true if the account is allowed to authenticate.
func (a *Account) CanAuthenticate() bool {
	return a.Activated
}

// Projectable reports whether the account can appear in the directory
// projection. Accounts without a username or shell are skipped.
func (a *Account) Projectable() bool {
	return a.Username != nil && *a.Username != "" && a.Shell != nil && *a.Shell != "" && a.UID != nil
}
