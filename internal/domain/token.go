package domain

import (
	"time"
)

// PasswordChangeToken is a single-use token authorizing a password
// change for one account. At most one live row exists per account;
// reissuing before expiry replaces the token and increments ResendCount.
type PasswordChangeToken struct {
	// UserIdx is the account the token belongs to (primary key).
	UserIdx int64 `json:"user_idx"`

	// Token is the random, unguessable token value (32 bytes, hex).
	Token string `json:"-"`

	// Expires is the absolute expiry time. A token is invalid at or
	// after this instant.
	Expires time.Time `json:"expires"`

	// ResendCount is the number of reissues since the last time the
	// token was issued fresh (i.e. after the prior token had expired).
	ResendCount int `json:"resend_count"`
}

// Expired reports whether the token is no longer valid at now.
func (t *PasswordChangeToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}

// EmailVerificationToken is a single-use token proving control of an
// email address record. It is consumed on successful verification.
type EmailVerificationToken struct {
	// EmailIdx is the email address record the token verifies.
	EmailIdx int64 `json:"email_idx"`

	// Token is the random token value.
	Token string `json:"-"`

	// Expires is the absolute expiry time.
	Expires time.Time `json:"expires"`
}

// Expired reports whether the token is no longer valid at now.
func (t *EmailVerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}
