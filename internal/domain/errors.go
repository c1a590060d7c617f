// Package domain contains the core business entities for Castellan.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Account Errors
	// ===========================================

	// ErrAccountNotFound indicates the requested account does not exist.
	// It is also returned when a username lookup matches more than one
	// row, which is treated as a data integrity violation rather than
	// silently resolved.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists indicates an account with the same username exists.
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrNotActivated indicates the account exists but is deactivated.
	// Checked before password verification so a deactivated account never
	// leaks whether the supplied password was correct.
	ErrNotActivated = errors.New("account is not activated")

	// ErrAuthentication indicates credential verification failed. It must
	// not reveal whether the account exists.
	ErrAuthentication = errors.New("authentication failed")

	// ===========================================
	// Group / Permission Errors
	// ===========================================

	// ErrGroupNotFound indicates the requested group does not exist.
	// It is also the result of resolving reachable groups for a user with
	// zero direct memberships.
	ErrGroupNotFound = errors.New("group not found")

	// ErrPermissionNotFound indicates the requested permission does not exist.
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrAuthorization indicates the user lacks the permission required
	// by a host group.
	ErrAuthorization = errors.New("authorization failed")

	// ===========================================
	// Host Errors
	// ===========================================

	// ErrHostNotFound indicates the requested host does not exist.
	ErrHostNotFound = errors.New("host not found")

	// ErrHostGroupNotFound indicates the requested host group does not exist.
	ErrHostGroupNotFound = errors.New("host group not found")

	// ===========================================
	// Token Errors
	// ===========================================

	// ErrTokenNotFound indicates the token row is absent, or a submitted
	// token value did not match exactly.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the token exists but its validity window
	// has passed.
	ErrTokenExpired = errors.New("token expired")

	// ===========================================
	// Email Errors
	// ===========================================

	// ErrEmailNotFound indicates the requested email record does not exist.
	ErrEmailNotFound = errors.New("email address not found")

	// ErrInvalidEmailLocal indicates the local part is malformed.
	ErrInvalidEmailLocal = errors.New("invalid email local part")

	// ErrDomainNotAllowed indicates the domain is not in the allowed set.
	ErrDomainNotAllowed = errors.New("email domain not allowed")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g. username, host name).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
