// Package repository defines data access interfaces for Castellan.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/castellan/internal/domain"
)

// =============================================================================
// Account Repository
// =============================================================================

// AccountRepository defines the interface for account data access.
type AccountRepository interface {
	// Create inserts a new account, allocating its UID atomically.
	// Implementations must hold an exclusive lock on the account table for
	// the duration of the allocating transaction: the UID gap-scan is only
	// correct under serialized access. This is a correctness precondition,
	// not an optimization, and the lock is taken internally so no caller
	// can run the scan unserialized.
	Create(ctx context.Context, account *domain.Account) error

	// GetByIdx retrieves an account by idx.
	GetByIdx(ctx context.Context, idx int64) (*domain.Account, error)

	// GetByUsername retrieves an account by username. Zero rows and more
	// than one row both yield ErrNotFound; a multi-match is a data
	// integrity violation, never silently resolved.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// GetAll returns every account, ordered by idx.
	GetAll(ctx context.Context) ([]*domain.Account, error)

	// UpdatePasswordDigest replaces the stored digest for an account.
	UpdatePasswordDigest(ctx context.Context, idx int64, digest string) error

	// UpdateShell replaces the login shell for an account.
	UpdateShell(ctx context.Context, idx int64, shell string) error

	// UpdateLastLogin records a successful authentication time.
	UpdateLastLogin(ctx context.Context, idx int64, at time.Time) error

	// SetActivated toggles whether the account may authenticate.
	SetActivated(ctx context.Context, idx int64, activated bool) error

	// Delete removes an account by idx.
	Delete(ctx context.Context, idx int64) error
}

// =============================================================================
// Group Repository
// =============================================================================

// GroupRepository defines the interface for group and membership data access.
type GroupRepository interface {
	// GetByIdx retrieves a group by idx.
	GetByIdx(ctx context.Context, idx int64) (*domain.Group, error)

	// Create inserts a new group.
	Create(ctx context.Context, group *domain.Group) error

	// Delete removes a group by idx.
	Delete(ctx context.Context, idx int64) error

	// ListMembershipsByUser returns every direct membership row for a
	// user. Duplicate (user, group) rows are returned as-is.
	ListMembershipsByUser(ctx context.Context, userIdx int64) ([]*domain.GroupMembership, error)

	// AddMembership inserts a direct membership row. Duplicates are allowed.
	AddMembership(ctx context.Context, userIdx, groupIdx int64) error

	// RemoveMembership deletes all membership rows for the pair.
	RemoveMembership(ctx context.Context, userIdx, groupIdx int64) error

	// ListParentGroups returns the groups the given group is directly a
	// member of. The resulting edges form a directed graph that may
	// contain cycles.
	ListParentGroups(ctx context.Context, groupIdx int64) ([]int64, error)

	// AddRelation records that group is a member of parent.
	AddRelation(ctx context.Context, groupIdx, parentIdx int64) error

	// GroupsGrantingPermission returns the idx of every group that grants
	// the given permission.
	GroupsGrantingPermission(ctx context.Context, permissionIdx int64) ([]int64, error)

	// GrantPermission records that a group grants a permission.
	GrantPermission(ctx context.Context, groupIdx, permissionIdx int64) error
}

// =============================================================================
// Host Repository
// =============================================================================

// HostRepository defines the interface for host and host group data access.
type HostRepository interface {
	// CreateHost inserts a new host.
	CreateHost(ctx context.Context, host *domain.Host) error

	// GetHostByIdx retrieves a host by idx.
	GetHostByIdx(ctx context.Context, idx int64) (*domain.Host, error)

	// GetHostByInet retrieves a host by normalized network address.
	GetHostByInet(ctx context.Context, address string) (*domain.Host, error)

	// ListHosts returns every host, ordered by idx.
	ListHosts(ctx context.Context) ([]*domain.Host, error)

	// UpdateHost updates an existing host.
	UpdateHost(ctx context.Context, host *domain.Host) error

	// DeleteHost removes a host by idx.
	DeleteHost(ctx context.Context, idx int64) error

	// CreateHostGroup inserts a new host group.
	CreateHostGroup(ctx context.Context, group *domain.HostGroup) error

	// GetHostGroupByIdx retrieves a host group by idx.
	GetHostGroupByIdx(ctx context.Context, idx int64) (*domain.HostGroup, error)

	// DeleteHostGroup removes a host group by idx.
	DeleteHostGroup(ctx context.Context, idx int64) error
}

// =============================================================================
// Token Repository
// =============================================================================

// TokenRepository defines the interface for single-use token data access.
type TokenRepository interface {
	// GetPasswordTokenByUser retrieves the password-change token row for
	// a user, expired or not.
	GetPasswordTokenByUser(ctx context.Context, userIdx int64) (*domain.PasswordChangeToken, error)

	// GetPasswordTokenByToken retrieves a password-change token row by
	// its token value.
	GetPasswordTokenByToken(ctx context.Context, token string) (*domain.PasswordChangeToken, error)

	// UpsertPasswordToken inserts or replaces the single token row for
	// the user. ResendCount is stored exactly as given; the stale-reset
	// rule lives in the service layer.
	UpsertPasswordToken(ctx context.Context, token *domain.PasswordChangeToken) error

	// DeletePasswordToken removes a password-change token row by token value.
	DeletePasswordToken(ctx context.Context, token string) error

	// UpsertEmailToken inserts or replaces the verification token for an
	// email address record.
	UpsertEmailToken(ctx context.Context, token *domain.EmailVerificationToken) error

	// GetEmailToken retrieves an email verification token by exact token
	// value.
	GetEmailToken(ctx context.Context, token string) (*domain.EmailVerificationToken, error)

	// DeleteEmailToken removes the verification token for an email record.
	DeleteEmailToken(ctx context.Context, emailIdx int64) error
}

// =============================================================================
// Email Repository
// =============================================================================

// EmailRepository defines the interface for email address records.
type EmailRepository interface {
	// Create inserts a new email address record.
	Create(ctx context.Context, email *domain.EmailAddress) error

	// GetByIdx retrieves an email record by idx.
	GetByIdx(ctx context.Context, idx int64) (*domain.EmailAddress, error)

	// GetByAddress retrieves an email record by (local, domain).
	GetByAddress(ctx context.Context, local, dom string) (*domain.EmailAddress, error)

	// MarkVerified flags an email record as verified.
	MarkVerified(ctx context.Context, idx int64) error

	// Delete removes an email record by idx.
	Delete(ctx context.Context, idx int64) error
}
