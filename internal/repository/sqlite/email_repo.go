package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// emailRepository implements repository.EmailRepository for SQLite.
type emailRepository struct {
	db *DB
}

// NewEmailRepository creates a new SQLite email repository.
func NewEmailRepository(db *DB) repository.EmailRepository {
	return &emailRepository{db: db}
}

const emailColumns = `idx, address_local, address_domain, owner_idx, verified, created_at`

// Create inserts a new email address record.
func (r *emailRepository) Create(ctx context.Context, email *domain.EmailAddress) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO email_addresses (address_local, address_domain, owner_idx, verified, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		email.AddressLocal,
		email.AddressDomain,
		email.OwnerIdx,
		boolToInt(email.Verified),
		email.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: address already registered", repository.ErrConflict)
		}
		return fmt.Errorf("failed to create email address: %w", err)
	}

	idx, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	email.Idx = idx
	return nil
}

// GetByIdx retrieves an email record by idx.
func (r *emailRepository) GetByIdx(ctx context.Context, idx int64) (*domain.EmailAddress, error) {
	return r.getEmail(ctx, `SELECT `+emailColumns+` FROM email_addresses WHERE idx = ?`, idx)
}

// GetByAddress retrieves an email record by (local, domain).
func (r *emailRepository) GetByAddress(ctx context.Context, local, dom string) (*domain.EmailAddress, error) {
	return r.getEmail(ctx,
		`SELECT `+emailColumns+` FROM email_addresses WHERE address_local = ? AND address_domain = ?`,
		local, dom,
	)
}

func (r *emailRepository) getEmail(ctx context.Context, query string, args ...interface{}) (*domain.EmailAddress, error) {
	email := &domain.EmailAddress{}
	var ownerIdx sql.NullInt64
	var verified int
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&email.Idx, &email.AddressLocal, &email.AddressDomain,
		&ownerIdx, &verified, &createdAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email address: %w", err)
	}

	if ownerIdx.Valid {
		email.OwnerIdx = &ownerIdx.Int64
	}
	email.Verified = verified != 0
	email.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	return email, nil
}

// MarkVerified flags an email record as verified.
func (r *emailRepository) MarkVerified(ctx context.Context, idx int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE email_addresses SET verified = 1 WHERE idx = ?`, idx)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an email record by idx.
func (r *emailRepository) Delete(ctx context.Context, idx int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_addresses WHERE idx = ?`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete email address: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure emailRepository implements repository.EmailRepository.
var _ repository.EmailRepository = (*emailRepository)(nil)
