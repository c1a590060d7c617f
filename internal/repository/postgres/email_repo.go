package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// emailRepository implements repository.EmailRepository for PostgreSQL.
type emailRepository struct {
	db *DB
}

// NewEmailRepository creates a new PostgreSQL email repository.
func NewEmailRepository(db *DB) repository.EmailRepository {
	return &emailRepository{db: db}
}

const emailColumns = `idx, address_local, address_domain, owner_idx, verified, created_at`

// Create inserts a new email address record.
func (r *emailRepository) Create(ctx context.Context, email *domain.EmailAddress) error {
	query := `
		INSERT INTO email_addresses (address_local, address_domain, owner_idx, verified, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING idx
	`

	err := r.db.Pool.QueryRow(ctx, query,
		email.AddressLocal,
		email.AddressDomain,
		email.OwnerIdx,
		email.Verified,
		email.CreatedAt,
	).Scan(&email.Idx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: address already registered", repository.ErrConflict)
		}
		return fmt.Errorf("failed to create email address: %w", err)
	}
	return nil
}

// GetByIdx retrieves an email record by idx.
func (r *emailRepository) GetByIdx(ctx context.Context, idx int64) (*domain.EmailAddress, error) {
	query := `SELECT ` + emailColumns + ` FROM email_addresses WHERE idx = $1`

	email := &domain.EmailAddress{}
	err := r.db.Pool.QueryRow(ctx, query, idx).Scan(
		&email.Idx, &email.AddressLocal, &email.AddressDomain,
		&email.OwnerIdx, &email.Verified, &email.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email address: %w", err)
	}
	return email, nil
}

// GetByAddress retrieves an email record by (local, domain).
func (r *emailRepository) GetByAddress(ctx context.Context, local, dom string) (*domain.EmailAddress, error) {
	query := `SELECT ` + emailColumns + ` FROM email_addresses WHERE address_local = $1 AND address_domain = $2`

	email := &domain.EmailAddress{}
	err := r.db.Pool.QueryRow(ctx, query, local, dom).Scan(
		&email.Idx, &email.AddressLocal, &email.AddressDomain,
		&email.OwnerIdx, &email.Verified, &email.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email address: %w", err)
	}
	return email, nil
}

// MarkVerified flags an email record as verified.
func (r *emailRepository) MarkVerified(ctx context.Context, idx int64) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE email_addresses SET verified = TRUE WHERE idx = $1`, idx)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes an email record by idx.
func (r *emailRepository) Delete(ctx context.Context, idx int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM email_addresses WHERE idx = $1`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete email address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure emailRepository implements repository.EmailRepository.
var _ repository.EmailRepository = (*emailRepository)(nil)
