package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// tokenRepository implements repository.TokenRepository for PostgreSQL.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new PostgreSQL token repository.
func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// GetPasswordTokenByUser retrieves the password-change token row for a user.
func (r *tokenRepository) GetPasswordTokenByUser(ctx context.Context, userIdx int64) (*domain.PasswordChangeToken, error) {
	query := `
		SELECT user_idx, token, expires, resend_count
		FROM password_change_tokens
		WHERE user_idx = $1
	`

	token := &domain.PasswordChangeToken{}
	err := r.db.Pool.QueryRow(ctx, query, userIdx).Scan(
		&token.UserIdx, &token.Token, &token.Expires, &token.ResendCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get password token by user: %w", err)
	}
	return token, nil
}

// GetPasswordTokenByToken retrieves a password-change token row by value.
func (r *tokenRepository) GetPasswordTokenByToken(ctx context.Context, token string) (*domain.PasswordChangeToken, error) {
	query := `
		SELECT user_idx, token, expires, resend_count
		FROM password_change_tokens
		WHERE token = $1
	`

	row := &domain.PasswordChangeToken{}
	err := r.db.Pool.QueryRow(ctx, query, token).Scan(
		&row.UserIdx, &row.Token, &row.Expires, &row.ResendCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get password token: %w", err)
	}
	return row, nil
}

// UpsertPasswordToken inserts or replaces the single token row for a user.
func (r *tokenRepository) UpsertPasswordToken(ctx context.Context, token *domain.PasswordChangeToken) error {
	query := `
		INSERT INTO password_change_tokens (user_idx, token, expires, resend_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_idx) DO UPDATE
		SET token = EXCLUDED.token,
		    expires = EXCLUDED.expires,
		    resend_count = EXCLUDED.resend_count
	`

	if _, err := r.db.Pool.Exec(ctx, query, token.UserIdx, token.Token, token.Expires, token.ResendCount); err != nil {
		return fmt.Errorf("failed to upsert password token: %w", err)
	}
	return nil
}

// DeletePasswordToken removes a password-change token row by value.
func (r *tokenRepository) DeletePasswordToken(ctx context.Context, token string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM password_change_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete password token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertEmailToken inserts or replaces the verification token for an email record.
func (r *tokenRepository) UpsertEmailToken(ctx context.Context, token *domain.EmailVerificationToken) error {
	query := `
		INSERT INTO email_verification_tokens (email_idx, token, expires)
		VALUES ($1, $2, $3)
		ON CONFLICT (email_idx) DO UPDATE
		SET token = EXCLUDED.token,
		    expires = EXCLUDED.expires
	`

	if _, err := r.db.Pool.Exec(ctx, query, token.EmailIdx, token.Token, token.Expires); err != nil {
		return fmt.Errorf("failed to upsert email token: %w", err)
	}
	return nil
}

// GetEmailToken retrieves an email verification token by exact value.
func (r *tokenRepository) GetEmailToken(ctx context.Context, token string) (*domain.EmailVerificationToken, error) {
	query := `
		SELECT email_idx, token, expires
		FROM email_verification_tokens
		WHERE token = $1
	`

	row := &domain.EmailVerificationToken{}
	err := r.db.Pool.QueryRow(ctx, query, token).Scan(&row.EmailIdx, &row.Token, &row.Expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email token: %w", err)
	}
	return row, nil
}

// DeleteEmailToken removes the verification token for an email record.
func (r *tokenRepository) DeleteEmailToken(ctx context.Context, emailIdx int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE email_idx = $1`, emailIdx)
	if err != nil {
		return fmt.Errorf("failed to delete email token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure tokenRepository implements repository.TokenRepository.
var _ repository.TokenRepository = (*tokenRepository)(nil)
