package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// tokenRepository implements repository.TokenRepository for SQLite.
type tokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new SQLite token repository.
func NewTokenRepository(db *DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// GetPasswordTokenByUser retrieves the password-change token row for a user.
func (r *tokenRepository) GetPasswordTokenByUser(ctx context.Context, userIdx int64) (*domain.PasswordChangeToken, error) {
	return r.getPasswordToken(ctx,
		`SELECT user_idx, token, expires, resend_count FROM password_change_tokens WHERE user_idx = ?`,
		userIdx,
	)
}

// GetPasswordTokenByToken retrieves a password-change token row by value.
func (r *tokenRepository) GetPasswordTokenByToken(ctx context.Context, token string) (*domain.PasswordChangeToken, error) {
	return r.getPasswordToken(ctx,
		`SELECT user_idx, token, expires, resend_count FROM password_change_tokens WHERE token = ?`,
		token,
	)
}

func (r *tokenRepository) getPasswordToken(ctx context.Context, query string, arg interface{}) (*domain.PasswordChangeToken, error) {
	token := &domain.PasswordChangeToken{}
	var expires string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&token.UserIdx, &token.Token, &expires, &token.ResendCount,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get password token: %w", err)
	}

	token.Expires, err = time.Parse(time.RFC3339, expires)
	if err != nil {
		return nil, fmt.Errorf("bad token expiry: %w", err)
	}
	return token, nil
}

// UpsertPasswordToken inserts or replaces the single token row for a user.
func (r *tokenRepository) UpsertPasswordToken(ctx context.Context, token *domain.PasswordChangeToken) error {
	query := `
		INSERT INTO password_change_tokens (user_idx, token, expires, resend_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_idx) DO UPDATE
		SET token = excluded.token,
		    expires = excluded.expires,
		    resend_count = excluded.resend_count
	`

	if _, err := r.db.ExecContext(ctx, query,
		token.UserIdx, token.Token, token.Expires.UTC().Format(time.RFC3339), token.ResendCount,
	); err != nil {
		return fmt.Errorf("failed to upsert password token: %w", err)
	}
	return nil
}

// DeletePasswordToken removes a password-change token row by value.
func (r *tokenRepository) DeletePasswordToken(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_change_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete password token: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertEmailToken inserts or replaces the verification token for an email record.
func (r *tokenRepository) UpsertEmailToken(ctx context.Context, token *domain.EmailVerificationToken) error {
	query := `
		INSERT INTO email_verification_tokens (email_idx, token, expires)
		VALUES (?, ?, ?)
		ON CONFLICT (email_idx) DO UPDATE
		SET token = excluded.token,
		    expires = excluded.expires
	`

	if _, err := r.db.ExecContext(ctx, query,
		token.EmailIdx, token.Token, token.Expires.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to upsert email token: %w", err)
	}
	return nil
}

// GetEmailToken retrieves an email verification token by exact value.
func (r *tokenRepository) GetEmailToken(ctx context.Context, token string) (*domain.EmailVerificationToken, error) {
	row := &domain.EmailVerificationToken{}
	var expires string
	err := r.db.QueryRowContext(ctx,
		`SELECT email_idx, token, expires FROM email_verification_tokens WHERE token = ?`, token,
	).Scan(&row.EmailIdx, &row.Token, &expires)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email token: %w", err)
	}

	row.Expires, err = time.Parse(time.RFC3339, expires)
	if err != nil {
		return nil, fmt.Errorf("bad token expiry: %w", err)
	}
	return row, nil
}

// DeleteEmailToken removes the verification token for an email record.
func (r *tokenRepository) DeleteEmailToken(ctx context.Context, emailIdx int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_tokens WHERE email_idx = ?`, emailIdx)
	if err != nil {
		return fmt.Errorf("failed to delete email token: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure tokenRepository implements repository.TokenRepository.
var _ repository.TokenRepository = (*tokenRepository)(nil)
