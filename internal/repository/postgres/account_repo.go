package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// accountRepository implements repository.AccountRepository for PostgreSQL.
type accountRepository struct {
	db       *DB
	uidFloor int64
}

// NewAccountRepository creates a new PostgreSQL account repository.
// uidFloor is the lowest UID the repository will ever allocate.
func NewAccountRepository(db *DB, uidFloor int64) repository.AccountRepository {
	return &accountRepository{db: db, uidFloor: uidFloor}
}

const accountColumns = `idx, username, name, uid, shell, preferred_language, activated, password_digest, last_login_at, created_at`

// Create inserts a new account, allocating its UID inside a transaction
// that holds the accounts table exclusively. The lock is what makes the
// gap-scan in nextUID safe against concurrent allocations.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := LockAccountsTable(ctx, tx); err != nil {
			return err
		}

		uid, err := nextUID(ctx, tx, r.uidFloor)
		if err != nil {
			return err
		}
		account.UID = &uid

		query := `
			INSERT INTO accounts (username, name, uid, shell, preferred_language, activated, password_digest, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING idx
		`
		err = tx.QueryRow(ctx, query,
			account.Username,
			account.Name,
			account.UID,
			account.Shell,
			string(account.PreferredLanguage),
			account.Activated,
			account.PasswordDigest,
			account.CreatedAt,
		).Scan(&account.Idx)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: username or uid already exists", repository.ErrConflict)
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		return nil
	})
}

// nextUID returns the smallest UID >= floor that is one greater than an
// existing UID but not itself taken, or floor itself when no UID >= floor
// exists yet. Deleted accounts leave gaps that are reused before the
// range grows.
func nextUID(ctx context.Context, q Querier, floor int64) (int64, error) {
	query := `
		SELECT MIN(a.uid) + 1
		FROM accounts a
		WHERE a.uid >= $1
		  AND NOT EXISTS (SELECT 1 FROM accounts b WHERE b.uid = a.uid + 1)
	`

	var next *int64
	if err := q.QueryRow(ctx, query, floor).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next uid: %w", err)
	}
	if next == nil {
		// No account owns a UID at or above the floor yet.
		return floor, nil
	}
	return *next, nil
}

// GetByIdx retrieves an account by idx.
func (r *accountRepository) GetByIdx(ctx context.Context, idx int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE idx = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, idx))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by idx: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username. Exactly one row must
// match: zero rows is a plain miss, more than one is a data integrity
// violation reported the same way rather than silently resolved.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

	rows, err := r.db.Pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	if len(accounts) != 1 {
		return nil, repository.ErrNotFound
	}
	return accounts[0], nil
}

// GetAll returns every account, ordered by idx.
func (r *accountRepository) GetAll(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY idx`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// UpdatePasswordDigest replaces the stored digest for an account.
func (r *accountRepository) UpdatePasswordDigest(ctx context.Context, idx int64, digest string) error {
	return r.exec(ctx, `UPDATE accounts SET password_digest = $1 WHERE idx = $2`, digest, idx)
}

// UpdateShell replaces the login shell for an account.
func (r *accountRepository) UpdateShell(ctx context.Context, idx int64, shell string) error {
	return r.exec(ctx, `UPDATE accounts SET shell = $1 WHERE idx = $2`, shell, idx)
}

// UpdateLastLogin records a successful authentication time.
func (r *accountRepository) UpdateLastLogin(ctx context.Context, idx int64, at time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE idx = $2`, at, idx)
}

// SetActivated toggles whether the account may authenticate.
func (r *accountRepository) SetActivated(ctx context.Context, idx int64, activated bool) error {
	return r.exec(ctx, `UPDATE accounts SET activated = $1 WHERE idx = $2`, activated, idx)
}

// Delete removes an account by idx.
func (r *accountRepository) Delete(ctx context.Context, idx int64) error {
	return r.exec(ctx, `DELETE FROM accounts WHERE idx = $1`, idx)
}

// exec runs a statement that must affect exactly one row.
func (r *accountRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("account statement failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount reads one account row.
func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	var lang string
	err := row.Scan(
		&account.Idx,
		&account.Username,
		&account.Name,
		&account.UID,
		&account.Shell,
		&lang,
		&account.Activated,
		&account.PasswordDigest,
		&account.LastLoginAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.PreferredLanguage = domain.Language(lang)
	return account, nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
