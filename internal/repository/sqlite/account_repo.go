package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/lock"
	"github.com/prn-tf/castellan/internal/repository"
)

// uidAllocLockKey serializes UID allocation. SQLite has no table-level
// lock statement, so the exclusive-access requirement of the gap-scan is
// met with a process lock (memory locker for single-node, Redis for
// multi-instance deployments sharing one database file).
const uidAllocLockKey = "castellan:uid-alloc"

const uidAllocLockTTL = 10 * time.Second

// accountRepository implements repository.AccountRepository for SQLite.
type accountRepository struct {
	db       *DB
	uidFloor int64
	locker   lock.Locker
}

// NewAccountRepository creates a new SQLite account repository.
func NewAccountRepository(db *DB, uidFloor int64, locker lock.Locker) repository.AccountRepository {
	return &accountRepository{db: db, uidFloor: uidFloor, locker: locker}
}

const accountColumns = `idx, username, name, uid, shell, preferred_language, activated, password_digest, last_login_at, created_at`

// Create inserts a new account, allocating its UID while holding the
// allocation lock for the duration of the transaction.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	alloc := lock.NewLock(r.locker, uidAllocLockKey)
	acquired, err := alloc.AcquireWithRetry(ctx, uidAllocLockTTL, 50, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire uid allocation lock: %w", err)
	}
	if !acquired {
		return repository.ErrLockNotAcquired
	}
	defer func() {
		_ = alloc.Release(ctx)
	}()

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		uid, err := nextUID(ctx, tx, r.uidFloor)
		if err != nil {
			return err
		}
		account.UID = &uid

		query := `
			INSERT INTO accounts (username, name, uid, shell, preferred_language, activated, password_digest, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		result, err := tx.ExecContext(ctx, query,
			account.Username,
			account.Name,
			account.UID,
			account.Shell,
			string(account.PreferredLanguage),
			boolToInt(account.Activated),
			account.PasswordDigest,
			account.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: username or uid already exists", repository.ErrConflict)
			}
			return fmt.Errorf("failed to create account: %w", err)
		}

		idx, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		account.Idx = idx
		return nil
	})
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// nextUID returns the smallest UID >= floor that is one greater than an
// existing UID but not itself taken, or floor itself when no UID >= floor
// exists yet.
func nextUID(ctx context.Context, q queryRower, floor int64) (int64, error) {
	query := `
		SELECT MIN(a.uid) + 1
		FROM accounts a
		WHERE a.uid >= ?
		  AND NOT EXISTS (SELECT 1 FROM accounts b WHERE b.uid = a.uid + 1)
	`

	var next sql.NullInt64
	if err := q.QueryRowContext(ctx, query, floor).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next uid: %w", err)
	}
	if !next.Valid {
		// No account owns a UID at or above the floor yet.
		return floor, nil
	}
	return next.Int64, nil
}

// GetByIdx retrieves an account by idx.
func (r *accountRepository) GetByIdx(ctx context.Context, idx int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE idx = ?`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, idx))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by idx: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username. Exactly one row must
// match; zero or several both report ErrNotFound.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = ?`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccountRows(rows)
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

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccountRows(rows)
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
	return r.exec(ctx, `UPDATE accounts SET password_digest = ? WHERE idx = ?`, digest, idx)
}

// UpdateShell replaces the login shell for an account.
func (r *accountRepository) UpdateShell(ctx context.Context, idx int64, shell string) error {
	return r.exec(ctx, `UPDATE accounts SET shell = ? WHERE idx = ?`, shell, idx)
}

// UpdateLastLogin records a successful authentication time.
func (r *accountRepository) UpdateLastLogin(ctx context.Context, idx int64, at time.Time) error {
	return r.exec(ctx, `UPDATE accounts SET last_login_at = ? WHERE idx = ?`, at.UTC().Format(time.RFC3339), idx)
}

// SetActivated toggles whether the account may authenticate.
func (r *accountRepository) SetActivated(ctx context.Context, idx int64, activated bool) error {
	return r.exec(ctx, `UPDATE accounts SET activated = ? WHERE idx = ?`, boolToInt(activated), idx)
}

// Delete removes an account by idx.
func (r *accountRepository) Delete(ctx context.Context, idx int64) error {
	return r.exec(ctx, `DELETE FROM accounts WHERE idx = ?`, idx)
}

// exec runs a statement that must affect exactly one row.
func (r *accountRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("account statement failed: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// scanAccount reads one account row from a QueryRow result.
func scanAccount(row *sql.Row) (*domain.Account, error) {
	var dest accountScanDest
	if err := row.Scan(dest.targets()...); err != nil {
		return nil, err
	}
	return dest.account()
}

// scanAccountRows reads one account row from a Query result.
func scanAccountRows(rows *sql.Rows) (*domain.Account, error) {
	var dest accountScanDest
	if err := rows.Scan(dest.targets()...); err != nil {
		return nil, err
	}
	return dest.account()
}

// accountScanDest collects the raw column values of one account row.
// SQLite stores booleans as integers and times as RFC3339 strings.
type accountScanDest struct {
	idx         int64
	username    sql.NullString
	name        string
	uid         sql.NullInt64
	shell       sql.NullString
	lang        string
	activated   int
	digest      string
	lastLoginAt sql.NullString
	createdAt   string
}

func (d *accountScanDest) targets() []interface{} {
	return []interface{}{
		&d.idx, &d.username, &d.name, &d.uid, &d.shell,
		&d.lang, &d.activated, &d.digest, &d.lastLoginAt, &d.createdAt,
	}
}

func (d *accountScanDest) account() (*domain.Account, error) {
	account := &domain.Account{
		Idx:               d.idx,
		Name:              d.name,
		PreferredLanguage: domain.Language(d.lang),
		Activated:         d.activated != 0,
		PasswordDigest:    d.digest,
	}
	if d.username.Valid {
		account.Username = &d.username.String
	}
	if d.uid.Valid {
		account.UID = &d.uid.Int64
	}
	if d.shell.Valid {
		account.Shell = &d.shell.String
	}
	if d.lastLoginAt.Valid {
		t, err := time.Parse(time.RFC3339, d.lastLoginAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad last_login_at: %w", err)
		}
		account.LastLoginAt = &t
	}
	createdAt, err := time.Parse(time.RFC3339, d.createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	account.CreatedAt = createdAt
	return account, nil
}

// boolToInt converts a boolean to an integer (SQLite has no native boolean).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
