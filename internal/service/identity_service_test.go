package service

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/castellan/internal/credential"
	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// mockAccountRepository is an in-memory implementation of
// repository.AccountRepository. UID allocation mirrors the successor
// rule of the real gap-scan: one past the smallest UID >= floor whose
// successor is free, or the floor itself when no UID >= floor exists.
type mockAccountRepository struct {
	accounts map[int64]*domain.Account
	nextIdx  int64
	uidFloor int64
}

func newMockAccountRepository(uidFloor int64) *mockAccountRepository {
	return &mockAccountRepository{
		accounts: make(map[int64]*domain.Account),
		nextIdx:  1,
		uidFloor: uidFloor,
	}
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.Username != nil {
		for _, a := range m.accounts {
			if a.Username != nil && *a.Username == *account.Username {
				return repository.ErrConflict
			}
		}
	}
	uid := m.nextUID(m.uidFloor)
	account.UID = &uid
	account.Idx = m.nextIdx
	m.nextIdx++
	m.accounts[account.Idx] = account
	return nil
}

func (m *mockAccountRepository) GetByIdx(ctx context.Context, idx int64) (*domain.Account, error) {
	if a, ok := m.accounts[idx]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	var matches []*domain.Account
	for _, a := range m.accounts {
		if a.Username != nil && *a.Username == username {
			matches = append(matches, a)
		}
	}
	if len(matches) != 1 {
		return nil, repository.ErrNotFound
	}
	return matches[0], nil
}

func (m *mockAccountRepository) GetAll(ctx context.Context) ([]*domain.Account, error) {
	var result []*domain.Account
	for _, a := range m.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Idx < result[j].Idx })
	return result, nil
}

func (m *mockAccountRepository) nextUID(floor int64) int64 {
	taken := make(map[int64]bool)
	for _, a := range m.accounts {
		if a.UID != nil && *a.UID >= floor {
			taken[*a.UID] = true
		}
	}
	var next int64
	for uid := range taken {
		if !taken[uid+1] && (next == 0 || uid+1 < next) {
			next = uid + 1
		}
	}
	if next == 0 {
		// No account owns a UID at or above the floor yet.
		return floor
	}
	return next
}

func (m *mockAccountRepository) UpdatePasswordDigest(ctx context.Context, idx int64, digest string) error {
	a, ok := m.accounts[idx]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordDigest = digest
	return nil
}

func (m *mockAccountRepository) UpdateShell(ctx context.Context, idx int64, shell string) error {
	a, ok := m.accounts[idx]
	if !ok {
		return repository.ErrNotFound
	}
	a.Shell = &shell
	return nil
}

func (m *mockAccountRepository) UpdateLastLogin(ctx context.Context, idx int64, at time.Time) error {
	a, ok := m.accounts[idx]
	if !ok {
		return repository.ErrNotFound
	}
	a.LastLoginAt = &at
	return nil
}

func (m *mockAccountRepository) SetActivated(ctx context.Context, idx int64, activated bool) error {
	a, ok := m.accounts[idx]
	if !ok {
		return repository.ErrNotFound
	}
	a.Activated = activated
	return nil
}

func (m *mockAccountRepository) Delete(ctx context.Context, idx int64) error {
	if _, ok := m.accounts[idx]; !ok {
		return repository.ErrNotFound
	}
	delete(m.accounts, idx)
	return nil
}

var _ repository.AccountRepository = (*mockAccountRepository)(nil)

// countingInvalidator records how many times the projection was marked
// stale.
type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

func newTestIdentityService(uidFloor int64) (*IdentityService, *mockAccountRepository, *countingInvalidator) {
	repo := newMockAccountRepository(uidFloor)
	inv := &countingInvalidator{}
	svc := NewIdentityService(repo, inv, nil, zerolog.Nop())
	return svc, repo, inv
}

func seedAccount(t *testing.T, repo *mockAccountRepository, username, password string, activated bool) *domain.Account {
	t.Helper()
	digest, err := credential.Hash(password)
	require.NoError(t, err)
	account := domain.NewAccount(username, username, "/bin/bash", domain.LanguageEnglish, digest)
	account.Activated = activated
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

func TestIdentityService_Create(t *testing.T) {
	svc, repo, inv := newTestIdentityService(2000)

	account, err := svc.Create(context.Background(), CreateAccountInput{
		Username:          "alice",
		Name:              "Alice",
		Shell:             "/bin/zsh",
		Password:          "correct horse",
		PreferredLanguage: domain.LanguageKorean,
	})
	require.NoError(t, err)
	require.NotZero(t, account.Idx)
	require.NotNil(t, account.UID)
	require.Equal(t, int64(2000), *account.UID)
	require.Equal(t, domain.LanguageKorean, account.PreferredLanguage)
	require.True(t, strings.HasPrefix(account.PasswordDigest, "$2"))
	require.Equal(t, 1, inv.calls)

	_, err = svc.Create(context.Background(), CreateAccountInput{
		Username: "alice",
		Name:     "Alice again",
		Shell:    "/bin/sh",
		Password: "other",
	})
	require.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
	require.Len(t, repo.accounts, 1)
}

func TestIdentityService_UIDGapReuse(t *testing.T) {
	svc, repo, _ := newTestIdentityService(10)

	// Occupy 10, 11, 13: the next allocation must reuse the gap at 12.
	for _, uid := range []int64{10, 11, 13} {
		uid := uid
		account := domain.NewAccount("u", "u", "/bin/sh", domain.LanguageEnglish, "x")
		account.Idx = seedIdx(repo)
		account.UID = &uid
		repo.accounts[account.Idx] = account
	}

	account, err := svc.Create(context.Background(), CreateAccountInput{
		Username: "gapfiller",
		Name:     "Gap Filler",
		Shell:    "/bin/sh",
		Password: "pw",
	})
	require.NoError(t, err)
	require.Equal(t, int64(12), *account.UID)
}

func TestIdentityService_UIDFloorFreeUsesSuccessor(t *testing.T) {
	svc, repo, _ := newTestIdentityService(10)

	// Occupy 11 and 12 while the floor itself stays free: allocation
	// still follows the successor of an existing UID, yielding 13.
	for _, uid := range []int64{11, 12} {
		uid := uid
		account := domain.NewAccount("u", "u", "/bin/sh", domain.LanguageEnglish, "x")
		account.Idx = seedIdx(repo)
		account.UID = &uid
		repo.accounts[account.Idx] = account
	}

	account, err := svc.Create(context.Background(), CreateAccountInput{
		Username: "latecomer",
		Name:     "Latecomer",
		Shell:    "/bin/sh",
		Password: "pw",
	})
	require.NoError(t, err)
	require.Equal(t, int64(13), *account.UID)
}

// seedIdx hands out fresh idx values for directly seeded rows.
func seedIdx(repo *mockAccountRepository) int64 {
	idx := repo.nextIdx
	repo.nextIdx++
	return idx
}

func TestIdentityService_Authenticate(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		seed     func(t *testing.T, repo *mockAccountRepository)
		wantErr  error
	}{
		{
			name:     "success",
			username: "alice",
			password: "secret",
			seed: func(t *testing.T, repo *mockAccountRepository) {
				seedAccount(t, repo, "alice", "secret", true)
			},
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "not the password",
			seed: func(t *testing.T, repo *mockAccountRepository) {
				seedAccount(t, repo, "alice", "secret", true)
			},
			wantErr: domain.ErrAuthentication,
		},
		{
			name:     "unknown username",
			username: "nobody",
			password: "whatever",
			seed:     func(t *testing.T, repo *mockAccountRepository) {},
			wantErr:  domain.ErrAccountNotFound,
		},
		{
			name:     "deactivated account with correct password",
			username: "bob",
			password: "secret",
			seed: func(t *testing.T, repo *mockAccountRepository) {
				seedAccount(t, repo, "bob", "secret", false)
			},
			wantErr: domain.ErrNotActivated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestIdentityService(2000)
			tt.seed(t, repo)

			idx, err := svc.Authenticate(context.Background(), tt.username, tt.password)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			account := repo.accounts[idx]
			require.NotNil(t, account.LastLoginAt)
		})
	}
}

func TestIdentityService_Authenticate_MigratesLegacyDigest(t *testing.T) {
	svc, repo, _ := newTestIdentityService(2000)

	salt := []byte{0xde, 0xad, 0xbe, 0xef}
	legacy, err := credential.EncodeLegacy(credential.KindLegacySHA1, "old password", salt)
	require.NoError(t, err)
	account := domain.NewAccount("carol", "Carol", "/bin/bash", domain.LanguageEnglish, legacy)
	require.NoError(t, repo.Create(context.Background(), account))
	require.True(t, strings.HasPrefix(account.PasswordDigest, "legacy-sha1$"))

	idx, err := svc.Authenticate(context.Background(), "carol", "old password")
	require.NoError(t, err)
	require.Equal(t, account.Idx, idx)

	// The stored digest must now be a current one, and still verify.
	migrated := repo.accounts[idx].PasswordDigest
	require.True(t, strings.HasPrefix(migrated, "$2"))
	result, err := credential.Verify(migrated, "old password")
	require.NoError(t, err)
	require.True(t, result.Matched)
	require.False(t, result.NeedsRehash)
}

func TestIdentityService_Authenticate_LegacyWrongPassword(t *testing.T) {
	svc, repo, _ := newTestIdentityService(2000)

	legacy, err := credential.EncodeLegacy(credential.KindLegacyMD5, "old password", []byte{0x01, 0x02})
	require.NoError(t, err)
	account := domain.NewAccount("dave", "Dave", "/bin/bash", domain.LanguageEnglish, legacy)
	require.NoError(t, repo.Create(context.Background(), account))

	_, err = svc.Authenticate(context.Background(), "dave", "wrong")
	require.ErrorIs(t, err, domain.ErrAuthentication)

	// A failed attempt must never migrate the digest.
	require.Equal(t, legacy, repo.accounts[account.Idx].PasswordDigest)
}

func TestIdentityService_ChangePassword(t *testing.T) {
	svc, repo, _ := newTestIdentityService(2000)
	account := seedAccount(t, repo, "erin", "before", true)

	require.NoError(t, svc.ChangePassword(context.Background(), account.Idx, "after"))

	_, err := svc.Authenticate(context.Background(), "erin", "before")
	require.ErrorIs(t, err, domain.ErrAuthentication)
	_, err = svc.Authenticate(context.Background(), "erin", "after")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ChangePassword(context.Background(), 999, "x"), domain.ErrAccountNotFound)
}

func TestIdentityService_MutationsInvalidateProjection(t *testing.T) {
	svc, repo, inv := newTestIdentityService(2000)
	account := seedAccount(t, repo, "frank", "pw", true)
	inv.calls = 0

	require.NoError(t, svc.ChangeShell(context.Background(), account.Idx, "/bin/fish"))
	require.NoError(t, svc.SetActivated(context.Background(), account.Idx, false))
	require.NoError(t, svc.Delete(context.Background(), account.Idx))
	require.Equal(t, 3, inv.calls)

	// Password changes do not alter projected attributes.
	other := seedAccount(t, repo, "grace", "pw", true)
	inv.calls = 0
	require.NoError(t, svc.ChangePassword(context.Background(), other.Idx, "pw2"))
	require.Equal(t, 0, inv.calls)
}

func TestIdentityService_GetByUsername(t *testing.T) {
	svc, repo, _ := newTestIdentityService(2000)
	seedAccount(t, repo, "henry", "pw", true)

	account, err := svc.GetByUsername(context.Background(), "henry")
	require.NoError(t, err)
	require.Equal(t, "henry", *account.Username)

	_, err = svc.GetByUsername(context.Background(), "absent")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	// Two rows sharing a username is an integrity violation reported as
	// a miss, never resolved to either row.
	dup1 := domain.NewAccount("henry", "Henry One", "/bin/sh", domain.LanguageEnglish, "x")
	dup1.Idx = seedIdx(repo)
	repo.accounts[dup1.Idx] = dup1
	_, err = svc.GetByUsername(context.Background(), "henry")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
