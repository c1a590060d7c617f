// Package integration provides end-to-end tests for Castellan running
// against an in-memory SQLite backend with the full service stack wired.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/castellan/internal/directory"
	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/lock"
	"github.com/prn-tf/castellan/internal/repository/sqlite"
	"github.com/prn-tf/castellan/internal/service"
)

const testUIDFloor = 2000

// env bundles the fully wired service stack for a single test.
type env struct {
	identity    *service.IdentityService
	tokens      *service.TokenService
	groups      *service.GroupService
	permissions *service.PermissionService
	hosts       *service.HostService
	emails      *service.EmailService
	projector   *directory.Projector
}

// newEnv builds the complete stack on a fresh in-memory database.
func newEnv(t *testing.T) *env {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(":memory:"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))

	locker := lock.NewMemoryLocker()
	accountRepo := sqlite.NewAccountRepository(db, testUIDFloor, locker)
	groupRepo := sqlite.NewGroupRepository(db)
	hostRepo := sqlite.NewHostRepository(db)
	tokenRepo := sqlite.NewTokenRepository(db)
	emailRepo := sqlite.NewEmailRepository(db)

	projector := directory.NewProjector(accountRepo, directory.Config{
		UsersBaseDN: "ou=users,dc=example,dc=org",
		HomePrefix:  "/home",
		GIDNumber:   100,
	}, nil, logger)

	tokens := service.NewTokenService(tokenRepo, time.Hour, 24*time.Hour, nil, logger)
	identity := service.NewIdentityService(accountRepo, projector, nil, logger)
	groups := service.NewGroupService(groupRepo, logger)
	permissions := service.NewPermissionService(groupRepo, groups, logger)
	hosts := service.NewHostService(hostRepo, permissions, nil, logger)
	emails := service.NewEmailService(emailRepo, tokens, []string{"example.org"}, logger)

	return &env{
		identity:    identity,
		tokens:      tokens,
		groups:      groups,
		permissions: permissions,
		hosts:       hosts,
		emails:      emails,
		projector:   projector,
	}
}

func (e *env) createAccount(t *testing.T, username, password string) *domain.Account {
	t.Helper()
	account, err := e.identity.Create(context.Background(), service.CreateAccountInput{
		Username:          username,
		Name:              "Test " + username,
		Shell:             "/bin/bash",
		Password:          password,
		PreferredLanguage: domain.LanguageEnglish,
	})
	require.NoError(t, err)
	return account
}

func TestAccountLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	e := newEnv(t)
	ctx := context.Background()

	alice := e.createAccount(t, "alice", "s3cret-alice")
	require.NotNil(t, alice.UID)
	require.EqualValues(t, testUIDFloor, *alice.UID)

	bob := e.createAccount(t, "bob", "s3cret-bob")
	require.NotNil(t, bob.UID)
	require.EqualValues(t, testUIDFloor+1, *bob.UID)

	t.Run("DuplicateUsername", func(t *testing.T) {
		_, err := e.identity.Create(ctx, service.CreateAccountInput{
			Username: "alice",
			Name:     "Imposter",
			Shell:    "/bin/sh",
			Password: "whatever",
		})
		require.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
	})

	t.Run("UIDGapReuse", func(t *testing.T) {
		carol := e.createAccount(t, "carol", "s3cret-carol")
		dave := e.createAccount(t, "dave", "s3cret-dave")
		require.NotNil(t, dave.UID)
		require.EqualValues(t, testUIDFloor+3, *dave.UID)

		require.NoError(t, e.identity.Delete(ctx, carol.Idx))

		erin := e.createAccount(t, "erin", "s3cret-erin")
		require.NotNil(t, erin.UID)
		require.EqualValues(t, testUIDFloor+2, *erin.UID, "freed uid should be reused")
	})

	t.Run("FreeFloorStillUsesSuccessor", func(t *testing.T) {
		require.NoError(t, e.identity.Delete(ctx, alice.Idx))

		frank := e.createAccount(t, "frank", "s3cret-frank")
		require.NotNil(t, frank.UID)
		require.EqualValues(t, testUIDFloor+4, *frank.UID, "the free floor is skipped while higher uids exist")
	})

	t.Run("Authenticate", func(t *testing.T) {
		idx, err := e.identity.Authenticate(ctx, "bob", "s3cret-bob")
		require.NoError(t, err)
		require.Equal(t, bob.Idx, idx)

		_, err = e.identity.Authenticate(ctx, "bob", "wrong")
		require.ErrorIs(t, err, domain.ErrAuthentication)

		_, err = e.identity.Authenticate(ctx, "nobody", "whatever")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("DeactivatedCannotAuthenticate", func(t *testing.T) {
		require.NoError(t, e.identity.SetActivated(ctx, bob.Idx, false))

		_, err := e.identity.Authenticate(ctx, "bob", "s3cret-bob")
		require.ErrorIs(t, err, domain.ErrNotActivated)

		require.NoError(t, e.identity.SetActivated(ctx, bob.Idx, true))
		_, err = e.identity.Authenticate(ctx, "bob", "s3cret-bob")
		require.NoError(t, err)
	})
}

func TestPasswordResetFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	e := newEnv(t)
	ctx := context.Background()

	account := e.createAccount(t, "dave", "old-password")

	token, err := e.tokens.GeneratePasswordChangeToken(ctx, account.Idx)
	require.NoError(t, err)
	require.Len(t, token, 64)

	count, err := e.tokens.GetResendCount(ctx, account.Idx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	t.Run("ResendIncrementsCount", func(t *testing.T) {
		reissued, err := e.tokens.GeneratePasswordChangeToken(ctx, account.Idx)
		require.NoError(t, err)
		require.NotEqual(t, token, reissued)
		token = reissued

		count, err := e.tokens.GetResendCount(ctx, account.Idx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("RedeemChangesPassword", func(t *testing.T) {
		userIdx, err := e.tokens.GetUserIdxByPasswordToken(ctx, token)
		require.NoError(t, err)
		require.Equal(t, account.Idx, userIdx)

		require.NoError(t, e.identity.ChangePassword(ctx, userIdx, "new-password"))
		require.NoError(t, e.tokens.RemoveToken(ctx, token))

		_, err = e.identity.Authenticate(ctx, "dave", "old-password")
		require.ErrorIs(t, err, domain.ErrAuthentication)

		_, err = e.identity.Authenticate(ctx, "dave", "new-password")
		require.NoError(t, err)
	})

	t.Run("TokenIsSingleUse", func(t *testing.T) {
		_, err := e.tokens.GetUserIdxByPasswordToken(ctx, token)
		require.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

func TestGroupClosureAndHostAuthorization(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	e := newEnv(t)
	ctx := context.Background()

	account := e.createAccount(t, "erin", "s3cret-erin")

	// developers -> staff -> everyone, with a cycle back to developers.
	developers := &domain.Group{Name: "developers"}
	staff := &domain.Group{Name: "staff"}
	everyone := &domain.Group{Name: "everyone"}
	require.NoError(t, e.groups.Create(ctx, developers))
	require.NoError(t, e.groups.Create(ctx, staff))
	require.NoError(t, e.groups.Create(ctx, everyone))

	require.NoError(t, e.groups.AddRelation(ctx, developers.Idx, staff.Idx))
	require.NoError(t, e.groups.AddRelation(ctx, staff.Idx, everyone.Idx))
	require.NoError(t, e.groups.AddRelation(ctx, everyone.Idx, developers.Idx))

	require.NoError(t, e.groups.AddMembership(ctx, account.Idx, developers.Idx))

	t.Run("ReachableGroupsFollowCycleOnce", func(t *testing.T) {
		reachable, err := e.groups.UserReachableGroups(ctx, account.Idx)
		require.NoError(t, err)
		require.ElementsMatch(t, []int64{developers.Idx, staff.Idx, everyone.Idx}, reachable)
	})

	const sshPermission = int64(42)
	require.NoError(t, e.groups.GrantPermission(ctx, staff.Idx, sshPermission))

	t.Run("PermissionInheritedThroughRelations", func(t *testing.T) {
		ok, err := e.permissions.UserHasPermission(ctx, account.Idx, sshPermission)
		require.NoError(t, err)
		require.True(t, ok, "membership in developers should reach staff's grant")

		ok, err = e.permissions.UserHasPermission(ctx, account.Idx, sshPermission+1)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("HostDecisions", func(t *testing.T) {
		open := &domain.Host{Name: "open", Host: "203.0.113.10"}
		require.NoError(t, e.hosts.CreateHost(ctx, open))

		groupOnly := &domain.HostGroup{Name: "internal"}
		require.NoError(t, e.hosts.CreateHostGroup(ctx, groupOnly))
		internal := &domain.Host{Name: "internal-1", Host: "203.0.113.11", HostGroupIdx: &groupOnly.Idx}
		require.NoError(t, e.hosts.CreateHost(ctx, internal))

		perm := sshPermission
		guarded := &domain.HostGroup{Name: "bastion", RequiredPermissionIdx: &perm}
		require.NoError(t, e.hosts.CreateHostGroup(ctx, guarded))
		bastion := &domain.Host{Name: "bastion-1", Host: "2001:db8::7", HostGroupIdx: &guarded.Idx}
		require.NoError(t, e.hosts.CreateHost(ctx, bastion))

		decision, err := e.hosts.AuthorizeUserByAddress(ctx, account.Idx, "203.0.113.10")
		require.NoError(t, err)
		require.Equal(t, domain.HostAccessUnrestricted, decision)

		decision, err = e.hosts.AuthorizeUserByAddress(ctx, account.Idx, "203.0.113.11")
		require.NoError(t, err)
		require.Equal(t, domain.HostAccessGroupOnly, decision)

		// Address lookup goes through normalization: the expanded IPv6
		// form must resolve to the host stored in compact form.
		decision, err = e.hosts.AuthorizeUserByAddress(ctx, account.Idx, "2001:0db8:0000:0000:0000:0000:0000:0007")
		require.NoError(t, err)
		require.Equal(t, domain.HostAccessPermission, decision)
	})

	t.Run("DeniedWithoutPermission", func(t *testing.T) {
		outsider := e.createAccount(t, "frank", "s3cret-frank")

		_, err := e.hosts.AuthorizeUserByAddress(ctx, outsider.Idx, "2001:db8::7")
		require.ErrorIs(t, err, domain.ErrAuthorization)
	})
}

func TestEmailVerificationFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	e := newEnv(t)
	ctx := context.Background()

	account := e.createAccount(t, "grace", "s3cret-grace")

	email, token, err := e.emails.Register(ctx, "grace.h", "EXAMPLE.ORG", &account.Idx)
	require.NoError(t, err)
	require.False(t, email.Verified)
	require.Equal(t, "example.org", email.AddressDomain)

	t.Run("DisallowedDomain", func(t *testing.T) {
		_, _, err := e.emails.Register(ctx, "grace.h", "evil.example.net", &account.Idx)
		require.ErrorIs(t, err, domain.ErrDomainNotAllowed)
	})

	t.Run("VerifyConsumesToken", func(t *testing.T) {
		verified, err := e.emails.Verify(ctx, token)
		require.NoError(t, err)
		require.True(t, verified.Verified)
		require.Equal(t, email.Idx, verified.Idx)

		_, err = e.emails.Verify(ctx, token)
		require.ErrorIs(t, err, domain.ErrTokenNotFound)
	})
}

func TestDirectoryProjection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	e := newEnv(t)
	ctx := context.Background()

	account := e.createAccount(t, "heidi", "s3cret-heidi")

	entries, err := e.projector.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	require.Equal(t, "cn=heidi,ou=users,dc=example,dc=org", entry.DN)
	require.Equal(t, []string{"heidi"}, entry.Attributes[directory.AttrUID])
	require.Equal(t, []string{"/home/heidi"}, entry.Attributes[directory.AttrHomeDirectory])
	require.Equal(t, []string{"/bin/bash"}, entry.Attributes[directory.AttrLoginShell])

	t.Run("MutationRefreshesProjection", func(t *testing.T) {
		require.NoError(t, e.identity.ChangeShell(ctx, account.Idx, "/bin/zsh"))

		entries, err := e.projector.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, []string{"/bin/zsh"}, entries[0].Attributes[directory.AttrLoginShell])
	})

	t.Run("DeletedAccountDisappears", func(t *testing.T) {
		require.NoError(t, e.identity.Delete(ctx, account.Idx))

		entries, err := e.projector.Entries(ctx)
		require.NoError(t, err)
		require.Empty(t, entries)

		_, err = e.projector.FindByUsername(ctx, "heidi")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}
