package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// =============================================================================
// Mock Types
// =============================================================================

type mockHostRepository struct {
	mock.Mock
}

func (m *mockHostRepository) CreateHost(ctx context.Context, host *domain.Host) error {
	args := m.Called(ctx, host)
	return args.Error(0)
}

func (m *mockHostRepository) GetHostByIdx(ctx context.Context, idx int64) (*domain.Host, error) {
	args := m.Called(ctx, idx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Host), args.Error(1)
}

func (m *mockHostRepository) GetHostByInet(ctx context.Context, address string) (*domain.Host, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Host), args.Error(1)
}

func (m *mockHostRepository) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Host), args.Error(1)
}

func (m *mockHostRepository) UpdateHost(ctx context.Context, host *domain.Host) error {
	args := m.Called(ctx, host)
	return args.Error(0)
}

func (m *mockHostRepository) DeleteHost(ctx context.Context, idx int64) error {
	args := m.Called(ctx, idx)
	return args.Error(0)
}

func (m *mockHostRepository) CreateHostGroup(ctx context.Context, group *domain.HostGroup) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *mockHostRepository) GetHostGroupByIdx(ctx context.Context, idx int64) (*domain.HostGroup, error) {
	args := m.Called(ctx, idx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HostGroup), args.Error(1)
}

func (m *mockHostRepository) DeleteHostGroup(ctx context.Context, idx int64) error {
	args := m.Called(ctx, idx)
	return args.Error(0)
}

var _ repository.HostRepository = (*mockHostRepository)(nil)

// stubChecker answers every permission check with a fixed result.
type stubChecker struct {
	allowed bool
	err     error
}

func (s *stubChecker) UserHasPermission(ctx context.Context, userIdx, permissionIdx int64) (bool, error) {
	return s.allowed, s.err
}

func newTestHostService(checker PermissionChecker) (*HostService, *mockHostRepository) {
	repo := new(mockHostRepository)
	svc := NewHostService(repo, checker, nil, zerolog.Nop())
	return svc, repo
}

func int64Ptr(v int64) *int64 { return &v }

// =============================================================================
// Authorization Tests
// =============================================================================

func TestHostService_AuthorizeUserByHost_Unrestricted(t *testing.T) {
	svc, _ := newTestHostService(&stubChecker{allowed: false})

	host := &domain.Host{Idx: 1, Name: "anyone", Host: "10.0.0.1"}

	decision, err := svc.AuthorizeUserByHost(context.Background(), 10, host)
	require.NoError(t, err)
	require.Equal(t, domain.HostAccessUnrestricted, decision)
}

func TestHostService_AuthorizeUserByHost_GroupOnly(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{allowed: false})

	host := &domain.Host{Idx: 1, Name: "grouped", Host: "10.0.0.2", HostGroupIdx: int64Ptr(3)}
	repo.On("GetHostGroupByIdx", mock.Anything, int64(3)).Return(&domain.HostGroup{
		Idx:  3,
		Name: "internal",
	}, nil)

	decision, err := svc.AuthorizeUserByHost(context.Background(), 10, host)
	require.NoError(t, err)
	require.Equal(t, domain.HostAccessGroupOnly, decision)
}

func TestHostService_AuthorizeUserByHost_PermissionGranted(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{allowed: true})

	host := &domain.Host{Idx: 1, Name: "restricted", Host: "10.0.0.3", HostGroupIdx: int64Ptr(3)}
	repo.On("GetHostGroupByIdx", mock.Anything, int64(3)).Return(&domain.HostGroup{
		Idx:                   3,
		Name:                  "restricted",
		RequiredPermissionIdx: int64Ptr(7),
	}, nil)

	decision, err := svc.AuthorizeUserByHost(context.Background(), 10, host)
	require.NoError(t, err)
	require.Equal(t, domain.HostAccessPermission, decision)
}

func TestHostService_AuthorizeUserByHost_PermissionDenied(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{allowed: false})

	host := &domain.Host{Idx: 1, Name: "restricted", Host: "10.0.0.3", HostGroupIdx: int64Ptr(3)}
	repo.On("GetHostGroupByIdx", mock.Anything, int64(3)).Return(&domain.HostGroup{
		Idx:                   3,
		Name:                  "restricted",
		RequiredPermissionIdx: int64Ptr(7),
	}, nil)

	_, err := svc.AuthorizeUserByHost(context.Background(), 10, host)
	require.ErrorIs(t, err, domain.ErrAuthorization)
}

func TestHostService_AuthorizeUserByHost_GroupMissing(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{allowed: true})

	host := &domain.Host{Idx: 1, Name: "orphan", Host: "10.0.0.4", HostGroupIdx: int64Ptr(9)}
	repo.On("GetHostGroupByIdx", mock.Anything, int64(9)).Return(nil, repository.ErrNotFound)

	_, err := svc.AuthorizeUserByHost(context.Background(), 10, host)
	require.ErrorIs(t, err, domain.ErrHostGroupNotFound)
}

func TestHostService_AuthorizeUserByAddress(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{allowed: false})

	repo.On("GetHostByInet", mock.Anything, "10.0.0.1").Return(&domain.Host{
		Idx:  1,
		Name: "open",
		Host: "10.0.0.1",
	}, nil)

	decision, err := svc.AuthorizeUserByAddress(context.Background(), 10, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, domain.HostAccessUnrestricted, decision)

	repo.On("GetHostByInet", mock.Anything, "10.9.9.9").Return(nil, repository.ErrNotFound)
	_, err = svc.AuthorizeUserByAddress(context.Background(), 10, "10.9.9.9")
	require.ErrorIs(t, err, domain.ErrHostNotFound)
}

// =============================================================================
// Address Normalization Tests
// =============================================================================

func TestHostService_GetHostByInet_NormalizesAddress(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{})

	// Lookups canonicalize before hitting the store, so alternative
	// spellings of the same address resolve to the same host.
	repo.On("GetHostByInet", mock.Anything, "::1").Return(&domain.Host{
		Idx:  1,
		Name: "loopback",
		Host: "::1",
	}, nil)

	host, err := svc.GetHostByInet(context.Background(), "0:0:0:0:0:0:0:1")
	require.NoError(t, err)
	require.Equal(t, "loopback", host.Name)
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.1", "10.0.0.1"},
		{"0:0:0:0:0:0:0:1", "::1"},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{"db.internal", "db.internal"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, normalizeAddress(tt.in), "input %q", tt.in)
	}
}

func TestHostService_CreateHost_GroupMustExist(t *testing.T) {
	svc, repo := newTestHostService(&stubChecker{})

	repo.On("GetHostGroupByIdx", mock.Anything, int64(5)).Return(nil, repository.ErrNotFound)

	err := svc.CreateHost(context.Background(), &domain.Host{
		Name:         "bad",
		Host:         "10.0.0.8",
		HostGroupIdx: int64Ptr(5),
	})
	require.ErrorIs(t, err, domain.ErrHostGroupNotFound)
}
