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

type mockGroupRepository struct {
	mock.Mock
}

func (m *mockGroupRepository) GetByIdx(ctx context.Context, idx int64) (*domain.Group, error) {
	args := m.Called(ctx, idx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

func (m *mockGroupRepository) Create(ctx context.Context, group *domain.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *mockGroupRepository) Delete(ctx context.Context, idx int64) error {
	args := m.Called(ctx, idx)
	return args.Error(0)
}

func (m *mockGroupRepository) ListMembershipsByUser(ctx context.Context, userIdx int64) ([]*domain.GroupMembership, error) {
	args := m.Called(ctx, userIdx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.GroupMembership), args.Error(1)
}

func (m *mockGroupRepository) AddMembership(ctx context.Context, userIdx, groupIdx int64) error {
	args := m.Called(ctx, userIdx, groupIdx)
	return args.Error(0)
}

func (m *mockGroupRepository) RemoveMembership(ctx context.Context, userIdx, groupIdx int64) error {
	args := m.Called(ctx, userIdx, groupIdx)
	return args.Error(0)
}

func (m *mockGroupRepository) ListParentGroups(ctx context.Context, groupIdx int64) ([]int64, error) {
	args := m.Called(ctx, groupIdx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockGroupRepository) AddRelation(ctx context.Context, groupIdx, parentIdx int64) error {
	args := m.Called(ctx, groupIdx, parentIdx)
	return args.Error(0)
}

func (m *mockGroupRepository) GroupsGrantingPermission(ctx context.Context, permissionIdx int64) ([]int64, error) {
	args := m.Called(ctx, permissionIdx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockGroupRepository) GrantPermission(ctx context.Context, groupIdx, permissionIdx int64) error {
	args := m.Called(ctx, groupIdx, permissionIdx)
	return args.Error(0)
}

var _ repository.GroupRepository = (*mockGroupRepository)(nil)

func newTestGroupService() (*GroupService, *mockGroupRepository) {
	repo := new(mockGroupRepository)
	svc := NewGroupService(repo, zerolog.Nop())
	return svc, repo
}

// =============================================================================
// Reachability Tests
// =============================================================================

func TestGroupService_ReachableGroups_Chain(t *testing.T) {
	svc, repo := newTestGroupService()

	// 1 is a member of 2, 2 is a member of 3.
	repo.On("ListParentGroups", mock.Anything, int64(1)).Return([]int64{2}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(2)).Return([]int64{3}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(3)).Return([]int64{}, nil)

	reachable, err := svc.ReachableGroups(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, reachable)
}

func TestGroupService_ReachableGroups_CycleTerminates(t *testing.T) {
	svc, repo := newTestGroupService()

	// 1 and 2 are members of each other.
	repo.On("ListParentGroups", mock.Anything, int64(1)).Return([]int64{2}, nil).Once()
	repo.On("ListParentGroups", mock.Anything, int64(2)).Return([]int64{1}, nil).Once()

	reachable, err := svc.ReachableGroups(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, reachable)
	repo.AssertExpectations(t)
}

func TestGroupService_ReachableGroups_SelfLoop(t *testing.T) {
	svc, repo := newTestGroupService()

	repo.On("ListParentGroups", mock.Anything, int64(5)).Return([]int64{5}, nil).Once()

	reachable, err := svc.ReachableGroups(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []int64{5}, reachable)
	repo.AssertExpectations(t)
}

func TestGroupService_UserReachableGroups(t *testing.T) {
	svc, repo := newTestGroupService()

	// User belongs to 1 and 4; 1 rolls up into 2, 4 into 2 as well.
	// The union must contain each group once.
	repo.On("ListMembershipsByUser", mock.Anything, int64(10)).Return([]*domain.GroupMembership{
		{UserIdx: 10, GroupIdx: 1},
		{UserIdx: 10, GroupIdx: 4},
	}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(1)).Return([]int64{2}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(2)).Return([]int64{}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(4)).Return([]int64{2}, nil)

	reachable, err := svc.UserReachableGroups(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 4}, reachable)
}

func TestGroupService_UserReachableGroups_NoMemberships(t *testing.T) {
	svc, repo := newTestGroupService()

	repo.On("ListMembershipsByUser", mock.Anything, int64(10)).Return([]*domain.GroupMembership{}, nil)

	_, err := svc.UserReachableGroups(context.Background(), 10)
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestGroupService_UserReachableGroups_DuplicateMemberships(t *testing.T) {
	svc, repo := newTestGroupService()

	// The store allows duplicate membership rows; the reachable set must
	// still contain the group once.
	repo.On("ListMembershipsByUser", mock.Anything, int64(10)).Return([]*domain.GroupMembership{
		{UserIdx: 10, GroupIdx: 1},
		{UserIdx: 10, GroupIdx: 1},
	}, nil)
	repo.On("ListParentGroups", mock.Anything, int64(1)).Return([]int64{}, nil)

	reachable, err := svc.UserReachableGroups(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, reachable)
}

func TestGroupService_AddMembership_GroupMustExist(t *testing.T) {
	svc, repo := newTestGroupService()

	repo.On("GetByIdx", mock.Anything, int64(99)).Return(nil, repository.ErrNotFound)

	err := svc.AddMembership(context.Background(), 1, 99)
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}
