package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// GroupService owns group membership and the transitive closure over
// the group-of-group graph.
type GroupService struct {
	groups repository.GroupRepository
	logger zerolog.Logger
}

func NewGroupService(groups repository.GroupRepository, logger zerolog.Logger) *GroupService {
	return &GroupService{
		groups: groups,
		logger: logger.With().Str("service", "group").Logger(),
	}
}

func (s *GroupService) GetByIdx(ctx context.Context, idx int64) (*domain.Group, error) {
	group, err := s.groups.GetByIdx(ctx, idx)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrGroupNotFound)
	}
	return group, nil
}

func (s *GroupService) Create(ctx context.Context, group *domain.Group) error {
	if err := s.groups.Create(ctx, group); err != nil {
		return fmt.Errorf("creating group: %w", err)
	}
	s.logger.Info().Int64("idx", group.Idx).Str("name", group.Name).Msg("group created")
	return nil
}

func (s *GroupService) Delete(ctx context.Context, idx int64) error {
	if err := s.groups.Delete(ctx, idx); err != nil {
		return mapRepoErr(err, domain.ErrGroupNotFound)
	}
	return nil
}

func (s *GroupService) AddMembership(ctx context.Context, userIdx, groupIdx int64) error {
	if _, err := s.GetByIdx(ctx, groupIdx); err != nil {
		return err
	}
	return s.groups.AddMembership(ctx, userIdx, groupIdx)
}

func (s *GroupService) RemoveMembership(ctx context.Context, userIdx, groupIdx int64) error {
	return s.groups.RemoveMembership(ctx, userIdx, groupIdx)
}

func (s *GroupService) AddRelation(ctx context.Context, groupIdx, parentIdx int64) error {
	return s.groups.AddRelation(ctx, groupIdx, parentIdx)
}

func (s *GroupService) GrantPermission(ctx context.Context, groupIdx, permissionIdx int64) error {
	return s.groups.GrantPermission(ctx, groupIdx, permissionIdx)
}

// ReachableGroups returns the transitive closure of group membership
// starting from start: the group itself plus every group reachable by
// following member-of edges. Cycles in the relation graph terminate
// because visited groups are never expanded twice.
func (s *GroupService) ReachableGroups(ctx context.Context, start int64) ([]int64, error) {
	visited := map[int64]bool{start: true}
	queue := []int64{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		parents, err := s.groups.ListParentGroups(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("listing parent groups of %d: %w", current, err)
		}
		for _, parent := range parents {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			queue = append(queue, parent)
		}
	}

	result := make([]int64, 0, len(visited))
	for idx := range visited {
		result = append(result, idx)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// UserReachableGroups returns every group a user belongs to, directly
// or through the group graph. A user with no direct memberships at all
// yields ErrGroupNotFound rather than an empty set.
func (s *GroupService) UserReachableGroups(ctx context.Context, userIdx int64) ([]int64, error) {
	memberships, err := s.groups.ListMembershipsByUser(ctx, userIdx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("listing memberships of user %d: %w", userIdx, err)
	}
	if len(memberships) == 0 {
		return nil, domain.ErrGroupNotFound
	}

	visited := map[int64]bool{}
	for _, m := range memberships {
		reachable, err := s.ReachableGroups(ctx, m.GroupIdx)
		if err != nil {
			return nil, err
		}
		for _, idx := range reachable {
			visited[idx] = true
		}
	}

	result := make([]int64, 0, len(visited))
	for idx := range visited {
		result = append(result, idx)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}
