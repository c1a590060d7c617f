package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// PermissionChecker answers whether a user holds a permission. The
// host service depends on this interface rather than the concrete
// implementation so authorization decisions stay testable in isolation.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userIdx, permissionIdx int64) (bool, error)
}

// PermissionService resolves permissions through group membership: a
// user holds a permission when any group in their reachable set grants it.
type PermissionService struct {
	groups   repository.GroupRepository
	groupSvc *GroupService
	logger   zerolog.Logger
}

func NewPermissionService(groups repository.GroupRepository, groupSvc *GroupService, logger zerolog.Logger) *PermissionService {
	return &PermissionService{
		groups:   groups,
		groupSvc: groupSvc,
		logger:   logger.With().Str("service", "permission").Logger(),
	}
}

// UserHasPermission reports whether the user's reachable group set
// intersects the set of groups granting the permission. A user with no
// memberships holds nothing.
func (s *PermissionService) UserHasPermission(ctx context.Context, userIdx, permissionIdx int64) (bool, error) {
	reachable, err := s.groupSvc.UserReachableGroups(ctx, userIdx)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			return false, nil
		}
		return false, err
	}

	granting, err := s.groups.GroupsGrantingPermission(ctx, permissionIdx)
	if err != nil {
		return false, fmt.Errorf("listing granting groups: %w", err)
	}

	grantingSet := make(map[int64]bool, len(granting))
	for _, idx := range granting {
		grantingSet[idx] = true
	}
	for _, idx := range reachable {
		if grantingSet[idx] {
			return true, nil
		}
	}
	return false, nil
}

// Ensure PermissionService implements PermissionChecker.
var _ PermissionChecker = (*PermissionService)(nil)
