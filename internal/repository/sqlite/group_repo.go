package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// groupRepository implements repository.GroupRepository for SQLite.
type groupRepository struct {
	db *DB
}

// NewGroupRepository creates a new SQLite group repository.
func NewGroupRepository(db *DB) repository.GroupRepository {
	return &groupRepository{db: db}
}

// GetByIdx retrieves a group by idx.
func (r *groupRepository) GetByIdx(ctx context.Context, idx int64) (*domain.Group, error) {
	query := `SELECT idx, name, description FROM groups WHERE idx = ?`

	group := &domain.Group{}
	err := r.db.QueryRowContext(ctx, query, idx).Scan(&group.Idx, &group.Name, &group.Description)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// Create inserts a new group.
func (r *groupRepository) Create(ctx context.Context, group *domain.Group) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (name, description) VALUES (?, ?)`,
		group.Name, group.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	idx, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	group.Idx = idx
	return nil
}

// Delete removes a group by idx.
func (r *groupRepository) Delete(ctx context.Context, idx int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE idx = ?`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListMembershipsByUser returns every direct membership row for a user,
// duplicates included.
func (r *groupRepository) ListMembershipsByUser(ctx context.Context, userIdx int64) ([]*domain.GroupMembership, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_idx, group_idx FROM group_members WHERE user_idx = ?`, userIdx)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*domain.GroupMembership
	for rows.Next() {
		m := &domain.GroupMembership{}
		if err := rows.Scan(&m.UserIdx, &m.GroupIdx); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return memberships, nil
}

// AddMembership inserts a direct membership row. Duplicates are allowed.
func (r *groupRepository) AddMembership(ctx context.Context, userIdx, groupIdx int64) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (user_idx, group_idx) VALUES (?, ?)`,
		userIdx, groupIdx,
	); err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// RemoveMembership deletes all membership rows for the pair.
func (r *groupRepository) RemoveMembership(ctx context.Context, userIdx, groupIdx int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE user_idx = ? AND group_idx = ?`,
		userIdx, groupIdx,
	)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListParentGroups returns the groups the given group is directly a member of.
func (r *groupRepository) ListParentGroups(ctx context.Context, groupIdx int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT parent_idx FROM group_relations WHERE group_idx = ?`, groupIdx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parent groups: %w", err)
	}
	defer rows.Close()

	var parents []int64
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan parent group: %w", err)
		}
		parents = append(parents, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parent groups: %w", err)
	}
	return parents, nil
}

// AddRelation records that group is a member of parent.
func (r *groupRepository) AddRelation(ctx context.Context, groupIdx, parentIdx int64) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_relations (group_idx, parent_idx) VALUES (?, ?)`,
		groupIdx, parentIdx,
	); err != nil {
		return fmt.Errorf("failed to add group relation: %w", err)
	}
	return nil
}

// GroupsGrantingPermission returns every group granting the permission.
func (r *groupRepository) GroupsGrantingPermission(ctx context.Context, permissionIdx int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_idx FROM group_permissions WHERE permission_idx = ?`, permissionIdx)
	if err != nil {
		return nil, fmt.Errorf("failed to list granting groups: %w", err)
	}
	defer rows.Close()

	var groups []int64
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan granting group: %w", err)
		}
		groups = append(groups, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating granting groups: %w", err)
	}
	return groups, nil
}

// GrantPermission records that a group grants a permission.
func (r *groupRepository) GrantPermission(ctx context.Context, groupIdx, permissionIdx int64) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_permissions (group_idx, permission_idx) VALUES (?, ?)`,
		groupIdx, permissionIdx,
	); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// Ensure groupRepository implements repository.GroupRepository.
var _ repository.GroupRepository = (*groupRepository)(nil)
