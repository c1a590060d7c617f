package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// hostRepository implements repository.HostRepository for SQLite.
type hostRepository struct {
	db *DB
}

// NewHostRepository creates a new SQLite host repository.
func NewHostRepository(db *DB) repository.HostRepository {
	return &hostRepository{db: db}
}

// CreateHost inserts a new host.
func (r *hostRepository) CreateHost(ctx context.Context, host *domain.Host) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO hosts (name, host, host_group_idx) VALUES (?, ?, ?)`,
		host.Name, host.Host, host.HostGroupIdx,
	)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}

	idx, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	host.Idx = idx
	return nil
}

// GetHostByIdx retrieves a host by idx.
func (r *hostRepository) GetHostByIdx(ctx context.Context, idx int64) (*domain.Host, error) {
	return r.getHost(ctx, `SELECT idx, name, host, host_group_idx FROM hosts WHERE idx = ?`, idx)
}

// GetHostByInet retrieves a host by normalized network address.
func (r *hostRepository) GetHostByInet(ctx context.Context, address string) (*domain.Host, error) {
	return r.getHost(ctx, `SELECT idx, name, host, host_group_idx FROM hosts WHERE host = ?`, address)
}

func (r *hostRepository) getHost(ctx context.Context, query string, arg interface{}) (*domain.Host, error) {
	host := &domain.Host{}
	var groupIdx sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&host.Idx, &host.Name, &host.Host, &groupIdx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	if groupIdx.Valid {
		host.HostGroupIdx = &groupIdx.Int64
	}
	return host, nil
}

// ListHosts returns every host, ordered by idx.
func (r *hostRepository) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT idx, name, host, host_group_idx FROM hosts ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*domain.Host
	for rows.Next() {
		host := &domain.Host{}
		var groupIdx sql.NullInt64
		if err := rows.Scan(&host.Idx, &host.Name, &host.Host, &groupIdx); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		if groupIdx.Valid {
			host.HostGroupIdx = &groupIdx.Int64
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hosts: %w", err)
	}
	return hosts, nil
}

// UpdateHost updates an existing host.
func (r *hostRepository) UpdateHost(ctx context.Context, host *domain.Host) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE hosts SET name = ?, host = ?, host_group_idx = ? WHERE idx = ?`,
		host.Name, host.Host, host.HostGroupIdx, host.Idx,
	)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteHost removes a host by idx.
func (r *hostRepository) DeleteHost(ctx context.Context, idx int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM hosts WHERE idx = ?`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateHostGroup inserts a new host group.
func (r *hostRepository) CreateHostGroup(ctx context.Context, group *domain.HostGroup) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO host_groups (name, required_permission_idx) VALUES (?, ?)`,
		group.Name, group.RequiredPermissionIdx,
	)
	if err != nil {
		return fmt.Errorf("failed to create host group: %w", err)
	}

	idx, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	group.Idx = idx
	return nil
}

// GetHostGroupByIdx retrieves a host group by idx.
func (r *hostRepository) GetHostGroupByIdx(ctx context.Context, idx int64) (*domain.HostGroup, error) {
	group := &domain.HostGroup{}
	var permIdx sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT idx, name, required_permission_idx FROM host_groups WHERE idx = ?`, idx,
	).Scan(&group.Idx, &group.Name, &permIdx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get host group: %w", err)
	}
	if permIdx.Valid {
		group.RequiredPermissionIdx = &permIdx.Int64
	}
	return group, nil
}

// DeleteHostGroup removes a host group by idx.
func (r *hostRepository) DeleteHostGroup(ctx context.Context, idx int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM host_groups WHERE idx = ?`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete host group: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure hostRepository implements repository.HostRepository.
var _ repository.HostRepository = (*hostRepository)(nil)
