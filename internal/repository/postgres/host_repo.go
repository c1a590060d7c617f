package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// hostRepository implements repository.HostRepository for PostgreSQL.
type hostRepository struct {
	db *DB
}

// NewHostRepository creates a new PostgreSQL host repository.
func NewHostRepository(db *DB) repository.HostRepository {
	return &hostRepository{db: db}
}

// CreateHost inserts a new host.
func (r *hostRepository) CreateHost(ctx context.Context, host *domain.Host) error {
	query := `
		INSERT INTO hosts (name, host, host_group_idx)
		VALUES ($1, $2, $3)
		RETURNING idx
	`

	err := r.db.Pool.QueryRow(ctx, query, host.Name, host.Host, host.HostGroupIdx).Scan(&host.Idx)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	return nil
}

// GetHostByIdx retrieves a host by idx.
func (r *hostRepository) GetHostByIdx(ctx context.Context, idx int64) (*domain.Host, error) {
	query := `SELECT idx, name, host, host_group_idx FROM hosts WHERE idx = $1`

	host := &domain.Host{}
	err := r.db.Pool.QueryRow(ctx, query, idx).Scan(&host.Idx, &host.Name, &host.Host, &host.HostGroupIdx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return host, nil
}

// GetHostByInet retrieves a host by normalized network address.
func (r *hostRepository) GetHostByInet(ctx context.Context, address string) (*domain.Host, error) {
	query := `SELECT idx, name, host, host_group_idx FROM hosts WHERE host = $1`

	host := &domain.Host{}
	err := r.db.Pool.QueryRow(ctx, query, address).Scan(&host.Idx, &host.Name, &host.Host, &host.HostGroupIdx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get host by address: %w", err)
	}
	return host, nil
}

// ListHosts returns every host, ordered by idx.
func (r *hostRepository) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	query := `SELECT idx, name, host, host_group_idx FROM hosts ORDER BY idx`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*domain.Host
	for rows.Next() {
		host := &domain.Host{}
		if err := rows.Scan(&host.Idx, &host.Name, &host.Host, &host.HostGroupIdx); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
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
	query := `UPDATE hosts SET name = $1, host = $2, host_group_idx = $3 WHERE idx = $4`

	tag, err := r.db.Pool.Exec(ctx, query, host.Name, host.Host, host.HostGroupIdx, host.Idx)
	if err != nil {
		return fmt.Errorf("failed to update host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteHost removes a host by idx.
func (r *hostRepository) DeleteHost(ctx context.Context, idx int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM hosts WHERE idx = $1`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateHostGroup inserts a new host group.
func (r *hostRepository) CreateHostGroup(ctx context.Context, group *domain.HostGroup) error {
	query := `
		INSERT INTO host_groups (name, required_permission_idx)
		VALUES ($1, $2)
		RETURNING idx
	`

	err := r.db.Pool.QueryRow(ctx, query, group.Name, group.RequiredPermissionIdx).Scan(&group.Idx)
	if err != nil {
		return fmt.Errorf("failed to create host group: %w", err)
	}
	return nil
}

// GetHostGroupByIdx retrieves a host group by idx.
func (r *hostRepository) GetHostGroupByIdx(ctx context.Context, idx int64) (*domain.HostGroup, error) {
	query := `SELECT idx, name, required_permission_idx FROM host_groups WHERE idx = $1`

	group := &domain.HostGroup{}
	err := r.db.Pool.QueryRow(ctx, query, idx).Scan(&group.Idx, &group.Name, &group.RequiredPermissionIdx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get host group: %w", err)
	}
	return group, nil
}

// DeleteHostGroup removes a host group by idx.
func (r *hostRepository) DeleteHostGroup(ctx context.Context, idx int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM host_groups WHERE idx = $1`, idx)
	if err != nil {
		return fmt.Errorf("failed to delete host group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure hostRepository implements repository.HostRepository.
var _ repository.HostRepository = (*hostRepository)(nil)
