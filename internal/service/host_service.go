package service

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// HostService owns host and host group management plus the three-state
// host authorization rule.
type HostService struct {
	hosts       repository.HostRepository
	permissions PermissionChecker
	recorder    EventRecorder
	logger      zerolog.Logger
}

func NewHostService(hosts repository.HostRepository, permissions PermissionChecker, recorder EventRecorder, logger zerolog.Logger) *HostService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &HostService{
		hosts:       hosts,
		permissions: permissions,
		recorder:    recorder,
		logger:      logger.With().Str("service", "host").Logger(),
	}
}

// normalizeAddress canonicalizes a network address so that equivalent
// spellings compare equal ("::1" vs "0:0:0:0:0:0:0:1"). Non-IP inputs
// pass through unchanged; hosts may be registered by name.
func normalizeAddress(address string) string {
	if addr, err := netip.ParseAddr(address); err == nil {
		return addr.String()
	}
	return address
}

func (s *HostService) CreateHost(ctx context.Context, host *domain.Host) error {
	host.Host = normalizeAddress(host.Host)
	if host.HostGroupIdx != nil {
		if _, err := s.GetHostGroupByIdx(ctx, *host.HostGroupIdx); err != nil {
			return err
		}
	}
	if err := s.hosts.CreateHost(ctx, host); err != nil {
		return fmt.Errorf("creating host: %w", err)
	}
	s.logger.Info().Int64("idx", host.Idx).Str("host", host.Host).Msg("host created")
	return nil
}

func (s *HostService) GetHostByIdx(ctx context.Context, idx int64) (*domain.Host, error) {
	host, err := s.hosts.GetHostByIdx(ctx, idx)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrHostNotFound)
	}
	return host, nil
}

func (s *HostService) GetHostByInet(ctx context.Context, address string) (*domain.Host, error) {
	host, err := s.hosts.GetHostByInet(ctx, normalizeAddress(address))
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrHostNotFound)
	}
	return host, nil
}

func (s *HostService) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return s.hosts.ListHosts(ctx)
}

func (s *HostService) UpdateHost(ctx context.Context, host *domain.Host) error {
	host.Host = normalizeAddress(host.Host)
	if err := s.hosts.UpdateHost(ctx, host); err != nil {
		return mapRepoErr(err, domain.ErrHostNotFound)
	}
	return nil
}

func (s *HostService) DeleteHost(ctx context.Context, idx int64) error {
	if err := s.hosts.DeleteHost(ctx, idx); err != nil {
		return mapRepoErr(err, domain.ErrHostNotFound)
	}
	return nil
}

func (s *HostService) CreateHostGroup(ctx context.Context, group *domain.HostGroup) error {
	if err := s.hosts.CreateHostGroup(ctx, group); err != nil {
		return fmt.Errorf("creating host group: %w", err)
	}
	return nil
}

func (s *HostService) GetHostGroupByIdx(ctx context.Context, idx int64) (*domain.HostGroup, error) {
	group, err := s.hosts.GetHostGroupByIdx(ctx, idx)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrHostGroupNotFound)
	}
	return group, nil
}

func (s *HostService) DeleteHostGroup(ctx context.Context, idx int64) error {
	if err := s.hosts.DeleteHostGroup(ctx, idx); err != nil {
		return mapRepoErr(err, domain.ErrHostGroupNotFound)
	}
	return nil
}

// AuthorizeUserByHost decides whether a user may access a host.
// Ungrouped hosts admit everyone; a grouped host without a required
// permission admits any user; otherwise the user must hold the group's
// required permission. The decision reports which rule admitted the
// user; denial is ErrAuthorization.
func (s *HostService) AuthorizeUserByHost(ctx context.Context, userIdx int64, host *domain.Host) (domain.HostAccessDecision, error) {
	if host.Unrestricted() {
		s.recorder.RecordHostDecision(string(domain.HostAccessUnrestricted))
		return domain.HostAccessUnrestricted, nil
	}

	group, err := s.GetHostGroupByIdx(ctx, *host.HostGroupIdx)
	if err != nil {
		return "", err
	}
	if group.RequiredPermissionIdx == nil {
		s.recorder.RecordHostDecision(string(domain.HostAccessGroupOnly))
		return domain.HostAccessGroupOnly, nil
	}

	ok, err := s.permissions.UserHasPermission(ctx, userIdx, *group.RequiredPermissionIdx)
	if err != nil {
		return "", fmt.Errorf("checking permission: %w", err)
	}
	if !ok {
		s.recorder.RecordHostDecision("denied")
		s.logger.Info().Int64("user_idx", userIdx).Int64("host_idx", host.Idx).Msg("host access denied")
		return "", domain.ErrAuthorization
	}
	s.recorder.RecordHostDecision(string(domain.HostAccessPermission))
	return domain.HostAccessPermission, nil
}

// AuthorizeUserByAddress resolves a host by network address and runs
// the authorization rule against it.
func (s *HostService) AuthorizeUserByAddress(ctx context.Context, userIdx int64, address string) (domain.HostAccessDecision, error) {
	host, err := s.GetHostByInet(ctx, address)
	if err != nil {
		return "", err
	}
	return s.AuthorizeUserByHost(ctx, userIdx, host)
}
