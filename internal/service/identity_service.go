package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/credential"
	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// ProjectionInvalidator marks derived directory state as stale. The
// identity service calls it whenever an account mutation could change
// the projected entries.
type ProjectionInvalidator interface {
	Invalidate()
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

// IdentityService owns the account lifecycle and credential
// verification, including one-shot migration of legacy digests.
type IdentityService struct {
	accounts   repository.AccountRepository
	projection ProjectionInvalidator
	recorder   EventRecorder
	logger     zerolog.Logger
}

func NewIdentityService(accounts repository.AccountRepository, projection ProjectionInvalidator, recorder EventRecorder, logger zerolog.Logger) *IdentityService {
	if projection == nil {
		projection = noopInvalidator{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &IdentityService{
		accounts:   accounts,
		projection: projection,
		recorder:   recorder,
		logger:     logger.With().Str("service", "identity").Logger(),
	}
}

// CreateAccountInput carries the caller-supplied fields for a new
// account. The UID is allocated by the repository, never by the caller.
type CreateAccountInput struct {
	Username          string
	Name              string
	Shell             string
	Password          string
	PreferredLanguage domain.Language
}

func (s *IdentityService) Create(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if !input.PreferredLanguage.Valid() {
		input.PreferredLanguage = domain.LanguageEnglish
	}
	digest, err := credential.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account := domain.NewAccount(input.Username, input.Name, input.Shell, input.PreferredLanguage, digest)
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.ErrAccountAlreadyExists
		}
		return nil, fmt.Errorf("creating account: %w", err)
	}

	s.projection.Invalidate()
	s.logger.Info().Int64("idx", account.Idx).Str("username", input.Username).Msg("account created")
	return account, nil
}

func (s *IdentityService) Delete(ctx context.Context, idx int64) error {
	if err := s.accounts.Delete(ctx, idx); err != nil {
		return mapRepoErr(err, domain.ErrAccountNotFound)
	}
	s.projection.Invalidate()
	s.logger.Info().Int64("idx", idx).Msg("account deleted")
	return nil
}

func (s *IdentityService) GetAll(ctx context.Context) ([]*domain.Account, error) {
	return s.accounts.GetAll(ctx)
}

func (s *IdentityService) GetByIdx(ctx context.Context, idx int64) (*domain.Account, error) {
	account, err := s.accounts.GetByIdx(ctx, idx)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrAccountNotFound)
	}
	return account, nil
}

func (s *IdentityService) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrAccountNotFound)
	}
	return account, nil
}

// Authenticate verifies a password against the stored digest. A legacy
// digest that verifies is transparently re-hashed with the current
// scheme before the call returns. The activation check runs before any
// digest work so a deactivated account never leaks whether its
// password matched.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	account, err := s.GetByUsername(ctx, username)
	if err != nil {
		s.recorder.RecordAuthAttempt(AuthOutcomeNotFound)
		return 0, err
	}
	if !account.CanAuthenticate() {
		s.recorder.RecordAuthAttempt(AuthOutcomeNotActivated)
		return 0, domain.ErrNotActivated
	}

	result, err := credential.Verify(account.PasswordDigest, password)
	if err != nil {
		s.logger.Warn().Int64("idx", account.Idx).Err(err).Msg("unreadable password digest")
		s.recorder.RecordAuthAttempt(AuthOutcomeFailure)
		return 0, domain.ErrAuthentication
	}
	if !result.Matched {
		s.recorder.RecordAuthAttempt(AuthOutcomeFailure)
		return 0, domain.ErrAuthentication
	}

	if result.NeedsRehash {
		if digest, hashErr := credential.Hash(password); hashErr == nil {
			if updErr := s.accounts.UpdatePasswordDigest(ctx, account.Idx, digest); updErr != nil {
				s.logger.Warn().Int64("idx", account.Idx).Err(updErr).Msg("legacy digest migration failed")
			} else {
				s.recorder.RecordLegacyMigration()
				s.logger.Info().Int64("idx", account.Idx).Msg("migrated legacy password digest")
			}
		}
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.Idx, time.Now()); err != nil {
		s.logger.Warn().Int64("idx", account.Idx).Err(err).Msg("updating last login failed")
	}
	s.recorder.RecordAuthAttempt(AuthOutcomeSuccess)
	return account.Idx, nil
}

func (s *IdentityService) ChangePassword(ctx context.Context, idx int64, newPassword string) error {
	digest, err := credential.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.accounts.UpdatePasswordDigest(ctx, idx, digest); err != nil {
		return mapRepoErr(err, domain.ErrAccountNotFound)
	}
	s.logger.Info().Int64("idx", idx).Msg("password changed")
	return nil
}

func (s *IdentityService) ChangeShell(ctx context.Context, idx int64, shell string) error {
	if err := s.accounts.UpdateShell(ctx, idx, shell); err != nil {
		return mapRepoErr(err, domain.ErrAccountNotFound)
	}
	s.projection.Invalidate()
	return nil
}

func (s *IdentityService) SetActivated(ctx context.Context, idx int64, activated bool) error {
	if err := s.accounts.SetActivated(ctx, idx, activated); err != nil {
		return mapRepoErr(err, domain.ErrAccountNotFound)
	}
	s.projection.Invalidate()
	s.logger.Info().Int64("idx", idx).Bool("activated", activated).Msg("account activation changed")
	return nil
}
