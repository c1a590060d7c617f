package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

// EmailService owns email address records and their verification flow.
// Only addresses in the configured allowed domains may be registered.
type EmailService struct {
	emails         repository.EmailRepository
	tokens         *TokenService
	allowedDomains map[string]bool
	logger         zerolog.Logger
}

func NewEmailService(emails repository.EmailRepository, tokens *TokenService, allowedDomains []string, logger zerolog.Logger) *EmailService {
	allowed := make(map[string]bool, len(allowedDomains))
	for _, d := range allowedDomains {
		allowed[strings.ToLower(d)] = true
	}
	return &EmailService{
		emails:         emails,
		tokens:         tokens,
		allowedDomains: allowed,
		logger:         logger.With().Str("service", "email").Logger(),
	}
}

// validateLocal rejects local parts that cannot round-trip through the
// address formats we emit: empty, containing whitespace, a comma, or
// an "@".
func validateLocal(local string) error {
	if local == "" {
		return domain.ErrInvalidEmailLocal
	}
	if strings.ContainsAny(local, ",@") {
		return domain.ErrInvalidEmailLocal
	}
	for _, r := range local {
		if unicode.IsSpace(r) {
			return domain.ErrInvalidEmailLocal
		}
	}
	return nil
}

// Register validates and stores a new email address record and issues
// its verification token. The token is returned for delivery.
func (s *EmailService) Register(ctx context.Context, local, dom string, ownerIdx *int64) (*domain.EmailAddress, string, error) {
	if err := validateLocal(local); err != nil {
		return nil, "", err
	}
	dom = strings.ToLower(dom)
	if !s.allowedDomains[dom] {
		return nil, "", domain.ErrDomainNotAllowed
	}

	email := &domain.EmailAddress{
		AddressLocal:  local,
		AddressDomain: dom,
		OwnerIdx:      ownerIdx,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.emails.Create(ctx, email); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, "", domain.NewDomainError(domain.ErrEmailNotFound, "address already registered", "email")
		}
		return nil, "", fmt.Errorf("creating email record: %w", err)
	}

	token, err := s.tokens.GenerateEmailVerificationToken(ctx, email.Idx)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().Int64("idx", email.Idx).Str("address", email.String()).Msg("email registered")
	return email, token, nil
}

func (s *EmailService) GetByIdx(ctx context.Context, idx int64) (*domain.EmailAddress, error) {
	email, err := s.emails.GetByIdx(ctx, idx)
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrEmailNotFound)
	}
	return email, nil
}

func (s *EmailService) GetByAddress(ctx context.Context, local, dom string) (*domain.EmailAddress, error) {
	email, err := s.emails.GetByAddress(ctx, local, strings.ToLower(dom))
	if err != nil {
		return nil, mapRepoErr(err, domain.ErrEmailNotFound)
	}
	return email, nil
}

// Verify consumes a verification token and marks the address record it
// was issued for as verified. The verified address is returned split
// into local part and domain.
func (s *EmailService) Verify(ctx context.Context, token string) (*domain.EmailAddress, error) {
	emailIdx, err := s.tokens.ConsumeEmailToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.emails.MarkVerified(ctx, emailIdx); err != nil {
		return nil, mapRepoErr(err, domain.ErrEmailNotFound)
	}

	email, err := s.GetByIdx(ctx, emailIdx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("idx", email.Idx).Str("address", email.String()).Msg("email verified")
	return email, nil
}

func (s *EmailService) Delete(ctx context.Context, idx int64) error {
	if err := s.emails.Delete(ctx, idx); err != nil {
		return mapRepoErr(err, domain.ErrEmailNotFound)
	}
	return nil
}
