package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
	"github.com/prn-tf/castellan/internal/repository"
)

const tokenByteLength = 32

// TokenService issues and validates the single-use tokens: password
// change tokens keyed by account, and email verification tokens keyed
// by email record.
type TokenService struct {
	tokens      repository.TokenRepository
	passwordTTL time.Duration
	emailTTL    time.Duration
	recorder    EventRecorder
	logger      zerolog.Logger
}

func NewTokenService(tokens repository.TokenRepository, passwordTTL, emailTTL time.Duration, recorder EventRecorder, logger zerolog.Logger) *TokenService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &TokenService{
		tokens:      tokens,
		passwordTTL: passwordTTL,
		emailTTL:    emailTTL,
		recorder:    recorder,
		logger:      logger.With().Str("service", "token").Logger(),
	}
}

// newToken returns a fresh unguessable token value.
func newToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GeneratePasswordChangeToken creates or replaces the password-change
// token for a user. Reissuing while the prior token is still live
// increments the resend count; reissuing after it expired starts the
// count over at zero.
func (s *TokenService) GeneratePasswordChangeToken(ctx context.Context, userIdx int64) (string, error) {
	resend := 0
	existing, err := s.tokens.GetPasswordTokenByUser(ctx, userIdx)
	switch {
	case err == nil:
		if !existing.Expired(time.Now()) {
			resend = existing.ResendCount + 1
		}
	case errors.Is(err, repository.ErrNotFound):
		// First issuance for this user.
	default:
		return "", fmt.Errorf("looking up existing token: %w", err)
	}

	value, err := newToken()
	if err != nil {
		return "", err
	}
	token := &domain.PasswordChangeToken{
		UserIdx:     userIdx,
		Token:       value,
		Expires:     time.Now().Add(s.passwordTTL),
		ResendCount: resend,
	}
	if err := s.tokens.UpsertPasswordToken(ctx, token); err != nil {
		return "", fmt.Errorf("storing password token: %w", err)
	}

	s.recorder.RecordTokenIssued(TokenKindPasswordChange)
	s.logger.Info().Int64("user_idx", userIdx).Int("resend_count", resend).Msg("password change token issued")
	return value, nil
}

// EnsureTokenNotExpired checks that a password-change token exists and
// is still live. Expired tokens are reported distinctly from unknown
// ones so callers can prompt for a reissue.
func (s *TokenService) EnsureTokenNotExpired(ctx context.Context, token string) error {
	row, err := s.tokens.GetPasswordTokenByToken(ctx, token)
	if err != nil {
		return mapRepoErr(err, domain.ErrTokenNotFound)
	}
	if row.Expired(time.Now()) {
		return domain.ErrTokenExpired
	}
	return nil
}

// GetUserIdxByPasswordToken resolves a live password-change token to
// the account it was issued for.
func (s *TokenService) GetUserIdxByPasswordToken(ctx context.Context, token string) (int64, error) {
	row, err := s.tokens.GetPasswordTokenByToken(ctx, token)
	if err != nil {
		return 0, mapRepoErr(err, domain.ErrTokenNotFound)
	}
	if row.Expired(time.Now()) {
		return 0, domain.ErrTokenExpired
	}
	return row.UserIdx, nil
}

// RemoveToken consumes a password-change token. Tokens are single-use;
// callers remove them right after the authorized action succeeds.
func (s *TokenService) RemoveToken(ctx context.Context, token string) error {
	if err := s.tokens.DeletePasswordToken(ctx, token); err != nil {
		return mapRepoErr(err, domain.ErrTokenNotFound)
	}
	return nil
}

// GetResendCount returns how many times the current token for a user
// has been reissued while live.
func (s *TokenService) GetResendCount(ctx context.Context, userIdx int64) (int, error) {
	row, err := s.tokens.GetPasswordTokenByUser(ctx, userIdx)
	if err != nil {
		return 0, mapRepoErr(err, domain.ErrTokenNotFound)
	}
	return row.ResendCount, nil
}

// GenerateEmailVerificationToken creates or replaces the verification
// token for an email address record.
func (s *TokenService) GenerateEmailVerificationToken(ctx context.Context, emailIdx int64) (string, error) {
	value, err := newToken()
	if err != nil {
		return "", err
	}
	token := &domain.EmailVerificationToken{
		EmailIdx: emailIdx,
		Token:    value,
		Expires:  time.Now().Add(s.emailTTL),
	}
	if err := s.tokens.UpsertEmailToken(ctx, token); err != nil {
		return "", fmt.Errorf("storing email token: %w", err)
	}

	s.recorder.RecordTokenIssued(TokenKindEmailVerification)
	s.logger.Info().Int64("email_idx", emailIdx).Msg("email verification token issued")
	return value, nil
}

// ConsumeEmailToken resolves a verification token to its email record
// idx and deletes it. Only an exact token match verifies; a live row
// whose value merely shares a prefix with the input is a miss.
func (s *TokenService) ConsumeEmailToken(ctx context.Context, token string) (int64, error) {
	row, err := s.tokens.GetEmailToken(ctx, token)
	if err != nil {
		return 0, mapRepoErr(err, domain.ErrTokenNotFound)
	}
	if row.Expired(time.Now()) {
		return 0, domain.ErrTokenExpired
	}
	if err := s.tokens.DeleteEmailToken(ctx, row.EmailIdx); err != nil {
		return 0, fmt.Errorf("consuming email token: %w", err)
	}
	return row.EmailIdx, nil
}
