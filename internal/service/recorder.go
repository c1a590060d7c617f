package service

// EventRecorder receives counts of the domain events worth
// instrumenting: authentication outcomes, digest migrations, token
// issuance and host authorization decisions. The metrics package
// provides the production implementation; a nil recorder is replaced
// with a no-op.
type EventRecorder interface {
	RecordAuthAttempt(outcome string)
	RecordLegacyMigration()
	RecordTokenIssued(kind string)
	RecordHostDecision(decision string)
}

// Auth attempt outcome labels. Kept to a fixed set so the series stay
// bounded.
const (
	AuthOutcomeSuccess      = "success"
	AuthOutcomeFailure      = "failure"
	AuthOutcomeNotActivated = "not_activated"
	AuthOutcomeNotFound     = "not_found"
)

// Token kind labels.
const (
	TokenKindPasswordChange    = "password_change"
	TokenKindEmailVerification = "email_verification"
)

type noopRecorder struct{}

func (noopRecorder) RecordAuthAttempt(string)  {}
func (noopRecorder) RecordLegacyMigration()    {}
func (noopRecorder) RecordTokenIssued(string)  {}
func (noopRecorder) RecordHostDecision(string) {}
