package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prn-tf/castellan/internal/domain"
)

// Config holds the projection parameters shared by every entry.
type Config struct {
	// UsersBaseDN is the suffix under which user entries live.
	UsersBaseDN string

	// HomePrefix is the directory under which home directories are
	// derived, "<prefix>/<username>".
	HomePrefix string

	// GIDNumber is the primary group id shared by all projected users.
	GIDNumber int64
}

// AccountSource is the slice of the account store the projector reads.
type AccountSource interface {
	GetAll(ctx context.Context) ([]*domain.Account, error)
}

// Projector lazily computes and caches the directory view.
//
// The generation counter decides whether a finished rebuild may be
// stored: a mutation that lands during a rebuild bumps the generation,
// so the in-flight result is served to its caller but never cached.
type Projector struct {
	source   AccountSource
	cfg      Config
	recorder RebuildRecorder
	logger   zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	built   bool
	entries []Entry
}

// RebuildRecorder counts projection rebuilds. A nil recorder is
// replaced with a no-op.
type RebuildRecorder interface {
	RecordDirectoryRebuild()
}

type noopRebuildRecorder struct{}

func (noopRebuildRecorder) RecordDirectoryRebuild() {}

func NewProjector(source AccountSource, cfg Config, recorder RebuildRecorder, logger zerolog.Logger) *Projector {
	if recorder == nil {
		recorder = noopRebuildRecorder{}
	}
	return &Projector{
		source:   source,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.With().Str("component", "directory").Logger(),
	}
}

// Invalidate marks the cached projection stale. Safe to call from any
// goroutine, including while a rebuild is in flight.
func (p *Projector) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.built = false
	p.entries = nil
}

// Entries returns the projected directory, rebuilding it if stale.
// Accounts missing a username, shell or uid are skipped, not errors.
func (p *Projector) Entries(ctx context.Context) ([]Entry, error) {
	p.mu.Lock()
	if p.built {
		entries := p.entries
		p.mu.Unlock()
		return entries, nil
	}
	gen := p.gen
	p.mu.Unlock()

	// Build outside the lock: the account fetch can be slow and must
	// not serialize invalidations behind it.
	accounts, err := p.source.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	entries := p.project(accounts)
	p.recorder.RecordDirectoryRebuild()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.entries = entries
		p.built = true
	}
	return entries, nil
}

// project maps accounts to entries, ordered by username.
func (p *Projector) project(accounts []*domain.Account) []Entry {
	entries := make([]Entry, 0, len(accounts))
	for _, account := range accounts {
		if reason := skipReason(account); reason != "" {
			p.logger.Debug().Int64("idx", account.Idx).Str("reason", string(reason)).Msg("account not projected")
			continue
		}
		entries = append(entries, mapAccount(account, p.cfg))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })
	return entries
}

// FindByUsername returns the entry for one username, or domain.ErrAccountNotFound.
func (p *Projector) FindByUsername(ctx context.Context, username string) (Entry, error) {
	entries, err := p.Entries(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		values := e.Attributes[AttrUID]
		if len(values) == 1 && values[0] == username {
			return e, nil
		}
	}
	return Entry{}, domain.ErrAccountNotFound
}
