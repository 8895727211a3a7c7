// Package replayguard rejects duplicate and out-of-window events before they
// reach decisioning.
//
// The guard remembers the hash of every accepted event for a sliding
// retention window (default 24h). Resubmitting a remembered hash, or
// submitting an event whose timestamp falls outside
// [now - window, now + skew], fails with ReplayAttackError. The record set
// is an explicit, injected store, never ambient state, and is persisted so
// a restart does not reopen the replay window.
package replayguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// Default guard parameters.
const (
	DefaultWindow        = 24 * time.Hour
	DefaultSkewTolerance = 5 * time.Minute
)

// Store persists replay records keyed by event hash.
type Store interface {
	// Get returns the record for an event hash, or found=false.
	Get(ctx context.Context, eventHash string) (rec contracts.ReplayRecord, found bool, err error)
	// Put records an accepted event. The write must be durable (for
	// persistent backings) before Put returns.
	Put(ctx context.Context, rec contracts.ReplayRecord) error
	// EvictBefore removes records first seen before cutoff and reports how
	// many were removed.
	EvictBefore(ctx context.Context, cutoff time.Time) (int, error)
	// Load returns all retained records. Called once on startup before the
	// guard admits traffic.
	Load(ctx context.Context) ([]contracts.ReplayRecord, error)
}

// Guard enforces replay protection over an injected store.
type Guard struct {
	mu     sync.Mutex
	store  Store
	window time.Duration
	skew   time.Duration
	clock  func() time.Time
	logger *slog.Logger
	loaded bool
}

// Option customizes a Guard.
type Option func(*Guard)

// WithWindow overrides the retention window.
func WithWindow(w time.Duration) Option {
	return func(g *Guard) { g.window = w }
}

// WithSkewTolerance overrides the future-timestamp tolerance.
func WithSkewTolerance(s time.Duration) Option {
	return func(g *Guard) { g.skew = s }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(g *Guard) { g.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// New creates a Guard over the given store.
func New(store Store, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		window: DefaultWindow,
		skew:   DefaultSkewTolerance,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reload loads persisted records from the store. It must complete before the
// guard accepts traffic; CheckAndRecord fails closed until it has.
func (g *Guard) Reload(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recs, err := g.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay guard reload: %w", err)
	}
	g.loaded = true
	g.logger.Info("replay guard reloaded", "records", len(recs))
	return len(recs), nil
}

// CheckAndRecord admits an event exactly once within the retention window.
//
// Expired records are evicted lazily on each check to bound memory. Once an
// event is recorded it stays recorded even if downstream processing aborts:
// the guard's job is to close the replay window as early as possible.
func (g *Guard) CheckAndRecord(ctx context.Context, ev *contracts.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.loaded {
		return fmt.Errorf("replay guard not reloaded; refusing traffic")
	}

	now := g.clock()

	if _, err := g.store.EvictBefore(ctx, now.Add(-g.window)); err != nil {
		return fmt.Errorf("replay record eviction: %w", err)
	}

	if rec, found, err := g.store.Get(ctx, ev.Hash()); err != nil {
		return fmt.Errorf("replay record lookup: %w", err)
	} else if found {
		return &contracts.ReplayAttackError{
			EventHash: ev.Hash(),
			Reason:    "duplicate within retention window",
			FirstSeen: rec.FirstSeen,
		}
	}

	if ev.Timestamp().Before(now.Add(-g.window)) {
		return &contracts.ReplayAttackError{
			EventHash: ev.Hash(),
			Reason: fmt.Sprintf("timestamp %s older than retention window",
				ev.Timestamp().UTC().Format(time.RFC3339)),
		}
	}
	if ev.Timestamp().After(now.Add(g.skew)) {
		return &contracts.ReplayAttackError{
			EventHash: ev.Hash(),
			Reason: fmt.Sprintf("timestamp %s beyond clock skew tolerance",
				ev.Timestamp().UTC().Format(time.RFC3339)),
		}
	}

	rec := contracts.ReplayRecord{
		EventHash: ev.Hash(),
		FirstSeen: now,
		Nonce:     uuid.New().String(),
	}
	if err := g.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("replay record persist: %w", err)
	}

	g.logger.Debug("event admitted", "event_hash", ev.Hash(), "event_id", ev.ID())
	return nil
}

// Window returns the configured retention window.
func (g *Guard) Window() time.Duration { return g.window }
