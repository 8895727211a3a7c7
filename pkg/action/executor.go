// Package action executes the effect a decision authorizes. It is the only
// component in the spine permitted to cause external side effects.
//
// The executor's contract is that ambiguity stops here: whatever the
// downstream effect system does (error, panic, timeout, garbage status),
// the emitted ActionResult carries exactly SUCCESS or FAILED. Retries of
// the underlying effect are the executor's private concern and never appear
// in the result.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// EffectDriver is the opaque, possibly-failing side-effect target. Metadata
// returned on success is attached to the ActionResult.
type EffectDriver interface {
	Apply(ctx context.Context, decision *contracts.DecisionResult) (map[string]string, error)
}

// Confirmer is an extension point for external action confirmation before a
// proof is sealed. The source threat model stops at "the system believes
// itself"; deployments that want an independent witness can supply one.
type Confirmer interface {
	Confirm(ctx context.Context, actionID string, decision *contracts.DecisionResult) error
}

// Default executor parameters.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// Executor applies a decision's effect and resolves the outcome to an
// explicit status.
type Executor struct {
	driver      EffectDriver
	confirmer   Confirmer
	timeout     time.Duration
	maxAttempts int
	sleep       func(time.Duration)
	clock       func() time.Time
	logger      *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithTimeout bounds each effect attempt.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxAttempts bounds the private retry loop.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithConfirmer installs an external confirmation callback.
func WithConfirmer(c Confirmer) Option {
	return func(e *Executor) { e.confirmer = c }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithSleep overrides the inter-retry sleep for testing.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an Executor over the given driver.
func NewExecutor(driver EffectDriver, opts ...Option) *Executor {
	e := &Executor{
		driver:      driver,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		sleep:       time.Sleep,
		clock:       time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies the decision's effect and returns the resolved result.
// It never returns an error: failures are resolved FAILED results, so the
// failure itself flows on to the ledger and is proven too.
//
// Only APPROVED decisions reach the driver. REJECTED and HELD decisions
// resolve to a successful no-effect action, recording that nothing was done.
func (e *Executor) Execute(ctx context.Context, decision *contracts.DecisionResult) *contracts.ActionResult {
	actionID := uuid.New().String()

	if decision.Outcome != contracts.OutcomeApproved {
		return &contracts.ActionResult{
			ActionID:   actionID,
			Status:     contracts.StatusSuccess,
			ExecutedAt: e.clock().UTC(),
			Metadata: map[string]string{
				"effect":  "none",
				"outcome": string(decision.Outcome),
			},
		}
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("cancelled before attempt: %w", err)
			break
		}
		meta, err := e.applyOnce(ctx, decision)
		if err == nil {
			if err := e.confirm(ctx, actionID, decision); err != nil {
				lastErr = fmt.Errorf("external confirmation: %w", err)
				break
			}
			return &contracts.ActionResult{
				ActionID:   actionID,
				Status:     contracts.StatusSuccess,
				ExecutedAt: e.clock().UTC(),
				Metadata:   meta,
			}
		}
		lastErr = err
		e.logger.Warn("effect attempt failed",
			"action_id", actionID, "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			break
		}
		if attempt < e.maxAttempts {
			e.sleep(defaultRetryDelay)
		}
	}

	return &contracts.ActionResult{
		ActionID:   actionID,
		Status:     contracts.StatusFailed,
		ExecutedAt: e.clock().UTC(),
		Metadata:   map[string]string{"reason": lastErr.Error()},
	}
}

type applyOutcome struct {
	meta map[string]string
	err  error
}

// applyOnce runs a single effect attempt under the configured timeout,
// converting panics and deadline expiry into plain errors. The goroutine
// hands its result over the channel; it never touches the caller's
// variables, so a timeout racing a late completion is safe.
func (e *Executor) applyOnce(ctx context.Context, decision *contracts.DecisionResult) (map[string]string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan applyOutcome, 1)
	go func() {
		var out applyOutcome
		defer func() {
			if r := recover(); r != nil {
				out = applyOutcome{err: fmt.Errorf("effect panicked: %v", r)}
			}
			done <- out
		}()
		out.meta, out.err = e.driver.Apply(attemptCtx, decision)
	}()

	select {
	case out := <-done:
		return out.meta, out.err
	case <-attemptCtx.Done():
		// The effect is still running somewhere, but the caller gets a
		// resolved failure, never an open-ended pending state.
		return nil, fmt.Errorf("effect timed out after %s", e.timeout)
	}
}

func (e *Executor) confirm(ctx context.Context, actionID string, decision *contracts.DecisionResult) error {
	if e.confirmer == nil {
		return nil
	}
	return e.confirmer.Confirm(ctx, actionID, decision)
}
