// Package spine wires the pipeline stages together: event construction,
// replay checking, policy decision, action execution and proof sealing.
package spine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chainbridge-labs/spine/pkg/action"
	"github.com/chainbridge-labs/spine/pkg/audit"
	"github.com/chainbridge-labs/spine/pkg/contracts"
	"github.com/chainbridge-labs/spine/pkg/decision"
	"github.com/chainbridge-labs/spine/pkg/event"
	"github.com/chainbridge-labs/spine/pkg/ledger"
	"github.com/chainbridge-labs/spine/pkg/observability"
	"github.com/chainbridge-labs/spine/pkg/replayguard"
)

// ContextProvider supplies the decision context for an event, e.g. limits
// loaded from configuration or state external to the event itself.
type ContextProvider func(ev *contracts.Event) decision.Context

// Receipt summarizes one completed submission.
type Receipt struct {
	EventID      string                    `json:"event_id"`
	EventHash    string                    `json:"event_hash"`
	Outcome      contracts.DecisionOutcome `json:"outcome"`
	Reason       string                    `json:"reason,omitempty"`
	ActionID     string                    `json:"action_id"`
	ActionStatus contracts.ActionStatus    `json:"action_status"`
	Sequence     uint64                    `json:"sequence"`
	ProofHash    string                    `json:"proof_hash"`
	ChainHash    string                    `json:"chain_hash"`
}

// Pipeline runs submissions through every stage in order. Each accepted
// event ends as exactly one proof on the chain, whatever its outcome.
type Pipeline struct {
	guard    *replayguard.Guard
	engine   *decision.Engine
	executor *action.Executor
	ledger   *ledger.Ledger
	contexts ContextProvider
	auditor  audit.Logger
	obs      *observability.Provider
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithContextProvider sets the decision context source.
func WithContextProvider(p ContextProvider) Option {
	return func(pl *Pipeline) { pl.contexts = p }
}

// WithAuditor sets the audit logger.
func WithAuditor(a audit.Logger) Option {
	return func(pl *Pipeline) { pl.auditor = a }
}

// WithObservability sets the telemetry provider.
func WithObservability(obs *observability.Provider) Option {
	return func(pl *Pipeline) { pl.obs = obs }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// New assembles a pipeline from its stages.
func New(guard *replayguard.Guard, engine *decision.Engine, executor *action.Executor, lg *ledger.Ledger, opts ...Option) *Pipeline {
	p := &Pipeline{
		guard:    guard,
		engine:   engine,
		executor: executor,
		ledger:   lg,
		contexts: func(*contracts.Event) decision.Context { return decision.Context{} },
		auditor:  audit.Nop(),
		logger:   slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit runs one raw input through the full pipeline. A non-nil error
// means the submission was refused before any side effect; nothing is
// appended to the chain in that case. Once the input passes the replay
// guard, Submit always returns a receipt backed by a sealed proof.
func (p *Pipeline) Submit(ctx context.Context, raw event.RawInput) (*Receipt, error) {
	ev, err := event.Construct(raw)
	if err != nil {
		p.auditor.Record(audit.EventRejection, "event.invalid", "", map[string]string{"reason": err.Error()})
		if p.obs != nil {
			p.obs.RecordError(ctx, err)
		}
		return nil, err
	}

	var done func(error)
	if p.obs != nil {
		ctx, done = p.obs.TrackSubmission(ctx, attribute.String("event_type", ev.Type()))
		defer func() { done(err) }()
	}

	if err = p.guard.CheckAndRecord(ctx, ev); err != nil {
		p.auditor.Record(audit.EventRejection, "replay.rejected", ev.Hash(), map[string]string{"reason": err.Error()})
		if p.obs != nil {
			p.obs.RecordReplayRejection(ctx, attribute.String("event_type", ev.Type()))
		}
		return nil, err
	}
	p.auditor.Record(audit.EventSubmission, "event.accepted", ev.Hash(), nil)

	dec, err := p.engine.Decide(ev, p.contexts(ev))
	if err != nil {
		// The engine fails shut, so an error here is a programming or
		// policy bug and the submission never executes.
		return nil, fmt.Errorf("decide: %w", err)
	}
	p.auditor.Record(audit.EventDecision, "decision.made", ev.Hash(), map[string]string{
		"outcome": string(dec.Outcome),
		"reason":  dec.Reason,
	})
	if p.obs != nil {
		p.obs.RecordDecision(ctx, string(dec.Outcome))
	}

	ar := p.executor.Execute(ctx, dec)
	p.auditor.Record(audit.EventExecution, "action.resolved", ev.Hash(), map[string]string{
		"action_id": ar.ActionID,
		"status":    string(ar.Status),
	})

	entry, err := p.ledger.SealAndAppend(ctx, ev.Hash(), dec.DecisionHash, ar)
	if err != nil {
		// The effect may have happened but its proof was not persisted.
		// Surface loudly: this gap is exactly what the chain exists to
		// prevent.
		p.logger.Error("proof append failed after execution",
			"event_hash", ev.Hash(), "action_id", ar.ActionID, "error", err)
		p.auditor.Record(audit.EventSystem, "proof.append_failed", ev.Hash(), map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("append proof: %w", err)
	}
	p.auditor.Record(audit.EventProof, "proof.appended", ev.Hash(), map[string]string{
		"sequence":   fmt.Sprintf("%d", entry.Proof.Sequence),
		"chain_hash": entry.ChainHash,
	})
	if p.obs != nil {
		p.obs.RecordProofAppended(ctx)
	}

	p.logger.Info("submission complete",
		"event_hash", ev.Hash(),
		"outcome", dec.Outcome,
		"action_status", ar.Status,
		"seq", entry.Proof.Sequence)

	return &Receipt{
		EventID:      ev.ID(),
		EventHash:    ev.Hash(),
		Outcome:      dec.Outcome,
		Reason:       dec.Reason,
		ActionID:     ar.ActionID,
		ActionStatus: ar.Status,
		Sequence:     entry.Proof.Sequence,
		ProofHash:    entry.Proof.ProofHash,
		ChainHash:    entry.ChainHash,
	}, nil
}

// VerifyChain re-validates the full persisted chain.
func (p *Pipeline) VerifyChain(ctx context.Context) (*contracts.ValidationReport, error) {
	return p.ledger.VerifyChain(ctx)
}

// VerifyRange re-validates the sub-chain covering [from, to].
func (p *Pipeline) VerifyRange(ctx context.Context, from, to uint64) (*contracts.ValidationReport, error) {
	return p.ledger.VerifyRange(ctx, from, to)
}

// ExportChain returns the ordered chain for external auditors.
func (p *Pipeline) ExportChain(ctx context.Context) ([]contracts.ChainEntry, error) {
	return p.ledger.Export(ctx)
}
