package spine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-labs/spine/pkg/action"
	"github.com/chainbridge-labs/spine/pkg/audit"
	"github.com/chainbridge-labs/spine/pkg/contracts"
	"github.com/chainbridge-labs/spine/pkg/decision"
	"github.com/chainbridge-labs/spine/pkg/event"
	"github.com/chainbridge-labs/spine/pkg/ledger"
	"github.com/chainbridge-labs/spine/pkg/replayguard"
)

const testPolicy = `
version: "2026-08-01"
default_outcome: HELD
default_reason: no rule matched; held for review
rules:
  - name: reject-oversize-transfers
    when: 'double(event.payload.amount) > double(context.max_amount)'
    outcome: REJECTED
    reason: amount exceeds configured maximum
  - name: approve-transfers
    when: 'event.type == "transfer.requested"'
    outcome: APPROVED
    reason: transfer within limits
`

type recordingDriver struct {
	mu      sync.Mutex
	applied []string
	fail    bool
}

func (d *recordingDriver) Apply(_ context.Context, dec *contracts.DecisionResult) (map[string]string, error) {
	d.mu.Lock()
	d.applied = append(d.applied, dec.EventHash)
	d.mu.Unlock()
	if d.fail {
		return nil, errors.New("downstream unavailable")
	}
	return map[string]string{"channel": "test"}, nil
}

type pipelineHarness struct {
	pipeline *Pipeline
	driver   *recordingDriver
	ledger   *ledger.Ledger
	guard    *replayguard.Guard
	clock    time.Time
	audit    *bytes.Buffer
}

func newHarness(t *testing.T) *pipelineHarness {
	t.Helper()

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	guard := replayguard.New(replayguard.NewMemoryStore(), replayguard.WithClock(clock))
	_, err := guard.Reload(context.Background())
	require.NoError(t, err)

	policy, err := decision.ParsePolicy([]byte(testPolicy))
	require.NoError(t, err)
	engine, err := decision.NewEngine(policy)
	require.NoError(t, err)

	driver := &recordingDriver{}
	executor := action.NewExecutor(driver,
		action.WithClock(clock),
		action.WithSleep(func(time.Duration) {}),
	)

	store, err := ledger.NewFileStore(filepath.Join(t.TempDir(), "chain.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	lg := ledger.New(store, ledger.WithClock(clock))
	require.NoError(t, lg.ValidateOnStartup(context.Background()))

	var auditBuf bytes.Buffer
	p := New(guard, engine, executor, lg,
		WithAuditor(audit.NewLoggerWithWriter(&auditBuf)),
		WithContextProvider(func(*contracts.Event) decision.Context {
			return decision.Context{Attributes: map[string]any{"max_amount": 1000}}
		}),
	)

	return &pipelineHarness{pipeline: p, driver: driver, ledger: lg, guard: guard, clock: now, audit: &auditBuf}
}

func (h *pipelineHarness) transfer(id string, amount int) event.RawInput {
	return event.RawInput{
		EventID:   id,
		EventType: "transfer.requested",
		Timestamp: h.clock.Format(time.RFC3339),
		Payload:   map[string]any{"amount": amount, "currency": "USD"},
	}
}

func TestSubmit_ApprovedTransferEndToEnd(t *testing.T) {
	h := newHarness(t)

	receipt, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeApproved, receipt.Outcome)
	assert.Equal(t, contracts.StatusSuccess, receipt.ActionStatus)
	assert.Equal(t, uint64(1), receipt.Sequence)
	assert.NotEmpty(t, receipt.ProofHash)
	assert.Len(t, h.driver.applied, 1)

	entries, err := h.pipeline.ExportChain(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, contracts.GenesisHash, entries[0].PrevChain)
	assert.Equal(t, receipt.EventHash, entries[0].Proof.EventHash)
}

func TestSubmit_ResubmissionRejectedAsReplay(t *testing.T) {
	h := newHarness(t)

	first, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.NoError(t, err)

	_, err = h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.Error(t, err)
	var replayErr *contracts.ReplayAttackError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, first.EventHash, replayErr.EventHash)

	// The replayed submission left no trace on the chain and ran no effect.
	entries, err := h.pipeline.ExportChain(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, h.driver.applied, 1)
}

func TestSubmit_RejectedOutcomeStillSealed(t *testing.T) {
	h := newHarness(t)

	receipt, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 5000))
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeRejected, receipt.Outcome)
	// A non-approved decision produces a proof but must not reach the driver.
	assert.Equal(t, contracts.StatusSuccess, receipt.ActionStatus)
	assert.Empty(t, h.driver.applied)
	assert.Equal(t, uint64(1), receipt.Sequence)
}

func TestSubmit_FailedEffectRecordedAsFailed(t *testing.T) {
	h := newHarness(t)
	h.driver.fail = true

	receipt, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeApproved, receipt.Outcome)
	assert.Equal(t, contracts.StatusFailed, receipt.ActionStatus)
	assert.Equal(t, uint64(1), receipt.Sequence)
}

func TestSubmit_InvalidInputRefusedBeforeAnyStage(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Submit(context.Background(), event.RawInput{
		EventType: "",
		Timestamp: h.clock.Format(time.RFC3339),
		Payload:   map[string]any{"amount": 1},
	})
	require.Error(t, err)
	var verr *contracts.ValidationError
	assert.ErrorAs(t, err, &verr)

	entries, err := h.pipeline.ExportChain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.driver.applied)
}

func TestSubmit_SequencesAdvanceAcrossEvents(t *testing.T) {
	h := newHarness(t)

	for i := 1; i <= 3; i++ {
		receipt, err := h.pipeline.Submit(context.Background(), h.transfer(fmt.Sprintf("e%d", i), 100))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), receipt.Sequence)
	}

	report, err := h.pipeline.VerifyChain(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)
}

func TestSubmit_ConcurrentSubmissionsKeepChainIntact(t *testing.T) {
	h := newHarness(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.pipeline.Submit(context.Background(), h.transfer(fmt.Sprintf("conc-%d", i), 100))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Sequence assignment and chain hashing are serialized, so the chain
	// must come out gap-free and linked regardless of arrival order.
	entries, err := h.pipeline.ExportChain(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, n)
	prev := contracts.GenesisHash
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Proof.Sequence)
		assert.Equal(t, prev, e.PrevChain)
		prev = e.ChainHash
	}

	report, err := h.pipeline.VerifyChain(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, n, report.Entries)
}

func TestSubmit_AuditTrailCoversEveryStage(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.NoError(t, err)

	trail := h.audit.String()
	for _, stage := range []string{"event.accepted", "decision.made", "action.resolved", "proof.appended"} {
		assert.Contains(t, trail, stage)
	}
}

func TestVerifyChain_DetectsTamperingAfterSubmissions(t *testing.T) {
	h := newHarness(t)

	for i := 1; i <= 2; i++ {
		_, err := h.pipeline.Submit(context.Background(), h.transfer(fmt.Sprintf("e%d", i), 100))
		require.NoError(t, err)
	}

	// Rewrite history through a second ledger view over tampered entries.
	entries, err := h.pipeline.ExportChain(context.Background())
	require.NoError(t, err)
	entries[0].Proof.ActionStatus = contracts.StatusFailed

	report := h.ledger.Verify(entries)
	assert.False(t, report.Valid)
	assert.Equal(t, uint64(1), report.FirstBadSeq)
	assert.Equal(t, contracts.ViolationProofHashMismatch, report.Violation)
}

func TestSubmit_MutatedReplayIsADistinctEvent(t *testing.T) {
	h := newHarness(t)

	first, err := h.pipeline.Submit(context.Background(), h.transfer("e1", 100))
	require.NoError(t, err)

	// An attacker reusing the event ID with an altered payload produces a
	// different hash: it is a new event with its own proof, not a replay.
	mutated := h.transfer("e1", 999)
	second, err := h.pipeline.Submit(context.Background(), mutated)
	require.NoError(t, err)

	assert.NotEqual(t, first.EventHash, second.EventHash)
	assert.Equal(t, uint64(2), second.Sequence)

	// Replaying the mutated copy verbatim is still caught.
	_, err = h.pipeline.Submit(context.Background(), mutated)
	var replayErr *contracts.ReplayAttackError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, second.EventHash, replayErr.EventHash)
}

func TestSubmit_RangeVerificationOverRecentEntries(t *testing.T) {
	h := newHarness(t)

	for i := 1; i <= 5; i++ {
		_, err := h.pipeline.Submit(context.Background(), h.transfer(fmt.Sprintf("e%d", i), 100))
		require.NoError(t, err)
	}

	report, err := h.pipeline.VerifyRange(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)
}
