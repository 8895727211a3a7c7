// Package ledger seals proofs and maintains the tamper-evident hash chain.
//
// Generation and storage live together because their invariants are
// inseparable: a proof's sequence number is assigned atomically with respect
// to concurrent appends, and each entry's chain hash depends on the entry
// immediately before it. The append path is a single critical section;
// everything upstream of it may run fully in parallel.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainbridge-labs/spine/pkg/canonicalize"
	"github.com/chainbridge-labs/spine/pkg/contracts"
	"github.com/chainbridge-labs/spine/pkg/crypto"
)

// Ledger owns the proof chain: sealing, appending, verification.
type Ledger struct {
	mu        sync.Mutex
	store     Store
	signer    crypto.Signer
	verifier  crypto.Verifier
	clock     func() time.Time
	logger    *slog.Logger
	nextSeq   uint64
	headChain string
	validated bool
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithSigner makes the ledger sign each sealed proof.
func WithSigner(s crypto.Signer) Option {
	return func(l *Ledger) { l.signer = s }
}

// WithVerifier enables signature checks during chain verification.
func WithVerifier(v crypto.Verifier) Option {
	return func(l *Ledger) { l.verifier = v }
}

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// New creates a Ledger over the given store. ValidateOnStartup must succeed
// before the ledger accepts appends.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		verifier:  crypto.Ed25519Verifier{},
		clock:     time.Now,
		logger:    slog.Default(),
		nextSeq:   1,
		headChain: contracts.GenesisHash,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ValidateOnStartup verifies the full persisted history and primes the
// in-memory head. It must run before the system accepts new events; a
// failure is fatal by design, and the process must refuse to start rather
// than run on top of a corrupted ledger.
func (l *Ledger) ValidateOnStartup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}

	report := l.verifyLocked(entries)
	if !report.Valid {
		return fmt.Errorf("startup chain validation: %w", contracts.ReportError(report))
	}

	l.nextSeq = uint64(len(entries)) + 1
	l.headChain = contracts.GenesisHash
	if len(entries) > 0 {
		l.headChain = entries[len(entries)-1].ChainHash
	}
	l.validated = true
	l.logger.Info("proof chain validated", "entries", len(entries), "head", l.headChain)
	return nil
}

// SealAndAppend seals a proof over the pipeline artifacts and appends it to
// the chain in one critical section: sequence assignment, chain-hash
// computation and the durable write are mutually exclusive across
// concurrent callers.
func (l *Ledger) SealAndAppend(ctx context.Context, eventHash, decisionHash string, ar *contracts.ActionResult) (*contracts.ChainEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	proof, err := l.sealLocked(eventHash, decisionHash, ar)
	if err != nil {
		return nil, err
	}
	return l.appendLocked(ctx, proof)
}

// Seal assigns the next sequence number and computes the proof hash. Callers
// that seal without appending leave a sequence gap; the pipeline always uses
// SealAndAppend.
func (l *Ledger) Seal(eventHash, decisionHash string, ar *contracts.ActionResult) (*contracts.Proof, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sealLocked(eventHash, decisionHash, ar)
}

// Append chains and durably persists a sealed proof.
func (l *Ledger) Append(ctx context.Context, proof *contracts.Proof) (*contracts.ChainEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(ctx, proof)
}

func (l *Ledger) sealLocked(eventHash, decisionHash string, ar *contracts.ActionResult) (*contracts.Proof, error) {
	if !l.validated {
		return nil, fmt.Errorf("ledger not validated; refusing to seal")
	}
	if ar == nil || !ar.Status.Valid() {
		return nil, fmt.Errorf("action result has unresolved status; refusing to seal")
	}
	if !canonicalize.ValidHashFormat(eventHash) {
		return nil, fmt.Errorf("event hash %q is not a sha-256 digest", eventHash)
	}
	if !canonicalize.ValidHashFormat(decisionHash) {
		return nil, fmt.Errorf("decision hash %q is not a sha-256 digest", decisionHash)
	}

	proof := &contracts.Proof{
		Sequence:     l.nextSeq,
		EventHash:    eventHash,
		DecisionHash: decisionHash,
		ActionID:     ar.ActionID,
		ActionStatus: ar.Status,
		SealedAt:     l.clock().UTC(),
	}
	hash, err := canonicalize.CanonicalHash(proof.HashableFields())
	if err != nil {
		return nil, fmt.Errorf("proof hash: %w", err)
	}
	proof.ProofHash = hash

	if l.signer != nil {
		sig, err := l.signer.Sign([]byte(proof.ProofHash))
		if err != nil {
			return nil, fmt.Errorf("sign proof: %w", err)
		}
		proof.Signature = sig
		proof.SignerKey = l.signer.PublicKey()
	}

	l.nextSeq++
	return proof, nil
}

func (l *Ledger) appendLocked(ctx context.Context, proof *contracts.Proof) (*contracts.ChainEntry, error) {
	if !l.validated {
		return nil, fmt.Errorf("ledger not validated; refusing to append")
	}
	expected := l.nextSeq - 1
	if proof.Sequence != expected {
		return nil, fmt.Errorf("append out of order: proof seq %d, expected %d", proof.Sequence, expected)
	}

	entry := &contracts.ChainEntry{
		Proof:     *proof,
		PrevChain: l.headChain,
		ChainHash: canonicalize.ChainHash(l.headChain, proof.ProofHash),
	}

	if err := l.store.Append(ctx, entry); err != nil {
		// The write did not reach stable storage; roll the sequence back so
		// the chain stays gap-free.
		l.nextSeq = proof.Sequence
		return nil, fmt.Errorf("durable append: %w", err)
	}
	l.headChain = entry.ChainHash

	l.logger.Info("proof appended",
		"seq", proof.Sequence,
		"event_hash", proof.EventHash,
		"action_status", proof.ActionStatus,
		"chain_hash", entry.ChainHash)
	return entry, nil
}

// VerifyChain walks the persisted chain and reports the first violation, if
// any. Reads are safe to run concurrently with each other; they snapshot
// the store.
func (l *Ledger) VerifyChain(ctx context.Context) (*contracts.ValidationReport, error) {
	entries, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	return l.Verify(entries), nil
}

// VerifyRange verifies the sub-chain covering sequence numbers [from, to].
// Linking is checked against the entry preceding from, so a range
// verification detects tampering inside the range and a broken link into it.
func (l *Ledger) VerifyRange(ctx context.Context, from, to uint64) (*contracts.ValidationReport, error) {
	entries, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	if from < 1 {
		from = 1
	}
	if to == 0 || to > uint64(len(entries)) {
		to = uint64(len(entries))
	}
	if from > to {
		return &contracts.ValidationReport{Valid: true, Entries: 0, CheckedAt: l.clock().UTC()}, nil
	}

	prevChain := contracts.GenesisHash
	if from > 1 {
		prevChain = entries[from-2].ChainHash
	}
	return l.verifyFrom(entries[from-1:to], from, prevChain), nil
}

// Verify walks an explicit entry slice (e.g. an exported chain).
func (l *Ledger) Verify(entries []contracts.ChainEntry) *contracts.ValidationReport {
	return l.verifyFrom(entries, 1, contracts.GenesisHash)
}

func (l *Ledger) verifyLocked(entries []contracts.ChainEntry) *contracts.ValidationReport {
	return l.verifyFrom(entries, 1, contracts.GenesisHash)
}

func (l *Ledger) verifyFrom(entries []contracts.ChainEntry, firstSeq uint64, prevChain string) *contracts.ValidationReport {
	report := &contracts.ValidationReport{
		Valid:     true,
		Entries:   len(entries),
		CheckedAt: l.clock().UTC(),
	}

	expectedSeq := firstSeq
	for i := range entries {
		entry := &entries[i]
		seq := entry.Proof.Sequence

		if seq != expectedSeq {
			return fail(report, expectedSeq, contracts.ViolationSequenceGap,
				fmt.Sprintf("seq %d", expectedSeq), fmt.Sprintf("seq %d", seq),
				"sequence numbers are not contiguous")
		}

		if !canonicalize.ValidHashFormat(entry.Proof.ProofHash) {
			return fail(report, seq, contracts.ViolationBadHashFormat,
				"64-char lowercase hex", entry.Proof.ProofHash,
				"proof hash is not a sha-256 digest")
		}

		recomputed, err := canonicalize.CanonicalHash(entry.Proof.HashableFields())
		if err != nil {
			return fail(report, seq, contracts.ViolationProofHashMismatch,
				entry.Proof.ProofHash, "", "proof fields are not canonically serializable")
		}
		if recomputed != entry.Proof.ProofHash {
			return fail(report, seq, contracts.ViolationProofHashMismatch,
				recomputed, entry.Proof.ProofHash,
				"stored proof hash does not match recomputation")
		}

		if entry.PrevChain != prevChain {
			return fail(report, seq, contracts.ViolationChainHashMismatch,
				prevChain, entry.PrevChain,
				"entry does not link to the preceding chain hash")
		}
		expectedChain := canonicalize.ChainHash(prevChain, entry.Proof.ProofHash)
		if entry.ChainHash != expectedChain {
			return fail(report, seq, contracts.ViolationChainHashMismatch,
				expectedChain, entry.ChainHash,
				"stored chain hash does not match recomputation")
		}

		if entry.Proof.Signature != "" && l.verifier != nil {
			ok, err := l.verifier.Verify([]byte(entry.Proof.ProofHash), entry.Proof.Signature, entry.Proof.SignerKey)
			if err != nil || !ok {
				return fail(report, seq, contracts.ViolationBadSignature,
					"valid signature over proof hash", entry.Proof.Signature,
					"proof signature does not verify")
			}
		}

		prevChain = entry.ChainHash
		expectedSeq++
	}
	return report
}

func fail(r *contracts.ValidationReport, seq uint64, kind contracts.ViolationKind, expected, actual, detail string) *contracts.ValidationReport {
	r.Valid = false
	r.FirstBadSeq = seq
	r.Violation = kind
	r.ExpectedHash = expected
	r.ActualHash = actual
	r.Detail = detail
	return r
}

// Export returns the full ordered chain for external auditors.
func (l *Ledger) Export(ctx context.Context) ([]contracts.ChainEntry, error) {
	return l.store.Load(ctx)
}

// Head returns the current head chain hash.
func (l *Ledger) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headChain
}

// Length returns the number of appended entries.
func (l *Ledger) Length() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}
