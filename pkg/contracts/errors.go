package contracts

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed or incomplete event. The event is
// rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("event validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("event validation failed: field %q: %s", e.Field, e.Reason)
}

// ReplayAttackError reports a duplicate or out-of-window event, rejected
// before decisioning. For duplicates, FirstSeen references the original
// acceptance timestamp.
type ReplayAttackError struct {
	EventHash string
	Reason    string
	FirstSeen time.Time
}

func (e *ReplayAttackError) Error() string {
	if !e.FirstSeen.IsZero() {
		return fmt.Sprintf("replay attack: event %s: %s (first seen %s)",
			e.EventHash, e.Reason, e.FirstSeen.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("replay attack: event %s: %s", e.EventHash, e.Reason)
}

// ProofValidationError reports a chain or content hash mismatch. Fatal when
// detected during startup validation; clearly reported on demand otherwise.
type ProofValidationError struct {
	Sequence  uint64
	Violation ViolationKind
	Expected  string
	Actual    string
}

func (e *ProofValidationError) Error() string {
	return fmt.Sprintf("proof validation failed at seq %d: %s: expected %s, got %s",
		e.Sequence, e.Violation, e.Expected, e.Actual)
}

// ReportError converts a failing ValidationReport into a ProofValidationError.
// Returns nil for a passing report.
func ReportError(r *ValidationReport) error {
	if r == nil || r.Valid {
		return nil
	}
	return &ProofValidationError{
		Sequence:  r.FirstBadSeq,
		Violation: r.Violation,
		Expected:  r.ExpectedHash,
		Actual:    r.ActualHash,
	}
}
