package contracts

// DecisionOutcome enumerates the possible verdicts of the decision engine.
type DecisionOutcome string

// Decision outcome constants.
const (
	OutcomeApproved DecisionOutcome = "APPROVED"
	OutcomeRejected DecisionOutcome = "REJECTED"
	OutcomeHeld     DecisionOutcome = "HELD"
)

// DecisionResult is the deterministic outcome of applying policy to an event.
//
// InputsSnapshot is the verbatim canonical serialization of everything the
// engine saw, so a later auditor can recompute the decision independently and
// confirm DecisionHash. For identical (event, context) pairs the engine
// produces byte-identical snapshots and outcomes, hence identical hashes.
type DecisionResult struct {
	EventHash      string          `json:"event_hash"`
	Outcome        DecisionOutcome `json:"outcome"`
	Reason         string          `json:"reason"`
	PolicyVersion  string          `json:"policy_version"`
	InputsSnapshot []byte          `json:"inputs_snapshot"`
	DecisionHash   string          `json:"decision_hash"`
}
