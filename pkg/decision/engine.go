package decision

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/chainbridge-labs/spine/pkg/canonicalize"
	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// Context carries the caller-supplied decision context (limits, account
// state, risk attributes). It is captured verbatim in the inputs snapshot.
type Context struct {
	Attributes map[string]any `json:"attributes"`
}

// compiledRule pairs a policy rule with its compiled CEL program.
type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// Engine evaluates policy rules against events. Immutable after
// construction; safe for concurrent use.
type Engine struct {
	policy *Policy
	rules  []compiledRule
}

// NewEngine compiles the policy's CEL rules. Compilation failures surface
// here, not at decision time.
func NewEngine(policy *Policy) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("event", cel.DynType),
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	rules := make([]compiledRule, 0, len(policy.Rules))
	for _, r := range policy.Rules {
		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program: %w", r.Name, err)
		}
		rules = append(rules, compiledRule{rule: r, prg: prg})
	}
	return &Engine{policy: policy, rules: rules}, nil
}

// PolicyVersion returns the version tag of the loaded policy.
func (e *Engine) PolicyVersion() string { return e.policy.Version }

// Decide applies policy to a validated event. Rules are evaluated in policy
// order; the first matching rule determines the outcome. A rule whose
// evaluation fails (type error against this event's payload shape) resolves
// deterministically to HELD rather than being skipped, so a malformed rule
// can never silently approve.
func (e *Engine) Decide(ev *contracts.Event, dctx Context) (*contracts.DecisionResult, error) {
	input := map[string]any{
		"event": map[string]any{
			"id":        ev.ID(),
			"type":      ev.Type(),
			"timestamp": ev.Timestamp().Unix(),
			"payload":   ev.Payload(),
		},
		"context": dctx.Attributes,
	}

	snapshot, err := canonicalize.JCS(map[string]any{
		"event_hash":     ev.Hash(),
		"inputs":         input,
		"policy_version": e.policy.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("inputs snapshot: %w", err)
	}

	outcome := contracts.DecisionOutcome(e.policy.DefaultOutcome)
	reason := e.policy.DefaultReason
	if reason == "" {
		reason = "no rule matched"
	}

	for _, cr := range e.rules {
		out, _, evalErr := cr.prg.Eval(input)
		if evalErr != nil {
			outcome = contracts.OutcomeHeld
			reason = fmt.Sprintf("rule %q evaluation failed: %v", cr.rule.Name, evalErr)
			break
		}
		matched, ok := out.Value().(bool)
		if !ok {
			outcome = contracts.OutcomeHeld
			reason = fmt.Sprintf("rule %q is not boolean", cr.rule.Name)
			break
		}
		if matched {
			outcome = contracts.DecisionOutcome(cr.rule.Outcome)
			reason = cr.rule.Reason
			if reason == "" {
				reason = fmt.Sprintf("matched rule %q", cr.rule.Name)
			}
			break
		}
	}

	return &contracts.DecisionResult{
		EventHash:      ev.Hash(),
		Outcome:        outcome,
		Reason:         reason,
		PolicyVersion:  e.policy.Version,
		InputsSnapshot: snapshot,
		DecisionHash:   Hash(ev.Hash(), snapshot, outcome),
	}, nil
}

// Hash computes decision_hash = H(event_hash || inputs_snapshot || outcome).
// Exported so auditors can recompute it from a stored DecisionResult.
func Hash(eventHash string, snapshot []byte, outcome contracts.DecisionOutcome) string {
	data := make([]byte, 0, len(eventHash)+len(snapshot)+len(outcome))
	data = append(data, eventHash...)
	data = append(data, snapshot...)
	data = append(data, outcome...)
	return canonicalize.HashBytes(data)
}
