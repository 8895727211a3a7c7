// Package decision applies externally configured policy to validated events.
//
// Decide is a pure function: no I/O, no clock, no randomness. Policy rules
// are CEL expressions compiled once at engine construction; for identical
// (event, context) pairs the engine produces byte-identical snapshots and
// outcomes, hence identical decision hashes. That determinism is what makes
// sealed decisions auditable after the fact.
package decision

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// Rule is one policy rule: a CEL predicate over the event and decision
// context, and the outcome produced when it matches.
type Rule struct {
	Name    string `yaml:"name"`
	When    string `yaml:"when"`
	Outcome string `yaml:"outcome"`
	Reason  string `yaml:"reason"`
}

// Policy is the external configuration consumed by the engine. Rules are
// evaluated in order; the first match wins. DefaultOutcome applies when no
// rule matches.
type Policy struct {
	Version        string `yaml:"version"`
	DefaultOutcome string `yaml:"default_outcome"`
	DefaultReason  string `yaml:"default_reason"`
	Rules          []Rule `yaml:"rules"`
}

// LoadPolicy reads and validates a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy parses YAML policy bytes.
func ParsePolicy(raw []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if p.Version == "" {
		return nil, fmt.Errorf("policy version is required")
	}
	if _, err := parseOutcome(p.DefaultOutcome); err != nil {
		return nil, fmt.Errorf("policy default_outcome: %w", err)
	}
	for i, r := range p.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if r.When == "" {
			return nil, fmt.Errorf("rule %q: when expression is required", r.Name)
		}
		if _, err := parseOutcome(r.Outcome); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return &p, nil
}

func parseOutcome(s string) (contracts.DecisionOutcome, error) {
	switch contracts.DecisionOutcome(s) {
	case contracts.OutcomeApproved, contracts.OutcomeRejected, contracts.OutcomeHeld:
		return contracts.DecisionOutcome(s), nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}
