// Package event constructs immutable events from raw ingress input.
//
// Construction is the only path into the spine: it validates the raw input,
// assigns an identifier when the caller did not, and computes the canonical
// content hash that serves as the event's permanent identity.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainbridge-labs/spine/pkg/canonicalize"
	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// RawInput is the wire form of an event submission.
type RawInput struct {
	EventID   string         `json:"event_id,omitempty"`
	EventType string         `json:"event_type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Construct validates raw input and builds an immutable Event. The content
// hash is computed exactly once here; Event carries it for the rest of its
// life.
func Construct(raw RawInput) (*contracts.Event, error) {
	if strings.TrimSpace(raw.EventType) == "" {
		return nil, &contracts.ValidationError{Field: "event_type", Reason: "required"}
	}
	if len(raw.Payload) == 0 {
		return nil, &contracts.ValidationError{Field: "payload", Reason: "must be a non-empty object"}
	}
	if strings.TrimSpace(raw.Timestamp) == "" {
		return nil, &contracts.ValidationError{Field: "timestamp", Reason: "required"}
	}

	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		// Accept second-precision RFC 3339 too; reject anything else.
		ts, err = time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return nil, &contracts.ValidationError{Field: "timestamp", Reason: "not RFC 3339"}
		}
	}

	id := raw.EventID
	if id == "" {
		id = uuid.New().String()
	}

	// Hash over the same fields an auditor would recompute from the stored
	// record. NewEvent deep-copies the payload, so later mutation of the
	// caller's map cannot reach the constructed event; hash the copy.
	ev := contracts.NewEvent(id, raw.EventType, ts.UTC(), raw.Payload, "")
	hash, err := canonicalize.CanonicalHash(ev.HashableFields())
	if err != nil {
		return nil, &contracts.ValidationError{Field: "payload", Reason: "not canonically serializable: " + err.Error()}
	}
	return contracts.NewEvent(id, raw.EventType, ts.UTC(), raw.Payload, hash), nil
}

// ComputeHash recomputes the canonical content hash of an event. Pure and
// idempotent: calling it twice yields the same digest, which must match
// Event.Hash for an untampered event.
func ComputeHash(ev *contracts.Event) (string, error) {
	return canonicalize.CanonicalHash(ev.HashableFields())
}
