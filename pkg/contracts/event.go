// Package contracts defines the immutable artifacts that flow through the
// execution spine: events, decisions, action results, proofs and chain
// entries. Every artifact is hash-addressed; downstream stages consume the
// hash-verified artifact, never raw mutable state.
package contracts

import (
	"time"
)

// Event is an immutable external occurrence submitted for processing.
//
// Fields are unexported; accessors return copies. Once constructed the event
// cannot change, and EventHash is its permanent identity.
type Event struct {
	id        string
	eventType string
	timestamp time.Time
	payload   map[string]any
	hash      string
}

// NewEvent assembles an Event. Callers are expected to go through
// event.Construct, which validates the raw input and computes the canonical
// hash; NewEvent itself performs no validation.
func NewEvent(id, eventType string, ts time.Time, payload map[string]any, hash string) *Event {
	return &Event{
		id:        id,
		eventType: eventType,
		timestamp: ts,
		payload:   deepCopyMap(payload),
		hash:      hash,
	}
}

// ID returns the unique event identifier.
func (e *Event) ID() string { return e.id }

// Type returns the event type tag.
func (e *Event) Type() string { return e.eventType }

// Timestamp returns the creation timestamp.
func (e *Event) Timestamp() time.Time { return e.timestamp }

// Hash returns the canonical content hash (lowercase hex SHA-256).
func (e *Event) Hash() string { return e.hash }

// Payload returns a deep copy of the structured payload.
func (e *Event) Payload() map[string]any { return deepCopyMap(e.payload) }

// HashableFields returns the canonical serialization input for the event
// hash. Idempotent: the same event always yields the same map.
func (e *Event) HashableFields() map[string]any {
	return map[string]any{
		"event_id":   e.id,
		"event_type": e.eventType,
		"timestamp":  e.timestamp.UTC().Format(time.RFC3339Nano),
		"payload":    deepCopyMap(e.payload),
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = deepCopyValue(e)
		}
		return cp
	default:
		return v
	}
}
