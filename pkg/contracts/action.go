package contracts

import "time"

// ActionStatus is the resolved outcome of an action. There is no third
// "unknown" state: the executor must resolve timeouts and ambiguous
// downstream responses to StatusFailed before the result is emitted.
type ActionStatus string

// Action status constants.
const (
	StatusSuccess ActionStatus = "SUCCESS"
	StatusFailed  ActionStatus = "FAILED"
)

// Valid reports whether s is one of the two permitted statuses.
func (s ActionStatus) Valid() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ActionResult is the immutable outcome of executing a decision's effect.
// Status reflects the real outcome of the side effect; a failed action is
// never recorded as success.
type ActionResult struct {
	ActionID   string            `json:"action_id"`
	Status     ActionStatus      `json:"status"`
	ExecutedAt time.Time         `json:"executed_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
