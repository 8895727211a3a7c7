package contracts

import "time"

// ReplayRecord tracks an accepted event within the replay retention window.
// The record set is persisted so that guard state survives restarts.
type ReplayRecord struct {
	EventHash string    `json:"event_hash"`
	FirstSeen time.Time `json:"first_seen"`
	Nonce     string    `json:"nonce"`
}

// Expired reports whether the record has aged out of the retention window.
func (r ReplayRecord) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.FirstSeen) > window
}
