package contracts

import "time"

// GenesisHash is the fixed prev_chain_hash of the first chain entry.
const GenesisHash = "genesis"

// Proof is the sealed record binding one event, one decision and one action.
// Owned exclusively by the ledger once appended; never mutated.
//
// Lifecycle: PENDING (action executed) -> SEALED (ProofHash computed) ->
// APPENDED (ChainHash computed, durably written). No transition is
// reversible; there is no amend operation.
type Proof struct {
	Sequence     uint64       `json:"sequence"`
	EventHash    string       `json:"event_hash"`
	DecisionHash string       `json:"decision_hash"`
	ActionID     string       `json:"action_id"`
	ActionStatus ActionStatus `json:"action_status"`
	SealedAt     time.Time    `json:"sealed_at"`
	ProofHash    string       `json:"proof_hash"`
	// Signature is the ed25519 signature over ProofHash, when a signer is
	// configured. Excluded from ProofHash itself.
	Signature string `json:"signature,omitempty"`
	SignerKey string `json:"signer_key,omitempty"`
}

// HashableFields returns the canonical serialization input for ProofHash.
// Signature fields are excluded: the signature covers the hash, not the
// other way around.
func (p *Proof) HashableFields() map[string]any {
	return map[string]any{
		"sequence":      p.Sequence,
		"event_hash":    p.EventHash,
		"decision_hash": p.DecisionHash,
		"action_id":     p.ActionID,
		"action_status": string(p.ActionStatus),
		"sealed_at":     p.SealedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ChainEntry is the persisted wrapper around a Proof. ChainHash binds the
// proof to its predecessor: H(prev_chain_hash || proof_hash), with
// GenesisHash standing in for the predecessor of the first entry.
type ChainEntry struct {
	Proof     Proof  `json:"proof"`
	PrevChain string `json:"prev_chain_hash"`
	ChainHash string `json:"chain_hash"`
}
