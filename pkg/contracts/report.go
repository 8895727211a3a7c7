package contracts

import "time"

// ViolationKind categorizes a chain integrity violation.
type ViolationKind string

// Violation kind constants.
const (
	ViolationSequenceGap       ViolationKind = "SEQUENCE_GAP"
	ViolationChainHashMismatch ViolationKind = "CHAIN_HASH_MISMATCH"
	ViolationProofHashMismatch ViolationKind = "PROOF_HASH_MISMATCH"
	ViolationBadSignature      ViolationKind = "BAD_SIGNATURE"
	ViolationBadHashFormat     ViolationKind = "BAD_HASH_FORMAT"
)

// ValidationReport is the outcome of walking a proof chain. On failure it
// names the first offending sequence number and the expected vs. actual
// values, so rejections are never ambiguous.
type ValidationReport struct {
	Valid        bool          `json:"valid"`
	Entries      int           `json:"entries"`
	CheckedAt    time.Time     `json:"checked_at"`
	FirstBadSeq  uint64        `json:"first_bad_seq,omitempty"`
	Violation    ViolationKind `json:"violation,omitempty"`
	ExpectedHash string        `json:"expected_hash,omitempty"`
	ActualHash   string        `json:"actual_hash,omitempty"`
	Detail       string        `json:"detail,omitempty"`
}
