package ledger

import (
	"context"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// Store is the durable backing for the proof chain. Implementations must
// flush Append to stable storage before returning: an acknowledged append
// survives a crash.
type Store interface {
	// Append durably persists a chain entry.
	Append(ctx context.Context, entry *contracts.ChainEntry) error
	// Load returns all persisted entries ordered by sequence number.
	Load(ctx context.Context) ([]contracts.ChainEntry, error)
}
