package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-labs/spine/pkg/canonicalize"
	"github.com/chainbridge-labs/spine/pkg/contracts"
)

func storedEntry(seq uint64, prevChain string) *contracts.ChainEntry {
	proof := contracts.Proof{
		Sequence:     seq,
		EventHash:    canonicalize.HashBytes([]byte("event")),
		DecisionHash: canonicalize.HashBytes([]byte("decision")),
		ActionID:     "act-1",
		ActionStatus: contracts.StatusSuccess,
		SealedAt:     time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
	proof.ProofHash = canonicalize.HashBytes([]byte("seal"))
	return &contracts.ChainEntry{
		Proof:     proof,
		PrevChain: prevChain,
		ChainHash: canonicalize.ChainHash(prevChain, proof.ProofHash),
	}
}

// sealedEntry builds an entry whose proof hash is genuinely derived from its
// fields, for tests that recompute the hash after a storage round trip.
func sealedEntry(t *testing.T, seq uint64, prevChain string, sealedAt time.Time) *contracts.ChainEntry {
	t.Helper()
	proof := contracts.Proof{
		Sequence:     seq,
		EventHash:    canonicalize.HashBytes([]byte("event")),
		DecisionHash: canonicalize.HashBytes([]byte("decision")),
		ActionID:     "act-1",
		ActionStatus: contracts.StatusSuccess,
		SealedAt:     sealedAt,
	}
	hash, err := canonicalize.CanonicalHash(proof.HashableFields())
	require.NoError(t, err)
	proof.ProofHash = hash
	return &contracts.ChainEntry{
		Proof:     proof,
		PrevChain: prevChain,
		ChainHash: canonicalize.ChainHash(prevChain, hash),
	}
}

func TestFileStore_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	first := storedEntry(1, contracts.GenesisHash)
	second := storedEntry(2, first.ChainHash)
	require.NoError(t, store.Append(context.Background(), first))
	require.NoError(t, store.Append(context.Background(), second))

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, *first, entries[0])
	assert.Equal(t, *second, entries[1])
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), storedEntry(1, contracts.GenesisHash)))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Proof.Sequence)
}

func TestFileStore_EmptyFileLoadsEmptyChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_RejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json\n"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}
