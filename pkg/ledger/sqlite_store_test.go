package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	store, err := OpenSQLiteStore(path)
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

func TestSQLiteStore_DuplicateSequenceRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entry := storedEntry(1, contracts.GenesisHash)
	require.NoError(t, store.Append(context.Background(), entry))
	assert.Error(t, store.Append(context.Background(), entry))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), storedEntry(1, contracts.GenesisHash)))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	entries, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Proof.Sequence)
}

func TestLedger_NanosecondClockSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2026, 8, 26, 12, 0, 0, 123456789, time.UTC) }
	l := New(store, WithClock(clock))
	require.NoError(t, l.ValidateOnStartup(context.Background()))
	eh, dh := testHashes()
	_, err = l.SealAndAppend(context.Background(), eh, dh, successResult())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	fresh := New(reopened, WithClock(clock))
	assert.NoError(t, fresh.ValidateOnStartup(context.Background()))
}

func TestLedger_OverSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	l := openLedger(t, store)
	eh, dh := testHashes()
	for i := 0; i < 3; i++ {
		_, err := l.SealAndAppend(context.Background(), eh, dh, successResult())
		require.NoError(t, err)
	}

	report, err := l.VerifyChain(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)
}
