package replayguard

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
	path := filepath.Join(t.TempDir(), "replay.db")
	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rec := contracts.ReplayRecord{
		EventHash: "a1b2c3",
		FirstSeen: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		Nonce:     "nonce-1",
	}
	require.NoError(t, store.Put(ctx, rec))

	got, found, err := store.Get(ctx, "a1b2c3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.EventHash, got.EventHash)
	assert.True(t, rec.FirstSeen.Equal(got.FirstSeen))
	assert.Equal(t, rec.Nonce, got.Nonce)

	_, found, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_DuplicatePutFails(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rec := contracts.ReplayRecord{EventHash: "dup", FirstSeen: time.Now().UTC(), Nonce: "n"}
	require.NoError(t, store.Put(ctx, rec))
	assert.Error(t, store.Put(ctx, rec))
}

func TestSQLiteStore_EvictBefore(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	for i, h := range []string{"old-1", "old-2", "fresh"} {
		require.NoError(t, store.Put(ctx, contracts.ReplayRecord{
			EventHash: h,
			FirstSeen: base.Add(time.Duration(i) * time.Hour),
			Nonce:     h,
		}))
	}

	n, err := store.EvictBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].EventHash)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, contracts.ReplayRecord{
		EventHash: "persist-me", FirstSeen: time.Now().UTC(), Nonce: "n",
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	recs, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "persist-me", recs[0].EventHash)
}
