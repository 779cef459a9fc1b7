package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdrienChampion/sat-micro-rust/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *InstrumentedRetrievalRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "retrievals.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	// A nil telemetry instance is a no-op.
	return NewInstrumentedRetrievalRepository(db, nil)
}

func TestTrackAndGetRetrievals(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.TrackRetrieval(ctx, storage.RetrievalRecord{
		RunID: "run-1", URI: "https://example.org/a", FilePath: "a.cnf.xz", Size: 10,
		Status: storage.StatusRetrieved, RetrievedAt: at,
	}))
	require.NoError(t, repo.TrackRetrieval(ctx, storage.RetrievalRecord{
		RunID: "run-1", URI: "https://example.org/b", Status: storage.StatusFailed, Error: "HTTP 404",
	}))

	all, err := repo.GetRetrievals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// most recent first
	assert.Equal(t, "https://example.org/b", all[0].URI)
	assert.Equal(t, "HTTP 404", all[0].Error)
	assert.Empty(t, all[0].FilePath)
	assert.False(t, all[0].RetrievedAt.IsZero())

	assert.Equal(t, "a.cnf.xz", all[1].FilePath)
	assert.Equal(t, int64(10), all[1].Size)
	assert.True(t, at.Equal(all[1].RetrievedAt))

	failed, err := repo.GetRetrievalsByStatus(ctx, storage.StatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://example.org/b", failed[0].URI)

	limited, err := repo.GetRetrievals(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrievals.db")

	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, NewRetrievalRepository(db).TrackRetrieval(context.Background(), storage.RetrievalRecord{
		RunID: "run-1", URI: "https://example.org/a", Status: storage.StatusRetrieved,
	}))
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	defer db.Close()

	records, err := NewRetrievalRepository(db).GetRetrievals(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
