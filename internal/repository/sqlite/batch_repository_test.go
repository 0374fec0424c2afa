package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/model"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestBatch(t *testing.T, repo *BatchRepository, batchID string, completedAt time.Time, texts ...string) int64 {
	t.Helper()
	batch := &model.BatchRecord{
		BatchID:     batchID,
		RunID:       "run-1",
		FrameSeq:    42,
		Target:      "hi",
		CapturedAt:  completedAt.Add(-100 * time.Millisecond),
		CompletedAt: completedAt,
	}
	var results []model.ResultRecord
	for i, text := range texts {
		results = append(results, model.ResultRecord{Position: i, Original: text, Derived: text + "!", X: 10 * i, Y: 5, Width: 40, Height: 20, Confidence: 0.9})
	}
	id, err := repo.InsertBatch(batch, results)
	require.NoError(t, err)
	assert.Equal(t, id, batch.ID)
	return id
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(), "re-running up is a no-op")

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestBatchRepository_InsertAndRead(t *testing.T) {
	repo := NewBatchRepository(setupTestDB(t))
	now := time.Now().Truncate(time.Millisecond)

	id := insertTestBatch(t, repo, "batch-a", now, "HELLO", "WORLD", "EXIT")

	got, err := repo.GetByBatchID("batch-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, uint64(42), got.FrameSeq)
	assert.True(t, now.Equal(got.CompletedAt), "completed_at round trip: %v vs %v", now, got.CompletedAt)

	results, err := repo.GetResults(id)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, text := range []string{"HELLO", "WORLD", "EXIT"} {
		assert.Equal(t, i, results[i].Position)
		assert.Equal(t, text, results[i].Original)
		assert.Equal(t, text+"!", results[i].Derived)
	}
}

func TestBatchRepository_GetByBatchIDMissing(t *testing.T) {
	repo := NewBatchRepository(setupTestDB(t))

	got, err := repo.GetByBatchID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBatchRepository_GetRecentNewestFirst(t *testing.T) {
	repo := NewBatchRepository(setupTestDB(t))
	base := time.Now()

	insertTestBatch(t, repo, "old", base.Add(-2*time.Minute), "A1")
	insertTestBatch(t, repo, "mid", base.Add(-time.Minute), "B2")
	insertTestBatch(t, repo, "new", base, "C3")

	recent, err := repo.GetRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "new", recent[0].BatchID)
	assert.Equal(t, "mid", recent[1].BatchID)

	count, err := repo.GetTotalCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBatchRepository_DeleteBeforeCascades(t *testing.T) {
	repo := NewBatchRepository(setupTestDB(t))
	base := time.Now()

	oldID := insertTestBatch(t, repo, "old", base.Add(-time.Hour), "A1", "A2")
	insertTestBatch(t, repo, "new", base, "B1")

	deleted, err := repo.DeleteBefore(base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	results, err := repo.GetResults(oldID)
	require.NoError(t, err)
	assert.Empty(t, results, "results should be removed with their batch")

	count, err := repo.GetTotalCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBatchRepository_DuplicateBatchIDFails(t *testing.T) {
	repo := NewBatchRepository(setupTestDB(t))
	insertTestBatch(t, repo, "dup", time.Now(), "X1")

	_, err := repo.InsertBatch(&model.BatchRecord{BatchID: "dup", RunID: "r", Target: "hi", CapturedAt: time.Now(), CompletedAt: time.Now()}, nil)
	assert.Error(t, err)
}
