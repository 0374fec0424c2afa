package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"arlens/internal/model"
)

// BatchRepository implements repository.BatchRepository for SQLite.
type BatchRepository struct {
	db *DB
}

// NewBatchRepository creates a new SQLite batch repository.
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// InsertBatch stores a batch and its results in a single transaction and
// returns the batch row id.
func (r *BatchRepository) InsertBatch(batch *model.BatchRecord, results []model.ResultRecord) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO batches (batch_id, run_id, frame_seq, target, captured_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, batch.BatchID, batch.RunID, batch.FrameSeq, batch.Target, batch.CapturedAt.UTC(), batch.CompletedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get batch id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO results (batch_id, position, original, derived, x, y, width, height, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		if _, err := stmt.Exec(id, result.Position, result.Original, result.Derived, result.X, result.Y, result.Width, result.Height, result.Confidence); err != nil {
			return 0, fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	batch.ID = id
	return id, nil
}

// GetRecent returns the most recently completed batches, newest first.
func (r *BatchRepository) GetRecent(limit int) ([]model.BatchRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, batch_id, run_id, frame_seq, target, captured_at, completed_at
		FROM batches ORDER BY completed_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	batches := []model.BatchRecord{}
	for rows.Next() {
		var b model.BatchRecord
		if err := rows.Scan(&b.ID, &b.BatchID, &b.RunID, &b.FrameSeq, &b.Target, &b.CapturedAt, &b.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// GetByBatchID retrieves a batch by its public identifier, nil if absent.
func (r *BatchRepository) GetByBatchID(batchID string) (*model.BatchRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var b model.BatchRecord
	err := r.db.Conn().QueryRow(`
		SELECT id, batch_id, run_id, frame_seq, target, captured_at, completed_at
		FROM batches WHERE batch_id = ?
	`, batchID).Scan(&b.ID, &b.BatchID, &b.RunID, &b.FrameSeq, &b.Target, &b.CapturedAt, &b.CompletedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// GetResults returns the results of a batch in their original order.
func (r *BatchRepository) GetResults(id int64) ([]model.ResultRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, batch_id, position, original, derived, x, y, width, height, confidence
		FROM results WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []model.ResultRecord{}
	for rows.Next() {
		var res model.ResultRecord
		if err := rows.Scan(&res.ID, &res.BatchID, &res.Position, &res.Original, &res.Derived, &res.X, &res.Y, &res.Width, &res.Height, &res.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetTotalCount returns the number of stored batches.
func (r *BatchRepository) GetTotalCount() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM batches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count batches: %w", err)
	}
	return count, nil
}

// DeleteBefore removes batches completed before t along with their results.
func (r *BatchRepository) DeleteBefore(t time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().Exec(`DELETE FROM batches WHERE completed_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete batches: %w", err)
	}
	return res.RowsAffected()
}
