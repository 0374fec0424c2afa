package repository

import (
	"time"

	"arlens/internal/model"
)

// BatchRepository persists enriched batches and their results.
type BatchRepository interface {
	// Create operations
	InsertBatch(batch *model.BatchRecord, results []model.ResultRecord) (int64, error)

	// Read operations
	GetRecent(limit int) ([]model.BatchRecord, error)
	GetByBatchID(batchID string) (*model.BatchRecord, error)
	GetResults(id int64) ([]model.ResultRecord, error)
	GetTotalCount() (int, error)

	// Delete operations
	DeleteBefore(t time.Time) (int64, error)
}
