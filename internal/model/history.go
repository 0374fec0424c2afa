package model

import "time"

// BatchRecord is a persisted enriched batch.
type BatchRecord struct {
	ID          int64     `json:"id"`
	BatchID     string    `json:"batchId"`
	RunID       string    `json:"runId"`
	FrameSeq    uint64    `json:"frameSeq"`
	Target      string    `json:"target"`
	CapturedAt  time.Time `json:"capturedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// ResultRecord is one persisted enriched result belonging to a BatchRecord.
type ResultRecord struct {
	ID         int64   `json:"id"`
	BatchID    int64   `json:"batchId"`
	Position   int     `json:"position"`
	Original   string  `json:"original"`
	Derived    string  `json:"derived"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}
