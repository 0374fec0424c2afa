package dto

import "arlens/internal/model"

// ViewerFrame is the message pushed to connected viewers on every display tick.
type ViewerFrame struct {
	Type       string                 `json:"type"`
	FrameSeq   uint64                 `json:"frameSeq"`
	Image      string                 `json:"image"`
	ResultSeq  uint64                 `json:"resultSeq,omitempty"`
	ResultAge  int64                  `json:"resultAgeMs,omitempty"`
	Target     string                 `json:"target,omitempty"`
	Results    []model.EnrichedResult `json:"results"`
	RenderedAt int64                  `json:"renderedAt"`
}

// CurrentResults is the body of /api/results/current.
type CurrentResults struct {
	Valid       bool                   `json:"valid"`
	FrameSeq    uint64                 `json:"frameSeq"`
	Target      string                 `json:"target"`
	CapturedAt  string                 `json:"capturedAt,omitempty"`
	CompletedAt string                 `json:"completedAt,omitempty"`
	SetAt       string                 `json:"setAt,omitempty"`
	Results     []model.EnrichedResult `json:"results"`
}

// HistoryBatch is one persisted batch with its results.
type HistoryBatch struct {
	model.BatchRecord
	Results []model.ResultRecord `json:"results"`
}
