package model

import "time"

// Detection is one labeled region found in a frame. Confidence is in [0,1].
type Detection struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// DetectionBatch holds the validated detections of a single frame, in detector order.
type DetectionBatch struct {
	FrameSeq   uint64
	CapturedAt time.Time
	Detections []Detection
}

// EnrichedResult pairs a detection with its derived value.
type EnrichedResult struct {
	Original   string      `json:"original"`
	Derived    string      `json:"derived"`
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// EnrichedBatch is the terminal output of the pipeline for one frame.
// Results[i] corresponds to Detections[i] of the source DetectionBatch.
type EnrichedBatch struct {
	FrameSeq    uint64           `json:"frameSeq"`
	CapturedAt  time.Time        `json:"capturedAt"`
	CompletedAt time.Time        `json:"completedAt"`
	Target      string           `json:"target"`
	Results     []EnrichedResult `json:"results"`
}

// Clone returns a copy whose Results slice is not shared with b.
func (b EnrichedBatch) Clone() EnrichedBatch {
	out := b
	if b.Results != nil {
		out.Results = append([]EnrichedResult(nil), b.Results...)
	}
	return out
}
