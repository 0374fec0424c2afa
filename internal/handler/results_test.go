package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arlens/internal/dto"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/service/presentation"
)

type fakeHistory struct {
	batches []model.BatchRecord
	results map[int64][]model.ResultRecord
	err     error
	limit   int
}

func (f *fakeHistory) InsertBatch(*model.BatchRecord, []model.ResultRecord) (int64, error) {
	return 0, errors.New("read only")
}

func (f *fakeHistory) GetRecent(limit int) ([]model.BatchRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.batches[:min(limit, len(f.batches))], nil
}

func (f *fakeHistory) GetByBatchID(string) (*model.BatchRecord, error) { return nil, nil }

func (f *fakeHistory) GetResults(id int64) ([]model.ResultRecord, error) {
	return f.results[id], nil
}

func (f *fakeHistory) GetTotalCount() (int, error) { return len(f.batches), nil }

func (f *fakeHistory) DeleteBefore(time.Time) (int64, error) { return 0, nil }

func TestCurrentResultsHandler_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	CurrentResultsHandler(presentation.New(false))(rec, httptest.NewRequest(http.MethodGet, "/api/results/current", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"frameSeq":0,"target":"","results":[]}`, rec.Body.String())
}

func TestCurrentResultsHandler_Latest(t *testing.T) {
	state := presentation.New(false)
	state.SetLatest(model.EnrichedBatch{
		FrameSeq:    12,
		Target:      "de",
		CapturedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		Results: []model.EnrichedResult{
			{Original: "EXIT", Derived: "AUSGANG", Confidence: 0.9, Box: model.BoundingBox{X: 1, Y: 2, W: 30, H: 12}},
		},
	})

	rec := httptest.NewRecorder()
	CurrentResultsHandler(state)(rec, httptest.NewRequest(http.MethodGet, "/api/results/current", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body dto.CurrentResults
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Valid)
	assert.Equal(t, uint64(12), body.FrameSeq)
	assert.Equal(t, "de", body.Target)
	assert.Equal(t, "2026-01-02T03:04:05Z", body.CapturedAt)
	assert.NotEmpty(t, body.SetAt)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "AUSGANG", body.Results[0].Derived)
}

func TestCurrentResultsHandler_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	CurrentResultsHandler(presentation.New(false))(rec, httptest.NewRequest(http.MethodPost, "/api/results/current", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHistoryHandler(t *testing.T) {
	repo := &fakeHistory{
		batches: []model.BatchRecord{
			{ID: 2, BatchID: "b2", FrameSeq: 20},
			{ID: 1, BatchID: "b1", FrameSeq: 10},
		},
		results: map[int64][]model.ResultRecord{
			2: {{ID: 5, BatchID: 2, Original: "STOP", Derived: "HALT"}},
		},
	}
	handler := HistoryHandler(repo, logger.Discard())

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/results/history?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, repo.limit)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var body []dto.HistoryBatch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "b2", body[0].BatchID)
	assert.Equal(t, "HALT", body[0].Results[0].Derived)
	assert.NotNil(t, body[1].Results)
	assert.Empty(t, body[1].Results)
}

func TestHistoryHandler_Limits(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{"default", "", http.StatusOK, defaultHistoryLimit},
		{"capped", "?limit=100000", http.StatusOK, maxHistoryLimit},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"garbage", "?limit=ten", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeHistory{}
			rec := httptest.NewRecorder()
			HistoryHandler(repo, logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/api/results/history"+tt.query, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLimit, repo.limit)
		})
	}
}

func TestHistoryHandler_RepositoryError(t *testing.T) {
	repo := &fakeHistory{err: errors.New("disk gone")}
	rec := httptest.NewRecorder()
	HistoryHandler(repo, logger.Discard())(rec, httptest.NewRequest(http.MethodGet, "/api/results/history", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to read history"}`, rec.Body.String())
}

func TestStatsHandler(t *testing.T) {
	type stats struct {
		Frames int `json:"frames"`
	}
	calls := 0
	handler := StatsHandler(func() stats {
		calls++
		return stats{Frames: 42}
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"frames":42}`, rec.Body.String())
}
