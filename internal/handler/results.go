package handler

import (
	"net/http"
	"strconv"
	"time"

	"arlens/internal/dto"
	"arlens/internal/logger"
	"arlens/internal/model"
	"arlens/internal/repository"
	"arlens/internal/service/presentation"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// CurrentResultsHandler handles GET /api/results/current with the batch the
// display is currently showing.
func CurrentResultsHandler(state *presentation.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshot := state.Snapshot()
		response := dto.CurrentResults{
			Valid:   snapshot.Valid,
			Results: []model.EnrichedResult{},
		}
		if snapshot.Valid {
			batch := snapshot.Batch
			response.FrameSeq = batch.FrameSeq
			response.Target = batch.Target
			response.CapturedAt = formatTime(batch.CapturedAt)
			response.CompletedAt = formatTime(batch.CompletedAt)
			response.SetAt = formatTime(snapshot.SetAt)
			if batch.Results != nil {
				response.Results = batch.Results
			}
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// HistoryHandler handles GET /api/results/history?limit=N, newest batch first.
func HistoryHandler(repo repository.BatchRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(parsed, maxHistoryLimit)
		}

		batches, err := repo.GetRecent(limit)
		if err != nil {
			logger.Error("Failed to read history: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to read history")
			return
		}

		history := make([]dto.HistoryBatch, 0, len(batches))
		for _, batch := range batches {
			results, err := repo.GetResults(batch.ID)
			if err != nil {
				logger.Error("Failed to read results of batch %s: %v", batch.BatchID, err)
				writeError(w, http.StatusInternalServerError, "failed to read history")
				return
			}
			if results == nil {
				results = []model.ResultRecord{}
			}
			history = append(history, dto.HistoryBatch{BatchRecord: batch, Results: results})
		}

		total, err := repo.GetTotalCount()
		if err != nil {
			logger.Warning("Failed to count history: %v", err)
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		writeJSON(w, http.StatusOK, history)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
