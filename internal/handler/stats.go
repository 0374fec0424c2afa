package handler

import "net/http"

// StatsHandler handles GET /api/stats by encoding whatever collect returns.
func StatsHandler[T any](collect func() T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, collect())
	}
}
