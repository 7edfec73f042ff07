package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/creality-bridge/internal/telemetry"
)

// handleGetHistory returns recent state snapshots for an entry, newest first.
//
// Query parameters:
//   - limit: number of records (default 50, max 200)
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	e, ok := s.lookupEntry(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	limit = telemetry.ClampLimit(limit)

	records, err := s.history.GetHistory(r.Context(), e.ID, limit)
	if err != nil {
		s.logger.Error("failed to query state history", "entry_id", e.ID, "error", err)
		writeInternalError(w, "failed to query state history")
		return
	}
	if records == nil {
		records = []telemetry.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id": e.ID,
		"history":  records,
		"count":    len(records),
		"limit":    limit,
	})
}
