package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/izzyreal/qwatch/internal/httpx"
)

func (s *Server) queueStatsHandler(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("queue"))
	if filter != "" && !doublestar.ValidatePattern(filter) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid queue pattern")
		return
	}
	stats, err := s.src.QueueStats(r.Context(), s.query(filter))
	if err != nil {
		slog.Error("queue stats failed", "backend", s.src.Name(), "error", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "queue backend unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) queueHistoryHandler(w http.ResponseWriter, r *http.Request) {
	points, err := s.db.ListHistory(r.Context(), s.cfg.HistoryLimit)
	if err != nil {
		slog.Error("queue history failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "queue history unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, points)
}
