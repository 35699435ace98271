package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/izzyreal/qwatch/internal/httpx"
	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/store"
)

func (s *Server) enqueueJobHandler(w http.ResponseWriter, r *http.Request) {
	var req protocol.EnqueueJobRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Queue) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "queue is required")
		return
	}
	job, err := s.db.EnqueueJob(r.Context(), req.Queue)
	if err != nil {
		slog.Error("enqueue job failed", "queue", req.Queue, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, job)
}

func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.db.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (s *Server) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req protocol.JobStatusUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !protocol.IsQueueState(req.Status) {
		httpx.WriteError(w, http.StatusBadRequest, "unknown status")
		return
	}
	job, err := s.db.UpdateJobStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, store.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("job store failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "job store failed")
	}
}
