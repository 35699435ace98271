package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/izzyreal/qwatch/internal/protocol"
)

func (s *Server) runHistorySampler(ctx context.Context) {
	if err := s.sampleHistory(ctx); err != nil {
		slog.Error("history sample failed", "error", err)
	}
	ticker := time.NewTicker(s.cfg.HistorySampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sampleHistory(ctx); err != nil && ctx.Err() == nil {
				slog.Error("history sample failed", "error", err)
			}
		}
	}
}

// sampleHistory stores one queued/started/failed snapshot from the backend,
// updates the gauges and trims the table to the served window.
func (s *Server) sampleHistory(ctx context.Context) error {
	stats, err := s.src.QueueStats(ctx, s.query(""))
	if err != nil {
		s.metrics.sampleErrors.Inc()
		s.setServing(false)
		return fmt.Errorf("read queue stats: %w", err)
	}
	s.setServing(true)
	s.metrics.observe(stats)

	point := protocol.HistoryPoint{
		Timestamp: s.now().Unix(),
		Queued:    stats.Queue[protocol.QueueStateQueued],
		Started:   stats.Queue[protocol.QueueStateStarted],
		Failed:    stats.Queue[protocol.QueueStateFailed],
	}
	if err := s.db.InsertSnapshot(ctx, point); err != nil {
		s.metrics.sampleErrors.Inc()
		return err
	}
	s.metrics.samples.Inc()
	if _, err := s.db.PruneHistory(ctx, s.cfg.HistoryLimit); err != nil {
		return err
	}
	slog.Debug("history sampled", "queued", point.Queued, "started", point.Started, "failed", point.Failed)
	return nil
}
