package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/source"
)

func (s *Store) Name() string { return "sqlite" }

// QueueStats counts jobs per state across every queue matching q.Filter and
// aggregates the completions inside the query window.
func (s *Store) QueueStats(ctx context.Context, q source.Query) (protocol.QueueStats, error) {
	counts := protocol.EmptyQueueCounts()

	rows, err := s.db.QueryContext(ctx, `SELECT queue, status, COUNT(*) FROM jobs GROUP BY queue, status`)
	if err != nil {
		return protocol.QueueStats{}, fmt.Errorf("count jobs: %w", err)
	}
	for rows.Next() {
		var (
			queue, status string
			n             int64
		)
		if err := rows.Scan(&queue, &status, &n); err != nil {
			_ = rows.Close()
			return protocol.QueueStats{}, fmt.Errorf("scan job count: %w", err)
		}
		if !source.MatchQueue(q.Filter, queue) || !protocol.IsQueueState(status) {
			continue
		}
		counts[protocol.NormalizeQueueState(status)] += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return protocol.QueueStats{}, fmt.Errorf("iterate job counts: %w", err)
	}
	_ = rows.Close()

	completions, err := s.completionsSince(ctx, q)
	if err != nil {
		return protocol.QueueStats{}, err
	}
	return protocol.QueueStats{
		Queue:      counts,
		Processing: source.BuildProcessing(counts, completions, q),
	}, nil
}

func (s *Store) completionsSince(ctx context.Context, q source.Query) ([]source.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue, status, started_utc, ended_utc
		FROM jobs
		WHERE ended_utc IS NOT NULL AND ended_utc >= ?
	`, formatTime(q.Since().Add(-time.Second)))
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []source.Completion
	for rows.Next() {
		var (
			c              source.Completion
			started, ended sql.NullString
		)
		if err := rows.Scan(&c.Queue, &c.Status, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		if !source.MatchQueue(q.Filter, c.Queue) {
			continue
		}
		c.Started = parseNullTime(started)
		c.Ended = parseNullTime(ended)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return out, nil
}
