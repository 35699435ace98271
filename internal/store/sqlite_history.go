package store

import (
	"context"
	"fmt"

	"github.com/izzyreal/qwatch/internal/protocol"
)

func (s *Store) InsertSnapshot(ctx context.Context, p protocol.HistoryPoint) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO history (sampled_unix, queued, started, failed) VALUES (?, ?, ?, ?)
	`, p.Timestamp, p.Queued, p.Started, p.Failed); err != nil {
		return fmt.Errorf("insert history snapshot: %w", err)
	}
	return nil
}

// ListHistory returns the newest limit snapshots, oldest first. The result is
// never nil.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]protocol.HistoryPoint, error) {
	if limit <= 0 {
		limit = 60
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sampled_unix, queued, started, failed FROM (
			SELECT id, sampled_unix, queued, started, failed
			FROM history
			ORDER BY sampled_unix DESC, id DESC
			LIMIT ?
		) ORDER BY sampled_unix ASC, id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []protocol.HistoryPoint{}
	for rows.Next() {
		var p protocol.HistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Queued, &p.Started, &p.Failed); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// PruneHistory keeps only the newest keep snapshots.
func (s *Store) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY sampled_unix DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
