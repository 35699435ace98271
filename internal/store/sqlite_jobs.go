package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/izzyreal/qwatch/internal/protocol"
)

const jobColumns = `id, queue, status, created_utc, started_utc, ended_utc`

func (s *Store) EnqueueJob(ctx context.Context, queue string) (protocol.Job, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return protocol.Job{}, fmt.Errorf("queue is required")
	}
	now := time.Now().UTC()
	job := protocol.Job{
		ID:         uuid.NewString(),
		Queue:      queue,
		Status:     protocol.QueueStateQueued,
		CreatedUTC: now,
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, queue, status, created_utc, updated_utc)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, job.Queue, job.Status, formatTime(now), formatTime(now)); err != nil {
		return protocol.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (protocol.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Job{}, ErrNotFound
	}
	if err != nil {
		return protocol.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus moves a job to status. Entering started stamps the start
// time; entering a terminal state stamps the end time.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) (protocol.Job, error) {
	return s.updateJobStatusAt(ctx, id, status, time.Now().UTC())
}

func (s *Store) updateJobStatusAt(ctx context.Context, id, status string, now time.Time) (protocol.Job, error) {
	status = protocol.NormalizeQueueState(status)
	if !protocol.IsQueueState(status) {
		return protocol.Job{}, fmt.Errorf("unknown status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Job{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Job{}, ErrNotFound
	}
	if err != nil {
		return protocol.Job{}, fmt.Errorf("load job: %w", err)
	}
	if !protocol.CanTransition(job.Status, status) {
		return protocol.Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	switch {
	case status == protocol.QueueStateStarted:
		job.StartedUTC = now
	case protocol.IsTerminalQueueState(status):
		job.EndedUTC = now
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_utc = ?, ended_utc = ?, updated_utc = ? WHERE id = ?
	`, job.Status, nullTime(job.StartedUTC), nullTime(job.EndedUTC), formatTime(now), job.ID); err != nil {
		return protocol.Job{}, fmt.Errorf("update job status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return protocol.Job{}, fmt.Errorf("commit job status: %w", err)
	}
	return job, nil
}

// ListJobsByStatus returns up to limit jobs in status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status string, limit int) ([]protocol.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = ?
		ORDER BY created_utc ASC, id ASC
		LIMIT ?
	`, protocol.NormalizeQueueState(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []protocol.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (protocol.Job, error) {
	var (
		job                  protocol.Job
		createdUTC           string
		startedUTC, endedUTC sql.NullString
	)
	if err := scanner.Scan(&job.ID, &job.Queue, &job.Status, &createdUTC, &startedUTC, &endedUTC); err != nil {
		return protocol.Job{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdUTC); err == nil {
		job.CreatedUTC = t
	}
	job.StartedUTC = parseNullTime(startedUTC)
	job.EndedUTC = parseNullTime(endedUTC)
	return job, nil
}
