package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mpataki/trek/internal/models"
)

const (
	backlogWaiting   = "waiting"
	backlogActive    = "active"
	backlogCompleted = "completed"
	backlogFailed    = "failed"
)

// Claim is a job handed to a worker for one attempt. Attempt is 1-based.
type Claim struct {
	Job         models.Job
	Attempt     int
	MaxAttempts int
}

func (c *Claim) Final() bool {
	return c.Attempt >= c.MaxAttempts
}

type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Enqueue persists job as due immediately.
func (s *Storage) Enqueue(ctx context.Context, job models.Job, maxAttempts int) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backlog (job_id, payload, state, attempts, max_attempts, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, payload, backlogWaiting, maxAttempts, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", job.ID, err)
	}
	return nil
}

// ClaimNext marks the oldest due job active and returns it, or nil when
// nothing is due. Jobs that have used all their attempts are never claimed.
func (s *Storage) ClaimNext(ctx context.Context) (*Claim, error) {
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx,
		`UPDATE backlog SET state = ?, attempts = attempts + 1, updated_at = ?
		 WHERE job_id = (
			SELECT job_id FROM backlog
			WHERE state = ? AND run_at <= ? AND attempts < max_attempts
			ORDER BY run_at, created_at LIMIT 1
		 )
		 RETURNING payload, attempts, max_attempts`,
		backlogActive, now, backlogWaiting, now,
	)

	var payload []byte
	var claim Claim
	if err := row.Scan(&payload, &claim.Attempt, &claim.MaxAttempts); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &claim.Job); err != nil {
		return nil, fmt.Errorf("corrupt backlog payload: %w", err)
	}
	return &claim, nil
}

// Retry puts an active job back in line, due at runAt.
func (s *Storage) Retry(ctx context.Context, jobID string, runAt time.Time, reason string) error {
	return s.settle(ctx, jobID, backlogWaiting, runAt.UnixMilli(), reason)
}

func (s *Storage) Complete(ctx context.Context, jobID string) error {
	return s.settle(ctx, jobID, backlogCompleted, 0, "")
}

func (s *Storage) Fail(ctx context.Context, jobID string, reason string) error {
	return s.settle(ctx, jobID, backlogFailed, 0, reason)
}

func (s *Storage) settle(ctx context.Context, jobID, state string, runAt int64, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backlog SET state = ?, run_at = CASE WHEN ? > 0 THEN ? ELSE run_at END,
		 last_error = ?, updated_at = ? WHERE job_id = ?`,
		state, runAt, runAt, reason, s.now().UnixMilli(), jobID,
	)
	return err
}

// Dequeue removes a job from the backlog regardless of state.
func (s *Storage) Dequeue(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM backlog WHERE job_id = ?`, jobID)
	return err
}

// Release hands an active job back without counting the interrupted attempt.
func (s *Storage) Release(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE backlog SET state = ?, attempts = MAX(attempts - 1, 0), updated_at = ?
		 WHERE job_id = ? AND state = ?`,
		backlogWaiting, s.now().UnixMilli(), jobID, backlogActive,
	)
	return err
}

// StaleRelease reports what ReleaseStale did with the jobs it found active.
type StaleRelease struct {
	Requeued  int64
	Exhausted []models.Job
}

// ErrAttemptsExhausted is recorded against jobs whose final attempt was cut
// short.
const ErrAttemptsExhausted = "interrupted during final attempt"

// ReleaseStale settles jobs left active by a previous process. The
// interrupted attempt still counts: jobs with attempts left go back to
// waiting, the rest are failed and returned in Exhausted.
func (s *Storage) ReleaseStale(ctx context.Context) (StaleRelease, error) {
	var out StaleRelease
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	rows, err := tx.QueryContext(ctx,
		`UPDATE backlog SET state = ?, last_error = ?, updated_at = ?
		 WHERE state = ? AND attempts >= max_attempts
		 RETURNING payload`,
		backlogFailed, ErrAttemptsExhausted, now, backlogActive,
	)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			rows.Close()
			return out, err
		}
		var job models.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			rows.Close()
			return out, fmt.Errorf("corrupt backlog payload: %w", err)
		}
		out.Exhausted = append(out.Exhausted, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE backlog SET state = ?, updated_at = ? WHERE state = ?`,
		backlogWaiting, now, backlogActive,
	)
	if err != nil {
		return out, err
	}
	if out.Requeued, err = res.RowsAffected(); err != nil {
		return out, err
	}
	return out, tx.Commit()
}

// PruneFinished deletes completed and failed jobs last touched before cutoff.
func (s *Storage) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM backlog WHERE state IN (?, ?) AND updated_at < ?`,
		backlogCompleted, backlogFailed, cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) Stats(ctx context.Context) (QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM backlog GROUP BY state`)
	if err != nil {
		return QueueStats{}, err
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return QueueStats{}, err
		}
		switch state {
		case backlogWaiting:
			stats.Waiting = n
		case backlogActive:
			stats.Active = n
		case backlogCompleted:
			stats.Completed = n
		case backlogFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}
