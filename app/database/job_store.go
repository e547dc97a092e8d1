package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/feedpulse/feedpulse/app/queue"
)

var _ queue.Store = (*JobStore)(nil)

// JobStore is the durable queue backend. Dedupe relies on the partial
// unique index over live jobs; claiming is a single UPDATE..RETURNING,
// so concurrent workers and concurrent processes never see the same job
// as available.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new job store
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) InsertJob(job *queue.Job) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO jobs (dedupe_key, feed_name, feed_url, state, attempt, max_attempts, enqueued_at, scheduled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) WHERE state IN ('pending', 'active') DO NOTHING
	`, job.DedupeKey, job.Payload.FeedName, job.Payload.FeedURL, string(job.State),
		job.Attempt, job.MaxAttempts, formatTime(job.EnqueuedAt), formatTime(job.ScheduledAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

func (s *JobStore) ClaimNext(now time.Time) (*queue.Job, error) {
	row := s.db.QueryRow(`
		UPDATE jobs
		SET state = 'active'
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = 'pending' AND scheduled_at <= ?
			ORDER BY scheduled_at, id
			LIMIT 1
		)
		RETURNING id, dedupe_key, feed_name, feed_url, state, attempt, max_attempts,
		          last_error, new_items, enqueued_at, scheduled_at, completed_at
	`, formatTime(now))

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

func (s *JobStore) Reschedule(job *queue.Job) error {
	_, err := s.db.Exec(`
		UPDATE jobs
		SET state = ?, attempt = ?, scheduled_at = ?, last_error = ?
		WHERE id = ?
	`, string(job.State), job.Attempt, formatTime(job.ScheduledAt), job.LastError, job.ID)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

func (s *JobStore) Finish(job *queue.Job, keep int) error {
	var completedAt any
	if job.CompletedAt != nil {
		completedAt = formatTime(*job.CompletedAt)
	}

	_, err := s.db.Exec(`
		UPDATE jobs
		SET state = ?, attempt = ?, last_error = ?, new_items = ?, completed_at = ?
		WHERE id = ?
	`, string(job.State), job.Attempt, job.LastError, job.NewItems, completedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	// Terminal rows are kept for bookkeeping only; trim the oldest.
	_, err = s.db.Exec(`
		DELETE FROM jobs
		WHERE state = ? AND id NOT IN (
			SELECT id FROM jobs WHERE state = ? ORDER BY id DESC LIMIT ?
		)
	`, string(job.State), string(job.State), keep)
	if err != nil {
		return fmt.Errorf("failed to prune terminal jobs: %w", err)
	}

	return nil
}

func (s *JobStore) ResetActive() (int64, error) {
	res, err := s.db.Exec(`UPDATE jobs SET state = 'pending' WHERE state = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset active jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *JobStore) CountByState() (map[queue.State]int64, error) {
	rows, err := s.db.Query(`SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[queue.State]int64)
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[queue.State(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}

	return counts, nil
}

func scanJob(row rowScanner) (*queue.Job, error) {
	var job queue.Job
	var state, enqueuedAt, scheduledAt string
	var completedAt sql.NullString

	err := row.Scan(&job.ID, &job.DedupeKey, &job.Payload.FeedName, &job.Payload.FeedURL,
		&state, &job.Attempt, &job.MaxAttempts, &job.LastError, &job.NewItems,
		&enqueuedAt, &scheduledAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.State = queue.State(state)
	if job.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
		return nil, err
	}
	if job.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}

	return &job, nil
}
