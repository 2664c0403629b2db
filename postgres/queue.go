package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/handover"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check
var _ handover.Queue = (*Queue)(nil)

// NewQueue creates a PostgreSQL-backed queue.
func NewQueue(pool *pgxpool.Pool, logger *slog.Logger, cfg handover.QueueConfig) *Queue {
	return &Queue{
		pool:   pool,
		logger: logger,
		cfg:    cfg,
	}
}

// Queue is a PostgreSQL-backed job queue implementation.
type Queue struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	cfg    handover.QueueConfig
}

const jobColumns = `
	id, queue_name, job_type, COALESCE(inspection_id, 0), payload, status,
	priority, max_attempts, attempt_count, scheduled_at, created_at,
	started_at, completed_at, result, error_message, worker_id`

func scanJob(row pgx.Row) (*handover.Job, error) {
	job := &handover.Job{}
	var startedAt, completedAt pgtype.Timestamptz
	var errorMessage, workerID pgtype.Text

	err := row.Scan(
		&job.ID,
		&job.QueueName,
		&job.JobType,
		&job.InspectionID,
		&job.Payload,
		&job.Status,
		&job.Priority,
		&job.MaxAttempts,
		&job.AttemptCount,
		&job.ScheduledAt,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.Result,
		&errorMessage,
		&workerID,
	)
	if err != nil {
		return nil, err
	}

	job.StartedAt = fromPgTimestampPtr(startedAt)
	job.CompletedAt = fromPgTimestampPtr(completedAt)
	job.ErrorMessage = fromPgText(errorMessage)
	job.WorkerID = fromPgText(workerID)
	return job, nil
}

// Enqueue adds a job to the queue.
func (q *Queue) Enqueue(ctx context.Context, job *handover.Job, opts ...handover.EnqueueOption) error {
	o := handover.ResolveEnqueueOptions(opts...)
	now := time.Now()

	// Set defaults
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = handover.JobStatusPending
	}
	if job.QueueName == "" {
		job.QueueName = handover.QueueDefault
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if o.Priority != 0 {
		job.Priority = o.Priority
	}
	if o.MaxAttempts > 0 {
		job.MaxAttempts = o.MaxAttempts
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	switch {
	case !o.ScheduledAt.IsZero():
		job.ScheduledAt = o.ScheduledAt
	case o.Delay > 0:
		job.ScheduledAt = now.Add(o.Delay)
	case job.ScheduledAt.IsZero():
		job.ScheduledAt = now
	}

	query := `
		INSERT INTO jobs (
			id, queue_name, job_type, inspection_id, payload, status,
			priority, max_attempts, attempt_count, scheduled_at, created_at
		) VALUES ($1, $2, $3, NULLIF($4::bigint, 0), $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.pool.Exec(ctx, query,
		job.ID,
		job.QueueName,
		job.JobType,
		job.InspectionID,
		job.Payload,
		string(job.Status),
		job.Priority,
		job.MaxAttempts,
		job.AttemptCount,
		job.ScheduledAt,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.String("queue", job.QueueName))

	return nil
}

// Dequeue retrieves the next available job from a queue.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*handover.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, started_at = $2, attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue_name = $3
			AND status = $4
			AND scheduled_at <= $2
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(q.pool.QueryRow(ctx, query,
		string(handover.JobStatusRunning),
		time.Now(),
		queueName,
		string(handover.JobStatusPending),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, nil // No jobs available
		}
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}

	return job, nil
}

// Complete marks a job as completed.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result []byte) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2, result = $3
		WHERE id = $4
	`

	_, err := q.pool.Exec(ctx, query,
		string(handover.JobStatusCompleted),
		time.Now(),
		result,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}

	q.logger.Debug("job completed", slog.String("job_id", jobID.String()))
	return nil
}

// Fail records a failed attempt. A job with attempts left goes back to
// pending with a quadratic backoff; otherwise it is marked failed.
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	query := `
		UPDATE jobs
		SET
			status = CASE WHEN attempt_count < max_attempts THEN $1 ELSE $2 END,
			scheduled_at = CASE WHEN attempt_count < max_attempts
				THEN $3::timestamptz + make_interval(secs => attempt_count * attempt_count * 5)
				ELSE scheduled_at END,
			completed_at = CASE WHEN attempt_count < max_attempts THEN NULL ELSE $3 END,
			error_message = $4
		WHERE id = $5
		RETURNING status
	`

	var status string
	err := q.pool.QueryRow(ctx, query,
		string(handover.JobStatusPending),
		string(handover.JobStatusFailed),
		time.Now(),
		errMsg,
		jobID,
	).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return handover.NotFound("Job not found")
		}
		return fmt.Errorf("failing job: %w", err)
	}

	q.logger.Debug("job failed",
		slog.String("job_id", jobID.String()),
		slog.String("status", status),
		slog.String("error", errMsg))
	return nil
}

// GetJob retrieves a job by its ID.
func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*handover.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(q.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if isNoRows(err) {
			return nil, handover.NotFound("Job not found")
		}
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return job, nil
}

// CancelJob cancels a pending job.
func (q *Queue) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := q.pool.Exec(ctx, query,
		string(handover.JobStatusCancelled),
		time.Now(),
		jobID,
		string(handover.JobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return handover.Invalid("Can only cancel pending jobs")
	}

	q.logger.Debug("job cancelled", slog.String("job_id", jobID.String()))
	return nil
}

// GetPendingJobs retrieves pending jobs for an inspection.
func (q *Queue) GetPendingJobs(ctx context.Context, inspectionID int64, queueName string) ([]*handover.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE inspection_id = $1 AND queue_name = $2 AND status = $3
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := q.pool.Query(ctx, query, inspectionID, queueName, string(handover.JobStatusPending))
	if err != nil {
		return nil, fmt.Errorf("querying pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*handover.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	return jobs, nil
}
