package handover

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue defines operations for a job queue.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *Job, opts ...EnqueueOption) error

	// Dequeue retrieves the next available job from a queue.
	// Returns nil if no jobs are available.
	Dequeue(ctx context.Context, queueName string) (*Job, error)

	// Complete marks a job as completed with optional result data.
	Complete(ctx context.Context, jobID uuid.UUID, result []byte) error

	// Fail marks a job as failed with an error message.
	// The job may be retried based on its retry configuration.
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error

	// GetJob retrieves a job by its ID.
	// Returns ENOTFOUND if the job does not exist.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// CancelJob cancels a pending job.
	// Returns EINVALID if the job is already running or completed.
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// GetPendingJobs retrieves pending jobs for an inspection.
	GetPendingJobs(ctx context.Context, inspectionID int64, queueName string) ([]*Job, error)
}

// Job represents a background job.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	QueueName    string     `json:"queueName"`
	JobType      string     `json:"jobType"`
	InspectionID int64      `json:"inspectionId"`
	Payload      []byte     `json:"payload"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	MaxAttempts  int        `json:"maxAttempts"`
	AttemptCount int        `json:"attemptCount"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Result       []byte     `json:"result,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	WorkerID     string     `json:"workerId,omitempty"`
}

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true if the job is in a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job types.
const (
	// JobTypePhaseNotification emails stakeholders that a phase was signed.
	JobTypePhaseNotification = "phase_notification"
)

// Queue names.
const (
	QueueDefault       = "default"
	QueueNotifications = "notifications"
)

// PhaseNotificationPayload is the payload of a phase notification job.
type PhaseNotificationPayload struct {
	InspectionID int64 `json:"inspectionId"`
	Phase        Phase `json:"phase"`
}

// EnqueueOption configures job enqueueing.
type EnqueueOption func(*EnqueueOptions)

// EnqueueOptions is the resolved form of a set of EnqueueOption values.
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int
	ScheduledAt time.Time
	Delay       time.Duration
}

// ResolveEnqueueOptions applies opts in order.
func ResolveEnqueueOptions(opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPriority sets the job priority (higher = more important).
func WithPriority(priority int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Priority = priority
	}
}

// WithMaxAttempts sets the maximum retry attempts.
func WithMaxAttempts(attempts int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.MaxAttempts = attempts
	}
}

// WithScheduledAt schedules the job for a specific time.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.ScheduledAt = t
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.Delay = d
	}
}

// QueueConfig holds configuration for the job queue.
type QueueConfig struct {
	// WorkerCount is the number of concurrent workers.
	WorkerCount int

	// PollInterval is how often to poll for jobs.
	PollInterval time.Duration

	// JobTimeout is the maximum time a job can run.
	JobTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for running jobs.
	ShutdownTimeout time.Duration

	// MaxAttempts is the default number of attempts per job.
	MaxAttempts int
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:     2,
		PollInterval:    time.Second,
		JobTimeout:      60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxAttempts:     3,
	}
}

// JobHandler handles processing of a specific job type.
type JobHandler interface {
	// Handle processes a job.
	// Return nil on success, or an error to trigger retry logic.
	Handle(ctx context.Context, job *Job) error
}

// JobHandlerFunc is an adapter to allow ordinary functions as JobHandlers.
type JobHandlerFunc func(ctx context.Context, job *Job) error

// Handle implements JobHandler.
func (f JobHandlerFunc) Handle(ctx context.Context, job *Job) error {
	return f(ctx, job)
}
