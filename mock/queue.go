package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/handover"
	"github.com/google/uuid"
)

// Compile-time interface check
var _ handover.Queue = (*Queue)(nil)

// Queue is a mock implementation of handover.Queue.
type Queue struct {
	EnqueueFn        func(ctx context.Context, job *handover.Job, opts ...handover.EnqueueOption) error
	DequeueFn        func(ctx context.Context, queueName string) (*handover.Job, error)
	CompleteFn       func(ctx context.Context, jobID uuid.UUID, result []byte) error
	FailFn           func(ctx context.Context, jobID uuid.UUID, errMsg string) error
	GetJobFn         func(ctx context.Context, jobID uuid.UUID) (*handover.Job, error)
	CancelJobFn      func(ctx context.Context, jobID uuid.UUID) error
	GetPendingJobsFn func(ctx context.Context, inspectionID int64, queueName string) ([]*handover.Job, error)

	// In-memory job storage for testing
	mu   sync.RWMutex
	jobs map[uuid.UUID]*handover.Job
}

// NewQueue creates a new mock queue with initialized storage.
func NewQueue() *Queue {
	return &Queue{
		jobs: make(map[uuid.UUID]*handover.Job),
	}
}

func (q *Queue) Enqueue(ctx context.Context, job *handover.Job, opts ...handover.EnqueueOption) error {
	if q.EnqueueFn != nil {
		return q.EnqueueFn(ctx, job, opts...)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	o := handover.ResolveEnqueueOptions(opts...)
	if o.MaxAttempts > 0 {
		job.MaxAttempts = o.MaxAttempts
	}
	if o.Priority != 0 {
		job.Priority = o.Priority
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = handover.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}

	q.jobs[job.ID] = job
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, queueName string) (*handover.Job, error) {
	if q.DequeueFn != nil {
		return q.DequeueFn(ctx, queueName)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.QueueName == queueName && job.Status == handover.JobStatusPending {
			job.Status = handover.JobStatusRunning
			job.AttemptCount++
			now := time.Now()
			job.StartedAt = &now
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result []byte) error {
	if q.CompleteFn != nil {
		return q.CompleteFn(ctx, jobID, result)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return handover.NotFound("Job not found")
	}
	job.Status = handover.JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	if q.FailFn != nil {
		return q.FailFn(ctx, jobID, errMsg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return handover.NotFound("Job not found")
	}
	job.ErrorMessage = errMsg
	if job.AttemptCount < job.MaxAttempts {
		job.Status = handover.JobStatusPending
		return nil
	}
	job.Status = handover.JobStatusFailed
	now := time.Now()
	job.CompletedAt = &now
	return nil
}

func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*handover.Job, error) {
	if q.GetJobFn != nil {
		return q.GetJobFn(ctx, jobID)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, handover.NotFound("Job not found")
	}
	cp := *job
	return &cp, nil
}

func (q *Queue) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	if q.CancelJobFn != nil {
		return q.CancelJobFn(ctx, jobID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return handover.NotFound("Job not found")
	}
	if job.Status != handover.JobStatusPending {
		return handover.Invalid("Can only cancel pending jobs")
	}
	job.Status = handover.JobStatusCancelled
	return nil
}

func (q *Queue) GetPendingJobs(ctx context.Context, inspectionID int64, queueName string) ([]*handover.Job, error) {
	if q.GetPendingJobsFn != nil {
		return q.GetPendingJobsFn(ctx, inspectionID, queueName)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*handover.Job
	for _, job := range q.jobs {
		if job.InspectionID == inspectionID && job.QueueName == queueName && job.Status == handover.JobStatusPending {
			result = append(result, job)
		}
	}
	return result, nil
}

// Reset clears all jobs from the mock queue.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = make(map[uuid.UUID]*handover.Job)
}

// AllJobs returns all jobs in the mock queue.
func (q *Queue) AllJobs() []*handover.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*handover.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		result = append(result, job)
	}
	return result
}

// JobsByType returns all jobs of a specific type.
func (q *Queue) JobsByType(jobType string) []*handover.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var result []*handover.Job
	for _, job := range q.jobs {
		if job.JobType == jobType {
			result = append(result, job)
		}
	}
	return result
}
