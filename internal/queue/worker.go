// Package queue runs background jobs from a handover.Queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/internal/middleware"
)

// WorkerPool manages a pool of workers that process jobs from queues
type WorkerPool struct {
	queue    handover.Queue
	logger   *slog.Logger
	config   handover.QueueConfig
	handlers map[string]handover.JobHandler // job_type -> handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	active   atomic.Int64
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue handover.Queue, logger *slog.Logger, config handover.QueueConfig) *WorkerPool {
	return &WorkerPool{
		queue:    queue,
		logger:   logger,
		config:   config,
		handlers: make(map[string]handover.JobHandler),
	}
}

// RegisterHandler registers a handler for a specific job type
func (wp *WorkerPool) RegisterHandler(jobType string, handler handover.JobHandler) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	wp.handlers[jobType] = handler
	wp.logger.Info("registered job handler", slog.String("job_type", jobType))
}

// Handler returns the handler registered for a job type.
func (wp *WorkerPool) Handler(jobType string) (handover.JobHandler, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	h, ok := wp.handlers[jobType]
	return h, ok
}

// Start starts WorkerCount workers polling the given queues in order.
func (wp *WorkerPool) Start(ctx context.Context, queueNames []string) error {
	wp.mu.Lock()
	if wp.cancel != nil {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}

	workerCtx, cancel := context.WithCancel(ctx)
	wp.cancel = cancel
	wp.mu.Unlock()

	for i := 0; i < wp.config.WorkerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(workerCtx, fmt.Sprintf("worker-%d", i+1), queueNames)
	}

	wp.logger.Info("worker pool started",
		slog.Int("worker_count", wp.config.WorkerCount),
		slog.Any("queues", queueNames))

	return nil
}

// Stop cancels the workers and waits up to ShutdownTimeout for running jobs.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if wp.cancel == nil {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool not started")
	}
	cancel := wp.cancel
	wp.cancel = nil
	wp.mu.Unlock()

	wp.logger.Info("stopping worker pool")
	cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(wp.config.ShutdownTimeout):
		wp.logger.Warn("worker pool shutdown timeout", slog.Duration("timeout", wp.config.ShutdownTimeout))
		return fmt.Errorf("shutdown timeout after %v", wp.config.ShutdownTimeout)
	}
}

// worker is the main worker loop
func (wp *WorkerPool) worker(ctx context.Context, workerID string, queueNames []string) {
	defer wp.wg.Done()

	wp.logger.Debug("worker started", slog.String("worker_id", workerID))

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wp.logger.Debug("worker stopping", slog.String("worker_id", workerID))
			return

		case <-ticker.C:
			for _, name := range queueNames {
				if err := wp.processNextJob(ctx, workerID, name); err != nil {
					wp.logger.Error("failed to process job",
						slog.String("worker_id", workerID),
						slog.String("queue", name),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// processNextJob dequeues and runs at most one job from a queue.
func (wp *WorkerPool) processNextJob(ctx context.Context, workerID, queueName string) error {
	job, err := wp.queue.Dequeue(ctx, queueName)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("dequeuing job: %w", err)
	}
	if job == nil {
		return nil
	}
	job.WorkerID = workerID

	middleware.UpdateActiveWorkers(queueName, int(wp.active.Add(1)))
	defer func() {
		middleware.UpdateActiveWorkers(queueName, int(wp.active.Add(-1)))
	}()

	return wp.executeJob(ctx, job)
}

// executeJob runs the job handler and records the outcome. The outcome is
// written with a context detached from shutdown so a job finishing during
// Stop is not left running.
func (wp *WorkerPool) executeJob(ctx context.Context, job *handover.Job) error {
	logger := wp.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.Int64("inspection_id", job.InspectionID))

	logger.Info("processing job",
		slog.String("queue", job.QueueName),
		slog.Int("attempt", job.AttemptCount))

	storeCtx := context.WithoutCancel(ctx)

	handler, ok := wp.Handler(job.JobType)
	if !ok {
		logger.Error("handler not found")
		return wp.queue.Fail(storeCtx, job.ID, fmt.Sprintf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, wp.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := handler.Handle(jobCtx, job)
	duration := time.Since(start)
	middleware.RecordQueueJobMetrics(job.JobType, duration.Seconds(), err)

	if err != nil {
		logger.Error("job failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", duration))
		return wp.queue.Fail(storeCtx, job.ID, err.Error())
	}

	logger.Info("job completed", slog.Duration("duration", duration))
	return wp.queue.Complete(storeCtx, job.ID, nil)
}
