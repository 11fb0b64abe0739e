package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/pulse/internal/storage"
)

// JobCacheInstall precaches the offline gateway's manifest.
const JobCacheInstall = "cache_install"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// Enqueue queues a job of jobType with an empty payload and returns its id.
func Enqueue(store Enqueuer, jobType string, maxAttempts int) (string, error) {
	id := uuid.New().String()
	if err := store.EnqueueJob(storage.Job{ID: id, Type: jobType, MaxAttempts: maxAttempts}); err != nil {
		return "", fmt.Errorf("enqueueing %s job: %w", jobType, err)
	}
	return id, nil
}

// Rescheduler replaces outstanding jobs of a type.
type Rescheduler interface {
	Enqueuer
	ClearJobs(jobType string) (int64, error)
}

// Reschedule drops any pending job of jobType, and any left running by a
// previous process, then queues a single fresh one. It is meant for
// startup, before the worker begins claiming.
func Reschedule(store Rescheduler, jobType string, maxAttempts int) (string, error) {
	if _, err := store.ClearJobs(jobType); err != nil {
		return "", fmt.Errorf("clearing %s jobs: %w", jobType, err)
	}
	return Enqueue(store, jobType, maxAttempts)
}

// HandlerFunc processes one claimed job. A returned error fails the job,
// which is retried with backoff until it runs out of attempts.
type HandlerFunc func(ctx context.Context, job *storage.Job) error

// Worker processes jobs of registered types from the SQLite job queue.
type Worker struct {
	store  JobStore
	poll   time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewWorker creates a Worker with no handlers registered.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		poll:     pollInterval,
		logger:   slog.Default(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers h for jobType, replacing any earlier handler.
func (w *Worker) Handle(jobType string, h HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job of any registered type.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	types := w.types()
	if len(types) == 0 {
		return false, nil
	}

	job, err := w.store.ClaimNextJob(types)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.mu.RLock()
	h := w.handlers[job.Type]
	w.mu.RUnlock()

	if err := h(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("job completed", "job_id", job.ID, "type", job.Type)
	return true, nil
}

func (w *Worker) types() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
