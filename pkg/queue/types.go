// Package queue runs deferred engine work on a fixed pool of workers
// feeding off a bounded in-memory buffer.
//
// The producer today is the scheduled-test flow: an os.schedule_test plan
// enqueues a job whose worker pushes a synthesized test.executed event
// back through the cognition pipeline. The pool itself is generic: a Job
// carries a prepared event envelope and the runner decides what to do
// with it.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/pce-project/pce/pkg/engine"
)

var (
	// ErrQueueFull is returned by Enqueue when the job buffer is at capacity.
	ErrQueueFull = errors.New("job queue is full")

	// ErrPoolStopped is returned by Enqueue once Stop has been called.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Pipeline is the slice of the engine a job runner needs: feed one raw
// envelope through normalization, cognition and persistence.
type Pipeline interface {
	ProcessEvent(ctx context.Context, raw map[string]any) (*engine.Response, error)
}

// Job is one unit of deferred work. Envelope is a complete raw event
// ({event_type, source, payload}) prepared at scheduling time, so the
// outcome does not depend on when a worker gets around to it.
type Job struct {
	ID         string
	Kind       string
	Envelope   map[string]any
	EnqueuedAt time.Time
}

// JobRunner executes a single job. The context is cancelled when the job
// is cancelled through the pool or shutdown gives up on draining.
type JobRunner interface {
	Run(ctx context.Context, job *Job) error
}

// WorkerStatus is the current state of a pool worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// PoolHealth is a point-in-time snapshot of the pool for the health
// endpoint.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveWorkers int            `json:"active_workers"`
	ActiveJobs    int            `json:"active_jobs"`
	QueueDepth    int            `json:"queue_depth"`
	QueueCapacity int            `json:"queue_capacity"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth is a snapshot of one worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}
