package queue

import (
	"context"
	"sync"
	"time"
)

// Worker drains the pool's job channel. Each job runs under its own
// cancellable context derived from the pool's base context and registered
// with the pool, so a single job can be cancelled without touching the
// others.
type Worker struct {
	id   string
	pool *WorkerPool

	mu            sync.Mutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

func newWorker(id string, pool *WorkerPool) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		status:       WorkerStatusIdle,
		lastActivity: time.Now().UTC(),
	}
}

// run consumes jobs until the channel is closed. Jobs still buffered
// after a hard shutdown (base context cancelled) are discarded rather
// than run.
func (w *Worker) run() {
	defer w.pool.wg.Done()
	for job := range w.pool.jobs {
		if w.pool.baseCtx.Err() != nil {
			w.pool.logger.Warn("Discarding queued job, pool shutting down",
				"worker_id", w.id,
				"job_id", job.ID)
			continue
		}
		w.process(job)
	}
}

func (w *Worker) process(job *Job) {
	ctx, cancel := context.WithCancel(w.pool.baseCtx)
	defer cancel()

	w.pool.RegisterJob(job.ID, cancel)
	defer w.pool.UnregisterJob(job.ID)

	w.setWorking(job.ID)
	defer w.setIdle()

	start := time.Now()
	if err := w.pool.runner.Run(ctx, job); err != nil {
		w.pool.logger.Error("Job failed",
			"worker_id", w.id,
			"job_id", job.ID,
			"kind", job.Kind,
			"error", err)
		return
	}
	w.pool.logger.Info("Job completed",
		"worker_id", w.id,
		"job_id", job.ID,
		"kind", job.Kind,
		"duration_ms", time.Since(start).Milliseconds())
}

func (w *Worker) setWorking(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusWorking
	w.currentJobID = jobID
	w.lastActivity = time.Now().UTC()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusIdle
	w.currentJobID = ""
	w.jobsProcessed++
	w.lastActivity = time.Now().UTC()
}

func (w *Worker) health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}
