package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pce-project/pce/pkg/config"
)

// WorkerPool owns a bounded job buffer and a fixed set of workers that
// drain it. Enqueue never blocks: a full buffer is the caller's signal to
// degrade, not a place to stall the pipeline. Jobs queued before Stop are
// still executed; the drain is bounded by the configured shutdown
// timeout, after which remaining work is cancelled.
type WorkerPool struct {
	config *config.QueueConfig
	runner JobRunner
	logger *slog.Logger

	jobs    chan *Job
	workers []*Worker

	// activeJobs maps a running job's ID to the cancel func for its
	// context. Queued jobs are not registered yet.
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex

	baseCtx    context.Context
	cancelBase context.CancelFunc

	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool sized from cfg. Workers do not run until
// Start is called; Enqueue already accepts work before that and the
// buffer holds it.
func NewWorkerPool(cfg *config.QueueConfig, runner JobRunner) *WorkerPool {
	return &WorkerPool{
		config:     cfg,
		runner:     runner,
		logger:     slog.Default().With("component", "worker_pool"),
		jobs:       make(chan *Job, cfg.QueueSize),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start launches the configured number of workers. Calling Start twice is
// a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.baseCtx, p.cancelBase = context.WithCancel(context.Background())

	p.workers = make([]*Worker, 0, p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("worker-%d", i+1), p)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go w.run()
	}

	p.logger.Info("Worker pool started",
		"workers", p.config.WorkerCount,
		"queue_capacity", cap(p.jobs))
}

// Enqueue hands a job to the pool without blocking. It returns
// ErrQueueFull when the buffer is at capacity and ErrPoolStopped after
// Stop.
func (p *WorkerPool) Enqueue(job *Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	// Stop closes p.jobs under the write lock, so holding the read lock
	// here keeps the send safe.
	select {
	case p.jobs <- job:
		p.logger.Debug("Job enqueued",
			"job_id", job.ID,
			"kind", job.Kind,
			"queue_depth", len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes intake and waits for buffered jobs to drain. If the drain
// exceeds the configured shutdown timeout the remaining work is cancelled
// and discarded.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped, queue drained")
	case <-time.After(p.config.ShutdownTimeout()):
		p.logger.Warn("Worker pool drain timed out, cancelling remaining jobs",
			"timeout", p.config.ShutdownTimeout())
		p.cancelBase()
		<-done
	}
	p.cancelBase()
}

// RegisterJob records the cancel func for a job that just started
// running so CancelJob can reach it.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes a finished job from the registry.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob cancels a running job. It returns false when the job is not
// currently running (already finished, still queued, or unknown).
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	cancel, ok := p.activeJobs[jobID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	cancel()
	p.logger.Info("Job cancelled", "job_id", jobID)
	return true
}

// activeJobIDs lists the jobs currently running, for introspection.
func (p *WorkerPool) activeJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}

// Health reports a snapshot of the pool and its workers.
func (p *WorkerPool) Health() *PoolHealth {
	p.mu.RLock()
	started, stopped := p.started, p.stopped
	active := len(p.activeJobs)
	workers := p.workers
	p.mu.RUnlock()

	stats := make([]WorkerHealth, 0, len(workers))
	activeWorkers := 0
	for _, w := range workers {
		h := w.health()
		if h.Status == WorkerStatusWorking {
			activeWorkers++
		}
		stats = append(stats, h)
	}

	return &PoolHealth{
		IsHealthy:     started && !stopped,
		TotalWorkers:  len(workers),
		ActiveWorkers: activeWorkers,
		ActiveJobs:    active,
		QueueDepth:    len(p.jobs),
		QueueCapacity: cap(p.jobs),
		WorkerStats:   stats,
	}
}
