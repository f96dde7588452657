package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/config"
)

// recordingRunner records the jobs it ran. When block is set, Run waits
// for it to close (or the job context to cancel) before recording, which
// lets tests hold a worker busy.
type recordingRunner struct {
	mu      sync.Mutex
	done    []*Job
	block   chan struct{}
	started chan string
	err     error
}

func (r *recordingRunner) Run(ctx context.Context, job *Job) error {
	if r.started != nil {
		r.started <- job.ID
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.done = append(r.done, job)
	r.mu.Unlock()
	return r.err
}

func (r *recordingRunner) processed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.done))
	for _, j := range r.done {
		ids = append(ids, j.ID)
	}
	return ids
}

func testQueueConfig(workers, size int) *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:      workers,
		QueueSize:        size,
		ShutdownTimeoutS: 1,
	}
}

func testJob(id string) *Job {
	return &Job{
		ID:         id,
		Kind:       JobKindScheduledTest,
		Envelope:   map[string]any{"event_type": "test.executed"},
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestPoolProcessesEnqueuedJobs(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewWorkerPool(testQueueConfig(2, 8), runner)
	pool.Start()
	defer pool.Stop()

	for _, id := range []string{"job-1", "job-2", "job-3", "job-4", "job-5"} {
		require.NoError(t, pool.Enqueue(testJob(id)))
	}

	require.Eventually(t, func() bool {
		return len(runner.processed()) == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"job-1", "job-2", "job-3", "job-4", "job-5"}, runner.processed())
}

func TestEnqueueBeforeStartBuffers(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewWorkerPool(testQueueConfig(1, 4), runner)

	require.NoError(t, pool.Enqueue(testJob("early")))

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return len(runner.processed()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnqueueFullQueue(t *testing.T) {
	runner := &recordingRunner{}
	// Not started, so nothing drains the buffer.
	pool := NewWorkerPool(testQueueConfig(1, 2), runner)

	require.NoError(t, pool.Enqueue(testJob("job-1")))
	require.NoError(t, pool.Enqueue(testJob("job-2")))

	err := pool.Enqueue(testJob("job-3"))
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueueAfterStop(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewWorkerPool(testQueueConfig(1, 2), runner)
	pool.Start()
	pool.Stop()

	err := pool.Enqueue(testJob("late"))
	require.ErrorIs(t, err, ErrPoolStopped)
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	runner := &recordingRunner{
		block:   make(chan struct{}),
		started: make(chan string, 4),
	}
	pool := NewWorkerPool(testQueueConfig(1, 8), runner)
	pool.Start()

	for _, id := range []string{"job-1", "job-2", "job-3", "job-4"} {
		require.NoError(t, pool.Enqueue(testJob(id)))
	}

	// Wait until the single worker has picked up the first job, leaving
	// the other three buffered, then release the gate just after Stop
	// begins waiting.
	<-runner.started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(runner.block)
	}()

	pool.Stop()

	assert.Len(t, runner.processed(), 4)
}

func TestStopTimeoutCancelsRemainingJobs(t *testing.T) {
	runner := &recordingRunner{
		block:   make(chan struct{}), // never closed
		started: make(chan string, 2),
	}
	pool := NewWorkerPool(testQueueConfig(1, 8), runner)
	pool.Start()

	require.NoError(t, pool.Enqueue(testJob("stuck")))
	require.NoError(t, pool.Enqueue(testJob("buffered")))
	<-runner.started

	start := time.Now()
	pool.Stop()

	// The running job was cancelled and the buffered one discarded, so
	// neither completed.
	assert.Empty(t, runner.processed())
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.False(t, pool.Health().IsHealthy)
}

func TestStopTwiceDoesNotPanic(t *testing.T) {
	pool := NewWorkerPool(testQueueConfig(1, 2), &recordingRunner{})
	pool.Start()
	pool.Stop()
	assert.NotPanics(t, func() { pool.Stop() })
}

func TestStartAfterStopIsRejected(t *testing.T) {
	pool := NewWorkerPool(testQueueConfig(1, 2), &recordingRunner{})
	pool.Stop()
	pool.Start()

	assert.False(t, pool.Health().IsHealthy)
	require.ErrorIs(t, pool.Enqueue(testJob("job-1")), ErrPoolStopped)
}

func TestPoolRegisterAndCancelJob(t *testing.T) {
	pool := &WorkerPool{
		logger:     slog.Default(),
		activeJobs: make(map[string]context.CancelFunc),
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.RegisterJob("job-1", cancel)

	assert.True(t, pool.CancelJob("job-1"))
	assert.Error(t, ctx.Err())

	assert.False(t, pool.CancelJob("unknown"))
}

func TestPoolUnregisterJob(t *testing.T) {
	pool := &WorkerPool{
		activeJobs: make(map[string]context.CancelFunc),
	}

	_, cancel := context.WithCancel(context.Background())
	pool.RegisterJob("job-1", cancel)
	pool.UnregisterJob("job-1")

	assert.False(t, pool.CancelJob("job-1"))
}

func TestPoolActiveJobIDs(t *testing.T) {
	pool := &WorkerPool{
		activeJobs: make(map[string]context.CancelFunc),
	}

	assert.Empty(t, pool.activeJobIDs())

	_, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	_, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	pool.RegisterJob("job-a", cancel1)
	pool.RegisterJob("job-b", cancel2)

	ids := pool.activeJobIDs()
	require.Len(t, ids, 2)
	assert.Contains(t, ids, "job-a")
	assert.Contains(t, ids, "job-b")
}

func TestCancelRunningJob(t *testing.T) {
	runner := &recordingRunner{
		block:   make(chan struct{}), // never closed, jobs end via cancel
		started: make(chan string, 1),
	}
	pool := NewWorkerPool(testQueueConfig(1, 2), runner)
	pool.Start()

	job := testJob("long-running")
	require.NoError(t, pool.Enqueue(job))
	<-runner.started

	assert.True(t, pool.CancelJob(job.ID))

	// The worker unregisters the job once Run returns.
	require.Eventually(t, func() bool {
		return !pool.CancelJob(job.ID)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, runner.processed())

	pool.Stop()
}

func TestPoolHealthSnapshot(t *testing.T) {
	runner := &recordingRunner{
		block:   make(chan struct{}),
		started: make(chan string, 4),
	}
	pool := NewWorkerPool(testQueueConfig(2, 4), runner)
	pool.Start()

	h := pool.Health()
	assert.True(t, h.IsHealthy)
	assert.Equal(t, 2, h.TotalWorkers)
	assert.Equal(t, 0, h.ActiveWorkers)
	assert.Equal(t, 4, h.QueueCapacity)
	require.Len(t, h.WorkerStats, 2)
	for _, w := range h.WorkerStats {
		assert.Equal(t, WorkerStatusIdle, w.Status)
		assert.Empty(t, w.CurrentJobID)
	}

	job := testJob("busy")
	require.NoError(t, pool.Enqueue(job))
	<-runner.started

	h = pool.Health()
	assert.Equal(t, 1, h.ActiveWorkers)
	assert.Equal(t, 1, h.ActiveJobs)
	assert.Equal(t, []string{job.ID}, pool.activeJobIDs())

	close(runner.block)
	require.Eventually(t, func() bool {
		return pool.Health().ActiveWorkers == 0
	}, 2*time.Second, 10*time.Millisecond)

	h = pool.Health()
	assert.Equal(t, 0, h.ActiveJobs)
	processedTotal := 0
	for _, w := range h.WorkerStats {
		processedTotal += w.JobsProcessed
	}
	assert.Equal(t, 1, processedTotal)

	pool.Stop()
	assert.False(t, pool.Health().IsHealthy)
}
