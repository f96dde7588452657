package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/robotics"
)

// TestBenchSource marks events synthesized by the scheduled-test worker.
const TestBenchSource = "os.test_bench"

// JobKindScheduledTest labels jobs created from os.schedule_test plans.
const JobKindScheduledTest = "scheduled_test"

// TestScheduler is the executor for os.schedule_test plans. It does not
// run the test inline: it derives the simulation outcome from the twin as
// it stands now, queues a job carrying the finished test.executed
// envelope and reports the job ID back to the pipeline.
type TestScheduler struct {
	pool *WorkerPool
}

// NewTestScheduler creates the scheduler backed by the given pool.
func NewTestScheduler(pool *WorkerPool) *TestScheduler {
	return &TestScheduler{pool: pool}
}

func (s *TestScheduler) Name() string { return "test_scheduler" }

func (s *TestScheduler) Matches(state map[string]any, plan *models.ActionPlan) bool {
	return plan.ActionType == "os.schedule_test"
}

// Execute enqueues the test job. A full or stopped queue is reported as a
// failed execution rather than an error, so the pipeline records the
// degraded outcome instead of falling back to the core executor.
func (s *TestScheduler) Execute(_ context.Context, state map[string]any, plan *models.ActionPlan, ev *models.Event) (*models.ExecutionResult, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Kind:       JobKindScheduledTest,
		Envelope:   testExecutedEnvelope(state, ev),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.pool.Enqueue(job); err != nil {
		return &models.ExecutionResult{
			ActionType:     plan.ActionType,
			Success:        false,
			ObservedImpact: 0.2,
			Notes:          "test bench rejected the job: " + err.Error(),
			Metadata: map[string]any{
				"job_id":     job.ID,
				"job_status": "rejected",
			},
		}, nil
	}
	return &models.ExecutionResult{
		ActionType:     plan.ActionType,
		Success:        true,
		ObservedImpact: 0.6,
		Notes:          "validation test queued on the test bench",
		Metadata: map[string]any{
			"job_id":     job.ID,
			"job_status": "queued",
		},
	}, nil
}

// TestBench runs scheduled-test jobs by feeding the prepared envelope
// back through the cognition pipeline, where the twin applier folds the
// simulation into the robotics state.
type TestBench struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewTestBench creates the runner for scheduled-test jobs.
func NewTestBench(pipeline Pipeline) *TestBench {
	return &TestBench{
		pipeline: pipeline,
		logger:   slog.Default().With("component", "test_bench"),
	}
}

// Run implements JobRunner.
func (b *TestBench) Run(ctx context.Context, job *Job) error {
	if job.Envelope == nil {
		return fmt.Errorf("job %s has no envelope", job.ID)
	}
	resp, err := b.pipeline.ProcessEvent(ctx, job.Envelope)
	if err != nil {
		return fmt.Errorf("reinjecting %s result: %w", job.Kind, err)
	}
	b.logger.Info("Synthesized test result processed",
		"job_id", job.ID,
		"event_id", resp.EventID,
		"action_type", resp.ActionType)
	return nil
}

// testExecutedEnvelope prepares the simulated test result for
// re-ingestion. Everything derives from the triggering event and the twin
// snapshot, so the same trigger always yields the same simulation: the
// projected cost is the component's estimated spend and the projected
// risk echoes the component's declared risk until a real test result
// replaces it.
func testExecutedEnvelope(state map[string]any, ev *models.Event) map[string]any {
	componentID := ev.PayloadString("component_id")
	scenario := "general_validation"
	risk := "LOW"
	cost := 0.0
	notes := "scheduled validation run"

	if componentID != "" {
		scenario = "validation:" + componentID
		notes = "scheduled validation for component " + componentID
		twin := robotics.LoadTwin(state)
		for _, c := range twin.Components {
			if c.ComponentID != componentID {
				continue
			}
			qty := c.Quantity
			if qty < 1 {
				qty = 1
			}
			cost = round2(c.EstimatedUnitCost * float64(qty))
			if c.RiskLevel == "MEDIUM" || c.RiskLevel == "HIGH" {
				risk = c.RiskLevel
			}
			if c.Name != "" {
				notes = "scheduled validation for " + c.Name
			}
			break
		}
	}

	return map[string]any{
		"event_type": "test.executed",
		"source":     TestBenchSource,
		"payload": map[string]any{
			"domain":               "os.robotics",
			"simulation_id":        "sim-" + ev.EventID,
			"scenario":             scenario,
			"projected_cost":       cost,
			"projected_risk_level": risk,
			"notes":                notes,
			"correlation_id":       ev.CorrelationID(),
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
