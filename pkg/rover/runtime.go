package rover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/engine"
)

const (
	// TelemetryEventType is the wire event carrying one observation tick.
	TelemetryEventType = "robot_telemetry"
	// FeedbackEventType is the wire event carrying step rewards.
	FeedbackEventType = "feedback.robotics.v1"

	runtimeSource    = "agents.rover"
	rewardWindowKeep = 100
)

// EventProcessor is the engine surface the runtime drives. The real engine
// satisfies it; tests substitute a scripted one.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, raw map[string]any) (*engine.Response, error)
}

// FrameSink receives rendered frame and init payloads for live observers.
type FrameSink func(payload map[string]any)

// Runtime drives the simulation: each tick it feeds a telemetry event
// through the engine, applies the decided command to the world, and
// periodically feeds reward feedback back in. Episodes auto-reset on
// completion while the loop keeps running.
type Runtime struct {
	processor EventProcessor
	storage   *Storage
	logger    *slog.Logger
	clock     func() time.Time

	tickInterval  time.Duration
	feedbackEvery int
	sink          FrameSink

	mu                sync.Mutex
	world             *GridWorld
	running           bool
	cancel            context.CancelFunc
	done              chan struct{}
	rewardWindow      []float64
	lastRL            map[string]any
	attemptsTotal     int
	successes         int
	failuresTimeout   int
	failuresCollision int
	runStartedAt      time.Time
	totalRun          time.Duration
}

// RuntimeOption customizes runtime construction.
type RuntimeOption func(*Runtime)

// WithFrameSink wires a live observer for frame and init payloads.
func WithFrameSink(sink FrameSink) RuntimeOption {
	return func(r *Runtime) {
		r.sink = sink
	}
}

// WithRuntimeClock fixes the runtime clock, for tests.
func WithRuntimeClock(clock func() time.Time) RuntimeOption {
	return func(r *Runtime) {
		r.clock = clock
	}
}

// NewRuntime builds the simulation runtime from the rover configuration.
func NewRuntime(processor EventProcessor, storage *Storage, cfg *config.RoverConfig, logger *slog.Logger, opts ...RuntimeOption) *Runtime {
	if cfg == nil {
		cfg = &config.RoverConfig{TickIntervalMS: 200, FeedbackEvery: 5}
	}
	if logger == nil {
		logger = slog.Default()
	}
	feedbackEvery := cfg.FeedbackEvery
	if feedbackEvery < 1 {
		feedbackEvery = 1
	}
	r := &Runtime{
		processor:     processor,
		storage:       storage,
		logger:        logger.With("component", "rover_runtime"),
		clock:         time.Now,
		tickInterval:  cfg.TickInterval(),
		feedbackEvery: feedbackEvery,
		world:         NewGridWorld(cfg.Width, cfg.Height, cfg.Seed),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background loop. Starting a running loop is a no-op.
func (r *Runtime) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	if r.runStartedAt.IsZero() {
		r.runStartedAt = r.clock()
	}
	go r.loop(ctx, r.done)
	r.logger.Info("Rover runtime started", "episode_id", r.world.EpisodeID)
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done
	r.logger.Info("Rover runtime stopped")
}

// Reset stops the loop, starts a fresh episode, and clears the session
// timer and reward window. Learned Q-values are kept.
func (r *Runtime) Reset() map[string]any {
	r.Stop()
	r.mu.Lock()
	r.world.Reset()
	r.rewardWindow = r.rewardWindow[:0]
	r.lastRL = nil
	r.totalRun = 0
	r.runStartedAt = time.Time{}
	payload := r.initPayloadLocked()
	r.mu.Unlock()

	r.publish(payload)
	return payload
}

// ResetStats zeroes the episode counters without touching the world.
func (r *Runtime) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attemptsTotal = 0
	r.successes = 0
	r.failuresTimeout = 0
	r.failuresCollision = 0
}

// ClearPolicy wipes the persisted Q-table and restores default
// hyperparameters.
func (r *Runtime) ClearPolicy(ctx context.Context) (int64, Params, error) {
	return r.storage.ClearPolicy(ctx)
}

// Running reports whether the loop is active.
func (r *Runtime) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// State renders the current frame payload for the state endpoint.
func (r *Runtime) State() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.framePayloadLocked(r.world.Snapshot(), map[string]any{"type": "robot.stop"})
}

// InitPayload renders the episode bootstrap payload, obstacles included.
func (r *Runtime) InitPayload() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initPayloadLocked()
}

func (r *Runtime) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		if !r.runStartedAt.IsZero() {
			r.totalRun += r.clock().Sub(r.runStartedAt)
			r.runStartedAt = time.Time{}
		}
		r.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		if err := r.step(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Error("Rover loop failed", "error", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// step runs one simulation tick through the cognition pipeline.
func (r *Runtime) step(ctx context.Context) error {
	r.mu.Lock()
	snapshot := r.world.Snapshot()
	sensors := r.world.Sensors()
	r.mu.Unlock()

	observation := observationPayload(snapshot, sensors)
	resp, err := r.processor.ProcessEvent(ctx, map[string]any{
		"event_type": TelemetryEventType,
		"source":     runtimeSource,
		"payload": map[string]any{
			"domain":      "robotics",
			"tags":        []any{"observation", "sensors"},
			"episode_id":  snapshot.EpisodeID,
			"tick":        float64(snapshot.Tick),
			"observation": observation,
		},
	})
	if err != nil {
		return fmt.Errorf("telemetry event failed: %w", err)
	}
	command := commandFrom(resp.Action)

	r.mu.Lock()
	r.world.ApplyAction(command)
	next := r.world.Snapshot()
	nextSensors := r.world.Sensors()
	if rl, ok := resp.Metadata["rl"].(map[string]any); ok {
		r.lastRL = rl
	}
	r.mu.Unlock()

	if next.Tick%r.feedbackEvery == 0 || next.Done {
		feedback := map[string]any{
			"domain":           "robotics",
			"tags":             []any{"feedback", "step_result"},
			"episode_id":       next.EpisodeID,
			"tick":             float64(next.Tick),
			"reward":           next.LastReward,
			"done":             next.Done,
			"distance":         float64(next.Distance),
			"collisions":       float64(next.Collisions),
			"next_observation": observationPayload(next, nextSensors),
		}
		if next.Reason != "" {
			feedback["reason"] = next.Reason
		}
		if _, err := r.processor.ProcessEvent(ctx, map[string]any{
			"event_type": FeedbackEventType,
			"source":     runtimeSource,
			"payload":    feedback,
		}); err != nil {
			return fmt.Errorf("feedback event failed: %w", err)
		}
	}

	r.mu.Lock()
	r.rewardWindow = append(r.rewardWindow, next.LastReward)
	if len(r.rewardWindow) > rewardWindowKeep {
		r.rewardWindow = r.rewardWindow[len(r.rewardWindow)-rewardWindowKeep:]
	}
	if next.Done {
		r.attemptsTotal++
		switch next.Reason {
		case "goal":
			r.successes++
		case "timeout":
			r.failuresTimeout++
		case "collision":
			r.failuresCollision++
		}
	}
	// The final frame of an episode carries the updated attempt tally.
	frame := r.framePayloadLocked(next, command)
	var init map[string]any
	if next.Done {
		r.world.Reset()
		r.rewardWindow = r.rewardWindow[:0]
		init = r.initPayloadLocked()
	}
	r.mu.Unlock()

	r.publish(frame)
	if init != nil {
		r.publish(init)
	}
	return nil
}

func (r *Runtime) publish(payload map[string]any) {
	if r.sink == nil || payload == nil {
		return
	}
	r.sink(payload)
}

// framePayloadLocked renders one frame for observers. Callers hold r.mu.
func (r *Runtime) framePayloadLocked(snapshot *WorldSnapshot, lastAction map[string]any) map[string]any {
	avg := 0.0
	if len(r.rewardWindow) > 0 {
		total := 0.0
		for _, reward := range r.rewardWindow {
			total += reward
		}
		avg = total / float64(len(r.rewardWindow))
	}
	successRate := 0.0
	if r.attemptsTotal > 0 {
		successRate = float64(r.successes) / float64(r.attemptsTotal)
	}

	metrics := map[string]any{
		"reward":             snapshot.LastReward,
		"cumulative_reward":  snapshot.CumulativeReward,
		"distance":           snapshot.Distance,
		"collisions":         snapshot.Collisions,
		"done":               snapshot.Done,
		"reason":             snapshot.Reason,
		"avg_reward_window":  avg,
		"running":            r.running,
		"attempts_total":     r.attemptsTotal,
		"successes":          r.successes,
		"failures_timeout":   r.failuresTimeout,
		"failures_collision": r.failuresCollision,
		"success_rate":       successRate,
		"elapsed_seconds":    r.elapsedSecondsLocked(),
	}
	if r.lastRL != nil {
		metrics["epsilon"] = r.lastRL["epsilon"]
		metrics["policy_mode"] = r.lastRL["policy_mode"]
		metrics["best_action"] = r.lastRL["best_action"]
		metrics["q_values"] = r.lastRL["q"]
	}

	return map[string]any{
		"type":       "frame",
		"tick":       snapshot.Tick,
		"episode_id": snapshot.EpisodeID,
		"world": map[string]any{
			"w": snapshot.Width,
			"h": snapshot.Height,
			"robot": map[string]any{
				"x":      snapshot.Robot.X,
				"y":      snapshot.Robot.Y,
				"dir":    snapshot.Robot.Direction,
				"energy": snapshot.Robot.Energy,
			},
			"goal": map[string]any{"x": snapshot.Goal.X, "y": snapshot.Goal.Y},
		},
		"metrics":     metrics,
		"last_action": lastAction,
	}
}

// initPayloadLocked renders the episode bootstrap payload. Callers hold r.mu.
func (r *Runtime) initPayloadLocked() map[string]any {
	obstacles := make([]Coord, 0, len(r.world.Obstacles))
	for cell := range r.world.Obstacles {
		obstacles = append(obstacles, cell)
	}
	sort.Slice(obstacles, func(i, j int) bool {
		if obstacles[i].X != obstacles[j].X {
			return obstacles[i].X < obstacles[j].X
		}
		return obstacles[i].Y < obstacles[j].Y
	})
	rendered := make([]map[string]any, 0, len(obstacles))
	for _, cell := range obstacles {
		rendered = append(rendered, map[string]any{"x": cell.X, "y": cell.Y})
	}

	return map[string]any{
		"type":       "init",
		"tick":       r.world.Metrics.Tick,
		"episode_id": r.world.EpisodeID,
		"world": map[string]any{
			"w":         r.world.Width,
			"h":         r.world.Height,
			"obstacles": rendered,
			"robot": map[string]any{
				"x":      r.world.Robot.X,
				"y":      r.world.Robot.Y,
				"dir":    r.world.Robot.Direction,
				"energy": r.world.Robot.Energy,
			},
			"goal":  map[string]any{"x": r.world.Goal.X, "y": r.world.Goal.Y},
			"start": map[string]any{"x": r.world.Start.X, "y": r.world.Start.Y},
		},
		"runtime": map[string]any{
			"elapsed_seconds": r.elapsedSecondsLocked(),
		},
	}
}

func (r *Runtime) elapsedSecondsLocked() float64 {
	elapsed := r.totalRun
	if !r.runStartedAt.IsZero() {
		elapsed += r.clock().Sub(r.runStartedAt)
	}
	return elapsed.Seconds()
}

// observationPayload renders the wire observation for one snapshot.
func observationPayload(snapshot *WorldSnapshot, sensors SensorReading) map[string]any {
	return map[string]any{
		"x":         float64(snapshot.Robot.X),
		"y":         float64(snapshot.Robot.Y),
		"direction": float64(snapshot.Robot.Direction),
		"energy":    snapshot.Robot.Energy,
		"goal_x":    float64(snapshot.Goal.X),
		"goal_y":    float64(snapshot.Goal.Y),
		"sensors": map[string]any{
			"front":       float64(sensors.Front),
			"front_left":  float64(sensors.FrontLeft),
			"front_right": float64(sensors.FrontRight),
			"left":        float64(sensors.Left),
			"right":       float64(sensors.Right),
		},
	}
}

// commandFrom extracts the robot command from a pipeline response action,
// degrading to a stop when the action is not a command payload.
func commandFrom(action any) map[string]any {
	if command, ok := action.(map[string]any); ok {
		if _, ok := command["type"].(string); ok {
			return command
		}
	}
	return map[string]any{"type": "robot.stop"}
}
