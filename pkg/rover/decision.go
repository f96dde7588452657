package rover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Decision is the epsilon-greedy telemetry handler: it discretizes the
// observation, consults the Q-table, stores the pending transition, and
// plans the chosen robot command.
type Decision struct {
	storage   *Storage
	logger    *slog.Logger
	randFloat func() float64
	randIndex func(n int) int
}

func (d *Decision) Name() string { return "robotics_decision" }

func (d *Decision) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "robotics" && ev.EventType == "robot_telemetry"
}

func (d *Decision) Decide(ctx context.Context, in *engine.DecisionInput) (*models.ActionPlan, error) {
	ev := in.Event
	observation := resolveObservation(ev, in.State)
	episodeID := ev.PayloadString("episode_id")
	if episodeID == "" {
		episodeID = "global"
	}
	stateKey := BuildStateKey(observation)

	params, err := d.storage.Params(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rover params: %w", err)
	}
	qValues, err := d.storage.Q(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("loading q-values: %w", err)
	}

	chosen, mode := chooseAction(qValues, params.Epsilon, d.randFloat, d.randIndex)
	best := bestAction(qValues)

	transition := &Transition{
		EpisodeID: episodeID,
		StateKey:  stateKey,
		Action:    chosen,
		Tick:      intFrom(observation["tick"], intFromPayload(ev, "tick")),
	}
	if err := d.storage.SetPendingTransition(ctx, episodeID, transition); err != nil {
		return nil, fmt.Errorf("storing pending transition: %w", err)
	}

	plan := &models.ActionPlan{
		ActionType: "robotics.action",
		Rationale: fmt.Sprintf(
			"robotics epsilon-greedy: episode=%s, mode=%s, chosen=%s, best=%s, epsilon=%.4f.",
			episodeID, mode, chosen, best, params.Epsilon),
		Priority: 2,
		Metadata: map[string]any{
			"action_payload": ActionCommand(chosen),
			"rl": map[string]any{
				"state_key":   stateKey,
				"epsilon":     params.Epsilon,
				"q":           qValues,
				"policy_mode": mode,
				"best_action": best,
			},
		},
	}

	d.logger.Debug("Rover action decided",
		"episode_id", episodeID,
		"state_key", stateKey,
		"mode", mode,
		"chosen", chosen,
		"epsilon", params.Epsilon)
	return plan, nil
}

// resolveObservation reads the telemetry observation from the payload,
// falling back to the episode's last stored observation.
func resolveObservation(ev *models.Event, state map[string]any) map[string]any {
	if observation, ok := ev.Payload["observation"].(map[string]any); ok {
		return observation
	}
	episodeID := ev.PayloadString("episode_id")
	if episodeID == "" {
		episodeID = "global"
	}
	slice, _ := state["robotics"].(map[string]any)
	episodes, _ := slice["episodes"].(map[string]any)
	episode, _ := episodes[episodeID].(map[string]any)
	if observation, ok := episode["last_observation"].(map[string]any); ok {
		return observation
	}
	return map[string]any{}
}
