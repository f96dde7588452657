package rover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Adaptation closes the learning loop on reward feedback: it pops the
// pending transition, applies the tabular Q-update, decays epsilon, and
// mirrors the update into the robotics_rl state slice for the response.
type Adaptation struct {
	storage *Storage
	logger  *slog.Logger
}

func (a *Adaptation) Name() string { return "robotics_adaptation" }

func (a *Adaptation) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "robotics" && strings.HasPrefix(ev.EventType, "feedback.robotics")
}

func (a *Adaptation) Adapt(ctx context.Context, in *engine.AdaptationInput) error {
	ev := in.Event
	episodeID := ev.PayloadString("episode_id")
	if episodeID == "" {
		return nil
	}

	transition, err := a.storage.PopPendingTransition(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("loading pending transition: %w", err)
	}
	if transition == nil || transition.StateKey == "" || !validAction(transition.Action) {
		return nil
	}

	nextStateKey := transition.StateKey
	if nextObservation, ok := ev.Payload["next_observation"].(map[string]any); ok {
		nextStateKey = BuildStateKey(nextObservation)
	}

	reward, _ := ev.PayloadFloat("reward")
	done, _ := ev.PayloadBool("done")

	params, err := a.storage.Params(ctx)
	if err != nil {
		return fmt.Errorf("loading rover params: %w", err)
	}
	qCurrent, err := a.storage.Q(ctx, transition.StateKey)
	if err != nil {
		return fmt.Errorf("loading q-values: %w", err)
	}
	qNext, err := a.storage.Q(ctx, nextStateKey)
	if err != nil {
		return fmt.Errorf("loading next q-values: %w", err)
	}

	oldQ := qCurrent[transition.Action]
	maxNext := qNext[bestAction(qNext)]
	bootstrapped := maxNext
	if done {
		bootstrapped = 0.0
	}
	newQ := qLearningUpdate(oldQ, reward, bootstrapped, params.Alpha, params.Gamma)
	if err := a.storage.SetQValue(ctx, transition.StateKey, transition.Action, newQ); err != nil {
		return fmt.Errorf("persisting q-value: %w", err)
	}

	newEpsilon := params.Epsilon * params.EpsilonDecay
	if newEpsilon < params.EpsilonMin {
		newEpsilon = params.EpsilonMin
	}
	if _, err := a.storage.SetEpsilon(ctx, newEpsilon); err != nil {
		return fmt.Errorf("persisting epsilon: %w", err)
	}

	in.State["robotics_rl"] = map[string]any{
		"updated":        true,
		"state_key":      transition.StateKey,
		"action":         transition.Action,
		"reward":         reward,
		"old_q":          oldQ,
		"new_q":          newQ,
		"max_next":       maxNext,
		"next_state_key": nextStateKey,
		"epsilon":        newEpsilon,
		"done":           done,
	}

	a.logger.Info("Q-update applied",
		"episode_id", episodeID,
		"state_key", transition.StateKey,
		"action", transition.Action,
		"reward", reward,
		"old_q", oldQ,
		"new_q", newQ,
		"epsilon", newEpsilon,
		"done", done)
	return nil
}

func validAction(action string) bool {
	for _, known := range RobotActions {
		if action == known {
			return true
		}
	}
	return false
}
