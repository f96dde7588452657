package rover

import (
	"context"
	"strings"

	"github.com/pce-project/pce/pkg/models"
)

// Integrator maintains the robotics state slice: the generic payload merge
// plus a per-episode subtree of observations and running episode stats
// that the decision plugin can fall back to.
type Integrator struct{}

func (Integrator) Name() string { return "robotics_integrator" }

func (Integrator) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "robotics"
}

func (Integrator) Integrate(_ context.Context, state map[string]any, ev *models.Event) error {
	slice, _ := state["robotics"].(map[string]any)
	if slice == nil {
		slice = map[string]any{}
	}
	for k, v := range ev.Payload {
		slice[k] = v
	}
	slice["last_event_id"] = ev.EventID
	slice["last_event_type"] = ev.EventType

	episodes, _ := slice["episodes"].(map[string]any)
	if episodes == nil {
		episodes = map[string]any{}
	}
	episodeID := ev.PayloadString("episode_id")
	if episodeID == "" {
		episodeID = "global"
	}
	episode, _ := episodes[episodeID].(map[string]any)
	if episode == nil {
		episode = map[string]any{}
	}

	switch {
	case ev.EventType == "robot_telemetry":
		if observation, ok := ev.Payload["observation"].(map[string]any); ok {
			episode["prev_observation"] = episode["last_observation"]
			episode["last_observation"] = observation
			episode["last_state_key"] = BuildStateKey(observation)
			episode["last_tick"] = intFromPayload(ev, "tick")
		}
	case strings.HasPrefix(ev.EventType, "feedback.robotics"):
		stats, _ := episode["episode_stats"].(map[string]any)
		if stats == nil {
			stats = map[string]any{}
		}
		reward, _ := ev.PayloadFloat("reward")
		done, _ := ev.PayloadBool("done")
		stats["total_reward"] = floatFromMap(stats, "total_reward") + reward
		stats["steps"] = intFromMap(stats, "steps") + 1
		if collisions, ok := ev.PayloadFloat("collisions"); ok {
			stats["collisions"] = int(collisions)
		}
		if done && ev.PayloadString("reason") == "goal" {
			stats["successes"] = intFromMap(stats, "successes") + 1
		}
		episode["episode_stats"] = stats
	}

	episodes[episodeID] = episode
	slice["episodes"] = episodes
	state["robotics"] = slice
	return nil
}

func intFromPayload(ev *models.Event, key string) int {
	if v, ok := ev.PayloadFloat(key); ok {
		return int(v)
	}
	return 0
}

func floatFromMap(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func intFromMap(m map[string]any, key string) int {
	return intFrom(m[key], 0)
}
