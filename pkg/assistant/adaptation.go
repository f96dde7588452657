package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Adaptation folds assistant feedback into the bandit policy, the rolling
// metrics, and session preference/avoid memory.
type Adaptation struct {
	storage *Storage
	policy  *Policy
	logger  *slog.Logger
}

func (a *Adaptation) Name() string { return "assistant_adaptation" }

func (a *Adaptation) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "assistant" && strings.HasPrefix(ev.EventType, "feedback.assistant")
}

func (a *Adaptation) Adapt(ctx context.Context, in *engine.AdaptationInput) error {
	ev := in.Event
	sessionID := strings.TrimSpace(ev.PayloadString("session_id"))
	if sessionID == "" {
		return nil
	}

	reward := RewardFromPayload(ev.Payload)
	pending, err := a.storage.PopPendingFeedback(ctx, sessionID)
	if err != nil {
		a.logger.Warn("Loading pending feedback failed", "session_id", sessionID, "error", err)
	}
	profileID := DefaultProfileID
	if pending != nil && pending.ProfileID != "" {
		profileID = pending.ProfileID
	}

	policyState, err := a.storage.PolicyState(ctx)
	if err != nil {
		return fmt.Errorf("loading policy state: %w", err)
	}
	updated := a.policy.Update(policyState, profileID, reward)
	if err := a.storage.SavePolicyState(ctx, updated); err != nil {
		return fmt.Errorf("saving policy state: %w", err)
	}

	window, err := a.storage.RewardWindow(ctx)
	if err != nil {
		a.logger.Warn("Loading reward window failed, starting empty", "error", err)
		window = nil
	}
	window = append(window, reward)
	if len(window) > rewardWindowSize {
		window = window[len(window)-rewardWindowSize:]
	}
	if err := a.storage.SaveRewardWindow(ctx, window); err != nil {
		a.logger.Warn("Saving reward window failed", "error", err)
	}

	metrics := metricsFromWindow(window)
	if err := a.storage.SaveMetrics(ctx, metrics); err != nil {
		a.logger.Warn("Saving metrics failed", "error", err)
	}

	notes := strings.TrimSpace(ev.PayloadString("notes"))
	wrotePreference := false
	wroteAvoid := false
	if notes != "" && reward > 0 {
		if _, err := a.storage.AddPreference(ctx, sessionID, notes); err != nil {
			a.logger.Warn("Recording preference failed", "session_id", sessionID, "error", err)
		} else {
			wrotePreference = true
		}
	}
	if notes != "" && reward < 0 {
		if _, err := a.storage.AddAvoid(ctx, sessionID, notes); err != nil {
			a.logger.Warn("Recording avoid hint failed", "session_id", sessionID, "error", err)
		} else {
			wroteAvoid = true
		}
	}

	stats := updated.Profiles[profileID]
	afsExplain := map[string]any{
		"updated": true,
		"reward":  reward,
		"profile_stats": map[string]any{
			"profile_id": profileID,
			"count":      stats.Count,
			"avg_reward": stats.AvgReward,
		},
		"metrics": map[string]any{
			"count_feedbacks": metrics.CountFeedbacks,
			"avg_reward":      metrics.AvgReward,
			"success_rate":    metrics.SuccessRate,
		},
		"wrote_preference": wrotePreference,
		"wrote_avoid":      wroteAvoid,
	}

	in.State["assistant_learning"] = map[string]any{
		"updated":         true,
		"epsilon":         updated.Epsilon,
		"count_feedbacks": metrics.CountFeedbacks,
		"avg_reward":      metrics.AvgReward,
		"success_rate":    metrics.SuccessRate,
		"afs_explain":     afsExplain,
	}

	a.logger.Info("Assistant feedback applied",
		"session_id", sessionID,
		"reward", reward,
		"profile", profileID,
		"epsilon", updated.Epsilon,
		"wrote_preference", wrotePreference,
		"wrote_avoid", wroteAvoid)
	return nil
}

// metricsFromWindow derives the rolling metrics from the reward history.
func metricsFromWindow(window []float64) Metrics {
	if len(window) == 0 {
		return Metrics{}
	}
	var sum float64
	successes := 0
	for _, reward := range window {
		sum += reward
		if reward > 0 {
			successes++
		}
	}
	count := float64(len(window))
	return Metrics{
		CountFeedbacks: count,
		AvgReward:      sum / count,
		SuccessRate:    float64(successes) / count,
	}
}
