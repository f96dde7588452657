package engine

import (
	"context"
	"fmt"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/store"
)

// cciMinActions is the number of completed actions required before the
// index is considered warm. Below it the score pins to the cold-start value
// and the components serialize as unknown.
const cciMinActions = 3

// cciVarMax normalizes priority variance: priorities span 1..5, so the
// population variance can reach at most 4.0.
const cciVarMax = 4.0

// CCIEngine derives the Cognitive Coherence Index from the completed-action
// log. Weights and window are fixed at construction.
type CCIEngine struct {
	store   *store.Manager
	window  int
	weights config.CCIWeights
}

func NewCCIEngine(st *store.Manager, cfg *config.CCIConfig) *CCIEngine {
	engine := &CCIEngine{
		store:   st,
		window:  50,
		weights: config.CCIWeights{Consistency: 0.35, Stability: 0.25, Contradiction: 0.25, PredictiveAccuracy: 0.15},
	}
	if cfg != nil {
		if cfg.Window > 0 {
			engine.window = cfg.Window
		}
		if cfg.Weights != (config.CCIWeights{}) {
			engine.weights = cfg.Weights
		}
	}
	return engine
}

// Compute reads the last window of completed actions and scores coherence.
func (c *CCIEngine) Compute(ctx context.Context) (*models.CCIResult, error) {
	actions, err := c.store.RecentActions(ctx, c.window)
	if err != nil {
		return nil, fmt.Errorf("loading recent actions: %w", err)
	}
	return c.Score(actions), nil
}

// Score computes the index over an already-loaded action window, ordered
// oldest to newest by completion time.
func (c *CCIEngine) Score(actions []*models.CompletedAction) *models.CCIResult {
	if len(actions) < cciMinActions {
		return &models.CCIResult{
			Score:      0.5,
			Components: models.CCIComponents{Unknown: true},
		}
	}

	clean := 0
	contradicted := 0
	priorities := make([]float64, 0, len(actions))
	pairSum := 0.0
	pairCount := 0
	for _, action := range actions {
		if len(action.ViolatedValues) == 0 {
			clean++
		} else {
			contradicted++
		}
		priorities = append(priorities, float64(action.Priority))
		if action.ExpectedImpact != nil && action.ObservedImpact != nil {
			diff := *action.ExpectedImpact - *action.ObservedImpact
			if diff < 0 {
				diff = -diff
			}
			pairSum += diff
			pairCount++
		}
	}

	total := float64(len(actions))
	consistency := float64(clean) / total
	contradictionRate := float64(contradicted) / total
	stability := clamp01(1.0 - populationVariance(priorities)/cciVarMax)
	predictive := 0.5
	if pairCount > 0 {
		predictive = clamp01(1.0 - pairSum/float64(pairCount))
	}

	score := c.weights.Consistency*consistency +
		c.weights.Stability*stability +
		c.weights.Contradiction*(1.0-contradictionRate) +
		c.weights.PredictiveAccuracy*predictive

	return &models.CCIResult{
		Score: clamp01(score),
		Components: models.CCIComponents{
			Consistency:        consistency,
			Stability:          stability,
			ContradictionRate:  contradictionRate,
			PredictiveAccuracy: predictive,
		},
	}
}

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return variance / float64(len(values))
}
