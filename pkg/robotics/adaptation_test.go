package robotics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

func adaptationInput(state map[string]any, eventType string, payload map[string]any) *engine.AdaptationInput {
	return &engine.AdaptationInput{
		State:  state,
		Event:  osEventFor(eventType, payload),
		Plan:   &models.ActionPlan{ActionType: "os.update_project_plan"},
		Result: &models.ExecutionResult{ActionType: "os.update_project_plan", Success: true},
	}
}

func TestAdaptPassRaisesConfidence(t *testing.T) {
	twin := NewTwin()
	twin.CostProjection = CostProjection{ProjectedTotalCost: 100, ProjectedRiskBuffer: 10, Confidence: 0.5}
	twin.RiskLevel = "MEDIUM"
	state := stateWithTwin(twin)

	err := New().Adaptation.Adapt(context.Background(), adaptationInput(state, "test.result.recorded", map[string]any{"passed": true}))
	require.NoError(t, err)

	updated := LoadTwin(state)
	assert.Equal(t, 0.55, updated.CostProjection.Confidence)
	assert.Equal(t, 98.0, updated.CostProjection.ProjectedTotalCost)
	assert.Equal(t, "LOW", updated.RiskLevel)
}

func TestAdaptFailureLowersConfidence(t *testing.T) {
	twin := NewTwin()
	twin.CostProjection = CostProjection{ProjectedTotalCost: 100, Confidence: 0.5}
	state := stateWithTwin(twin)

	err := New().Adaptation.Adapt(context.Background(), adaptationInput(state, "test.result.recorded", map[string]any{"passed": false}))
	require.NoError(t, err)

	updated := LoadTwin(state)
	assert.Equal(t, 0.42, updated.CostProjection.Confidence)
	assert.Equal(t, 104.0, updated.CostProjection.ProjectedTotalCost)
	assert.Equal(t, "MEDIUM", updated.RiskLevel)
}

func TestAdaptClampsConfidence(t *testing.T) {
	tests := []struct {
		name           string
		confidence     float64
		passed         bool
		wantConfidence float64
	}{
		{"ceiling", 0.93, true, 0.95},
		{"floor", 0.12, false, 0.1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			twin := NewTwin()
			twin.CostProjection.Confidence = tc.confidence
			state := stateWithTwin(twin)

			err := New().Adaptation.Adapt(context.Background(), adaptationInput(state, "test.result.recorded", map[string]any{"passed": tc.passed}))
			require.NoError(t, err)
			assert.Equal(t, tc.wantConfidence, LoadTwin(state).CostProjection.Confidence)
		})
	}
}

func TestAdaptIgnoresNonTestEvents(t *testing.T) {
	state := map[string]any{}

	err := New().Adaptation.Adapt(context.Background(), adaptationInput(state, "purchase.completed", map[string]any{"total_cost": 50.0}))
	require.NoError(t, err)
	assert.Empty(t, state, "only test results touch the twin here")
}
