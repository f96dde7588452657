package robotics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/models"
)

var applyAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestApplyEventPhaseAndBudget(t *testing.T) {
	twin := NewTwin()

	next := twin.ApplyEvent("project.goal.defined", map[string]any{"phase": "procurement"}, applyAt)
	assert.Equal(t, "procurement", next.Phase)

	next = next.ApplyEvent("budget.updated", map[string]any{"budget_total": 1000.0}, applyAt)
	assert.Equal(t, 1000.0, next.BudgetTotal)
	assert.Equal(t, 1000.0, next.BudgetRemaining, "remaining defaults to the new total")

	next = next.ApplyEvent("budget.updated", map[string]any{
		"budget_total":     1000.0,
		"budget_remaining": 400.0,
	}, applyAt)
	assert.Equal(t, 400.0, next.BudgetRemaining)

	require.Len(t, next.AuditTrail, 3)
	assert.Equal(t, "project.goal.defined", next.AuditTrail[0]["event_type"])
	assert.Equal(t, applyAt.Format(time.RFC3339Nano), next.AuditTrail[0]["at"])

	// The receiver is never mutated.
	assert.Equal(t, "planning", twin.Phase)
	assert.Empty(t, twin.AuditTrail)
}

func TestApplyEventComponentUpsertAndProjection(t *testing.T) {
	twin := NewTwin()

	next := twin.ApplyEvent("part.candidate.added", map[string]any{
		"component_id":        "c1",
		"name":                "motor",
		"quantity":            2,
		"estimated_unit_cost": 125.5,
		"risk_level":          "HIGH",
	}, applyAt)

	require.Len(t, next.Components, 1)
	assert.Equal(t, "motor", next.Components[0].Name)
	assert.Equal(t, "general", next.Components[0].Category)
	assert.Equal(t, "planned", next.Components[0].Status)
	assert.Equal(t, 251.0, next.CostProjection.ProjectedTotalCost)
	assert.InDelta(t, 75.1, next.CostProjection.ProjectedRiskBuffer, 1e-9)
	assert.Equal(t, 0.55, next.CostProjection.Confidence)

	// Upsert by id replaces the earlier candidate.
	next = next.ApplyEvent("part.candidate.added", map[string]any{
		"component_id":        "c1",
		"name":                "motor-v2",
		"quantity":            1,
		"estimated_unit_cost": 100.0,
	}, applyAt)
	require.Len(t, next.Components, 1)
	assert.Equal(t, "motor-v2", next.Components[0].Name)
	assert.Equal(t, 100.0, next.CostProjection.ProjectedTotalCost)
	assert.InDelta(t, 10.0, next.CostProjection.ProjectedRiskBuffer, 1e-9)
}

func TestApplyEventDependencyEdges(t *testing.T) {
	twin := NewTwin()
	next := twin.ApplyEvent("part.candidate.added", map[string]any{
		"component_id": "c2",
		"name":         "controller",
		"depends_on":   []any{"c9"},
	}, applyAt)
	assert.Equal(t, []string{"c9"}, next.DependencyGraph.Edges["c2"])
}

func TestApplyEventPurchaseCompleted(t *testing.T) {
	twin := NewTwin()
	twin.BudgetTotal = 500
	twin.BudgetRemaining = 500

	next := twin.ApplyEvent("purchase.completed", map[string]any{
		"total_cost":  240.0,
		"purchase_id": "po-1",
	}, applyAt)

	assert.Equal(t, 260.0, next.BudgetRemaining)
	require.Len(t, next.PurchaseHistory, 1)
	assert.Equal(t, "completed", next.PurchaseHistory[0]["status"])
	assert.Equal(t, "po-1", next.PurchaseHistory[0]["purchase_id"])
	assert.Equal(t, 240.0, next.PurchaseHistory[0]["total_cost"])
}

func TestApplyEventPartReceived(t *testing.T) {
	twin := NewTwin()
	twin.Components = []Component{
		{ComponentID: "c1", Status: "ordered"},
		{ComponentID: "c2", Status: "ordered"},
	}

	next := twin.ApplyEvent("part.received", map[string]any{"component_id": "c1"}, applyAt)
	assert.Equal(t, "received", next.Components[0].Status)
	assert.Equal(t, "ordered", next.Components[1].Status)
}

func TestApplyEventTestsSimulationsRisks(t *testing.T) {
	twin := NewTwin()

	next := twin.ApplyEvent("test.result.recorded", map[string]any{
		"test_id":      "t1",
		"component_id": "c1",
		"passed":       true,
	}, applyAt)
	require.Len(t, next.Tests, 1)
	assert.True(t, next.Tests[0].Passed)

	next = next.ApplyEvent("test.executed", map[string]any{
		"simulation_id":        "s1",
		"scenario":             "thermal",
		"projected_risk_level": "MEDIUM",
	}, applyAt)
	require.Len(t, next.Simulations, 1)
	assert.Equal(t, "MEDIUM", next.RiskLevel)

	next = next.ApplyEvent("risk.detected", map[string]any{"description": "supplier delay"}, applyAt)
	assert.Equal(t, []string{"supplier delay"}, next.Risks)
	assert.Equal(t, "HIGH", next.RiskLevel, "risk.detected defaults to HIGH")
}

func TestApplyEventUnknownTypeOnlyAudits(t *testing.T) {
	twin := NewTwin()
	next := twin.ApplyEvent("weird.event", map[string]any{"n": 1.0}, applyAt)

	assert.Equal(t, "planning", next.Phase)
	assert.Empty(t, next.Components)
	require.Len(t, next.AuditTrail, 1)
	assert.Equal(t, "weird.event", next.AuditTrail[0]["event_type"])
}

func TestLoadWriteRoundTrip(t *testing.T) {
	twin := NewTwin()
	twin.BudgetTotal = 750
	twin.BudgetRemaining = 600
	twin.Phase = "testing"
	twin.Components = []Component{{ComponentID: "c1", Name: "arm", Quantity: 1, RiskLevel: "LOW", Status: "planned", Category: "general"}}

	state := map[string]any{}
	twin.WriteTo(state)

	// The stored form is a plain JSON document, navigable by map readers.
	osState := state[osSlice].(map[string]any)
	doc := osState[twinSlice].(map[string]any)
	assert.Equal(t, 600.0, doc["budget_remaining"])

	loaded := LoadTwin(state)
	assert.Equal(t, 750.0, loaded.BudgetTotal)
	assert.Equal(t, "testing", loaded.Phase)
	require.Len(t, loaded.Components, 1)
	assert.Equal(t, "arm", loaded.Components[0].Name)
}

func TestLoadTwinDefaultsWhenMissingOrMalformed(t *testing.T) {
	assert.Equal(t, "planning", LoadTwin(map[string]any{}).Phase)
	assert.Equal(t, "LOW", LoadTwin(map[string]any{osSlice: "not a map"}).RiskLevel)
	assert.Equal(t, 0.5, LoadTwin(map[string]any{
		osSlice: map[string]any{twinSlice: "still not a map"},
	}).CostProjection.Confidence)
}

func TestTwinApplierFoldsEventIntoState(t *testing.T) {
	state := map[string]any{}
	applier := New().Twin

	err := applier.Apply(context.Background(), state, osEventFor("budget.updated", map[string]any{
		"budget_total": 300.0,
	}), &models.ExecutionResult{ActionType: "os.update_project_plan", Success: true})
	require.NoError(t, err)

	twin := LoadTwin(state)
	assert.Equal(t, 300.0, twin.BudgetTotal)
	assert.Equal(t, 300.0, twin.BudgetRemaining)
	require.Len(t, twin.AuditTrail, 1)
}
