// Package robotics implements the os.robotics domain: the deterministic
// digital twin of the robot build project, the budget-first value model,
// the committee-backed decision plugin, and feedback adaptation.
package robotics

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// State slice keys. The twin lives under state.pce_os.robotics_twin so the
// approval gate and the OS endpoints read the same document.
const (
	osSlice   = "pce_os"
	twinSlice = "robotics_twin"
)

// Supplier is a procurement source with lead-time and reliability signals.
type Supplier struct {
	SupplierID       string  `json:"supplier_id"`
	Name             string  `json:"name"`
	ReliabilityScore float64 `json:"reliability_score"`
	AvgLeadTimeDays  int     `json:"avg_lead_time_days"`
}

// Component is a BOM candidate or acquired part.
type Component struct {
	ComponentID        string   `json:"component_id"`
	Name               string   `json:"name"`
	Category           string   `json:"category"`
	Quantity           int      `json:"quantity"`
	EstimatedUnitCost  float64  `json:"estimated_unit_cost"`
	SelectedSupplierID string   `json:"selected_supplier_id,omitempty"`
	Status             string   `json:"status"`
	RiskLevel          string   `json:"risk_level"`
	DependsOn          []string `json:"depends_on,omitempty"`
}

// DependencyGraph is the build dependency adjacency list, keyed by
// component id. Stored as ids only; cycles are detected defensively by the
// engineering agent rather than prevented here.
type DependencyGraph struct {
	Edges map[string][]string `json:"edges"`
}

// CostProjection is the aggregate cost and procurement risk estimate.
type CostProjection struct {
	ProjectedTotalCost  float64 `json:"projected_total_cost"`
	ProjectedRiskBuffer float64 `json:"projected_risk_buffer"`
	Confidence          float64 `json:"confidence"`
}

// SimulationResult is one simulated test pass steering planning.
type SimulationResult struct {
	SimulationID       string  `json:"simulation_id"`
	Scenario           string  `json:"scenario"`
	ProjectedCost      float64 `json:"projected_cost"`
	ProjectedRiskLevel string  `json:"projected_risk_level"`
	Notes              string  `json:"notes"`
}

// TestResult is one recorded physical test outcome.
type TestResult struct {
	TestID          string             `json:"test_id"`
	ComponentID     string             `json:"component_id"`
	Passed          bool               `json:"passed"`
	MeasuredMetrics map[string]float64 `json:"measured_metrics,omitempty"`
	Notes           string             `json:"notes"`
}

// RobotProjectState is the root digital twin document.
type RobotProjectState struct {
	SchemaVersion   string             `json:"schema_version"`
	ProjectID       string             `json:"project_id"`
	Phase           string             `json:"phase"`
	BudgetTotal     float64            `json:"budget_total"`
	BudgetRemaining float64            `json:"budget_remaining"`
	Risks           []string           `json:"risks"`
	RiskLevel       string             `json:"risk_level"`
	Components      []Component        `json:"components"`
	Suppliers       []Supplier         `json:"suppliers"`
	DependencyGraph DependencyGraph    `json:"dependency_graph"`
	CostProjection  CostProjection     `json:"cost_projection"`
	Simulations     []SimulationResult `json:"simulations"`
	Tests           []TestResult       `json:"tests"`
	PurchaseHistory []map[string]any   `json:"purchase_history"`
	AuditTrail      []map[string]any   `json:"audit_trail"`
}

// NewTwin returns a twin with baseline defaults.
func NewTwin() *RobotProjectState {
	return &RobotProjectState{
		SchemaVersion:   "v0",
		ProjectID:       "robotics-v0",
		Phase:           "planning",
		RiskLevel:       "LOW",
		Risks:           []string{},
		Components:      []Component{},
		Suppliers:       []Supplier{},
		DependencyGraph: DependencyGraph{Edges: map[string][]string{}},
		CostProjection:  CostProjection{Confidence: 0.5},
		Simulations:     []SimulationResult{},
		Tests:           []TestResult{},
		PurchaseHistory: []map[string]any{},
		AuditTrail:      []map[string]any{},
	}
}

// LoadTwin reads the twin out of the global state document, returning a
// fresh default twin when the slice is absent or malformed.
func LoadTwin(state map[string]any) *RobotProjectState {
	osState, ok := state[osSlice].(map[string]any)
	if !ok {
		return NewTwin()
	}
	doc, ok := osState[twinSlice].(map[string]any)
	if !ok {
		return NewTwin()
	}
	twin := NewTwin()
	raw, err := json.Marshal(doc)
	if err != nil {
		return NewTwin()
	}
	if err := json.Unmarshal(raw, twin); err != nil {
		return NewTwin()
	}
	return twin
}

// WriteTo places the twin document back into the global state slice.
func (t *RobotProjectState) WriteTo(state map[string]any) {
	osState, ok := state[osSlice].(map[string]any)
	if !ok {
		osState = map[string]any{}
		state[osSlice] = osState
	}
	osState[twinSlice] = t.Doc()
}

// Doc renders the twin as a plain JSON document so map-navigating readers
// (the approval gate, the OS endpoints) see the same shape the store saves.
func (t *RobotProjectState) Doc() map[string]any {
	raw, err := json.Marshal(t)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}

func (t *RobotProjectState) clone() *RobotProjectState {
	next := NewTwin()
	raw, err := json.Marshal(t)
	if err != nil {
		return next
	}
	if err := json.Unmarshal(raw, next); err != nil {
		return NewTwin()
	}
	return next
}

// ApplyEvent folds one domain event into a copy of the twin and returns it.
// Every event leaves an audit_trail record; unknown event types record only
// that.
func (t *RobotProjectState) ApplyEvent(eventType string, payload map[string]any, at time.Time) *RobotProjectState {
	next := t.clone()
	record := map[string]any{
		"event_type": eventType,
		"payload":    clonePayload(payload),
		"at":         at.UTC().Format(time.RFC3339Nano),
	}

	switch eventType {
	case "project.goal.defined":
		next.Phase = stringOr(payload, "phase", "planning")
	case "budget.updated":
		total := floatOr(payload, "budget_total", next.BudgetTotal)
		next.BudgetTotal = total
		next.BudgetRemaining = floatOr(payload, "budget_remaining", total)
	case "part.candidate.added":
		component := componentFrom(payload)
		next.upsertComponent(component)
		if len(component.DependsOn) > 0 {
			if next.DependencyGraph.Edges == nil {
				next.DependencyGraph.Edges = map[string][]string{}
			}
			next.DependencyGraph.Edges[component.ComponentID] = component.DependsOn
		}
		next.CostProjection = projectCost(next)
	case "purchase.completed":
		next.BudgetRemaining -= floatOr(payload, "total_cost", 0)
		completed := clonePayload(payload)
		if _, ok := completed["status"]; !ok {
			completed["status"] = "completed"
		}
		next.PurchaseHistory = append(next.PurchaseHistory, completed)
		next.CostProjection = projectCost(next)
	case "part.received":
		componentID := stringOr(payload, "component_id", "")
		for i := range next.Components {
			if next.Components[i].ComponentID == componentID {
				next.Components[i].Status = "received"
			}
		}
	case "test.result.recorded":
		next.Tests = append(next.Tests, testResultFrom(payload))
	case "test.executed":
		simulation := simulationFrom(payload)
		next.Simulations = append(next.Simulations, simulation)
		next.RiskLevel = simulation.ProjectedRiskLevel
	case "risk.detected":
		next.Risks = append(next.Risks, stringOr(payload, "description", "unknown risk"))
		next.RiskLevel = normalizeRisk(stringOr(payload, "risk_level", "HIGH"), "HIGH")
	}

	next.AuditTrail = append(next.AuditTrail, record)
	return next
}

// upsertComponent replaces any component with the same id, appending the
// new version at the end.
func (t *RobotProjectState) upsertComponent(component Component) {
	kept := make([]Component, 0, len(t.Components)+1)
	for _, existing := range t.Components {
		if existing.ComponentID != component.ComponentID {
			kept = append(kept, existing)
		}
	}
	t.Components = append(kept, component)
}

// projectCost recomputes the aggregate projection: component cost sum, a
// 10% buffer plus 50 per HIGH-risk part, and a flat confidence that only
// distinguishes "has components" from "empty".
func projectCost(t *RobotProjectState) CostProjection {
	var total float64
	highRisk := 0
	for _, component := range t.Components {
		total += component.EstimatedUnitCost * float64(component.Quantity)
		if component.RiskLevel == "HIGH" {
			highRisk++
		}
	}
	confidence := 0.5
	if len(t.Components) > 0 {
		confidence = 0.55
	}
	return CostProjection{
		ProjectedTotalCost:  round2(total),
		ProjectedRiskBuffer: round2(total*0.1 + float64(highRisk)*50),
		Confidence:          confidence,
	}
}

func componentFrom(payload map[string]any) Component {
	var component Component
	raw, _ := json.Marshal(payload)
	_ = json.Unmarshal(raw, &component)
	if component.Category == "" {
		component.Category = "general"
	}
	if component.Quantity < 1 {
		component.Quantity = 1
	}
	if component.Status == "" {
		component.Status = "planned"
	}
	component.RiskLevel = normalizeRisk(component.RiskLevel, "LOW")
	return component
}

func testResultFrom(payload map[string]any) TestResult {
	var result TestResult
	raw, _ := json.Marshal(payload)
	_ = json.Unmarshal(raw, &result)
	return result
}

func simulationFrom(payload map[string]any) SimulationResult {
	var simulation SimulationResult
	raw, _ := json.Marshal(payload)
	_ = json.Unmarshal(raw, &simulation)
	simulation.ProjectedRiskLevel = normalizeRisk(simulation.ProjectedRiskLevel, "LOW")
	return simulation
}

func normalizeRisk(risk, fallback string) string {
	switch risk {
	case "LOW", "MEDIUM", "HIGH":
		return risk
	}
	return fallback
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func stringOr(payload map[string]any, key, fallback string) string {
	if s, ok := payload[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatOr(payload map[string]any, key string, fallback float64) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// TwinApplier folds executed os.robotics events into the persisted twin.
// The engine skips appliers while an approval is pending, which is what
// keeps suspended purchases from ever touching the budget.
type TwinApplier struct {
	logger *slog.Logger
}

func (a *TwinApplier) Name() string { return "robotics_twin" }

func (a *TwinApplier) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "os.robotics"
}

func (a *TwinApplier) Apply(ctx context.Context, state map[string]any, ev *models.Event, result *models.ExecutionResult) error {
	twin := LoadTwin(state)
	next := twin.ApplyEvent(ev.EventType, ev.Payload, ev.Timestamp)
	next.WriteTo(state)
	a.logger.Debug("Twin updated",
		"event_type", ev.EventType,
		"phase", next.Phase,
		"budget_remaining", next.BudgetRemaining,
		"components", len(next.Components))
	return nil
}
