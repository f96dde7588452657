package robotics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pce-project/pce/pkg/models"
)

// AgentMessage is one bounded message exchanged through the committee bus.
type AgentMessage struct {
	From    string
	To      string
	Kind    string
	Content map[string]any
}

// dedupeKey is deterministic over sorted content keys so replays of the
// same signal collapse to a single bus entry.
func (m AgentMessage) dedupeKey() string {
	keys := make([]string, 0, len(m.Content))
	for key := range m.Content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", key, m.Content[key]))
	}
	return fmt.Sprintf("%s->%s:%s:%s", m.From, m.To, m.Kind, strings.Join(parts, "|"))
}

// AgentInput is one agent turn: the triggering event, a read-only twin
// snapshot, and any messages delivered from the bus.
type AgentInput struct {
	Event        *models.Event
	TwinSnapshot *RobotProjectState
	Inbox        []AgentMessage
}

// AgentOutput is the structured result of one agent turn.
type AgentOutput struct {
	ProposedActions []map[string]any
	Messages        []AgentMessage
	RiskFlags       []string
	Questions       []string
	Confidence      float64
	Rationale       string
}

// Agent is one deterministic committee member.
type Agent interface {
	Name() string
	Process(in *AgentInput) *AgentOutput
}

func proposal(actionType string, priority int, metadata map[string]any) map[string]any {
	return map[string]any{
		"action_type": actionType,
		"priority":    priority,
		"metadata":    metadata,
	}
}

// EngineeringAgent covers planning and technical feasibility: it proposes
// the BOM baseline and inspects the dependency graph for cycles and
// unresolved nodes.
type EngineeringAgent struct{}

func (EngineeringAgent) Name() string { return "engineering" }

func (a EngineeringAgent) Process(in *AgentInput) *AgentOutput {
	out := &AgentOutput{Confidence: 0.78, Rationale: "Engineering heuristics applied."}

	switch in.Event.EventType {
	case "project.goal.defined", "budget.updated":
		out.ProposedActions = append(out.ProposedActions,
			proposal("os.generate_bom", 2, map[string]any{"source_agent": a.Name()}),
			proposal("os.update_project_plan", 3, map[string]any{"source_agent": a.Name()}),
		)
	case "part.candidate.added":
		edges := in.TwinSnapshot.DependencyGraph.Edges
		if hasCycle(edges) {
			out.RiskFlags = append(out.RiskFlags, "dependency_cycle_detected")
			out.Messages = append(out.Messages, AgentMessage{
				From:    a.Name(),
				To:      "tests",
				Kind:    "simulation.requested",
				Content: map[string]any{"reason": "cycle_detected"},
			})
		}
		if missing := missingDependencies(edges); len(missing) > 0 {
			out.RiskFlags = append(out.RiskFlags, "missing_dependencies")
			out.Questions = append(out.Questions,
				"Missing dependencies for nodes: "+strings.Join(missing, ","))
			out.Messages = append(out.Messages, AgentMessage{
				From:    a.Name(),
				To:      "procurement",
				Kind:    "mitigation.requested",
				Content: map[string]any{"missing_dependencies": missing},
			})
		}
		out.ProposedActions = append(out.ProposedActions, proposal("os.update_project_plan", 2, map[string]any{
			"source_agent":      a.Name(),
			"dependency_issues": len(out.RiskFlags),
		}))
	}
	return out
}

// missingDependencies finds dependency targets that are not nodes
// themselves, sorted for determinism.
func missingDependencies(edges map[string][]string) []string {
	missing := map[string]bool{}
	for _, dependencies := range edges {
		for _, dep := range dependencies {
			if _, known := edges[dep]; !known {
				missing[dep] = true
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	out := make([]string, 0, len(missing))
	for dep := range missing {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// hasCycle runs DFS with a visiting set over the adjacency list.
func hasCycle(edges map[string][]string) bool {
	visiting := map[string]bool{}
	visited := map[string]bool{}

	var dfs func(node string) bool
	dfs = func(node string) bool {
		if visiting[node] {
			return true
		}
		if visited[node] {
			return false
		}
		visiting[node] = true
		for _, neighbor := range edges[node] {
			if dfs(neighbor) {
				return true
			}
		}
		delete(visiting, node)
		visited[node] = true
		return false
	}

	nodes := make([]string, 0, len(edges))
	for node := range edges {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if dfs(node) {
			return true
		}
	}
	return false
}

// FinanceAgent guards the budget: it flags projected costs that exceed the
// remaining budget and asks engineering for a plan adjustment.
type FinanceAgent struct{}

func (FinanceAgent) Name() string { return "finance" }

func (a FinanceAgent) Process(in *AgentInput) *AgentOutput {
	out := &AgentOutput{Confidence: 0.8, Rationale: "Finance heuristics applied."}
	ev := in.Event

	if ev.EventType == "budget.updated" || ev.EventType == "purchase.requested" {
		budgetRemaining := in.TwinSnapshot.BudgetRemaining
		if v, ok := ev.PayloadFloat("budget_remaining"); ok {
			budgetRemaining = v
		}
		projectedCost, _ := ev.PayloadFloat("projected_cost")
		if projectedCost > budgetRemaining {
			out.RiskFlags = append(out.RiskFlags, "insufficient_budget")
			out.ProposedActions = append(out.ProposedActions, proposal("os.update_project_plan", 1, map[string]any{
				"reason":           "budget_gap",
				"budget_remaining": budgetRemaining,
				"projected_cost":   projectedCost,
				"source_agent":     a.Name(),
			}))
			out.Messages = append(out.Messages, AgentMessage{
				From:    a.Name(),
				To:      "engineering",
				Kind:    "plan.adjustment.requested",
				Content: map[string]any{"budget_gap": projectedCost - budgetRemaining},
			})
		}
	}
	return out
}

// ProcurementAgent drives the quote and approval pair for purchases.
type ProcurementAgent struct{}

func (ProcurementAgent) Name() string { return "procurement" }

func (a ProcurementAgent) Process(in *AgentInput) *AgentOutput {
	out := &AgentOutput{Confidence: 0.74, Rationale: "Procurement heuristics applied."}
	ev := in.Event

	if ev.EventType == "purchase.requested" {
		projectedCost, _ := ev.PayloadFloat("projected_cost")
		riskLevel := stringOr(ev.Payload, "risk_level", "MEDIUM")
		out.ProposedActions = append(out.ProposedActions,
			proposal("os.request_quote", 2, map[string]any{
				"projected_cost": projectedCost,
				"risk_level":     riskLevel,
				"source_agent":   a.Name(),
			}),
			proposal("os.request_purchase_approval", 1, map[string]any{
				"projected_cost": projectedCost,
				"risk_level":     riskLevel,
				"purchase_id":    ev.Payload["purchase_id"],
				"source_agent":   a.Name(),
			}),
		)
	}
	return out
}

// TestsAgent schedules validation after acquisitions and follows up on
// failures.
type TestsAgent struct{}

func (TestsAgent) Name() string { return "tests" }

func (a TestsAgent) Process(in *AgentInput) *AgentOutput {
	out := &AgentOutput{Confidence: 0.76, Rationale: "Test heuristics applied."}
	ev := in.Event

	switch ev.EventType {
	case "purchase.completed", "part.received":
		out.ProposedActions = append(out.ProposedActions, proposal("os.schedule_test", 1, map[string]any{
			"purchase_id":  ev.Payload["purchase_id"],
			"source_agent": a.Name(),
		}))
	case "test.result.recorded":
		if passed, _ := ev.PayloadBool("passed"); !passed {
			out.RiskFlags = append(out.RiskFlags, "test_failure_detected")
			out.ProposedActions = append(out.ProposedActions, proposal("os.update_project_plan", 1, map[string]any{
				"reason":       "test_failure",
				"source_agent": a.Name(),
			}))
		}
	}
	return out
}
