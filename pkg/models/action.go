package models

import "time"

// ActionPlan is the output of the decision engine (core or plugin).
type ActionPlan struct {
	ActionType string         `json:"action_type"`
	Rationale  string         `json:"rationale"`
	Priority   int            `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExpectedImpact returns metadata.expected_impact, defaulting to 0.5.
func (p *ActionPlan) ExpectedImpact() float64 {
	if p.Metadata != nil {
		if v, ok := p.Metadata["expected_impact"].(float64); ok {
			return v
		}
	}
	return 0.5
}

// Explain returns the metadata.explain bag, creating it when absent.
// Pipeline stages attach their diagnostics here.
func (p *ActionPlan) Explain() map[string]any {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	bag, ok := p.Metadata["explain"].(map[string]any)
	if !ok {
		bag = make(map[string]any)
		p.Metadata["explain"] = bag
	}
	return bag
}

// ExecutionResult is the outcome of executing an action plan.
type ExecutionResult struct {
	ActionType     string         `json:"action_type"`
	Success        bool           `json:"success"`
	ObservedImpact float64        `json:"observed_impact"`
	Notes          string         `json:"notes,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CompletedAction is the persisted record of one executed decision,
// the unit the CCI window is computed over.
type CompletedAction struct {
	ActionID        string         `json:"action_id"`
	DecisionID      string         `json:"decision_id"`
	ActionType      string         `json:"action_type"`
	Priority        int            `json:"priority"`
	ValueScore      float64        `json:"value_score"`
	ExpectedImpact  *float64       `json:"expected_impact,omitempty"`
	ObservedImpact  *float64       `json:"observed_impact,omitempty"`
	RespectedValues bool           `json:"respected_values"`
	ViolatedValues  []string       `json:"violated_values"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CompletedAt     time.Time      `json:"completed_at"`
}
