package models

import "time"

// ApprovalStatus is the lifecycle state of a gated action.
type ApprovalStatus string

const (
	// ApprovalStatusPending awaits a human decision
	ApprovalStatusPending ApprovalStatus = "pending"
	// ApprovalStatusApproved was granted and executed
	ApprovalStatusApproved ApprovalStatus = "approved"
	// ApprovalStatusRejected was declined; no execution
	ApprovalStatusRejected ApprovalStatus = "rejected"
	// ApprovalStatusOverridden was force-executed bypassing preconditions
	ApprovalStatusOverridden ApprovalStatus = "overridden"
	// ApprovalStatusExpired timed out while pending
	ApprovalStatusExpired ApprovalStatus = "expired"
)

// IsValid checks if the approval status is valid
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending,
		ApprovalStatusApproved,
		ApprovalStatusRejected,
		ApprovalStatusOverridden,
		ApprovalStatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalStatusPending
}

// RiskLevel classifies action risk for the approval gate.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// RequiresApproval reports whether the level alone mandates gating.
func (r RiskLevel) RequiresApproval() bool {
	return r == RiskLevelMedium || r == RiskLevelHigh
}

// Approval is one gated action awaiting (or past) a human decision.
// Terminal records are immutable.
type Approval struct {
	ApprovalID    string         `json:"approval_id"`
	EventID       string         `json:"event_id"`
	DecisionID    string         `json:"decision_id"`
	CorrelationID string         `json:"correlation_id"`
	Status        ApprovalStatus `json:"status"`
	Subject       string         `json:"subject"`
	Action        *ActionPlan    `json:"action"`
	Reasons       []string       `json:"reasons"`
	ProjectedCost float64        `json:"projected_cost"`
	Risk          RiskLevel      `json:"risk"`
	CreatedAt     time.Time      `json:"created_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	Override      bool           `json:"override,omitempty"`
}
