package api

import (
	"github.com/pce-project/pce/pkg/models"
)

// StateResponse is returned by GET /state.
type StateResponse struct {
	State map[string]any `json:"state"`
}

// CCIResponse is returned by GET /cci.
type CCIResponse struct {
	CCI float64 `json:"cci"`
}

// CCIHistoryResponse is returned by GET /cci/history, oldest first.
type CCIHistoryResponse struct {
	History []*models.CCISnapshot `json:"history"`
}

// ApprovalListResponse is returned by the approval list endpoints. Items
// holds every known approval; Pending repeats the subset awaiting a verdict.
type ApprovalListResponse struct {
	Pending []*models.Approval `json:"pending"`
	Items   []*models.Approval `json:"items"`
}

// RoboticsStateResponse is returned by GET /os/robotics/state.
type RoboticsStateResponse struct {
	RoboticsTwin map[string]any `json:"robotics_twin"`
}

// ProjectedVsActual compares planned spend against purchases that actually
// cleared the approval gate.
type ProjectedVsActual struct {
	ProjectedCost       float64 `json:"projected_cost"`
	ActualPurchaseSpend float64 `json:"actual_purchase_spend"`
}

// OSMetrics is the control-room metric block in GET /v1/os/state.
type OSMetrics struct {
	BudgetRemaining   float64           `json:"budget_remaining"`
	RiskLevel         string            `json:"risk_level"`
	ProjectedVsActual ProjectedVsActual `json:"projected_vs_actual"`
	ApprovalRate      float64           `json:"approval_rate"`
	CCI               float64           `json:"cci"`
}

// PolicyState summarizes the approval queue alongside the transcript cursor.
type PolicyState struct {
	PendingCount     int   `json:"pending_count"`
	ResolvedCount    int   `json:"resolved_count"`
	TranscriptCursor int64 `json:"transcript_cursor"`
}

// OSStateResponse is returned by GET /v1/os/state.
type OSStateResponse struct {
	TwinSnapshot    map[string]any   `json:"twin_snapshot"`
	OSMetrics       OSMetrics        `json:"os_metrics"`
	PolicyState     PolicyState      `json:"policy_state"`
	LastNAuditTrail []map[string]any `json:"last_n_audit_trail"`
}

// TranscriptResponse is returned by GET /v1/os/agents/transcript.
type TranscriptResponse struct {
	Cursor int64                    `json:"cursor"`
	Items  []*models.TranscriptItem `json:"items"`
}

// HealthCheck is the status of a single subsystem in GET /health.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}
