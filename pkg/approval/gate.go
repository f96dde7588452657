// Package approval implements the human approval gate for high-impact
// actions: the gating rule, the persisted pending-approval lifecycle, and
// the synthesis of control-plane events when an approval resolves.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/store"
)

// ControlPlaneSource marks events the gate synthesizes itself. The pipeline
// never re-gates them, which is what keeps resolution from looping.
const ControlPlaneSource = "os.control_plane"

var (
	// ErrNotFound means no approval exists under the given id.
	ErrNotFound = errors.New("approval_not_found")
	// ErrNotPending means the approval already reached a terminal status.
	ErrNotPending = errors.New("approval_already_terminal")
	// ErrInsufficientBudget means the twin cannot cover the projected cost.
	// The approval stays pending; the operator may retry after a refill.
	ErrInsufficientBudget = errors.New("insufficient_budget_for_purchase")
)

// Verdict is an operator resolution request.
type Verdict string

const (
	VerdictApprove  Verdict = "approve"
	VerdictReject   Verdict = "reject"
	VerdictOverride Verdict = "override"
)

// Status returns the terminal status this verdict moves an approval to.
func (v Verdict) Status() models.ApprovalStatus {
	switch v {
	case VerdictReject:
		return models.ApprovalStatusRejected
	case VerdictOverride:
		return models.ApprovalStatusOverridden
	default:
		return models.ApprovalStatusApproved
	}
}

// Executes reports whether the verdict lets the gated action run.
func (v Verdict) Executes() bool {
	return v == VerdictApprove || v == VerdictOverride
}

// Decision is the outcome of evaluating the gating rule for one plan.
type Decision struct {
	Required      bool
	Reasons       []string
	Subject       string
	ProjectedCost float64
	Risk          models.RiskLevel
}

// Gate owns the approval lifecycle. Records persist in the approvals table
// and survive restarts; state transitions go through the single writer.
type Gate struct {
	store  *store.Manager
	ttl    time.Duration
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string
}

// Option customizes gate construction.
type Option func(*Gate)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

func NewGate(st *store.Manager, cfg *config.ApprovalsConfig, opts ...Option) *Gate {
	gate := &Gate{
		store:  st,
		ttl:    24 * time.Hour,
		logger: slog.With("component", "approval_gate"),
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	if cfg != nil {
		gate.ttl = cfg.TTL()
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate
}

// purchaseFlow reports whether the action type belongs to the purchase flow,
// which is gated unconditionally.
func purchaseFlow(actionType string) bool {
	return strings.HasPrefix(actionType, "purchase.") || actionType == "os.request_purchase_approval"
}

// SubjectFor derives the approval subject, which names the synthesized
// "<subject>.completed" / "<subject>.rejected" resolution events.
func SubjectFor(actionType string) string {
	if purchaseFlow(actionType) {
		return "purchase"
	}
	return actionType
}

// Evaluate applies the gating rule: an os.robotics plan requires approval
// when it is purchase/budget-affecting, when its projected cost exceeds the
// remaining budget, or when it declares MEDIUM or HIGH risk.
func (g *Gate) Evaluate(state map[string]any, ev *models.Event, plan *models.ActionPlan) Decision {
	dec := Decision{
		Subject:       SubjectFor(plan.ActionType),
		ProjectedCost: planFloat(plan, ev, "projected_cost"),
		Risk:          riskOf(plan, ev),
	}
	if ev.Domain() != "os.robotics" {
		return dec
	}

	if purchaseFlow(plan.ActionType) || plan.ActionType == "budget_commit" {
		dec.Reasons = append(dec.Reasons, "purchase_flow_mandatory_gate")
	}
	if BudgetRemaining(state) < dec.ProjectedCost {
		dec.Reasons = append(dec.Reasons, "budget_remaining_below_projection")
	}
	if dec.Risk.RequiresApproval() {
		dec.Reasons = append(dec.Reasons, "risk_level_"+strings.ToLower(string(dec.Risk)))
	}
	dec.Required = len(dec.Reasons) > 0
	return dec
}

// Create persists the pending record for a gated plan.
func (g *Gate) Create(ctx context.Context, ev *models.Event, plan *models.ActionPlan, dec Decision, correlationID string) (*models.Approval, error) {
	rec := &models.Approval{
		ApprovalID:    g.newID(),
		EventID:       ev.EventID,
		DecisionID:    ev.EventID,
		CorrelationID: correlationID,
		Status:        models.ApprovalStatusPending,
		Subject:       dec.Subject,
		Action:        plan,
		Reasons:       dec.Reasons,
		ProjectedCost: dec.ProjectedCost,
		Risk:          dec.Risk,
		CreatedAt:     g.clock().UTC(),
	}
	if err := g.store.InsertApproval(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting approval: %w", err)
	}
	g.logger.Info("approval created",
		"approval_id", rec.ApprovalID,
		"subject", rec.Subject,
		"projected_cost", rec.ProjectedCost,
		"reasons", strings.Join(rec.Reasons, ","))
	return rec, nil
}

// Get loads one approval record.
func (g *Gate) Get(ctx context.Context, approvalID string) (*models.Approval, error) {
	rec, err := g.store.GetApproval(ctx, approvalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns every approval, oldest first.
func (g *Gate) List(ctx context.Context) ([]*models.Approval, error) {
	return g.store.ListApprovals(ctx)
}

// CheckBudget enforces the approve-time precondition: purchase and budget
// subjects need the twin's remaining budget to cover the projected cost.
func (g *Gate) CheckBudget(state map[string]any, rec *models.Approval) error {
	if rec.Subject != "purchase" && rec.Subject != "budget_commit" {
		return nil
	}
	remaining := BudgetRemaining(state)
	if remaining < rec.ProjectedCost {
		return fmt.Errorf("%w: remaining %.2f, projected %.2f", ErrInsufficientBudget, remaining, rec.ProjectedCost)
	}
	return nil
}

// Transition moves a pending approval to a terminal status.
func (g *Gate) Transition(ctx context.Context, approvalID string, status models.ApprovalStatus, actor, notes string) (*models.Approval, error) {
	rec, err := g.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if rec.Status != models.ApprovalStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, approvalID, rec.Status)
	}
	now := g.clock().UTC()
	rec.Status = status
	rec.ResolvedAt = &now
	rec.Actor = actor
	rec.Notes = notes
	rec.Override = status == models.ApprovalStatusOverridden
	if err := g.store.UpdateApproval(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating approval: %w", err)
	}
	g.logger.Info("approval resolved", "approval_id", approvalID, "status", status, "actor", actor)
	return rec, nil
}

// ResolutionEvent builds the raw control-plane event a terminal approval
// feeds back through the pipeline: "<subject>.completed" when the action
// runs, "<subject>.rejected" otherwise.
func (g *Gate) ResolutionEvent(rec *models.Approval, verdict Verdict) map[string]any {
	outcome := "rejected"
	if verdict.Executes() {
		outcome = "completed"
	}
	payload := map[string]any{
		"domain":         "os.robotics",
		"tags":           []any{"approval", rec.Subject},
		"approval_id":    rec.ApprovalID,
		"decision_id":    rec.DecisionID,
		"correlation_id": rec.CorrelationID,
		"actor":          rec.Actor,
		"notes":          rec.Notes,
	}
	if verdict.Executes() {
		payload["total_cost"] = rec.ProjectedCost
		payload["purchase_id"] = purchaseID(rec)
		payload["approved_plan"] = planDoc(rec.Action)
		if rec.Override {
			payload["override"] = true
		}
	}
	return map[string]any{
		"event_type": rec.Subject + "." + outcome,
		"source":     ControlPlaneSource,
		"payload":    payload,
	}
}

// ExpireStale moves pending approvals past their TTL to expired. It returns
// how many records were expired; no resolution events are synthesized.
func (g *Gate) ExpireStale(ctx context.Context) (int, error) {
	pending, err := g.store.ListApprovalsByStatus(ctx, models.ApprovalStatusPending)
	if err != nil {
		return 0, fmt.Errorf("listing pending approvals: %w", err)
	}
	now := g.clock().UTC()
	expired := 0
	for _, rec := range pending {
		if now.Sub(rec.CreatedAt) < g.ttl {
			continue
		}
		rec.Status = models.ApprovalStatusExpired
		resolved := now
		rec.ResolvedAt = &resolved
		rec.Actor = "system"
		rec.Notes = "ttl_expired"
		if err := g.store.UpdateApproval(ctx, rec); err != nil {
			return expired, fmt.Errorf("expiring approval %s: %w", rec.ApprovalID, err)
		}
		expired++
	}
	if expired > 0 {
		g.logger.Info("expired stale approvals", "count", expired)
	}
	return expired, nil
}

// BudgetRemaining reads the twin's remaining budget from the state snapshot.
func BudgetRemaining(state map[string]any) float64 {
	osSlice, ok := state["pce_os"].(map[string]any)
	if !ok {
		return 0
	}
	twin, ok := osSlice["robotics_twin"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := twin["budget_remaining"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func planFloat(plan *models.ActionPlan, ev *models.Event, key string) float64 {
	if plan.Metadata != nil {
		switch v := plan.Metadata[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	if v, ok := ev.PayloadFloat(key); ok {
		return v
	}
	return 0
}

func riskOf(plan *models.ActionPlan, ev *models.Event) models.RiskLevel {
	if plan.Metadata != nil {
		if v, ok := plan.Metadata["risk_level"].(string); ok && v != "" {
			return models.RiskLevel(strings.ToUpper(v))
		}
	}
	if v := ev.PayloadString("risk_level"); v != "" {
		return models.RiskLevel(strings.ToUpper(v))
	}
	return models.RiskLevelLow
}

func purchaseID(rec *models.Approval) string {
	if rec.Action != nil && rec.Action.Metadata != nil {
		if v, ok := rec.Action.Metadata["purchase_id"].(string); ok && v != "" {
			return v
		}
	}
	return rec.ApprovalID
}

func planDoc(plan *models.ActionPlan) map[string]any {
	if plan == nil {
		return map[string]any{}
	}
	return map[string]any{
		"action_type": plan.ActionType,
		"rationale":   plan.Rationale,
		"priority":    plan.Priority,
		"metadata":    plan.Metadata,
	}
}
