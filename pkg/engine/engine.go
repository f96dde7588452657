package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/store"
)

// Response is the pipeline's answer to one ingested event.
type Response struct {
	EventID           string               `json:"event_id"`
	CorrelationID     string               `json:"correlation_id"`
	ValueScore        float64              `json:"value_score"`
	CCI               float64              `json:"cci"`
	CCIComponents     models.CCIComponents `json:"cci_components"`
	ActionType        string               `json:"action_type"`
	Action            any                  `json:"action"`
	Metadata          map[string]any       `json:"metadata"`
	Success           bool                 `json:"success"`
	Cursor            int64                `json:"cursor"`
	RequiresApproval  bool                 `json:"requires_approval,omitempty"`
	ApprovalID        string               `json:"approval_id,omitempty"`
	Updated           *bool                `json:"updated,omitempty"`
	Epsilon           *float64             `json:"epsilon,omitempty"`
	QUpdate           map[string]any       `json:"q_update,omitempty"`
	AssistantLearning map[string]any       `json:"assistant_learning,omitempty"`
}

// Options wires the engine's collaborators.
type Options struct {
	Store      *store.Manager
	Registry   *Registry
	CCI        *CCIEngine
	Gate       *approval.Gate
	Transcript TranscriptSink
	Logger     *slog.Logger
}

// Engine runs the cognition pipeline end to end. One engine serves all
// domains; concurrency is bounded by the store's single writer plus a
// per-correlation lock that keeps related events in ingress order.
type Engine struct {
	store      *store.Manager
	epl        *EPL
	registry   *Registry
	cci        *CCIEngine
	gate       *approval.Gate
	transcript TranscriptSink
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() string

	corrMu sync.Mutex
	corr   map[string]*corrLock
}

type corrLock struct {
	mu   sync.Mutex
	refs int
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine requires a state store")
	}
	if opts.Transcript == nil {
		return nil, errors.New("engine requires a transcript sink")
	}
	if opts.Gate == nil {
		return nil, errors.New("engine requires an approval gate")
	}
	epl, err := NewEPL()
	if err != nil {
		return nil, fmt.Errorf("building event validator: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.With("component", "engine")
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	cci := opts.CCI
	if cci == nil {
		cci = NewCCIEngine(opts.Store, nil)
	}
	return &Engine{
		store:      opts.Store,
		epl:        epl,
		registry:   registry,
		cci:        cci,
		gate:       opts.Gate,
		transcript: opts.Transcript,
		logger:     logger,
		clock:      time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Registry exposes the plugin registry for boot-time registration.
func (e *Engine) Registry() *Registry { return e.registry }

// Validator exposes the event validator, mainly for schema introspection.
func (e *Engine) Validator() *EPL { return e.epl }

// CCI computes the current coherence index.
func (e *Engine) CCI(ctx context.Context) (*models.CCIResult, error) {
	return e.cci.Compute(ctx)
}

// ProcessEvent runs one raw envelope through the full pipeline and returns
// the decision response. Validation failures unwrap to ErrInvalidEvent;
// persistence contention unwraps to store.ErrConflict.
func (e *Engine) ProcessEvent(ctx context.Context, raw map[string]any) (*Response, error) {
	ev, err := e.epl.Normalize(raw)
	if err != nil {
		return nil, err
	}
	correlationID := ev.CorrelationID()

	release := e.lockCorrelation(correlationID)
	defer release()

	state, err := e.store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	e.appendTranscript(ctx, models.TranscriptEventIngested, map[string]any{
		"event_id":   ev.EventID,
		"event_type": ev.EventType,
		"source":     ev.Source,
	}, correlationID, ev.EventID, "")

	candidate, err := e.integrate(ctx, state, ev)
	if err != nil {
		return nil, fmt.Errorf("integrating event: %w", err)
	}
	if err := e.store.RememberEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("persisting event: %w", err)
	}

	valueScore, violations := e.evaluateValue(ctx, candidate, ev)
	if violations == nil {
		violations = []string{}
	}

	cciBefore, err := e.cci.Compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing coherence: %w", err)
	}

	plan := e.decide(ctx, &DecisionInput{
		State:      candidate,
		Event:      ev,
		ValueScore: valueScore,
		CCI:        cciBefore,
	})
	e.emitAgentTranscript(ctx, plan, ev, correlationID)

	var result *models.ExecutionResult
	requiresApproval := false
	approvalID := ""

	switch {
	case strings.HasPrefix(ev.EventType, "feedback."):
		// Feedback carries its own outcome; gate and executor are skipped.
		reward, _ := ev.PayloadFloat("reward")
		result = &models.ExecutionResult{
			ActionType:     ev.EventType,
			Success:        true,
			ObservedImpact: reward,
			Notes:          "feedback ingestion",
			Metadata:       map[string]any{"feedback": ev.Payload},
		}
	default:
		decision := e.gate.Evaluate(candidate, ev, plan)
		if decision.Required && ev.Source != approval.ControlPlaneSource {
			pending, err := e.gate.Create(ctx, ev, plan, decision, correlationID)
			if err != nil {
				return nil, err
			}
			e.appendTranscript(ctx, models.TranscriptApprovalCreated, map[string]any{
				"approval_id":    pending.ApprovalID,
				"decision_id":    pending.DecisionID,
				"subject":        pending.Subject,
				"action_type":    plan.ActionType,
				"projected_cost": pending.ProjectedCost,
				"risk":           pending.Risk,
				"reasons":        pending.Reasons,
			}, correlationID, pending.DecisionID, "")
			requiresApproval = true
			approvalID = pending.ApprovalID
			result = &models.ExecutionResult{
				ActionType:     plan.ActionType,
				Success:        true,
				ObservedImpact: 0.0,
				Notes:          "approval pending",
				Metadata:       map[string]any{"approval_pending": true, "approval_id": approvalID},
			}
		} else {
			result = e.execute(ctx, candidate, plan, ev)
		}
	}

	e.adapt(ctx, &AdaptationInput{
		State:      candidate,
		Event:      ev,
		Plan:       plan,
		Result:     result,
		Violations: violations,
	})

	// Suspended actions must not touch durable domain substate: appliers
	// (the robotics twin among them) only run once execution happened.
	if !requiresApproval {
		for _, applier := range e.registry.StateAppliersFor(candidate, ev) {
			if err := applier.Apply(ctx, candidate, ev, result); err != nil {
				e.logger.Warn("state applier failed",
					"applier", applier.Name(), "event_type", ev.EventType, "error", err)
			}
		}
	}

	finalItem := e.appendTranscript(ctx, models.TranscriptStateUpdated, map[string]any{
		"event_id":    ev.EventID,
		"action_type": plan.ActionType,
	}, correlationID, ev.EventID, "")

	if err := e.store.SaveState(ctx, candidate); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}

	expected := plan.ExpectedImpact()
	observed := result.ObservedImpact
	action := &models.CompletedAction{
		ActionID:        e.newID(),
		DecisionID:      ev.EventID,
		ActionType:      plan.ActionType,
		Priority:        plan.Priority,
		ValueScore:      valueScore,
		ExpectedImpact:  &expected,
		ObservedImpact:  &observed,
		RespectedValues: len(violations) == 0,
		ViolatedValues:  violations,
		Metadata: map[string]any{
			"rationale":     plan.Rationale,
			"plan_metadata": plan.Metadata,
		},
		CompletedAt: e.clock().UTC(),
	}
	if err := e.store.RememberAction(ctx, action); err != nil {
		return nil, fmt.Errorf("persisting action: %w", err)
	}

	cciAfter, err := e.cci.Compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing coherence: %w", err)
	}
	snapshot := &models.CCISnapshot{
		Timestamp:  e.clock().UTC(),
		Score:      cciAfter.Score,
		Components: cciAfter.Components,
	}
	if err := e.store.SaveCCISnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persisting coherence snapshot: %w", err)
	}

	resp := &Response{
		EventID:          ev.EventID,
		CorrelationID:    correlationID,
		ValueScore:       valueScore,
		CCI:              cciAfter.Score,
		CCIComponents:    cciAfter.Components,
		ActionType:       plan.ActionType,
		Action:           actionPayload(plan),
		Metadata:         plan.Metadata,
		Success:          result.Success,
		Cursor:           finalItem.Cursor,
		RequiresApproval: requiresApproval,
		ApprovalID:       approvalID,
	}
	if strings.HasPrefix(ev.EventType, "feedback.") {
		e.attachFeedbackExtras(resp, candidate)
	}
	return resp, nil
}

// ResolveApproval applies an operator verdict to a pending approval and, on
// success, synthesizes the control-plane resolution event through the
// pipeline. The returned response is that pipeline run's response.
func (e *Engine) ResolveApproval(ctx context.Context, approvalID string, verdict Verdict, actor, notes string) (*Response, *models.Approval, error) {
	rec, err := e.gate.Get(ctx, approvalID)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != models.ApprovalStatusPending {
		return nil, rec, fmt.Errorf("%w: %s is %s", approval.ErrNotPending, approvalID, rec.Status)
	}

	if verdict == approval.VerdictApprove {
		state, err := e.store.LoadState(ctx)
		if err != nil {
			return nil, rec, fmt.Errorf("loading state: %w", err)
		}
		if err := e.gate.CheckBudget(state, rec); err != nil {
			// The record stays pending so the operator can retry after
			// a budget refill.
			return nil, rec, err
		}
	}

	resolved, err := e.gate.Transition(ctx, approvalID, verdict.Status(), actor, notes)
	if err != nil {
		return nil, rec, err
	}
	e.appendTranscript(ctx, models.TranscriptApprovalUpdated, map[string]any{
		"approval_id": resolved.ApprovalID,
		"status":      resolved.Status,
		"actor":       resolved.Actor,
		"subject":     resolved.Subject,
		"override":    resolved.Override,
	}, resolved.CorrelationID, resolved.DecisionID, "")

	resp, err := e.ProcessEvent(ctx, e.gate.ResolutionEvent(resolved, verdict))
	if err != nil {
		return nil, resolved, fmt.Errorf("processing resolution event: %w", err)
	}
	return resp, resolved, nil
}

// Verdict re-exports the approval verdict for callers that only import engine.
type Verdict = approval.Verdict

func (e *Engine) lockCorrelation(id string) func() {
	e.corrMu.Lock()
	if e.corr == nil {
		e.corr = make(map[string]*corrLock)
	}
	entry, ok := e.corr[id]
	if !ok {
		entry = &corrLock{}
		e.corr[id] = entry
	}
	entry.refs++
	e.corrMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		e.corrMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(e.corr, id)
		}
		e.corrMu.Unlock()
	}
}

func (e *Engine) appendTranscript(ctx context.Context, kind models.TranscriptKind, payload map[string]any, correlationID, decisionID, agent string) *models.TranscriptItem {
	item := &models.TranscriptItem{
		Timestamp:     e.clock().UTC(),
		Kind:          kind,
		Agent:         agent,
		CorrelationID: correlationID,
		DecisionID:    decisionID,
		Payload:       payload,
	}
	if _, err := e.transcript.AppendTranscript(ctx, item); err != nil {
		e.logger.Error("transcript append failed", "kind", kind, "error", err)
	}
	return item
}

// emitAgentTranscript turns the decision plugin's explain.agent_transcript
// entries into transcript items so committee chatter is audit-visible.
func (e *Engine) emitAgentTranscript(ctx context.Context, plan *models.ActionPlan, ev *models.Event, correlationID string) {
	if plan.Metadata == nil {
		return
	}
	explain, ok := plan.Metadata["explain"].(map[string]any)
	if !ok {
		return
	}
	for _, entry := range transcriptEntries(explain["agent_transcript"]) {
		kind := models.TranscriptAgentMessage
		if k, _ := entry["kind"].(string); k == string(models.TranscriptActionsProposed) {
			kind = models.TranscriptActionsProposed
		}
		agent, _ := entry["agent"].(string)
		payload, _ := entry["payload"].(map[string]any)
		if payload == nil {
			payload = map[string]any{}
		}
		corr := correlationID
		if c, _ := entry["correlation_id"].(string); c != "" {
			corr = c
		}
		decisionID := ev.EventID
		if d, _ := entry["decision_id"].(string); d != "" {
			decisionID = d
		}
		e.appendTranscript(ctx, kind, payload, corr, decisionID, agent)
	}
}

func transcriptEntries(v any) []map[string]any {
	switch items := v.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// attachFeedbackExtras mirrors the domain learning slices into the response
// of feedback events: the rover's last Q-update and the assistant's
// learning summary.
func (e *Engine) attachFeedbackExtras(resp *Response, state map[string]any) {
	updated := false
	resp.QUpdate = map[string]any{}
	if rl, ok := state["robotics_rl"].(map[string]any); ok && len(rl) > 0 {
		updated = true
		resp.QUpdate = rl
		if eps, ok := asFloat(rl["epsilon"]); ok {
			resp.Epsilon = &eps
		}
	}
	if al, ok := state["assistant_learning"].(map[string]any); ok && len(al) > 0 {
		resp.AssistantLearning = al
		if resp.Epsilon == nil {
			if eps, ok := asFloat(al["epsilon"]); ok {
				resp.Epsilon = &eps
			}
		}
	}
	resp.Updated = &updated
}

// actionPayload is what the response's action field carries: the plan's
// declared payload when present, otherwise the bare action type.
func actionPayload(plan *models.ActionPlan) any {
	if plan.Metadata != nil {
		if v, ok := plan.Metadata["action_payload"]; ok {
			return v
		}
	}
	return plan.ActionType
}
