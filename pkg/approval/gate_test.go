package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/models"
	"github.com/pce-project/pce/pkg/store"
)

func newTestGate(t *testing.T, opts ...Option) (*Gate, *store.Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pce_test.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)

	st := store.NewManager(client)
	t.Cleanup(func() {
		st.Close()
		_ = client.Close()
	})
	return NewGate(st, nil, opts...), st
}

func osEvent(payload map[string]any) *models.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["domain"] = "os.robotics"
	return &models.Event{
		EventID:   "ev-1",
		EventType: "purchase.requested",
		Source:    "ops-console",
		Payload:   payload,
	}
}

func stateWithBudget(remaining float64) map[string]any {
	return map[string]any{
		"pce_os": map[string]any{
			"robotics_twin": map[string]any{"budget_remaining": remaining},
		},
	}
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "purchase", SubjectFor("os.request_purchase_approval"))
	assert.Equal(t, "purchase", SubjectFor("purchase.commit"))
	assert.Equal(t, "os.schedule_test", SubjectFor("os.schedule_test"))
	assert.Equal(t, "budget_commit", SubjectFor("budget_commit"))
}

func TestEvaluate(t *testing.T) {
	gate, _ := newTestGate(t)

	tests := []struct {
		name        string
		state       map[string]any
		event       *models.Event
		plan        *models.ActionPlan
		wantGated   bool
		wantReasons []string
	}{
		{
			name:  "non os domain never gates",
			state: stateWithBudget(0),
			event: &models.Event{EventID: "e", Payload: map[string]any{"domain": "assistant"}},
			plan: &models.ActionPlan{
				ActionType: "purchase.commit",
				Metadata:   map[string]any{"risk_level": "HIGH"},
			},
			wantGated: false,
		},
		{
			name:        "purchase flow is mandatory",
			state:       stateWithBudget(1000),
			event:       osEvent(nil),
			plan:        &models.ActionPlan{ActionType: "os.request_purchase_approval"},
			wantGated:   true,
			wantReasons: []string{"purchase_flow_mandatory_gate"},
		},
		{
			name:  "projected cost above budget",
			state: stateWithBudget(100),
			event: osEvent(nil),
			plan: &models.ActionPlan{
				ActionType: "os.update_project_plan",
				Metadata:   map[string]any{"projected_cost": 240.0},
			},
			wantGated:   true,
			wantReasons: []string{"budget_remaining_below_projection"},
		},
		{
			name:  "medium risk gates",
			state: stateWithBudget(1000),
			event: osEvent(nil),
			plan: &models.ActionPlan{
				ActionType: "os.schedule_test",
				Metadata:   map[string]any{"risk_level": "MEDIUM"},
			},
			wantGated:   true,
			wantReasons: []string{"risk_level_medium"},
		},
		{
			name:  "high risk gates",
			state: stateWithBudget(1000),
			event: osEvent(nil),
			plan: &models.ActionPlan{
				ActionType: "os.generate_bom",
				Metadata:   map[string]any{"risk_level": "HIGH"},
			},
			wantGated:   true,
			wantReasons: []string{"risk_level_high"},
		},
		{
			name:  "low risk within budget passes",
			state: stateWithBudget(1000),
			event: osEvent(nil),
			plan: &models.ActionPlan{
				ActionType: "os.update_project_plan",
				Metadata:   map[string]any{"projected_cost": 50.0, "risk_level": "LOW"},
			},
			wantGated: false,
		},
		{
			name:        "risk read from event payload when plan omits it",
			state:       stateWithBudget(1000),
			event:       osEvent(map[string]any{"risk_level": "medium"}),
			plan:        &models.ActionPlan{ActionType: "os.update_project_plan"},
			wantGated:   true,
			wantReasons: []string{"risk_level_medium"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := gate.Evaluate(tt.state, tt.event, tt.plan)
			assert.Equal(t, tt.wantGated, dec.Required)
			for _, reason := range tt.wantReasons {
				assert.Contains(t, dec.Reasons, reason)
			}
		})
	}
}

func TestApprovalLifecycle(t *testing.T) {
	gate, _ := newTestGate(t)
	ctx := context.Background()

	plan := &models.ActionPlan{
		ActionType: "os.request_purchase_approval",
		Priority:   1,
		Rationale:  "needs sign-off",
		Metadata:   map[string]any{"projected_cost": 240.0, "risk_level": "MEDIUM"},
	}
	ev := osEvent(map[string]any{"projected_cost": 240.0})
	dec := gate.Evaluate(stateWithBudget(500), ev, plan)
	require.True(t, dec.Required)

	rec, err := gate.Create(ctx, ev, plan, dec, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, rec.Status)
	assert.Equal(t, "purchase", rec.Subject)
	assert.Equal(t, 240.0, rec.ProjectedCost)
	assert.Equal(t, models.RiskLevelMedium, rec.Risk)
	assert.Equal(t, "corr-1", rec.CorrelationID)

	loaded, err := gate.Get(ctx, rec.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, rec.ApprovalID, loaded.ApprovalID)

	resolved, err := gate.Transition(ctx, rec.ApprovalID, models.ApprovalStatusApproved, "op", "ok")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, resolved.Status)
	assert.Equal(t, "op", resolved.Actor)
	require.NotNil(t, resolved.ResolvedAt)

	// Terminal records are immutable.
	_, err = gate.Transition(ctx, rec.ApprovalID, models.ApprovalStatusRejected, "op", "no")
	require.ErrorIs(t, err, ErrNotPending)

	_, err = gate.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCheckBudget(t *testing.T) {
	gate, _ := newTestGate(t)

	purchase := &models.Approval{Subject: "purchase", ProjectedCost: 240}
	require.NoError(t, gate.CheckBudget(stateWithBudget(500), purchase))

	err := gate.CheckBudget(stateWithBudget(100), purchase)
	require.ErrorIs(t, err, ErrInsufficientBudget)

	// Non-financial subjects have no budget precondition.
	test := &models.Approval{Subject: "os.schedule_test", ProjectedCost: 9999}
	require.NoError(t, gate.CheckBudget(stateWithBudget(0), test))
}

func TestResolutionEvent(t *testing.T) {
	gate, _ := newTestGate(t)

	plan := &models.ActionPlan{
		ActionType: "os.request_purchase_approval",
		Priority:   1,
		Metadata:   map[string]any{"purchase_id": "po-42"},
	}
	rec := &models.Approval{
		ApprovalID:    "ap-1",
		DecisionID:    "ev-1",
		CorrelationID: "corr-1",
		Subject:       "purchase",
		Action:        plan,
		ProjectedCost: 240,
		Actor:         "op",
		Notes:         "ok",
	}

	approved := gate.ResolutionEvent(rec, VerdictApprove)
	assert.Equal(t, "purchase.completed", approved["event_type"])
	assert.Equal(t, ControlPlaneSource, approved["source"])
	payload := approved["payload"].(map[string]any)
	assert.Equal(t, "os.robotics", payload["domain"])
	assert.Equal(t, 240.0, payload["total_cost"])
	assert.Equal(t, "po-42", payload["purchase_id"])
	assert.Equal(t, "ap-1", payload["approval_id"])
	assert.Equal(t, "corr-1", payload["correlation_id"])
	require.Contains(t, payload, "approved_plan")

	rejected := gate.ResolutionEvent(rec, VerdictReject)
	assert.Equal(t, "purchase.rejected", rejected["event_type"])
	rejectedPayload := rejected["payload"].(map[string]any)
	assert.NotContains(t, rejectedPayload, "total_cost")

	rec.Override = true
	overridden := gate.ResolutionEvent(rec, VerdictOverride)
	overriddenPayload := overridden["payload"].(map[string]any)
	assert.Equal(t, true, overriddenPayload["override"])
	assert.Equal(t, "purchase.completed", overridden["event_type"])
}

func TestExpireStale(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	gate, _ := newTestGate(t, WithClock(clock))
	ctx := context.Background()

	plan := &models.ActionPlan{ActionType: "os.request_purchase_approval", Priority: 1}
	ev := osEvent(nil)
	dec := Decision{Required: true, Subject: "purchase", Reasons: []string{"purchase_flow_mandatory_gate"}}

	stale, err := gate.Create(ctx, ev, plan, dec, "c-old")
	require.NoError(t, err)

	now = now.Add(23 * time.Hour)
	fresh, err := gate.Create(ctx, ev, plan, dec, "c-new")
	require.NoError(t, err)

	// Nothing is old enough yet.
	count, err := gate.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	now = now.Add(2 * time.Hour)
	count, err = gate.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	staleRec, err := gate.Get(ctx, stale.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, staleRec.Status)
	assert.Equal(t, "system", staleRec.Actor)

	freshRec, err := gate.Get(ctx, fresh.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, freshRec.Status)
}

func TestTTLFromConfig(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	path := filepath.Join(t.TempDir(), "pce_test.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)
	st := store.NewManager(client)
	t.Cleanup(func() {
		st.Close()
		_ = client.Close()
	})

	gate := NewGate(st, &config.ApprovalsConfig{TTLSeconds: 60, SweepIntervalS: 1}, WithClock(clock))
	ctx := context.Background()

	rec, err := gate.Create(ctx, osEvent(nil),
		&models.ActionPlan{ActionType: "os.request_purchase_approval"},
		Decision{Subject: "purchase"}, "c")
	require.NoError(t, err)

	now = now.Add(90 * time.Second)
	count, err := gate.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := gate.Get(ctx, rec.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, expired.Status)
}
