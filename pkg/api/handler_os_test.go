package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/robotics"
)

func TestRoboticsStateDefaults(t *testing.T) {
	s := newTestServer(t)

	twin := roboticsTwin(t, s)
	assert.Equal(t, "v0", twin["schema_version"])
	assert.Equal(t, "robotics-v0", twin["project_id"])
	assert.Equal(t, "planning", twin["phase"])
	assert.Equal(t, "LOW", twin["risk_level"])
	assert.InDelta(t, 0.0, twin["budget_remaining"], 1e-9)
	assert.Empty(t, twin["purchase_history"])
	assert.Empty(t, twin["audit_trail"])
}

func osState(t *testing.T, s *Server, target string) *OSStateResponse {
	t.Helper()
	rec := doRequest(t, s, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out OSStateResponse
	decodeBody(t, rec, &out)
	return &out
}

func TestOSStateAggregatesApprovalLifecycle(t *testing.T) {
	s := newTestServer(t)
	seedTwin(t, s, 500)

	approvalID := requestPurchase(t, s, 240)

	// While the purchase is suspended nothing has resolved, so the rate
	// is zero and the twin still shows the full budget.
	snapshot := osState(t, s, "/v1/os/state")
	assert.InDelta(t, 500.0, snapshot.OSMetrics.BudgetRemaining, 1e-9)
	assert.Equal(t, "LOW", snapshot.OSMetrics.RiskLevel)
	assert.InDelta(t, 0.0, snapshot.OSMetrics.ApprovalRate, 1e-9)
	assert.InDelta(t, 0.0, snapshot.OSMetrics.ProjectedVsActual.ActualPurchaseSpend, 1e-9)
	assert.GreaterOrEqual(t, snapshot.OSMetrics.CCI, 0.0)
	assert.LessOrEqual(t, snapshot.OSMetrics.CCI, 1.0)
	assert.Equal(t, 1, snapshot.PolicyState.PendingCount)
	assert.Equal(t, 0, snapshot.PolicyState.ResolvedCount)
	assert.GreaterOrEqual(t, snapshot.PolicyState.TranscriptCursor, int64(1))
	assert.NotEmpty(t, snapshot.TwinSnapshot)
	assert.Empty(t, snapshot.LastNAuditTrail)

	res := doRequest(t, s, http.MethodPost, "/os/approvals/"+approvalID+"/approve",
		map[string]any{"actor": "op"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	snapshot = osState(t, s, "/v1/os/state")
	assert.InDelta(t, 260.0, snapshot.OSMetrics.BudgetRemaining, 1e-9)
	assert.InDelta(t, 240.0, snapshot.OSMetrics.ProjectedVsActual.ActualPurchaseSpend, 1e-9)
	assert.InDelta(t, 1.0, snapshot.OSMetrics.ApprovalRate, 1e-9)
	assert.Equal(t, 0, snapshot.PolicyState.PendingCount)
	assert.Equal(t, 1, snapshot.PolicyState.ResolvedCount)
	require.Len(t, snapshot.LastNAuditTrail, 1)
	assert.Equal(t, "purchase.completed", snapshot.LastNAuditTrail[0]["event_type"])
}

func TestOSStateRejectedDoesNotCountAsApproved(t *testing.T) {
	s := newTestServer(t)
	seedTwin(t, s, 500)

	approvalID := requestPurchase(t, s, 240)
	res := doRequest(t, s, http.MethodPost, "/os/approvals/"+approvalID+"/reject",
		map[string]any{"actor": "op", "reason": "too expensive"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	snapshot := osState(t, s, "/v1/os/state")
	assert.InDelta(t, 0.0, snapshot.OSMetrics.ApprovalRate, 1e-9)
	assert.Equal(t, 0, snapshot.PolicyState.PendingCount)
	assert.Equal(t, 1, snapshot.PolicyState.ResolvedCount)
	// Rejections execute the rejected branch of the plan, which leaves an
	// audit record without touching the budget.
	assert.InDelta(t, 500.0, snapshot.OSMetrics.BudgetRemaining, 1e-9)
}

func TestOSStateAuditTailLimit(t *testing.T) {
	s := newTestServer(t)

	state := map[string]any{}
	twin := robotics.NewTwin()
	for i := 0; i < 3; i++ {
		twin.AuditTrail = append(twin.AuditTrail, map[string]any{
			"event_type": fmt.Sprintf("step.%d", i),
		})
	}
	twin.WriteTo(state)
	require.NoError(t, s.store.SaveState(context.Background(), state))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "default window", query: "", want: []string{"step.0", "step.1", "step.2"}},
		{name: "explicit limit", query: "?limit=2", want: []string{"step.1", "step.2"}},
		{name: "limit one keeps newest", query: "?limit=1", want: []string{"step.2"}},
		{name: "non numeric falls back", query: "?limit=abc", want: []string{"step.0", "step.1", "step.2"}},
		{name: "zero falls back", query: "?limit=0", want: []string{"step.0", "step.1", "step.2"}},
		{name: "out of range falls back", query: "?limit=9999", want: []string{"step.0", "step.1", "step.2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := osState(t, s, "/v1/os/state"+tt.query)
			require.Len(t, snapshot.LastNAuditTrail, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, snapshot.LastNAuditTrail[i]["event_type"])
			}
		})
	}
}
