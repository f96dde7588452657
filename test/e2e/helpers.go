package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// ────────────────────────────────────────────────────────────
// Pipeline helpers
// ────────────────────────────────────────────────────────────

// IngestEvent runs one envelope through POST /v1/events and returns the
// pipeline response.
func (app *TestApp) IngestEvent(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/v1/events", envelope, http.StatusOK)
}

// IngestEventExpecting posts an envelope expecting a non-200 status and
// returns the error body.
func (app *TestApp) IngestEventExpecting(t *testing.T, envelope map[string]interface{}, status int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/v1/events", envelope, status)
}

// SeedBudget establishes the project budget through the pipeline, so the
// twin, transcript, and coherence history all see it.
func (app *TestApp) SeedBudget(t *testing.T, total float64) {
	t.Helper()
	app.IngestEvent(t, map[string]interface{}{
		"event_type": "budget.updated",
		"source":     "finance",
		"payload": map[string]interface{}{
			"domain":       "os.robotics",
			"budget_total": total,
		},
	})
}

// RequestPurchase ingests a gated purchase request and returns the pending
// approval id from the pipeline response.
func (app *TestApp) RequestPurchase(t *testing.T, purchaseID string, cost float64, risk string) string {
	t.Helper()
	resp := app.IngestEvent(t, map[string]interface{}{
		"event_type": "purchase.requested",
		"source":     "erp",
		"payload": map[string]interface{}{
			"domain":         "os.robotics",
			"purchase_id":    purchaseID,
			"projected_cost": cost,
			"risk_level":     risk,
		},
	})
	require.Equal(t, true, resp["requires_approval"], "purchase must be gated")
	approvalID, _ := resp["approval_id"].(string)
	require.NotEmpty(t, approvalID)
	return approvalID
}

// ────────────────────────────────────────────────────────────
// Approval workflow helpers
// ────────────────────────────────────────────────────────────

// Approve resolves a pending approval with an approve verdict.
func (app *TestApp) Approve(t *testing.T, approvalID, actor string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/v1/os/approvals/"+approvalID+"/approve",
		map[string]interface{}{"actor": actor}, http.StatusOK)
}

// Reject resolves a pending approval with a reject verdict.
func (app *TestApp) Reject(t *testing.T, approvalID, actor, reason string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/v1/os/approvals/"+approvalID+"/reject",
		map[string]interface{}{"actor": actor, "reason": reason}, http.StatusOK)
}

// Override forces execution past the budget check.
func (app *TestApp) Override(t *testing.T, approvalID, actor, notes string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/v1/os/approvals/"+approvalID+"/override",
		map[string]interface{}{"actor": actor, "notes": notes}, http.StatusOK)
}

// ListApprovals calls GET /v1/os/approvals.
func (app *TestApp) ListApprovals(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/v1/os/approvals", http.StatusOK)
}

// ────────────────────────────────────────────────────────────
// Read-model helpers
// ────────────────────────────────────────────────────────────

// OSState calls GET /v1/os/state.
func (app *TestApp) OSState(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/v1/os/state", http.StatusOK)
}

// RoboticsTwin returns the twin document from GET /os/robotics/state.
func (app *TestApp) RoboticsTwin(t *testing.T) map[string]interface{} {
	t.Helper()
	resp := app.getJSON(t, "/os/robotics/state", http.StatusOK)
	twin, ok := resp["robotics_twin"].(map[string]interface{})
	require.True(t, ok, "robotics_twin missing from state response")
	return twin
}

// Transcript calls GET /v1/os/agents/transcript from the given cursor.
func (app *TestApp) Transcript(t *testing.T, since int64) map[string]interface{} {
	t.Helper()
	path := "/v1/os/agents/transcript"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}
	return app.getJSON(t, path, http.StatusOK)
}

// WaitForTwin polls the robotics twin until the predicate holds.
func (app *TestApp) WaitForTwin(t *testing.T, predicate func(twin map[string]interface{}) bool, msg string) map[string]interface{} {
	t.Helper()
	var twin map[string]interface{}
	require.Eventually(t, func() bool {
		twin = app.RoboticsTwin(t)
		return predicate(twin)
	}, 5*time.Second, 25*time.Millisecond, msg)
	return twin
}

// ────────────────────────────────────────────────────────────
// Agent control helpers
// ────────────────────────────────────────────────────────────

// RoverControl posts to POST /agents/rover/control/<action>.
func (app *TestApp) RoverControl(t *testing.T, action string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/agents/rover/control/"+action, nil, http.StatusOK)
}

// RoverState calls GET /agents/rover/state.
func (app *TestApp) RoverState(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/agents/rover/state", http.StatusOK)
}

// ClearAssistantMemory posts to the assistant memory control endpoint.
func (app *TestApp) ClearAssistantMemory(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/agents/assistant/control/clear_memory", nil, http.StatusOK)
}

// Health calls GET /health expecting the given status code.
func (app *TestApp) Health(t *testing.T, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/health", expectedStatus)
}

// ────────────────────────────────────────────────────────────
// WebSocket helpers
// ────────────────────────────────────────────────────────────

// SubscribeAndConfirm subscribes ws to a channel and waits for the server
// confirmation, so broadcasts published after this call are delivered.
func SubscribeAndConfirm(t *testing.T, ws *WSClient, channel string) {
	t.Helper()
	require.NoError(t, ws.Subscribe(channel))
	_, err := ws.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "subscription.confirmed" && e.Parsed["channel"] == channel
	}, 2*time.Second)
	require.NoError(t, err)
}
