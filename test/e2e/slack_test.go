package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pceslack "github.com/pce-project/pce/pkg/slack"
)

// mockSlackAPI accepts chat.postMessage and conversations.history and
// records what was posted.
type mockSlackAPI struct {
	mu    sync.Mutex
	posts []url.Values
}

func (m *mockSlackAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		m.mu.Lock()
		m.posts = append(m.posts, r.PostForm)
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"channel":"C123","ts":"1700000001.000200"}`)
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"messages":[],"has_more":false}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (m *mockSlackAPI) postCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

func (m *mockSlackAPI) post(i int) url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[i]
}

// ────────────────────────────────────────────────────────────
// Approval notifications: pipeline → hub → notifier → Slack API.
// ────────────────────────────────────────────────────────────

func TestE2E_SlackApprovalNotifications(t *testing.T) {
	api := &mockSlackAPI{}
	server := api.server(t)
	client := pceslack.NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")
	svc := pceslack.NewServiceWithClient(client, "https://pce.example.com")

	app := NewTestApp(t, WithSlackService(svc))

	app.SeedBudget(t, 500)
	approvalID := app.RequestPurchase(t, "po-slack", 120, "MEDIUM")

	// The pending approval is announced in the channel.
	require.Eventually(t, func() bool {
		return api.postCount() == 1
	}, 3*time.Second, 25*time.Millisecond, "approval request never reached Slack")

	request := api.post(0)
	assert.Equal(t, "C123", request.Get("channel"))
	assert.Contains(t, request.Get("text"), pceslack.Fingerprint(approvalID))

	// The verdict follows as a second message.
	app.Approve(t, approvalID, "qa-lead")
	require.Eventually(t, func() bool {
		return api.postCount() == 2
	}, 3*time.Second, 25*time.Millisecond, "approval resolution never reached Slack")

	resolution := api.post(1)
	assert.Contains(t, resolution.Get("text"), "Approval granted")
	assert.Contains(t, resolution.Get("blocks"), "qa-lead")
}
