package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/events"
	"github.com/pce-project/pce/pkg/robotics"
	"github.com/pce-project/pce/pkg/store"
)

// newTestServer builds the API server over a real store and engine with
// the robotics plugins registered, so the approval scenarios run the same
// code paths as production.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pce_test.db")
	client, err := database.NewClient(context.Background(), database.DefaultConfig(path))
	require.NoError(t, err)

	st := store.NewManager(client)
	t.Cleanup(func() {
		st.Close()
		_ = client.Close()
	})

	hub := events.NewHub()
	gate := approval.NewGate(st, nil)
	eng, err := engine.New(engine.Options{
		Store:      st,
		Gate:       gate,
		Transcript: events.NewPublisher(st, hub, nil),
	})
	require.NoError(t, err)
	robotics.New().Register(eng.Registry())

	return NewServer(config.DefaultConfig(), client, eng, st, gate, nil, nil, hub)
}

// httptestRequest builds a JSON request; callers may add headers before
// serving it.
func httptestRequest(method, target string, body any) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serveRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

// doRequest routes one request through the full echo stack.
func doRequest(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return serveRequest(s, httptestRequest(method, target, body))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}

// postEvent ingests one event and returns the decoded pipeline response.
func postEvent(t *testing.T, s *Server, envelope map[string]any) map[string]any {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/events", envelope)
	require.Equal(t, http.StatusOK, rec.Code, "pipeline rejected event: %s", rec.Body.String())

	var resp map[string]any
	decodeBody(t, rec, &resp)
	return resp
}
