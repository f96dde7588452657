// Package e2e boots complete PCE instances for end-to-end testing: real
// store, engine, worker pool, and HTTP server on an ephemeral port, with
// only the OpenRouter provider replaced by a scripted replier.
package e2e

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/api"
	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/assistant"
	"github.com/pce-project/pce/pkg/cleanup"
	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/events"
	"github.com/pce-project/pce/pkg/queue"
	"github.com/pce-project/pce/pkg/robotics"
	"github.com/pce-project/pce/pkg/rover"
	pceslack "github.com/pce-project/pce/pkg/slack"
	"github.com/pce-project/pce/pkg/store"
	"github.com/pce-project/pce/pkg/trader"
)

// TestApp boots a complete PCE instance for e2e testing.
type TestApp struct {
	// Core
	Config   *config.Config
	DBClient *database.Client
	Store    *store.Manager
	Gate     *approval.Gate
	Engine   *engine.Engine

	// Mocks / test wiring
	Replier *ScriptedReplier

	// Real infrastructure
	Hub         *events.Hub
	ConnManager *events.ConnectionManager
	Publisher   *events.Publisher
	WorkerPool  *queue.WorkerPool
	Rover       *rover.Runtime
	Assistant   *assistant.Assistant
	Server      *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg          *config.Config
	replier      *ScriptedReplier
	workerCount  int
	slackService *pceslack.Service
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithReplier sets a pre-scripted assistant replier.
func WithReplier(r *ScriptedReplier) TestAppOption {
	return func(c *testAppConfig) { c.replier = r }
}

// WithWorkerCount sets the number of test bench workers.
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithSlackService wires a Slack notifier onto the hub. Used with a mock
// Slack API server to test the approval notification loop.
func WithSlackService(svc *pceslack.Service) TestAppOption {
	return func(c *testAppConfig) { c.slackService = svc }
}

// NewTestApp creates and starts a full PCE test instance wired the way the
// server binary wires it. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{workerCount: 1}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig(t)
	}
	tc.cfg.Queue.WorkerCount = tc.workerCount
	if tc.replier == nil {
		tc.replier = NewScriptedReplier()
	}

	ctx := context.Background()

	// 1. Database on a per-test temp file.
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(tc.cfg.StateDBPath))
	require.NoError(t, err)

	// 2. Store and approval gate.
	st := store.NewManager(dbClient)
	gate := approval.NewGate(st, tc.cfg.Approvals)

	// 3. Streaming infrastructure.
	hub := events.NewHub()
	connManager := events.NewConnectionManager(st, 5*time.Second)
	publisher := events.NewPublisher(st, hub, connManager)

	// 4. Engine with every domain plugin registered.
	eng, err := engine.New(engine.Options{
		Store:      st,
		Gate:       gate,
		CCI:        engine.NewCCIEngine(st, tc.cfg.CCI),
		Transcript: publisher,
	})
	require.NoError(t, err)
	reg := eng.Registry()
	robotics.New().Register(reg)
	asst := assistant.New(st, tc.replier, tc.cfg.Assistant)
	asst.Register(reg)
	rover.New(st).Register(reg)
	trader.New(tc.cfg.Trader).Register(reg)

	// 5. Maintenance sweeps.
	sweeper := cleanup.NewService(tc.cfg.Approvals, tc.cfg.Retention, gate, st)
	sweeper.Start(ctx)

	// 6. Worker pool and scheduled-test executor.
	pool := queue.NewWorkerPool(tc.cfg.Queue, queue.NewTestBench(eng))
	pool.Start()
	reg.RegisterExecutor(queue.NewTestScheduler(pool))

	// 7. Optional Slack notifier.
	var notifier *pceslack.Notifier
	if tc.slackService != nil {
		notifier = pceslack.NewNotifier(tc.slackService, hub)
		notifier.Start()
	}

	// 8. Rover runtime, idle until a control call starts it.
	roverRuntime := rover.NewRuntime(eng, rover.NewStorage(st), tc.cfg.Rover, nil,
		rover.WithFrameSink(publisher.PublishFrame))

	// 9. HTTP server on a random port.
	server := api.NewServer(tc.cfg, dbClient, eng, st, gate, pool, connManager, hub)
	server.SetRover(roverRuntime)
	server.SetAssistant(asst)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()

	app := &TestApp{
		Config:      tc.cfg,
		DBClient:    dbClient,
		Store:       st,
		Gate:        gate,
		Engine:      eng,
		Replier:     tc.replier,
		Hub:         hub,
		ConnManager: connManager,
		Publisher:   publisher,
		WorkerPool:  pool,
		Rover:       roverRuntime,
		Assistant:   asst,
		Server:      server,
		BaseURL:     fmt.Sprintf("http://%s", addr),
		WSURL:       fmt.Sprintf("ws://%s/ws", addr),
		t:           t,
	}

	// Teardown mirrors the binary's shutdown order: close ingress first,
	// then stop the event producers, then drain the queue, store last.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		roverRuntime.Stop()
		pool.Stop()
		if notifier != nil {
			notifier.Stop()
		}
		sweeper.Stop()
		st.Close()
		_ = dbClient.Close()
	})

	return app
}

// defaultTestConfig trims the built-in config for tests: a temp state
// database and a small rover world that ticks fast enough to observe.
func defaultTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.StateDBPath = filepath.Join(t.TempDir(), "pce_e2e.db")
	cfg.Rover = &config.RoverConfig{
		TickIntervalMS: 20,
		FeedbackEvery:  3,
		Width:          12,
		Height:         9,
		Seed:           7,
	}
	return cfg
}
