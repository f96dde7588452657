// PCE server — ingests events through the cognition pipeline, manages the
// approval workflow, and serves the control-room API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pce-project/pce/pkg/api"
	"github.com/pce-project/pce/pkg/approval"
	"github.com/pce-project/pce/pkg/assistant"
	"github.com/pce-project/pce/pkg/cleanup"
	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/database"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/events"
	"github.com/pce-project/pce/pkg/llm"
	"github.com/pce-project/pce/pkg/queue"
	"github.com/pce-project/pce/pkg/robotics"
	"github.com/pce-project/pce/pkg/rover"
	"github.com/pce-project/pce/pkg/slack"
	"github.com/pce-project/pce/pkg/store"
	"github.com/pce-project/pce/pkg/trader"
	"github.com/pce-project/pce/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("PCE_CONFIG", ""),
		"Path to the configuration file (optional, defaults apply without one)")
	flag.Parse()

	// .env is optional; a missing file just means the environment is
	// already set.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	slog.Info("Starting PCE", "version", version.Full())

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.StateDBPath))
	if err != nil {
		slog.Error("Failed to open state database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()
	slog.Info("State database ready", "path", dbClient.Path())

	// 3. Store and approval gate
	st := store.NewManager(dbClient)
	defer st.Close()
	gate := approval.NewGate(st, cfg.Approvals)

	// 4. Streaming infrastructure. The publisher is the engine's
	// transcript sink: persist first, then fan out to SSE and WebSocket.
	hub := events.NewHub()
	connManager := events.NewConnectionManager(st, 10*time.Second)
	publisher := events.NewPublisher(st, hub, connManager)

	// 5. Engine with every domain plugin registered
	eng, err := engine.New(engine.Options{
		Store:      st,
		Gate:       gate,
		CCI:        engine.NewCCIEngine(st, cfg.CCI),
		Transcript: publisher,
	})
	if err != nil {
		slog.Error("Failed to build engine", "error", err)
		os.Exit(1)
	}
	reg := eng.Registry()
	robotics.New().Register(reg)

	// An unconfigured OpenRouter client fails every call, which the
	// assistant turns into its fallback reply.
	asst := assistant.New(st, llm.NewClient(cfg.OpenRouter), cfg.Assistant)
	asst.Register(reg)

	rover.New(st).Register(reg)
	trader.New(cfg.Trader).Register(reg)
	slog.Info("Domain plugins registered")

	// 6. Maintenance sweeps run one pass before ingress opens, so stale
	// approvals are expired before clients can resolve them.
	sweeper := cleanup.NewService(cfg.Approvals, cfg.Retention, gate, st)
	sweeper.Start(ctx)

	// 7. Worker pool for scheduled tests
	pool := queue.NewWorkerPool(cfg.Queue, queue.NewTestBench(eng))
	pool.Start()
	reg.RegisterExecutor(queue.NewTestScheduler(pool))

	// 8. Slack approval notifications (no-op when unconfigured)
	slackService := slack.NewService(slack.ServiceConfig{
		Token:        cfg.Slack.Token,
		Channel:      cfg.Slack.Channel,
		DashboardURL: getEnv("PCE_DASHBOARD_URL", ""),
	})
	notifier := slack.NewNotifier(slackService, hub)
	notifier.Start()

	// 9. Rover simulation runtime. Built but idle; the control endpoint
	// starts the loop.
	roverRuntime := rover.NewRuntime(eng, rover.NewStorage(st), cfg.Rover, nil,
		rover.WithFrameSink(publisher.PublishFrame))

	// 10. HTTP server
	server := api.NewServer(cfg, dbClient, eng, st, gate, pool, connManager, hub)
	server.SetRover(roverRuntime)
	server.SetAssistant(asst)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.APIPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("PCE started",
		"api_port", cfg.APIPort,
		"workers", cfg.Queue.WorkerCount,
		"slack_enabled", cfg.Slack.Enabled())

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: close ingress first, then stop the event
	// producers, then drain the queue. The store closes last via defer.
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	roverRuntime.Stop()
	pool.Stop()
	notifier.Stop()
	sweeper.Stop()

	slog.Info("Shutdown complete")
}
