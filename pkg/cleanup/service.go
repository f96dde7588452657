// Package cleanup provides periodic maintenance: approval TTL sweeps and
// retention trims for the append-only tables.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/pce-project/pce/pkg/config"
)

// ApprovalSweeper expires stale pending approvals. Implemented by approval.Gate.
type ApprovalSweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// RetentionStore trims each append-only table to its row budget.
// Implemented by store.Manager.
type RetentionStore interface {
	TrimEvents(ctx context.Context, keep int) (int64, error)
	TrimActions(ctx context.Context, keep int) (int64, error)
	TrimCCI(ctx context.Context, keep int) (int64, error)
	TrimTranscript(ctx context.Context, keep int) (int64, error)
}

// Service periodically enforces maintenance policies:
//   - Expires pending approvals past their TTL
//   - Trims events, actions, CCI history and transcript to their budgets
//
// All operations are idempotent.
type Service struct {
	retention *config.RetentionConfig
	sweeper   ApprovalSweeper
	store     RetentionStore

	approvalInterval  time.Duration
	retentionInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(approvals *config.ApprovalsConfig, retention *config.RetentionConfig, sweeper ApprovalSweeper, store RetentionStore) *Service {
	return &Service{
		retention:         retention,
		sweeper:           sweeper,
		store:             store,
		approvalInterval:  approvals.SweepInterval(),
		retentionInterval: retention.SweepInterval(),
	}
}

// Start runs one sweep synchronously, then launches the background loop.
// The synchronous sweep means stale approvals are already expired by the
// time the caller goes on to open ingress.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.runAll(ctx)

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"approval_sweep_interval", s.approvalInterval,
		"retention_sweep_interval", s.retentionInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	approvalTicker := time.NewTicker(s.approvalInterval)
	defer approvalTicker.Stop()
	retentionTicker := time.NewTicker(s.retentionInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-approvalTicker.C:
			s.expireApprovals(ctx)
		case <-retentionTicker.C:
			s.trimTables(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireApprovals(ctx)
	s.trimTables(ctx)
}

func (s *Service) expireApprovals(ctx context.Context) {
	count, err := s.sweeper.ExpireStale(ctx)
	if err != nil {
		slog.Error("Cleanup: approval expiry failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Cleanup: expired stale approvals", "count", count)
	}
}

func (s *Service) trimTables(ctx context.Context) {
	s.trim(ctx, "events", s.retention.Events, s.store.TrimEvents)
	s.trim(ctx, "actions", s.retention.Actions, s.store.TrimActions)
	s.trim(ctx, "cci_history", s.retention.CCI, s.store.TrimCCI)
	s.trim(ctx, "transcript", s.retention.Transcript, s.store.TrimTranscript)
}

// trim applies one table's retention budget. A budget of 0 disables
// trimming for that table.
func (s *Service) trim(ctx context.Context, table string, keep int, fn func(context.Context, int) (int64, error)) {
	if keep <= 0 {
		return
	}
	count, err := fn(ctx, keep)
	if err != nil {
		slog.Error("Retention: trim failed", "table", table, "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: trimmed rows", "table", table, "count", count)
	}
}
