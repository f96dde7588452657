package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service handles approval notification delivery.
// Nil-safe: all methods are no-ops when service is nil, so callers never
// branch on whether Slack is configured.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyApprovalCreated posts the request notification for a pending
// approval. Fail-open: errors are logged, never returned.
func (s *Service) NotifyApprovalCreated(ctx context.Context, a *models.Approval) {
	if s == nil {
		return
	}

	text, blocks := BuildApprovalRequestMessage(a, s.dashboardURL)
	if err := s.client.PostMessage(ctx, text, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send approval notification",
			"approval_id", a.ApprovalID,
			"error", err)
	}
}

// NotifyApprovalResolved posts a terminal status notification, threaded
// onto the request message when history search finds it.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyApprovalResolved(ctx context.Context, a *models.Approval) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, Fingerprint(a.ApprovalID))
	if err != nil {
		s.logger.Warn("Failed to find Slack thread for approval",
			"approval_id", a.ApprovalID,
			"error", err)
	}

	text, blocks := BuildApprovalResolvedMessage(a, s.dashboardURL)
	if err := s.client.PostMessage(ctx, text, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send approval resolution notification",
			"approval_id", a.ApprovalID,
			"status", a.Status,
			"error", err)
	}
}
