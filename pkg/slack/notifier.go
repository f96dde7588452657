package slack

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pce-project/pce/pkg/events"
	"github.com/pce-project/pce/pkg/models"
)

// Notifier bridges the live transcript feed to the notification service:
// it subscribes to the event hub and relays approval lifecycle items to
// Slack. Approval expiry happens in the retention sweep without a
// transcript row, so only created and resolved approvals notify.
type Notifier struct {
	service *Service
	hub     *events.Hub
	logger  *slog.Logger

	subscriberID string
	feed         <-chan events.StreamEvent
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewNotifier creates the relay. A nil service (Slack unconfigured)
// yields a notifier whose Start and Stop are no-ops.
func NewNotifier(service *Service, hub *events.Hub) *Notifier {
	return &Notifier{
		service: service,
		hub:     hub,
		logger:  slog.Default().With("component", "slack-notifier"),
	}
}

// Start subscribes to the hub and begins relaying approval items.
func (n *Notifier) Start() {
	if n.service == nil || n.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.subscriberID, n.feed = n.hub.Subscribe()
	n.done = make(chan struct{})
	go n.run(ctx)
	n.logger.Info("Slack approval notifications enabled")
}

func (n *Notifier) run(ctx context.Context) {
	defer close(n.done)
	for ev := range n.feed {
		n.relay(ctx, ev)
	}
}

// Stop aborts in-flight deliveries and drains the relay loop. The
// unsubscribe closes the feed, which ends run.
func (n *Notifier) Stop() {
	if n.service == nil || n.done == nil {
		return
	}
	n.cancel()
	n.hub.Unsubscribe(n.subscriberID)
	<-n.done
}

func (n *Notifier) relay(ctx context.Context, ev events.StreamEvent) {
	created := ev.Name == events.EventName(models.TranscriptApprovalCreated)
	updated := ev.Name == events.EventName(models.TranscriptApprovalUpdated)
	if !created && !updated {
		return
	}

	var item models.TranscriptItem
	if err := json.Unmarshal(ev.Data, &item); err != nil {
		n.logger.Warn("Dropping malformed transcript item",
			"event", ev.Name,
			"error", err)
		return
	}

	a := approvalFromPayload(item.Payload)
	if a.ApprovalID == "" {
		return
	}
	if created {
		n.service.NotifyApprovalCreated(ctx, a)
		return
	}
	n.service.NotifyApprovalResolved(ctx, a)
}

// approvalFromPayload rebuilds as much of the approval as the transcript
// payload carries; the message builders tolerate the missing fields.
func approvalFromPayload(payload map[string]any) *models.Approval {
	a := &models.Approval{}
	if s, ok := payload["approval_id"].(string); ok {
		a.ApprovalID = s
	}
	if s, ok := payload["decision_id"].(string); ok {
		a.DecisionID = s
	}
	if s, ok := payload["subject"].(string); ok {
		a.Subject = s
	}
	if s, ok := payload["status"].(string); ok {
		a.Status = models.ApprovalStatus(s)
	}
	if s, ok := payload["actor"].(string); ok {
		a.Actor = s
	}
	if s, ok := payload["risk"].(string); ok {
		a.Risk = models.RiskLevel(s)
	}
	if v, ok := payload["projected_cost"].(float64); ok {
		a.ProjectedCost = v
	}
	if b, ok := payload["override"].(bool); ok {
		a.Override = b
	}
	if s, ok := payload["action_type"].(string); ok && s != "" {
		a.Action = &models.ActionPlan{ActionType: s}
	}
	if raw, ok := payload["reasons"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				a.Reasons = append(a.Reasons, s)
			}
		}
	}
	return a
}
