package robotics

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pce-project/pce/pkg/models"
)

// AgentReport pairs one agent with its turn output.
type AgentReport struct {
	Agent  string
	Output *AgentOutput
}

// CommitteeResult aggregates one committee round in fixed agent order.
type CommitteeResult struct {
	Reports         []AgentReport
	ProposedActions []map[string]any
	RiskFlags       []string
	Questions       []string
	Transcript      []map[string]any
}

// Committee runs the deterministic agent round for os.robotics decisions:
// every agent processes the event concurrently, outputs are collected in
// fixed order, and inter-agent messages flow once through the bounded bus.
type Committee struct {
	agents        []Agent
	maxTurns      int
	perAgentLimit int
	logger        *slog.Logger
}

// CommitteeOption customizes committee construction.
type CommitteeOption func(*Committee)

// WithAgents replaces the default agent roster, preserving order.
func WithAgents(agents ...Agent) CommitteeOption {
	return func(c *Committee) {
		c.agents = agents
	}
}

// WithBusLimits overrides the bus turn and inbox bounds.
func WithBusLimits(maxTurns, perAgentLimit int) CommitteeOption {
	return func(c *Committee) {
		c.maxTurns = maxTurns
		c.perAgentLimit = perAgentLimit
	}
}

// NewCommittee builds the default engineering, finance, procurement, tests
// roster.
func NewCommittee(logger *slog.Logger, opts ...CommitteeOption) *Committee {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Committee{
		agents: []Agent{
			EngineeringAgent{},
			FinanceAgent{},
			ProcurementAgent{},
			TestsAgent{},
		},
		maxTurns:      defaultMaxTurns,
		perAgentLimit: defaultPerAgentLimit,
		logger:        logger.With("component", "os_committee"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one committee round and returns the aggregated result. The
// transcript entries are shaped for explain.agent_transcript: one
// actions_proposed item per proposing agent, then one agent_message item
// per delivered bus message.
func (c *Committee) Run(ctx context.Context, ev *models.Event, twin *RobotProjectState) *CommitteeResult {
	outputs := make([]*AgentOutput, len(c.agents))

	g, _ := errgroup.WithContext(ctx)
	for i, agent := range c.agents {
		g.Go(func() error {
			outputs[i] = agent.Process(&AgentInput{Event: ev, TwinSnapshot: twin})
			return nil
		})
	}
	// Agents are pure; the group exists for the fan-out, not for errors.
	_ = g.Wait()

	result := &CommitteeResult{}
	bus := NewBus(c.maxTurns, c.perAgentLimit)
	for i, agent := range c.agents {
		out := outputs[i]
		result.Reports = append(result.Reports, AgentReport{Agent: agent.Name(), Output: out})
		result.ProposedActions = append(result.ProposedActions, out.ProposedActions...)
		result.RiskFlags = append(result.RiskFlags, out.RiskFlags...)
		result.Questions = append(result.Questions, out.Questions...)

		if len(out.ProposedActions) > 0 {
			result.Transcript = append(result.Transcript, map[string]any{
				"kind":  string(models.TranscriptActionsProposed),
				"agent": agent.Name(),
				"payload": map[string]any{
					"actions":    out.ProposedActions,
					"rationale":  out.Rationale,
					"confidence": out.Confidence,
				},
			})
		}
		for _, message := range out.Messages {
			bus.Enqueue(message)
		}
	}

	for turn := 0; turn < c.maxTurns && bus.Len() > 0; turn++ {
		grouped := bus.DequeueForAll()
		for _, recipient := range Recipients(grouped) {
			for _, message := range grouped[recipient] {
				result.Transcript = append(result.Transcript, map[string]any{
					"kind":  string(models.TranscriptAgentMessage),
					"agent": message.From,
					"payload": map[string]any{
						"to":      message.To,
						"kind":    message.Kind,
						"content": message.Content,
					},
				})
			}
		}
	}

	c.logger.Debug("Committee round complete",
		"event_type", ev.EventType,
		"proposed_actions", len(result.ProposedActions),
		"risk_flags", len(result.RiskFlags),
		"transcript_items", len(result.Transcript))
	return result
}
