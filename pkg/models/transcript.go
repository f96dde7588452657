package models

import "time"

// TranscriptKind identifies the pipeline step a transcript item records.
type TranscriptKind string

const (
	// TranscriptEventIngested marks a validated event entering the pipeline
	TranscriptEventIngested TranscriptKind = "event_ingested"
	// TranscriptAgentMessage is inter-agent committee chatter
	TranscriptAgentMessage TranscriptKind = "agent_message"
	// TranscriptActionsProposed lists actions an agent put forward
	TranscriptActionsProposed TranscriptKind = "actions_proposed"
	// TranscriptApprovalCreated marks a new pending approval
	TranscriptApprovalCreated TranscriptKind = "approval_created"
	// TranscriptApprovalUpdated marks an approval transition
	TranscriptApprovalUpdated TranscriptKind = "approval_updated"
	// TranscriptStateUpdated marks the post-execution state write
	TranscriptStateUpdated TranscriptKind = "state_updated"
)

// IsValid checks if the transcript kind is valid
func (k TranscriptKind) IsValid() bool {
	switch k {
	case TranscriptEventIngested,
		TranscriptAgentMessage,
		TranscriptActionsProposed,
		TranscriptApprovalCreated,
		TranscriptApprovalUpdated,
		TranscriptStateUpdated:
		return true
	default:
		return false
	}
}

// TranscriptItem is one row of the append-only decision audit log.
// Cursor is assigned by the store and is strictly monotonic per database.
type TranscriptItem struct {
	Cursor        int64          `json:"cursor"`
	Timestamp     time.Time      `json:"ts"`
	Kind          TranscriptKind `json:"kind"`
	Agent         string         `json:"agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	DecisionID    string         `json:"decision_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}
