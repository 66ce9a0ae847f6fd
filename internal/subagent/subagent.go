// Package subagent manages background workers spawned by the agent.
// Each subagent runs one tool to completion, persists its lifecycle to
// disk, and announces terminal transitions on the bus.
package subagent

import (
	"time"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

// State is the lifecycle state of a subagent.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Subagent is the persisted record of one background worker. Platform
// and UserID identify the originating user so announcements and status
// queries can be routed without the trigger message.
type Subagent struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	State          State             `json:"state"`
	Tool           string            `json:"tool"`
	ToolParams     map[string]any    `json:"tool_params,omitempty"`
	Platform       string            `json:"platform,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	TriggerMessage *bus.UserMessage  `json:"trigger_message,omitempty"`
	Progress       int               `json:"progress"`
	StatusMessage  string            `json:"status_message,omitempty"`
	Result         string            `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// TopicCompleted carries terminal subagent notifications.
const TopicCompleted bus.Topic = "subagent_completed"

// Completed is published once when a subagent reaches a terminal
// state. Platform and UserID echo the record's originating identity
// so channel adapters can route the announcement.
type Completed struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Platform string    `json:"platform,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Subagent Subagent  `json:"subagent"`
}

func (m *Completed) MessageID() string       { return m.ID }
func (m *Completed) Timestamp() time.Time    { return m.Time }
func (m *Completed) MessageTopic() bus.Topic { return TopicCompleted }
