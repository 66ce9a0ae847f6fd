package bus

import (
	"time"

	"github.com/google/uuid"
)

// Topic routes envelopes on the bus. Packages may declare their own
// topics; the bus treats the value as an opaque routing key.
type Topic string

const (
	TopicUserMessage    Topic = "user_message"
	TopicAgentResponse  Topic = "agent_response"
	TopicToolResult     Topic = "tool_result"
	TopicToolInvocation Topic = "tool_invocation"
)

// Envelope is the contract every bus message satisfies.
type Envelope interface {
	MessageID() string
	Timestamp() time.Time
	MessageTopic() Topic
}

// UserMessage is an inbound chat message from a channel adapter or a
// synthetic one injected by the scheduler.
type UserMessage struct {
	ID       string            `json:"id"`
	Time     time.Time         `json:"time"`
	Platform string            `json:"platform"`
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewUserMessage(platform, userID, content string) *UserMessage {
	return &UserMessage{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		Platform: platform,
		UserID:   userID,
		Content:  content,
	}
}

func (m *UserMessage) MessageID() string    { return m.ID }
func (m *UserMessage) Timestamp() time.Time { return m.Time }
func (m *UserMessage) MessageTopic() Topic  { return TopicUserMessage }

// ToolCall is a single tool request emitted by the model. It is
// embedded in responses and conversation turns, not routed on its own.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// AgentResponse is the assistant's reply for one user message.
// Platform and UserID echo the triggering message so channel adapters
// can filter deliveries addressed to them.
type AgentResponse struct {
	ID        string     `json:"id"`
	Time      time.Time  `json:"time"`
	Platform  string     `json:"platform"`
	UserID    string     `json:"user_id"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func NewAgentResponse(platform, userID, content string) *AgentResponse {
	return &AgentResponse{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		Platform: platform,
		UserID:   userID,
		Content:  content,
	}
}

func (m *AgentResponse) MessageID() string    { return m.ID }
func (m *AgentResponse) Timestamp() time.Time { return m.Time }
func (m *AgentResponse) MessageTopic() Topic  { return TopicAgentResponse }

// ToolResult records the outcome of one tool execution.
type ToolResult struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	CallID   string    `json:"call_id,omitempty"`
	ToolName string    `json:"tool_name"`
	Success  bool      `json:"success"`
	Result   string    `json:"result"`
}

func NewToolResult(callID, toolName string, success bool, result string) *ToolResult {
	return &ToolResult{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		CallID:   callID,
		ToolName: toolName,
		Success:  success,
		Result:   result,
	}
}

func (m *ToolResult) MessageID() string    { return m.ID }
func (m *ToolResult) Timestamp() time.Time { return m.Time }
func (m *ToolResult) MessageTopic() Topic  { return TopicToolResult }

// ToolInvocation asks whoever runs tools to execute one outside an
// agent turn. The scheduler emits these for cron-driven tool jobs.
type ToolInvocation struct {
	ID         string         `json:"id"`
	Time       time.Time      `json:"time"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Source     string         `json:"source,omitempty"`
}

func NewToolInvocation(toolName string, params map[string]any, source string) *ToolInvocation {
	return &ToolInvocation{
		ID:         uuid.NewString(),
		Time:       time.Now(),
		ToolName:   toolName,
		Parameters: params,
		Source:     source,
	}
}

func (m *ToolInvocation) MessageID() string    { return m.ID }
func (m *ToolInvocation) Timestamp() time.Time { return m.Time }
func (m *ToolInvocation) MessageTopic() Topic  { return TopicToolInvocation }
