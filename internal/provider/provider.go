// Package provider defines the LLM client contract and its
// OpenAI-compatible implementation.
package provider

import "context"

// LLMProvider is a chat-completion back-end. Implementations must be
// safe for concurrent use; the agent loop calls Chat from many
// goroutines.
type LLMProvider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// DefaultModel is used when a request leaves Model empty.
	DefaultModel() string
}

// Message is one turn of a conversation sent to the model. Role is one
// of "system", "user", "assistant" or "tool"; tool turns carry the
// ToolCallID they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments are
// decoded from the wire JSON; undecodable arguments are preserved under
// a raw key rather than dropped.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FunctionDef is the JSON-schema description of a callable function.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition advertises one tool to the model. Type is always
// "function" for the OpenAI wire format.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// ChatRequest is one completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting reported by the back-end.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the model's reply. When ToolCalls is non-empty the
// caller is expected to execute them and continue the conversation.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}
