// Package agent implements the orchestration loop between the bus,
// the LLM provider, the tool registry, and conversation memory.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/memory"
	"github.com/LoomClaw/LoomClaw/internal/provider"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

const (
	// DefaultMaxToolIterations bounds the tool-call loop per message.
	DefaultMaxToolIterations = 10
	// DefaultHistoryWindow is the number of prior turns sent to the LLM.
	DefaultHistoryWindow = 50

	llmFailureReply = "I ran into a problem reaching the language model. Please try again in a moment."
)

type triggerKey struct{}

// WithTrigger attaches the message being processed to the context so
// tools can learn who asked.
func WithTrigger(ctx context.Context, msg *bus.UserMessage) context.Context {
	return context.WithValue(ctx, triggerKey{}, msg)
}

// TriggerFrom extracts the triggering message, if any.
func TriggerFrom(ctx context.Context) (*bus.UserMessage, bool) {
	msg, ok := ctx.Value(triggerKey{}).(*bus.UserMessage)
	return msg, ok
}

// LoopOptions configures the agent loop.
type LoopOptions struct {
	Bus      *bus.Bus
	Provider provider.LLMProvider
	Store    *memory.Store
	Registry *tools.Registry

	SystemPrompt string
	Workspace    string
	Model        string
	MaxTokens    int
	Temperature  float64

	MaxToolIterations int
	HistoryWindow     int
	DisableTools      bool
}

// Loop consumes user messages from the bus, drives the LLM through
// bounded tool iterations, and publishes exactly one response per
// message.
type Loop struct {
	bus      *bus.Bus
	provider provider.LLMProvider
	store    *memory.Store
	registry *tools.Registry
	builder  *ContextBuilder

	model       string
	maxTokens   int
	temperature float64

	maxToolIterations int
	historyWindow     int
	disableTools      bool

	wg sync.WaitGroup
}

// NewLoop creates a new agent loop.
func NewLoop(opts LoopOptions) *Loop {
	maxIter := opts.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}
	window := opts.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	model := opts.Model
	if model == "" && opts.Provider != nil {
		model = opts.Provider.DefaultModel()
	}
	return &Loop{
		bus:               opts.Bus,
		provider:          opts.Provider,
		store:             opts.Store,
		registry:          opts.Registry,
		builder:           NewContextBuilder(opts.SystemPrompt, opts.Workspace, opts.Registry),
		model:             model,
		maxTokens:         opts.MaxTokens,
		temperature:       opts.Temperature,
		maxToolIterations: maxIter,
		historyWindow:     window,
		disableTools:      opts.DisableTools,
	}
}

// Run consumes user messages until ctx is cancelled or the bus
// closes, then waits for in-flight messages to finish.
func (l *Loop) Run(ctx context.Context) error {
	sub, err := l.bus.Subscribe(bus.TopicUserMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to user messages: %w", err)
	}
	defer sub.Cancel()

	slog.Info("Agent loop started", "model", l.model, "max_tool_iterations", l.maxToolIterations)

	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			break
		}
		msg, ok := env.(*bus.UserMessage)
		if !ok {
			slog.Warn("Unexpected message type on user topic", "type", fmt.Sprintf("%T", env))
			continue
		}

		l.wg.Add(1)
		go func(msg *bus.UserMessage) {
			defer l.wg.Done()
			if err := l.processMessage(ctx, msg); err != nil {
				slog.Error("Failed to process message", "platform", msg.Platform, "error", err)
			}
		}(msg)
	}

	l.wg.Wait()
	slog.Info("Agent loop stopped")
	return nil
}

// processMessage handles one user message end to end.
func (l *Loop) processMessage(ctx context.Context, msg *bus.UserMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("message processing panicked: %v", rec)
		}
	}()

	if err := l.store.SaveMessage(msg.Platform, msg.UserID, memory.StoredMessage{
		Role:      "user",
		Content:   msg.Content,
		Timestamp: msg.Time,
	}); err != nil {
		slog.Error("Failed to persist user message", "error", err)
	}

	history, err := l.store.GetHistory(msg.Platform, msg.UserID, l.historyWindow)
	if err != nil {
		slog.Error("Failed to load history", "error", err)
		history = nil
	}

	messages := l.builder.BuildMessages(history, msg)
	content, toolCalls, toolTurns := l.runAgentLoop(ctx, msg, messages)

	resp := bus.NewAgentResponse(msg.Platform, msg.UserID, content)
	resp.ToolCalls = toolCalls
	if err := l.bus.Publish(ctx, resp); err != nil {
		return fmt.Errorf("failed to publish response: %w", err)
	}

	if err := l.store.SaveMessage(msg.Platform, msg.UserID, memory.StoredMessage{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	}); err != nil {
		slog.Error("Failed to persist assistant message", "error", err)
	}
	for _, turn := range toolTurns {
		if err := l.store.SaveMessage(msg.Platform, msg.UserID, turn); err != nil {
			slog.Error("Failed to persist tool result", "tool", turn.ToolName, "error", err)
		}
	}
	return nil
}

// runAgentLoop drives the LLM through bounded tool iterations and
// returns the final content plus everything executed along the way.
func (l *Loop) runAgentLoop(ctx context.Context, msg *bus.UserMessage, messages []provider.Message) (string, []bus.ToolCall, []memory.StoredMessage) {
	var toolDefs []provider.ToolDefinition
	if !l.disableTools {
		toolDefs = l.builder.ToolDefinitions()
	}

	var allCalls []bus.ToolCall
	var toolTurns []memory.StoredMessage

	for i := 0; i < l.maxToolIterations; i++ {
		resp, err := l.chat(ctx, messages, toolDefs)
		if err != nil {
			slog.Error("LLM request failed", "iteration", i, "error", err)
			return llmFailureReply, allCalls, toolTurns
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, allCalls, toolTurns
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			allCalls = append(allCalls, bus.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})

			result := l.executeTool(ctx, msg, tc)
			if err := l.bus.Publish(ctx, result); err != nil {
				slog.Warn("Failed to publish tool result", "tool", tc.Name, "error", err)
			}

			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    result.Result,
				ToolCallID: tc.ID,
			})
			toolTurns = append(toolTurns, memory.StoredMessage{
				Role:      "tool",
				ToolName:  tc.Name,
				Content:   result.Result,
				Timestamp: result.Time,
			})

			slog.Debug("Tool executed", "name", tc.Name, "success", result.Success)
		}
	}

	// Iteration budget exhausted: ask once more without tools so the
	// model has to answer in plain text.
	slog.Warn("Tool iteration budget exhausted", "max", l.maxToolIterations)
	resp, err := l.chat(ctx, messages, nil)
	if err != nil {
		slog.Error("Final LLM request failed", "error", err)
		return llmFailureReply, allCalls, toolTurns
	}
	return resp.Content, allCalls, toolTurns
}

func (l *Loop) chat(ctx context.Context, messages []provider.Message, toolDefs []provider.ToolDefinition) (*provider.ChatResponse, error) {
	return l.provider.Chat(ctx, &provider.ChatRequest{
		Messages:    messages,
		Tools:       toolDefs,
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	})
}

// executeTool runs one tool call. Failures of any kind become a
// failed ToolResult; they never abort the surrounding loop.
func (l *Loop) executeTool(ctx context.Context, msg *bus.UserMessage, tc provider.ToolCall) *bus.ToolResult {
	result, err := l.registry.Execute(WithTrigger(ctx, msg), tc.Name, tc.Arguments)
	if err != nil {
		slog.Warn("Tool failed", "tool", tc.Name, "error", err)
		return bus.NewToolResult(tc.ID, tc.Name, false, fmt.Sprintf("Error: %v", err))
	}
	return bus.NewToolResult(tc.ID, tc.Name, true, result)
}
