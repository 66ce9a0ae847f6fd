package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/memory"
	"github.com/LoomClaw/LoomClaw/internal/provider"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = `You are LoomClaw, a helpful, efficient personal AI assistant.
You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Spawn background subagents for long-running work

When responding to direct questions, reply directly with text.
Always be helpful, accurate, and concise.`

// ContextBuilder assembles the system prompt and message list.
type ContextBuilder struct {
	systemPrompt string
	workspace    string
	registry     *tools.Registry
}

// NewContextBuilder creates a new ContextBuilder. systemPrompt may be
// empty to use the default.
func NewContextBuilder(systemPrompt, workspace string, registry *tools.Registry) *ContextBuilder {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &ContextBuilder{
		systemPrompt: systemPrompt,
		workspace:    workspace,
		registry:     registry,
	}
}

// BuildSystemPrompt constructs the full system prompt from the
// configured base plus runtime info.
func (b *ContextBuilder) BuildSystemPrompt() string {
	var parts []string

	parts = append(parts, b.systemPrompt)
	parts = append(parts, b.runtimeInfo())

	if summary := b.toolSummary(); summary != "" {
		parts = append(parts, summary)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (b *ContextBuilder) runtimeInfo() string {
	t := time.Now()
	now := t.Format("2006-01-02 15:04 (Monday)")

	// Pre-compute date references so the LLM never has to do date arithmetic
	yesterday := t.AddDate(0, 0, -1)
	tomorrow := t.AddDate(0, 0, 1)
	dateRef := fmt.Sprintf("- Yesterday: %s (%s)\n- Today: %s (%s)\n- Tomorrow: %s (%s)",
		yesterday.Format("2006-01-02"), yesterday.Format("Monday"),
		t.Format("2006-01-02"), t.Format("Monday"),
		tomorrow.Format("2006-01-02"), tomorrow.Format("Monday"))

	wsPath := b.workspace
	if strings.HasPrefix(wsPath, "~") {
		home, _ := os.UserHomeDir()
		wsPath = filepath.Join(home, wsPath[1:])
	}
	if abs, err := filepath.Abs(wsPath); err == nil {
		wsPath = abs
	}

	return fmt.Sprintf(`## Current Time
%s

## Date Reference (use these - do not compute dates yourself)
%s

## Runtime
%s %s, Go %s

## Workspace
Your workspace is at: %s`,
		now, dateRef, runtime.GOOS, runtime.GOARCH, runtime.Version(), wsPath)
}

func (b *ContextBuilder) toolSummary() string {
	if b.registry == nil {
		return ""
	}
	list := b.registry.List()
	if len(list) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You have the following tools available:\n")
	for _, tool := range list {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description()))
	}
	return strings.TrimSpace(sb.String())
}

// BuildMessages constructs the message list for the LLM: system
// prompt, prior history, then the current message. The history was
// saved before this call, so its last entry is the current message
// and is excluded. Tool turns are not replayed; without their call
// ids the API would reject them.
func (b *ContextBuilder) BuildMessages(history []memory.StoredMessage, current *bus.UserMessage) []provider.Message {
	messages := []provider.Message{
		{Role: "system", Content: b.BuildSystemPrompt()},
	}

	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Content == current.Content {
		history = history[:n-1]
	}

	for _, msg := range history {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		if msg.Content == "" {
			continue
		}
		messages = append(messages, provider.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	messages = append(messages, provider.Message{
		Role:    "user",
		Content: current.Content,
	})

	return messages
}

// ToolDefinitions renders the registry for the provider layer.
func (b *ContextBuilder) ToolDefinitions() []provider.ToolDefinition {
	if b.registry == nil {
		return nil
	}
	list := b.registry.List()
	defs := make([]provider.ToolDefinition, 0, len(list))
	for _, tool := range list {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}
