package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SpawnFunc launches a background subagent running the named tool and
// returns its id.
type SpawnFunc func(ctx context.Context, name, tool string, params map[string]any, metadata map[string]string) (string, error)

// StatusFunc returns a JSON status document for one subagent, or for
// the caller's subagents when id is empty.
type StatusFunc func(ctx context.Context, id string) (string, error)

// CancelFunc requests cancellation of a running subagent. It reports
// whether the subagent transitioned to cancelled.
type CancelFunc func(id string) bool

// SubagentSpawnTool lets the model delegate long work to a background
// subagent instead of blocking the conversation.
type SubagentSpawnTool struct {
	spawn SpawnFunc
}

// NewSubagentSpawnTool creates a new SubagentSpawnTool.
func NewSubagentSpawnTool(spawnFn SpawnFunc) *SubagentSpawnTool {
	return &SubagentSpawnTool{spawn: spawnFn}
}

func (t *SubagentSpawnTool) Name() string { return "subagent_spawn" }

func (t *SubagentSpawnTool) Description() string {
	return "Spawn a background subagent that runs a tool asynchronously. Returns the subagent id immediately; completion is announced later."
}

func (t *SubagentSpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Short human-readable label for the subagent",
			},
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the tool the subagent should run",
			},
			"parameters": map[string]any{
				"type":        "object",
				"description": "Parameters passed to the tool",
			},
			"metadata": map[string]any{
				"type":        "object",
				"description": "Optional string key/value tags stored on the subagent record",
			},
		},
		"required": []string{"tool"},
	}
}

func (t *SubagentSpawnTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t.spawn == nil {
		return "", fmt.Errorf("subagent_spawn unavailable")
	}
	tool := strings.TrimSpace(GetString(params, "tool", ""))
	if tool == "" {
		return "", fmt.Errorf("tool is required")
	}
	name := strings.TrimSpace(GetString(params, "name", ""))
	if name == "" {
		name = tool
	}
	id, err := t.spawn(ctx, name, tool, GetMap(params, "parameters"), stringMap(GetMap(params, "metadata")))
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]any{
		"status": "spawned",
		"id":     id,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// stringMap keeps the string-valued entries of a decoded JSON object.
func stringMap(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SubagentStatusTool reports the state of the caller's subagents.
type SubagentStatusTool struct {
	status StatusFunc
}

// NewSubagentStatusTool creates a new SubagentStatusTool.
func NewSubagentStatusTool(statusFn StatusFunc) *SubagentStatusTool {
	return &SubagentStatusTool{status: statusFn}
}

func (t *SubagentStatusTool) Name() string { return "subagent_status" }

func (t *SubagentStatusTool) Description() string {
	return "Report the status of a subagent by id, or of all your subagents when no id is given."
}

func (t *SubagentStatusTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Subagent id (omit to list all)",
			},
		},
	}
}

func (t *SubagentStatusTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if t.status == nil {
		return "", fmt.Errorf("subagent_status unavailable")
	}
	return t.status(ctx, strings.TrimSpace(GetString(params, "id", "")))
}

// SubagentCancelTool cancels a running subagent.
type SubagentCancelTool struct {
	cancel CancelFunc
}

// NewSubagentCancelTool creates a new SubagentCancelTool.
func NewSubagentCancelTool(cancelFn CancelFunc) *SubagentCancelTool {
	return &SubagentCancelTool{cancel: cancelFn}
}

func (t *SubagentCancelTool) Name() string { return "subagent_cancel" }

func (t *SubagentCancelTool) Description() string {
	return "Cancel a running subagent by id."
}

func (t *SubagentCancelTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "Subagent id to cancel",
			},
		},
		"required": []string{"id"},
	}
}

func (t *SubagentCancelTool) Execute(_ context.Context, params map[string]any) (string, error) {
	if t.cancel == nil {
		return "", fmt.Errorf("subagent_cancel unavailable")
	}
	id := strings.TrimSpace(GetString(params, "id", ""))
	if id == "" {
		return "", fmt.Errorf("id is required")
	}
	out, err := json.Marshal(map[string]any{
		"id":        id,
		"cancelled": t.cancel(id),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
