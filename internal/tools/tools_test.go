package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name   string
	exec   func(ctx context.Context, params map[string]any) (string, error)
	schema map[string]any
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Parameters() map[string]any {
	if t.schema != nil {
		return t.schema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *stubTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.exec(ctx, params)
}

func TestRegistryExecute(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{
		name: "echo",
		exec: func(_ context.Context, params map[string]any) (string, error) {
			return GetString(params, "text", ""), nil
		},
	})

	out, err := reg.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", out)

	_, err = reg.Execute(context.Background(), "missing", nil)
	require.ErrorContains(t, err, "tool not found")
}

func TestRegistryValidatesRequiredParams(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{
		name: "strict",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		exec: func(_ context.Context, _ map[string]any) (string, error) {
			return "ok", nil
		},
	})

	_, err := reg.Execute(context.Background(), "strict", map[string]any{})
	require.ErrorContains(t, err, "missing required parameter")

	out, err := reg.Execute(context.Background(), "strict", map[string]any{"path": "x"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestRegistryRecoversPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{
		name: "boom",
		exec: func(_ context.Context, _ map[string]any) (string, error) {
			panic("kaboom")
		},
	})

	_, err := reg.Execute(context.Background(), "boom", nil)
	require.ErrorContains(t, err, "panicked")
}

func TestRegistryDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewReadFileTool())
	reg.Register(NewListDirTool())

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	for _, def := range defs {
		require.Equal(t, "function", def["type"])
		fn, ok := def["function"].(map[string]any)
		require.True(t, ok)
		require.NotEmpty(t, fn["name"])
	}
}

func TestReadWriteListTools(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	write := NewWriteFileTool(func() string { return dir })
	out, err := write.Execute(ctx, map[string]any{
		"path":    filepath.Join(dir, "sub", "notes.txt"),
		"content": "remember the milk",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Successfully wrote")

	read := NewReadFileTool()
	out, err = read.Execute(ctx, map[string]any{"path": filepath.Join(dir, "sub", "notes.txt")})
	require.NoError(t, err)
	require.Equal(t, "remember the milk", out)

	list := NewListDirTool()
	out, err = list.Execute(ctx, map[string]any{"path": dir})
	require.NoError(t, err)
	require.Contains(t, out, "[DIR]  sub/")
}

func TestWriteFileToolRejectsOutsideWorkspace(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	write := NewWriteFileTool(func() string { return dir })
	out, err := write.Execute(context.Background(), map[string]any{
		"path":    filepath.Join(outside, "escape.txt"),
		"content": "nope",
	})
	require.NoError(t, err)
	require.Contains(t, out, "outside workspace")
	_, statErr := os.Stat(filepath.Join(outside, "escape.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestEditFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(path, []byte("mode=debug\n"), 0644))

	edit := NewEditFileTool(func() string { return dir })
	out, err := edit.Execute(context.Background(), map[string]any{
		"path":     path,
		"old_text": "debug",
		"new_text": "release",
	})
	require.NoError(t, err)
	require.Contains(t, out, "Successfully edited")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "mode=release\n", string(content))
}

func TestSubagentTools(t *testing.T) {
	ctx := context.Background()

	spawn := NewSubagentSpawnTool(func(_ context.Context, name, tool string, params map[string]any, metadata map[string]string) (string, error) {
		require.Equal(t, "checker", name)
		require.Equal(t, "exec", tool)
		require.Equal(t, "uptime", params["command"])
		require.Equal(t, map[string]string{"origin": "chat"}, metadata)
		return "sa-1", nil
	})
	out, err := spawn.Execute(ctx, map[string]any{
		"name":       "checker",
		"tool":       "exec",
		"parameters": map[string]any{"command": "uptime"},
		"metadata":   map[string]any{"origin": "chat", "retries": 3},
	})
	require.NoError(t, err)
	var spawned map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &spawned))
	require.Equal(t, "sa-1", spawned["id"])

	_, err = spawn.Execute(ctx, map[string]any{})
	require.ErrorContains(t, err, "tool is required")

	status := NewSubagentStatusTool(func(_ context.Context, id string) (string, error) {
		if id == "sa-1" {
			return `{"state":"running"}`, nil
		}
		return "", fmt.Errorf("unknown subagent: %s", id)
	})
	out, err = status.Execute(ctx, map[string]any{"id": "sa-1"})
	require.NoError(t, err)
	require.Contains(t, out, "running")

	cancel := NewSubagentCancelTool(func(id string) bool { return id == "sa-1" })
	out, err = cancel.Execute(ctx, map[string]any{"id": "sa-1"})
	require.NoError(t, err)
	require.Contains(t, out, `"cancelled":true`)
}
