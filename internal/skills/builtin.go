package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LoomClaw/LoomClaw/internal/tools"
)

// CurrentTimeTool reports the current date and time.
type CurrentTimeTool struct{}

func (t *CurrentTimeTool) Name() string { return "current_time" }

func (t *CurrentTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone (e.g. Europe/Berlin)."
}

func (t *CurrentTimeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name. Defaults to the server's local timezone.",
			},
		},
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	loc := time.Local
	if tz := strings.TrimSpace(tools.GetString(params, "timezone", "")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Sprintf("Error: unknown timezone %q", tz), nil
		}
		loc = parsed
	}
	now := time.Now().In(loc)
	return now.Format("Monday, January 2, 2006 15:04:05 MST"), nil
}

const notesFile = "notes.md"

// SaveNoteTool appends a timestamped note to the workspace notes file.
type SaveNoteTool struct {
	Workspace string
}

func (t *SaveNoteTool) Name() string { return "save_note" }

func (t *SaveNoteTool) Description() string {
	return "Save a short note for later. Notes are kept in the workspace and survive restarts."
}

func (t *SaveNoteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The note text to save.",
			},
		},
		"required": []string{"content"},
	}
}

func (t *SaveNoteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content := strings.TrimSpace(tools.GetString(params, "content", ""))
	if content == "" {
		return "Error: note content is empty.", nil
	}
	if err := os.MkdirAll(t.Workspace, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}
	path := filepath.Join(t.Workspace, notesFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open notes file: %w", err)
	}
	defer f.Close()
	entry := fmt.Sprintf("- %s %s\n", time.Now().Format("2006-01-02 15:04"), content)
	if _, err := f.WriteString(entry); err != nil {
		return "", fmt.Errorf("failed to write note: %w", err)
	}
	return "Note saved.", nil
}

// ReadNotesTool returns the saved notes.
type ReadNotesTool struct {
	Workspace string
}

func (t *ReadNotesTool) Name() string { return "read_notes" }

func (t *ReadNotesTool) Description() string {
	return "Read back all saved notes."
}

func (t *ReadNotesTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ReadNotesTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	data, err := os.ReadFile(filepath.Join(t.Workspace, notesFile))
	if os.IsNotExist(err) {
		return "No notes saved yet.", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read notes: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "No notes saved yet.", nil
	}
	return string(data), nil
}
