package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// objectSchema builds the JSON schema for a tool whose parameters are
// all strings.
func objectSchema(required []string, props ...[2]string) map[string]any {
	properties := make(map[string]any, len(props))
	for _, p := range props {
		properties[p[0]] = map[string]any{
			"type":        "string",
			"description": p[1],
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// expandPath resolves ~ and makes the path absolute.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func normalizeRoot(root string) string {
	if root == "" {
		return ""
	}
	return expandPath(root)
}

// isWithin reports whether path sits under root. An empty root means
// unrestricted.
func isWithin(root, path string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// workspaceRootFunc wraps a getter so mutating tools always see the
// current, normalized workspace.
func workspaceRootFunc(getter func() string) func() string {
	if getter == nil {
		return func() string { return "" }
	}
	return func() string { return normalizeRoot(getter()) }
}

// ReadFileTool reads files anywhere the process can.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the specified path."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return objectSchema([]string{"path"},
		[2]string{"path", "The path to the file to read"})
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path := GetString(params, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}
	path = expandPath(path)

	content, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Sprintf("Error: file not found: %s", path), nil
	case os.IsPermission(err):
		return fmt.Sprintf("Error: permission denied: %s", path), nil
	case err != nil:
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	return string(content), nil
}

// WriteFileTool writes files. Writes stay inside the workspace when one
// is configured.
type WriteFileTool struct {
	workspaceRoot func() string
}

func NewWriteFileTool(workspaceGetter func() string) *WriteFileTool {
	return &WriteFileTool{workspaceRoot: workspaceRootFunc(workspaceGetter)}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file at the specified path. Creates parent directories if needed. Writes are restricted to the workspace."
}

func (t *WriteFileTool) Parameters() map[string]any {
	return objectSchema([]string{"path", "content"},
		[2]string{"path", "The path to the file to write"},
		[2]string{"content", "The content to write to the file"})
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path := GetString(params, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}
	content := GetString(params, "content", "")

	path = expandPath(path)
	if root := t.workspaceRoot(); root != "" && !isWithin(root, path) {
		return "Error: path outside workspace.", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Sprintf("Error creating directory: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: permission denied: %s", path), nil
		}
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool replaces the first occurrence of a text fragment in a
// file. Same workspace restriction as WriteFileTool.
type EditFileTool struct {
	workspaceRoot func() string
}

func NewEditFileTool(workspaceGetter func() string) *EditFileTool {
	return &EditFileTool{workspaceRoot: workspaceRootFunc(workspaceGetter)}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing text. Useful for making targeted changes. Edits are restricted to the workspace."
}

func (t *EditFileTool) Parameters() map[string]any {
	return objectSchema([]string{"path", "old_text", "new_text"},
		[2]string{"path", "The path to the file to edit"},
		[2]string{"old_text", "The text to find and replace"},
		[2]string{"new_text", "The replacement text"})
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path := GetString(params, "path", "")
	if path == "" {
		return "Error: path is required", nil
	}
	oldText := GetString(params, "old_text", "")
	if oldText == "" {
		return "Error: old_text is required", nil
	}
	newText := GetString(params, "new_text", "")

	path = expandPath(path)
	if root := t.workspaceRoot(); root != "" && !isWithin(root, path) {
		return "Error: path outside workspace.", nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: file not found: %s", path), nil
		}
		return fmt.Sprintf("Error reading file: %v", err), nil
	}
	text := string(content)
	if !strings.Contains(text, oldText) {
		return fmt.Sprintf("Error: text not found in file: %s", path), nil
	}
	updated := strings.Replace(text, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}
	return fmt.Sprintf("Successfully edited %s", path), nil
}

// ListDirTool lists a directory.
type ListDirTool struct{}

func NewListDirTool() *ListDirTool { return &ListDirTool{} }

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the contents of a directory."
}

func (t *ListDirTool) Parameters() map[string]any {
	return objectSchema([]string{"path"},
		[2]string{"path", "The directory path to list"})
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	path := expandPath(GetString(params, "path", "."))

	entries, err := os.ReadDir(path)
	switch {
	case os.IsNotExist(err):
		return fmt.Sprintf("Error: directory not found: %s", path), nil
	case os.IsPermission(err):
		return fmt.Sprintf("Error: permission denied: %s", path), nil
	case err != nil:
		return fmt.Sprintf("Error reading directory: %v", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s:\n", path)
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "  [DIR]  %s/\n", entry.Name())
			continue
		}
		if info, err := entry.Info(); err == nil {
			fmt.Fprintf(&b, "  [FILE] %s (%d bytes)\n", entry.Name(), info.Size())
		} else {
			fmt.Fprintf(&b, "  [FILE] %s\n", entry.Name())
		}
	}
	return b.String(), nil
}
