package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// denyPatterns match commands that are never run, workspace restriction
// or not. The list errs toward false positives; a blocked command comes
// back to the model as a result it can work around.
var denyPatterns = compilePatterns([]string{
	`\brm\s+(-[rf]+\s+)*[/~]`,
	`\brm\s+-rf\b`,
	`\brm\s+-r[fF]?\s+\.\b`,
	`\brm\s+-r[fF]?\s+\*`,
	`\brm\s+\*`,
	`\bfind\b.*\b-delete\b`,
	`\bdd\b.*\bof=/dev/`,
	`\bmkfs\b`,
	`\bfdisk\b`,
	`>\s*/dev/`,
	`\bchmod\s+-R\s+777\b`,
	`\bchown\s+-R\b.*[/~]`,
	`\b:(){ :|:& };:\b`,
	`\bshutdown\b`,
	`\breboot\b`,
	`\bhalt\b`,
	`\binit\s+[0-6]\b`,
	`\bsystemctl\s+(start|stop|restart|enable|disable)\b`,
})

// traversalPatterns match ".."-style escapes, checked only when the
// tool is workspace-restricted.
var traversalPatterns = compilePatterns([]string{
	`\.\.\/`,
	`\.\.\\`,
	`\/\.\.`,
	`\\\.\.`,
})

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

var errCommandBlocked = errors.New("Error: command blocked by safety policy")

// ExecTool runs shell commands with a timeout, a deny list, and an
// optional workspace restriction on the working directory.
type ExecTool struct {
	Timeout             time.Duration
	RestrictToWorkspace bool
	WorkDir             string
	workspaceGetter     func() string
}

// NewExecTool creates an ExecTool. workspaceGetter may be nil; when set
// it supplies the current workspace both as the default working
// directory and as an additional allowed root.
func NewExecTool(timeout time.Duration, restrictToWorkspace bool, workDir string, workspaceGetter func() string) *ExecTool {
	return &ExecTool{
		Timeout:             timeout,
		RestrictToWorkspace: restrictToWorkspace,
		WorkDir:             workDir,
		workspaceGetter:     workspaceGetter,
	}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output."
}

func (t *ExecTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Optional working directory for the command",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command := GetString(params, "command", "")
	if command == "" {
		return "Error: command is required", nil
	}
	workingDir := GetString(params, "working_dir", t.defaultWorkDir())

	if err := t.guard(command, workingDir); err != nil {
		return err.Error(), nil
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	out := combineOutput(&stdout, &stderr)
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out after %v\n%s", timeout, out), nil
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return fmt.Sprintf("Error executing command: %v", runErr), nil
		}
		out += fmt.Sprintf("\nExit code: %d", exitErr.ExitCode())
	}
	if out == "" {
		return "(no output)", nil
	}
	return out, nil
}

func combineOutput(stdout, stderr *bytes.Buffer) string {
	var b strings.Builder
	b.WriteString(stdout.String())
	if stderr.Len() > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n")
		b.WriteString(stderr.String())
	}
	return b.String()
}

// guard rejects denied commands and, under workspace restriction,
// traversal attempts and working directories outside the allowed roots.
func (t *ExecTool) guard(command, workingDir string) error {
	for _, re := range denyPatterns {
		if re.MatchString(command) {
			return errCommandBlocked
		}
	}
	if !t.RestrictToWorkspace || t.WorkDir == "" {
		return nil
	}
	for _, re := range traversalPatterns {
		if re.MatchString(command) {
			return errors.New("Error: path traversal not allowed")
		}
	}
	if workingDir == "" {
		return nil
	}
	absDir, err := filepath.Abs(workingDir)
	if err != nil {
		return errCommandBlocked
	}
	for _, root := range t.allowedRoots() {
		if strings.HasPrefix(absDir, root) {
			return nil
		}
	}
	return errCommandBlocked
}

func (t *ExecTool) allowedRoots() []string {
	var roots []string
	if abs, err := filepath.Abs(t.WorkDir); err == nil && abs != "" {
		roots = append(roots, abs)
	}
	if t.workspaceGetter != nil {
		if ws := t.workspaceGetter(); ws != "" {
			if abs, err := filepath.Abs(ws); err == nil {
				roots = append(roots, abs)
			}
		}
	}
	return roots
}

func (t *ExecTool) defaultWorkDir() string {
	if t.workspaceGetter != nil {
		if ws := t.workspaceGetter(); ws != "" {
			return ws
		}
	}
	return t.WorkDir
}
