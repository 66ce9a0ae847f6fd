// Package tools provides the tool framework and implementations for the agent.
package tools

import (
	"context"
	"fmt"
)

// Tool is the interface that all agent tools must implement.
type Tool interface {
	// Name returns the tool identifier used in function calls.
	Name() string
	// Description returns a human-readable description for the LLM.
	Description() string
	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any
	// Execute runs the tool with the given parameters.
	// Returns result string and error. On error, return user-friendly message.
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Registry manages tool registration and execution.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. A tool with the same name
// replaces the previous registration.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Definitions returns tool definitions in OpenAI function format.
func (r *Registry) Definitions() []map[string]any {
	result := make([]map[string]any, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  tool.Parameters(),
			},
		})
	}
	return result
}

// Execute runs a tool by name with the given parameters. Unknown
// tools, missing required parameters, and panics inside the tool all
// surface as errors; a panic never crosses this boundary.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (result string, err error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}
	if err := validateParams(tool, params); err != nil {
		return "", err
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	return tool.Execute(ctx, params)
}

// validateParams checks params against the tool's declared schema.
// Only required-key presence is enforced; type coercion is left to the
// parameter helpers so sloppy model output still has a chance to work.
func validateParams(tool Tool, params map[string]any) error {
	schema := tool.Parameters()
	switch required := schema["required"].(type) {
	case []string:
		for _, key := range required {
			if _, ok := params[key]; !ok {
				return fmt.Errorf("tool %s: missing required parameter %q", tool.Name(), key)
			}
		}
	case []any:
		for _, k := range required {
			key, ok := k.(string)
			if !ok {
				continue
			}
			if _, ok := params[key]; !ok {
				return fmt.Errorf("tool %s: missing required parameter %q", tool.Name(), key)
			}
		}
	}
	return nil
}

// GetString extracts a string parameter with a default value.
func GetString(params map[string]any, key string, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int parameter with a default value.
func GetInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool parameter with a default value.
func GetBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetMap extracts a nested object parameter.
func GetMap(params map[string]any, key string) map[string]any {
	if v, ok := params[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
