package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name under the home dir.
	ConfigDir = ".loomclaw"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path of the config file. LOOMCLAW_CONFIG
// overrides the default ~/.loomclaw/config.json; LOOMCLAW_HOME
// overrides what counts as home.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("LOOMCLAW_CONFIG")); explicit != "" {
		return expandTilde(explicit)
	}
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func homeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("LOOMCLAW_HOME")); h != "" {
		return expandTilde(h)
	}
	return os.UserHomeDir()
}

func expandTilde(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	base, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, p[1:]), nil
}

// Load builds the effective configuration. Precedence, lowest to
// highest: DefaultConfig, the config file (with $include files merged
// underneath it), then LOOMCLAW_* environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Populate the process environment from the optional env file
	// before anything reads it.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err == nil {
		data, ferr := resolveConfigFile(path)
		switch {
		case ferr == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(ferr):
			return nil, ferr
		}
	}

	for _, group := range []struct {
		prefix string
		target any
	}{
		{"LOOMCLAW_PATHS", &cfg.Paths},
		{"LOOMCLAW_MODEL", &cfg.Model},
		{"LOOMCLAW_OPENAI", &cfg.Providers.OpenAI},
		{"LOOMCLAW_OPENROUTER", &cfg.Providers.OpenRouter},
		{"LOOMCLAW_DEEPSEEK", &cfg.Providers.DeepSeek},
		{"LOOMCLAW_GROQ", &cfg.Providers.Groq},
		{"LOOMCLAW_VLLM", &cfg.Providers.VLLM},
		{"LOOMCLAW_CHANNELS", &cfg.Channels.Slack},
		{"LOOMCLAW_CHANNELS", &cfg.Channels.Kafka},
		{"LOOMCLAW", &cfg.Memory},
		{"LOOMCLAW_SCHEDULER", &cfg.Scheduler},
		{"LOOMCLAW_SUBAGENTS", &cfg.Subagents},
		{"LOOMCLAW_TOOLS_EXEC", &cfg.Tools.Exec},
	} {
		_ = envconfig.Process(group.prefix, group.target)
	}

	// Bare provider keys work without any config file.
	if cfg.Providers.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Providers.OpenAI.APIKey = key
		} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Providers.OpenAI.APIKey = key
		}
	}

	for _, p := range []*string{
		&cfg.Paths.Workspace,
		&cfg.Paths.StateDir,
		&cfg.Memory.Path,
		&cfg.Subagents.Dir,
	} {
		if expanded, err := expandTilde(*p); err == nil {
			*p = expanded
		}
	}

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir creates a directory if it does not exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// resolveConfigFile loads a config file, merges its $include chain and
// substitutes ${ENV} references, returning the flattened JSON.
func resolveConfigFile(path string) ([]byte, error) {
	r := &includeResolver{active: map[string]bool{}}
	obj, err := r.load(path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// includeResolver walks $include chains. active holds the files
// currently being expanded, for cycle detection.
type includeResolver struct {
	active map[string]bool
}

func (r *includeResolver) load(path string) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if r.active[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	r.active[abs] = true
	defer delete(r.active, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	merged := map[string]any{}
	if inc, ok := raw["$include"]; ok {
		files, err := parseIncludes(inc)
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(abs)
		for _, f := range files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(dir, f)
			}
			child, err := r.load(f)
			if err != nil {
				return nil, err
			}
			deepMerge(merged, child)
		}
		delete(raw, "$include")
	}
	substituteEnvValues(raw)
	deepMerge(merged, raw)
	return merged, nil
}

// parseIncludes accepts a single path or an array of paths; blank
// entries are dropped.
func parseIncludes(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$include entries must be strings")
			}
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$include must be a string or array of strings")
	}
}

// deepMerge overlays src onto dst. Objects merge recursively; any other
// value in src replaces the dst value wholesale.
func deepMerge(dst, src map[string]any) {
	for key, val := range src {
		srcMap, ok := val.(map[string]any)
		if !ok {
			dst[key] = val
			continue
		}
		dstMap, ok := dst[key].(map[string]any)
		if !ok {
			dstMap = map[string]any{}
			dst[key] = dstMap
		}
		deepMerge(dstMap, srcMap)
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvValues rewrites ${NAME} in string values with the
// environment variable's value. Unset names are left as written.
func substituteEnvValues(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = substituteEnvValues(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = substituteEnvValues(item)
		}
		return t
	case string:
		return envPattern.ReplaceAllStringFunc(t, func(match string) string {
			name := envPattern.FindStringSubmatch(match)[1]
			if value, ok := os.LookupEnv(name); ok {
				return value
			}
			return match
		})
	default:
		return v
	}
}
