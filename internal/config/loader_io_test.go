package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"
	cfg.Memory.Partition = "monthly"
	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.Model.Name != "saved-model" {
		t.Errorf("Model.Name = %q after round trip", loaded.Model.Name)
	}
	if loaded.Memory.Partition != "monthly" {
		t.Errorf("Memory.Partition = %q after round trip", loaded.Memory.Partition)
	}
}

func TestEnsureDirCreatesNestedPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("ensure dir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s, err=%v", dir, err)
	}
}

func TestLoadInvalidJSONReturnsError(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfigFile(t, home, "config.json", `{"model":`)

	if _, err := Load(); err == nil {
		t.Fatal("expected JSON error, got nil")
	}
}

func TestSubstituteEnvValues(t *testing.T) {
	t.Setenv("SUBST_SET_VAR", "resolved")

	input := map[string]any{
		"known":   "${SUBST_SET_VAR}",
		"unknown": "${SUBST_NOT_SET_VAR}",
		"nested":  []any{"${SUBST_SET_VAR}-suffix"},
	}
	out := substituteEnvValues(input).(map[string]any)
	if out["known"] != "resolved" {
		t.Errorf("known = %v, want resolved", out["known"])
	}
	if out["unknown"] != "${SUBST_NOT_SET_VAR}" {
		t.Errorf("unknown token should stay as written, got %v", out["unknown"])
	}
	if nested := out["nested"].([]any); nested[0] != "resolved-suffix" {
		t.Errorf("nested = %v, want resolved-suffix", nested[0])
	}
}

// writeConfigFile drops a file into HOME/.loomclaw.
func writeConfigFile(t *testing.T, home, name, content string) {
	t.Helper()
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
