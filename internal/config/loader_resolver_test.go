package config

import "testing"

func TestLoadMergesIncludeChain(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TEST_MODEL", "env-model")

	writeConfigFile(t, home, "base.json", `{
		"model": { "name": "base-model", "maxTokens": 1024 },
		"memory": { "partition": "daily" }
	}`)
	writeConfigFile(t, home, "config.json", `{
		"$include": "base.json",
		"model": { "name": "${TEST_MODEL}" },
		"memory": { "partition": "weekly" }
	}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "env-model" {
		t.Errorf("Model.Name = %q, want env substitution applied", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 1024 {
		t.Errorf("Model.MaxTokens = %d, want value from included file", cfg.Model.MaxTokens)
	}
	if cfg.Memory.Partition != "weekly" {
		t.Errorf("Memory.Partition = %q, want top-level override", cfg.Memory.Partition)
	}
}

func TestLoadIncludeArrayLaterWins(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	writeConfigFile(t, home, "first.json", `{"model": {"name": "first", "maxTokens": 1000}}`)
	writeConfigFile(t, home, "second.json", `{"model": {"name": "second"}}`)
	writeConfigFile(t, home, "config.json",
		`{"$include": ["first.json", "second.json"], "model": {"temperature": 0.3}}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Model.Name != "second" {
		t.Errorf("Model.Name = %q, later include should win", cfg.Model.Name)
	}
	if cfg.Model.MaxTokens != 1000 {
		t.Errorf("Model.MaxTokens = %d, earlier include value should survive", cfg.Model.MaxTokens)
	}
	if cfg.Model.Temperature != 0.3 {
		t.Errorf("Model.Temperature = %v, top-level value should apply", cfg.Model.Temperature)
	}
}

func TestLoadRejectsBadIncludes(t *testing.T) {
	t.Run("non-string include", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		writeConfigFile(t, home, "config.json", `{"$include": 123}`)

		if _, err := Load(); err == nil {
			t.Fatal("expected invalid $include error, got nil")
		}
	})

	t.Run("include cycle", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		writeConfigFile(t, home, "config.json", `{"$include": "a.json"}`)
		writeConfigFile(t, home, "a.json", `{"$include": "b.json"}`)
		writeConfigFile(t, home, "b.json", `{"$include": "a.json"}`)

		if _, err := Load(); err == nil {
			t.Fatal("expected include cycle error, got nil")
		}
	})
}

func TestParseIncludes(t *testing.T) {
	got, err := parseIncludes("one.json")
	if err != nil || len(got) != 1 || got[0] != "one.json" {
		t.Fatalf("single include: got=%v err=%v", got, err)
	}
	got, err = parseIncludes([]any{"one.json", " ", "two.json"})
	if err != nil || len(got) != 2 {
		t.Fatalf("array include should drop blanks: got=%v err=%v", got, err)
	}
	if _, err := parseIncludes([]any{"ok.json", 42}); err == nil {
		t.Fatal("expected error for non-string include entry")
	}
	if _, err := parseIncludes(map[string]any{}); err == nil {
		t.Fatal("expected error for object include")
	}
}
