package skills

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LoomClaw/LoomClaw/internal/tools"
)

func TestLoadAllRegistersWholeCatalogByDefault(t *testing.T) {
	reg := tools.NewRegistry()
	catalog := Builtin(t.TempDir())

	loaded := LoadAll(nil, catalog, reg)
	require.Equal(t, len(catalog), loaded)

	_, ok := reg.Get("current_time")
	require.True(t, ok)
	_, ok = reg.Get("save_note")
	require.True(t, ok)
	_, ok = reg.Get("read_notes")
	require.True(t, ok)
}

func TestLoadAllHonorsEnabledList(t *testing.T) {
	reg := tools.NewRegistry()
	catalog := Builtin(t.TempDir())

	loaded := LoadAll([]string{"Datetime"}, catalog, reg)
	require.Equal(t, 1, loaded)

	_, ok := reg.Get("current_time")
	require.True(t, ok)
	_, ok = reg.Get("save_note")
	require.False(t, ok, "notes skill should not be registered")
}

func TestLoadAllIsolatesFailingSkill(t *testing.T) {
	reg := tools.NewRegistry()
	catalog := []Skill{
		{Name: "broken", Register: func(*tools.Registry) error { return errors.New("boom") }},
		{Name: "working", Register: func(r *tools.Registry) error {
			r.Register(&CurrentTimeTool{})
			return nil
		}},
	}

	loaded := LoadAll(nil, catalog, reg)
	require.Equal(t, 1, loaded, "broken skill is skipped, working one loads")

	_, ok := reg.Get("current_time")
	require.True(t, ok)
}

func TestNotesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	save := &SaveNoteTool{Workspace: dir}
	read := &ReadNotesTool{Workspace: dir}

	out, err := read.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "No notes saved yet.", out)

	out, err = save.Execute(context.Background(), map[string]any{"content": "buy coffee beans"})
	require.NoError(t, err)
	require.Equal(t, "Note saved.", out)

	out, err = read.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, out, "buy coffee beans")
}

func TestCurrentTimeRejectsUnknownTimezone(t *testing.T) {
	tool := &CurrentTimeTool{}
	out, err := tool.Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"})
	require.NoError(t, err)
	require.Contains(t, out, "Error: unknown timezone")
}
