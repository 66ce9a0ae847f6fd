package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

// Manager owns the subagent table. All mutations go through it; every
// state change is flushed to disk before it becomes observable. The
// in-memory table holds live subagents only: a terminal transition is
// persisted, announced, and the entry dropped, leaving the durable
// record on disk.
type Manager struct {
	registry *tools.Registry
	bus      *bus.Bus
	dir      string

	mu      sync.Mutex
	agents  map[string]*Subagent
	handles map[string]*handle

	wg sync.WaitGroup
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager persisting subagent state under dir.
func NewManager(dir string, registry *tools.Registry, b *bus.Bus) *Manager {
	return &Manager{
		registry: registry,
		bus:      b,
		dir:      dir,
		agents:   make(map[string]*Subagent),
		handles:  make(map[string]*handle),
	}
}

// Start scans the state directory for records left behind by a
// previous process. Anything still non-terminal on disk can no longer
// be running, so it is force-failed and announced.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create subagent dir: %w", err)
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read subagent dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("failed to read subagent record", "path", path, "error", err)
			continue
		}
		var sa Subagent
		if err := json.Unmarshal(raw, &sa); err != nil {
			slog.Warn("failed to decode subagent record", "path", path, "error", err)
			continue
		}
		if sa.State.Terminal() {
			continue
		}

		now := time.Now()
		sa.State = StateFailed
		sa.Error = "interrupted by shutdown"
		sa.CompletedAt = &now
		if err := m.persist(&sa); err != nil {
			slog.Error("failed to persist recovered subagent", "id", sa.ID, "error", err)
			continue
		}
		slog.Info("recovered interrupted subagent", "id", sa.ID, "name", sa.Name)
		m.announce(ctx, &sa)
	}
	return nil
}

// Create registers a new subagent and launches it. The Created record
// hits disk before the worker goroutine starts. The originating
// platform and user id are captured from the trigger so the record
// stays routable even after the trigger message is gone.
func (m *Manager) Create(name, tool string, params map[string]any, trigger *bus.UserMessage, metadata map[string]string) (*Subagent, error) {
	if _, ok := m.registry.Get(tool); !ok {
		return nil, fmt.Errorf("unknown tool: %s", tool)
	}

	sa := &Subagent{
		ID:             uuid.NewString(),
		Name:           name,
		State:          StateCreated,
		Tool:           tool,
		ToolParams:     params,
		Metadata:       metadata,
		TriggerMessage: trigger,
		CreatedAt:      time.Now(),
	}
	if trigger != nil {
		sa.Platform = trigger.Platform
		sa.UserID = trigger.UserID
	}
	if err := m.persist(sa); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.agents[sa.ID] = sa
	m.handles[sa.ID] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, sa.ID, h)

	return clone(sa), nil
}

// Get returns a copy of the subagent, if still live. Terminal
// subagents are no longer in the table.
func (m *Manager) Get(id string) (*Subagent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.agents[id]
	if !ok {
		return nil, false
	}
	return clone(sa), true
}

// List returns copies of all tracked subagents.
func (m *Manager) List() []*Subagent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subagent, 0, len(m.agents))
	for _, sa := range m.agents {
		out = append(out, clone(sa))
	}
	return out
}

// ListForUser returns copies of the subagents created by one user,
// matched on the originating platform and user id.
func (m *Manager) ListForUser(platform, userID string) []*Subagent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Subagent, 0, len(m.agents))
	for _, sa := range m.agents {
		if sa.Platform == platform && sa.UserID == userID {
			out = append(out, clone(sa))
		}
	}
	return out
}

// UpdateProgress records progress for a running subagent.
func (m *Manager) UpdateProgress(id string, progress int, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.agents[id]
	if !ok || sa.State.Terminal() {
		return
	}
	sa.Progress = progress
	sa.StatusMessage = status
	if err := m.persist(sa); err != nil {
		slog.Warn("failed to persist subagent progress", "id", id, "error", err)
	}
}

// Cancel requests cancellation of a running subagent. It reports false
// for unknown ids and for subagents not currently running; those keep
// their state.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	sa, ok := m.agents[id]
	if !ok || sa.State != StateRunning {
		m.mu.Unlock()
		return false
	}
	now := time.Now()
	sa.State = StateCancelled
	sa.StatusMessage = "cancelled"
	sa.CompletedAt = &now
	if err := m.persist(sa); err != nil {
		slog.Error("failed to persist cancelled subagent", "id", id, "error", err)
	}
	snapshot := clone(sa)
	h := m.handles[id]
	delete(m.handles, id)
	delete(m.agents, id)
	m.mu.Unlock()

	if h != nil {
		h.cancel()
	}
	m.announce(context.Background(), snapshot)
	slog.Info("subagent cancelled", "id", id, "name", snapshot.Name)
	return true
}

// Stop cancels everything still in flight and waits for the workers
// to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	m.wg.Wait()
}

// run drives one subagent from Created through a terminal state.
func (m *Manager) run(ctx context.Context, id string, h *handle) {
	defer m.wg.Done()
	defer close(h.done)
	defer func() {
		if rec := recover(); rec != nil {
			m.finish(id, "", fmt.Errorf("subagent panicked: %v", rec))
		}
	}()

	m.mu.Lock()
	sa, ok := m.agents[id]
	if !ok || sa.State != StateCreated {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	sa.State = StateRunning
	sa.StartedAt = &now
	tool, params := sa.Tool, sa.ToolParams
	if err := m.persist(sa); err != nil {
		slog.Error("failed to persist running subagent", "id", id, "error", err)
	}
	m.mu.Unlock()

	result, err := m.registry.Execute(ctx, tool, params)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	m.finish(id, result, err)
}

// finish applies the terminal transition unless cancellation already
// did. Exactly one terminal transition wins.
func (m *Manager) finish(id, result string, runErr error) {
	m.mu.Lock()
	sa, ok := m.agents[id]
	if !ok || sa.State.Terminal() {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	sa.CompletedAt = &now
	switch {
	case runErr == nil:
		sa.State = StateCompleted
		sa.Result = result
		sa.Progress = 100
	case errors.Is(runErr, context.Canceled):
		sa.State = StateCancelled
		sa.StatusMessage = "cancelled"
	default:
		sa.State = StateFailed
		sa.Error = runErr.Error()
	}
	if err := m.persist(sa); err != nil {
		slog.Error("failed to persist finished subagent", "id", id, "error", err)
	}
	snapshot := clone(sa)
	delete(m.handles, id)
	delete(m.agents, id)
	m.mu.Unlock()

	m.announce(context.Background(), snapshot)
	slog.Info("subagent finished", "id", id, "name", snapshot.Name, "state", snapshot.State)
}

// announce publishes the terminal notification on the bus.
func (m *Manager) announce(ctx context.Context, sa *Subagent) {
	if m.bus == nil {
		return
	}
	msg := &Completed{
		ID:       uuid.NewString(),
		Time:     time.Now(),
		Platform: sa.Platform,
		UserID:   sa.UserID,
		Subagent: *sa,
	}
	if err := m.bus.Publish(ctx, msg); err != nil {
		slog.Warn("failed to announce subagent completion", "id", sa.ID, "error", err)
	}
}

// persist writes the record atomically via temp file and rename.
func (m *Manager) persist(sa *Subagent) error {
	raw, err := json.MarshalIndent(sa, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode subagent %s: %w", sa.ID, err)
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create subagent dir: %w", err)
	}
	path := filepath.Join(m.dir, sa.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write subagent record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit subagent record: %w", err)
	}
	return nil
}

// StatusJSON renders one subagent (or all of them when id is empty)
// for tool consumption.
func (m *Manager) StatusJSON(id string) (string, error) {
	if id != "" {
		sa, ok := m.Get(id)
		if !ok {
			return "", fmt.Errorf("unknown subagent: %s", id)
		}
		raw, err := json.Marshal(sa)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	raw, err := json.Marshal(map[string]any{"subagents": m.List()})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// StatusJSONForUser is StatusJSON scoped to one user's subagents.
// Asking for another user's id reports it as unknown.
func (m *Manager) StatusJSONForUser(platform, userID, id string) (string, error) {
	if id != "" {
		sa, ok := m.Get(id)
		if !ok || sa.Platform != platform || sa.UserID != userID {
			return "", fmt.Errorf("unknown subagent: %s", id)
		}
		raw, err := json.Marshal(sa)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	raw, err := json.Marshal(map[string]any{"subagents": m.ListForUser(platform, userID)})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func clone(sa *Subagent) *Subagent {
	out := *sa
	if sa.ToolParams != nil {
		out.ToolParams = make(map[string]any, len(sa.ToolParams))
		for k, v := range sa.ToolParams {
			out.ToolParams[k] = v
		}
	}
	if sa.Metadata != nil {
		out.Metadata = make(map[string]string, len(sa.Metadata))
		for k, v := range sa.Metadata {
			out.Metadata[k] = v
		}
	}
	if sa.StartedAt != nil {
		t := *sa.StartedAt
		out.StartedAt = &t
	}
	if sa.CompletedAt != nil {
		t := *sa.CompletedAt
		out.CompletedAt = &t
	}
	if sa.TriggerMessage != nil {
		msg := *sa.TriggerMessage
		out.TriggerMessage = &msg
	}
	return &out
}
