package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

// JobCategory classifies jobs for semaphore-based concurrency limits.
type JobCategory string

const (
	CategoryLLM     JobCategory = "llm"
	CategoryShell   JobCategory = "shell"
	CategoryDefault JobCategory = "default"
)

// JobKind selects what a job emits when its cron expression fires.
type JobKind string

const (
	// KindMessage injects a synthetic user message into the agent loop.
	KindMessage JobKind = "message"
	// KindSend delivers a pre-written message straight to a channel.
	KindSend JobKind = "send"
	// KindTool requests a tool execution outside an agent turn.
	KindTool JobKind = "tool"
)

// Job defines a schedulable unit of work.
type Job struct {
	Name     string      // Unique job identifier.
	Cron     *CronExpr   // Parsed cron expression.
	Kind     JobKind     // What firing the job emits.
	Category JobCategory // For semaphore selection.

	// KindMessage and KindSend.
	Platform string
	UserID   string
	Content  string

	// KindTool.
	Tool       string
	ToolParams map[string]any
}

// Config holds scheduler settings.
type Config struct {
	Enabled        bool          `json:"enabled" envconfig:"ENABLED"`
	TickInterval   time.Duration `json:"tickInterval"`
	MaxConcLLM     int           `json:"maxConcLLM"`
	MaxConcShell   int           `json:"maxConcShell"`
	MaxConcDefault int           `json:"maxConcDefault"`
	LockPath       string        `json:"lockPath"`
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Enabled:        false,
		TickInterval:   60 * time.Second,
		MaxConcLLM:     3,
		MaxConcShell:   1,
		MaxConcDefault: 5,
		LockPath:       filepath.Join(home, ".loomclaw", "scheduler.lock"),
	}
}

// Scheduler manages job registration, tick dispatch, and concurrency control.
type Scheduler struct {
	cfg        Config
	bus        *bus.Bus
	jobs       map[string]*Job
	mu         sync.RWMutex
	semaphores map[JobCategory]*Semaphore
	lock       *FileLock
}

// New creates a Scheduler.
func New(cfg Config, b *bus.Bus) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.MaxConcLLM <= 0 {
		cfg.MaxConcLLM = 3
	}
	if cfg.MaxConcShell <= 0 {
		cfg.MaxConcShell = 1
	}
	if cfg.MaxConcDefault <= 0 {
		cfg.MaxConcDefault = 5
	}
	if cfg.LockPath == "" {
		cfg.LockPath = DefaultConfig().LockPath
	}

	return &Scheduler{
		cfg:  cfg,
		bus:  b,
		jobs: make(map[string]*Job),
		semaphores: map[JobCategory]*Semaphore{
			CategoryLLM:     NewSemaphore(cfg.MaxConcLLM),
			CategoryShell:   NewSemaphore(cfg.MaxConcShell),
			CategoryDefault: NewSemaphore(cfg.MaxConcDefault),
		},
		lock: NewFileLock(cfg.LockPath),
	}
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Kind == "" {
		job.Kind = KindMessage
	}
	s.jobs[job.Name] = job
	slog.Info("Scheduler job registered", "name", job.Name, "kind", job.Kind, "category", job.Category)
}

// Unregister removes a job by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Jobs returns the current registered jobs (snapshot).
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Run starts the scheduler tick loop. Blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "tick", s.cfg.TickInterval, "jobs", len(s.jobs))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick is called every TickInterval. Acquires the global file lock, then
// dispatches any matching jobs.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("Scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("Scheduler tick skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Cron.Matches(now) {
			continue
		}
		s.dispatch(ctx, job, now)
	}
}

// dispatch emits the job's message if a semaphore slot is available.
func (s *Scheduler) dispatch(ctx context.Context, job *Job, now time.Time) {
	sem := s.semaphores[job.Category]
	if sem == nil {
		sem = s.semaphores[CategoryDefault]
	}

	if !sem.TryAcquire() {
		slog.Warn("Scheduler job skipped: concurrency limit", "job", job.Name, "category", job.Category)
		return
	}

	slog.Info("Scheduler dispatching job", "job", job.Name, "kind", job.Kind)

	// Dispatch asynchronously; publish may block on backpressure.
	go func() {
		defer sem.Release()
		if err := s.bus.Publish(ctx, s.message(job, now)); err != nil {
			slog.Warn("Scheduler publish failed", "job", job.Name, "error", err)
		}
	}()
}

// message builds the bus envelope a firing job emits.
func (s *Scheduler) message(job *Job, now time.Time) bus.Envelope {
	switch job.Kind {
	case KindSend:
		msg := bus.NewAgentResponse(job.Platform, job.UserID, job.Content)
		msg.Time = now
		return msg
	case KindTool:
		msg := bus.NewToolInvocation(job.Tool, job.ToolParams, "scheduler:"+job.Name)
		msg.Time = now
		return msg
	default:
		msg := bus.NewUserMessage("scheduler", job.Name, job.Content)
		msg.Time = now
		msg.Metadata = map[string]string{
			"scheduler_job":  job.Name,
			"scheduler_tick": now.Format(time.RFC3339),
		}
		if job.Platform != "" {
			msg.Platform = job.Platform
		}
		if job.UserID != "" {
			msg.UserID = job.UserID
		}
		return msg
	}
}
