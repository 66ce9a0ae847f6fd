package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/LoomClaw/LoomClaw/internal/bus"
)

func recvEnvelope(t *testing.T, sub *bus.Subscription, timeout time.Duration) bus.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	env, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	return env
}

func TestSchedulerDispatchesMessageJob(t *testing.T) {
	b := bus.New(0)
	defer b.Close()
	sub, err := b.Subscribe(bus.TopicUserMessage)
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{
		Enabled:        true,
		TickInterval:   50 * time.Millisecond,
		MaxConcDefault: 5,
		LockPath:       t.TempDir() + "/test.lock",
	}, b)

	cron, _ := ParseCron("* * * * *")
	s.Register(&Job{
		Name:     "morning-brief",
		Cron:     cron,
		Kind:     KindMessage,
		Category: CategoryDefault,
		Content:  "summarize my day",
	})

	s.tick(context.Background(), time.Now())

	env := recvEnvelope(t, sub, 2*time.Second)
	msg, ok := env.(*bus.UserMessage)
	if !ok {
		t.Fatalf("expected *bus.UserMessage, got %T", env)
	}
	if msg.Platform != "scheduler" {
		t.Errorf("Platform = %q, want scheduler", msg.Platform)
	}
	if msg.Content != "summarize my day" {
		t.Errorf("Content = %q", msg.Content)
	}
	if msg.Metadata["scheduler_job"] != "morning-brief" {
		t.Errorf("Metadata = %v", msg.Metadata)
	}
}

func TestSchedulerDispatchesSendJob(t *testing.T) {
	b := bus.New(0)
	defer b.Close()
	sub, err := b.Subscribe(bus.TopicAgentResponse)
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{TickInterval: 50 * time.Millisecond, LockPath: t.TempDir() + "/test.lock"}, b)

	cron, _ := ParseCron("* * * * *")
	s.Register(&Job{
		Name:     "standup-reminder",
		Cron:     cron,
		Kind:     KindSend,
		Category: CategoryDefault,
		Platform: "slack",
		UserID:   "C123",
		Content:  "standup in 5 minutes",
	})

	s.tick(context.Background(), time.Now())

	env := recvEnvelope(t, sub, 2*time.Second)
	msg, ok := env.(*bus.AgentResponse)
	if !ok {
		t.Fatalf("expected *bus.AgentResponse, got %T", env)
	}
	if msg.Platform != "slack" || msg.UserID != "C123" {
		t.Errorf("routing = %s/%s", msg.Platform, msg.UserID)
	}
}

func TestSchedulerDispatchesToolJob(t *testing.T) {
	b := bus.New(0)
	defer b.Close()
	sub, err := b.Subscribe(bus.TopicToolInvocation)
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{TickInterval: 50 * time.Millisecond, LockPath: t.TempDir() + "/test.lock"}, b)

	cron, _ := ParseCron("* * * * *")
	s.Register(&Job{
		Name:       "disk-check",
		Cron:       cron,
		Kind:       KindTool,
		Category:   CategoryShell,
		Tool:       "exec",
		ToolParams: map[string]any{"command": "df -h"},
	})

	s.tick(context.Background(), time.Now())

	env := recvEnvelope(t, sub, 2*time.Second)
	msg, ok := env.(*bus.ToolInvocation)
	if !ok {
		t.Fatalf("expected *bus.ToolInvocation, got %T", env)
	}
	if msg.ToolName != "exec" {
		t.Errorf("ToolName = %q", msg.ToolName)
	}
	if msg.Source != "scheduler:disk-check" {
		t.Errorf("Source = %q", msg.Source)
	}
}

func TestSchedulerLockPreventsOverlap(t *testing.T) {
	lockPath := t.TempDir() + "/overlap.lock"

	b := bus.New(0)
	defer b.Close()
	s1 := New(Config{TickInterval: 50 * time.Millisecond, LockPath: lockPath}, b)
	s2 := New(Config{TickInterval: 50 * time.Millisecond, LockPath: lockPath}, b)

	acquired, err := s1.lock.TryLock()
	if err != nil || !acquired {
		t.Fatal("s1 should acquire lock")
	}

	acquired2, err := s2.lock.TryLock()
	if err != nil {
		t.Fatal("unexpected error on s2 lock:", err)
	}
	if acquired2 {
		t.Error("s2 should NOT acquire lock while s1 holds it")
		s2.lock.Unlock()
	}

	s1.lock.Unlock()

	acquired3, err := s2.lock.TryLock()
	if err != nil {
		t.Fatal("unexpected error on s2 retry:", err)
	}
	if !acquired3 {
		t.Error("s2 should acquire lock after s1 released")
	}
	s2.lock.Unlock()
}

func TestSemaphoreConcurrencyLimit(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() {
		t.Error("first acquire should succeed")
	}
	if !sem.TryAcquire() {
		t.Error("second acquire should succeed")
	}
	if sem.TryAcquire() {
		t.Error("third acquire should fail (cap=2)")
	}
	if sem.Available() != 0 {
		t.Errorf("Available() = %d, want 0", sem.Available())
	}

	sem.Release()
	if sem.Available() != 1 {
		t.Errorf("Available() = %d, want 1", sem.Available())
	}
	if !sem.TryAcquire() {
		t.Error("acquire after release should succeed")
	}
}

func TestSchedulerNonMatchingJobNotDispatched(t *testing.T) {
	b := bus.New(0)
	defer b.Close()
	sub, err := b.Subscribe(bus.TopicUserMessage)
	if err != nil {
		t.Fatal(err)
	}

	s := New(Config{TickInterval: 50 * time.Millisecond, LockPath: t.TempDir() + "/test.lock"}, b)

	// Job that only runs at midnight.
	cron, _ := ParseCron("0 0 * * *")
	s.Register(&Job{Name: "midnight-only", Cron: cron, Category: CategoryDefault, Content: "midnight"})

	noon := time.Date(2026, 2, 15, 12, 30, 0, 0, time.UTC)
	s.tick(context.Background(), noon)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if env, err := sub.Recv(ctx); err == nil {
		t.Errorf("expected no dispatch at noon, got %T", env)
	}
}
