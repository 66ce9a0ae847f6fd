package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LoomClaw/LoomClaw/internal/agent"
	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/channels"
	"github.com/LoomClaw/LoomClaw/internal/config"
	"github.com/LoomClaw/LoomClaw/internal/memory"
	"github.com/LoomClaw/LoomClaw/internal/scheduler"
	"github.com/LoomClaw/LoomClaw/internal/skills"
	"github.com/LoomClaw/LoomClaw/internal/subagent"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the assistant gateway (Slack, Kafka, scheduler)",
	Run:   runGateway,
}

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("🌐 LoomClaw Gateway")
	fmt.Println("Starting LoomClaw Gateway...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	prov, err := resolveProvider(cfg)
	if err != nil {
		fmt.Printf("Provider error: %v\n", err)
		os.Exit(1)
	}

	if err := config.EnsureDir(filepath.Dir(cfg.Memory.Path)); err != nil {
		fmt.Printf("State dir error: %v\n", err)
		os.Exit(1)
	}
	store, err := memory.Open(cfg.Memory.Path, memory.Partition(cfg.Memory.Partition))
	if err != nil {
		fmt.Printf("Memory error: %v\n", err)
		os.Exit(1)
	}

	b := bus.New(bus.DefaultCapacity)

	registry := tools.NewRegistry()
	registerBaseTools(registry, cfg)
	if n := skills.LoadAll(cfg.Skills.Enabled, skills.Builtin(cfg.Paths.Workspace), registry); n > 0 {
		fmt.Printf("🧩 Skills loaded: %d\n", n)
	}

	mgr := subagent.NewManager(cfg.Subagents.Dir, registry, b)
	registerSubagentTools(registry, mgr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recover subagents interrupted by a previous shutdown before any
	// new work starts.
	if err := mgr.Start(ctx); err != nil {
		fmt.Printf("Subagent recovery error: %v\n", err)
		os.Exit(1)
	}

	loop := agent.NewLoop(agent.LoopOptions{
		Bus:               b,
		Provider:          prov,
		Store:             store,
		Registry:          registry,
		SystemPrompt:      cfg.Model.SystemPrompt,
		Workspace:         cfg.Paths.Workspace,
		Model:             cfg.Model.Name,
		MaxTokens:         cfg.Model.MaxTokens,
		Temperature:       cfg.Model.Temperature,
		MaxToolIterations: cfg.Model.MaxToolIterations,
		HistoryWindow:     cfg.Model.HistoryWindow,
	})

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(runCtx)
	})

	g.Go(func() error {
		return runToolInvocations(runCtx, b, registry)
	})

	g.Go(func() error {
		return runSubagentAnnouncements(runCtx, b)
	})

	// Channels
	var enabled []channels.Channel
	if cfg.Channels.Slack.Enabled {
		enabled = append(enabled, channels.NewSlackChannel(cfg.Channels.Slack, b))
	}
	if cfg.Channels.Kafka.Enabled {
		enabled = append(enabled, channels.NewKafkaChannel(cfg.Channels.Kafka, b))
	}
	started := make([]channels.Channel, 0, len(enabled))
	for _, ch := range enabled {
		if err := ch.Start(runCtx); err != nil {
			fmt.Printf("Failed to start %s channel: %v\n", ch.Name(), err)
			continue
		}
		started = append(started, ch)
	}
	fmt.Printf("📡 Channels started: %d\n", len(started))

	// Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(scheduler.Config{
			Enabled:        true,
			TickInterval:   cfg.Scheduler.TickInterval,
			MaxConcLLM:     cfg.Scheduler.MaxConcLLM,
			MaxConcShell:   cfg.Scheduler.MaxConcShell,
			MaxConcDefault: cfg.Scheduler.MaxConcDefault,
			LockPath:       filepath.Join(cfg.Paths.StateDir, "scheduler.lock"),
		}, b)
		registered := 0
		for _, jc := range cfg.Scheduler.Jobs {
			job, err := buildJob(jc)
			if err != nil {
				fmt.Printf("⚠️ Skipping job %q: %v\n", jc.Name, err)
				continue
			}
			sched.Register(job)
			registered++
		}
		g.Go(func() error {
			return sched.Run(runCtx)
		})
		fmt.Printf("⏰ Scheduler started (%d job(s))\n", registered)
	}

	fmt.Printf("🤖 LoomClaw ready (%s)\n", cfg.Model.Name)

	<-runCtx.Done()
	fmt.Println("\nShutting down...")

	// Channels first so no new messages arrive, then drain the loop,
	// then cancel subagents, then release the bus and store.
	for _, ch := range started {
		if err := ch.Stop(); err != nil {
			slog.Warn("Channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("Gateway worker failed", "error", err)
	}
	mgr.Stop()
	b.Close()
	if err := store.Close(); err != nil {
		slog.Warn("Store close failed", "error", err)
	}
	fmt.Println("Goodbye.")
}

// registerBaseTools installs the built-in tool set.
func registerBaseTools(registry *tools.Registry, cfg *config.Config) {
	workspace := func() string {
		if cfg.Tools.Exec.RestrictToWorkspace {
			return cfg.Paths.Workspace
		}
		return ""
	}
	registry.Register(tools.NewReadFileTool())
	registry.Register(tools.NewWriteFileTool(workspace))
	registry.Register(tools.NewEditFileTool(workspace))
	registry.Register(tools.NewListDirTool())
	registry.Register(tools.NewExecTool(
		cfg.Tools.Exec.Timeout,
		cfg.Tools.Exec.RestrictToWorkspace,
		cfg.Paths.Workspace,
		func() string { return cfg.Paths.Workspace },
	))
}

// registerSubagentTools wires the spawn/status/cancel tools to the
// manager. The triggering user message rides in on the context so
// completion announcements know who asked.
func registerSubagentTools(registry *tools.Registry, mgr *subagent.Manager) {
	registry.Register(tools.NewSubagentSpawnTool(func(ctx context.Context, name, tool string, params map[string]any, metadata map[string]string) (string, error) {
		trigger, _ := agent.TriggerFrom(ctx)
		sa, err := mgr.Create(name, tool, params, trigger, metadata)
		if err != nil {
			return "", err
		}
		return sa.ID, nil
	}))
	registry.Register(tools.NewSubagentStatusTool(func(ctx context.Context, id string) (string, error) {
		// Status is scoped to the asking user; scheduler-originated
		// calls have no trigger and see everything.
		if trigger, ok := agent.TriggerFrom(ctx); ok {
			return mgr.StatusJSONForUser(trigger.Platform, trigger.UserID, id)
		}
		return mgr.StatusJSON(id)
	}))
	registry.Register(tools.NewSubagentCancelTool(mgr.Cancel))
}

// runToolInvocations executes scheduler-driven tool requests and
// publishes their results.
func runToolInvocations(ctx context.Context, b *bus.Bus, registry *tools.Registry) error {
	sub, err := b.Subscribe(bus.TopicToolInvocation)
	if err != nil {
		return fmt.Errorf("failed to subscribe to tool invocations: %w", err)
	}
	defer sub.Cancel()

	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			return nil
		}
		inv, ok := env.(*bus.ToolInvocation)
		if !ok {
			continue
		}
		result, execErr := registry.Execute(ctx, inv.ToolName, inv.Parameters)
		success := execErr == nil
		if execErr != nil {
			result = fmt.Sprintf("Error: %v", execErr)
			slog.Warn("Scheduled tool failed", "tool", inv.ToolName, "source", inv.Source, "error", execErr)
		} else {
			slog.Info("Scheduled tool completed", "tool", inv.ToolName, "source", inv.Source)
		}
		if err := b.Publish(ctx, bus.NewToolResult(inv.ID, inv.ToolName, success, result)); err != nil {
			return nil
		}
	}
}

// runSubagentAnnouncements relays terminal subagent notifications back
// to whoever spawned them. Notifications without a trigger are only
// logged.
func runSubagentAnnouncements(ctx context.Context, b *bus.Bus) error {
	sub, err := b.Subscribe(subagent.TopicCompleted)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subagent notifications: %w", err)
	}
	defer sub.Cancel()

	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			return nil
		}
		done, ok := env.(*subagent.Completed)
		if !ok {
			continue
		}
		sa := done.Subagent
		if done.Platform == "" || done.UserID == "" {
			slog.Info("Subagent finished", "id", sa.ID, "name", sa.Name, "state", sa.State)
			continue
		}
		var text string
		switch sa.State {
		case subagent.StateCompleted:
			text = fmt.Sprintf("Background task %q finished.\n%s", sa.Name, sa.Result)
		case subagent.StateCancelled:
			text = fmt.Sprintf("Background task %q was cancelled.", sa.Name)
		default:
			text = fmt.Sprintf("Background task %q failed: %s", sa.Name, sa.Error)
		}
		if err := b.Publish(ctx, bus.NewAgentResponse(done.Platform, done.UserID, text)); err != nil {
			return nil
		}
	}
}

// buildJob converts a config job entry into a scheduler job.
func buildJob(jc config.JobConfig) (*scheduler.Job, error) {
	cron, err := scheduler.ParseCron(jc.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", jc.Cron, err)
	}
	return &scheduler.Job{
		Name:       jc.Name,
		Cron:       cron,
		Kind:       scheduler.JobKind(jc.Kind),
		Category:   scheduler.JobCategory(jc.Category),
		Platform:   jc.Platform,
		UserID:     jc.UserID,
		Content:    jc.Content,
		Tool:       jc.Tool,
		ToolParams: jc.ToolParams,
	}, nil
}
