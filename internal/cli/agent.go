package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/LoomClaw/LoomClaw/internal/agent"
	"github.com/LoomClaw/LoomClaw/internal/bus"
	"github.com/LoomClaw/LoomClaw/internal/config"
	"github.com/LoomClaw/LoomClaw/internal/memory"
	"github.com/LoomClaw/LoomClaw/internal/skills"
	"github.com/LoomClaw/LoomClaw/internal/tools"
)

var (
	agentMessage string
	agentUser    string
	agentTimeout time.Duration
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the agent directly in CLI",
	Run:   runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent")
	agentCmd.Flags().StringVarP(&agentUser, "user", "u", "cli", "User id for the conversation")
	agentCmd.Flags().DurationVar(&agentTimeout, "timeout", 2*time.Minute, "How long to wait for the reply")
}

func runAgent(cmd *cobra.Command, args []string) {
	if agentMessage == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	printHeader("🤖 LoomClaw Agent")

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
	defer store.Close()

	registry := tools.NewRegistry()
	registerBaseTools(registry, cfg)
	skills.LoadAll(cfg.Skills.Enabled, skills.Builtin(cfg.Paths.Workspace), registry)

	b := bus.New(bus.DefaultCapacity)
	defer b.Close()

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

	ctx, cancel := context.WithTimeout(context.Background(), agentTimeout)
	defer cancel()

	sub, err := b.Subscribe(bus.TopicAgentResponse)
	if err != nil {
		fmt.Printf("Bus error: %v\n", err)
		os.Exit(1)
	}
	go loop.Run(ctx)

	fmt.Printf("🤖 LoomClaw (%s)\n", cfg.Model.Name)
	fmt.Println("Thinking...")

	if err := b.Publish(ctx, bus.NewUserMessage("cli", agentUser, agentMessage)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for {
		env, err := sub.Recv(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		resp, ok := env.(*bus.AgentResponse)
		if !ok || resp.Platform != "cli" {
			continue
		}
		fmt.Println("\n" + resp.Content)
		return
	}
}
