package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LoomClaw/LoomClaw/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ LoomClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 LoomClaw Status")
		fmt.Printf("Version: %s\n", version)

		// Check config
		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (using defaults)")
		}

		// Check API key presence
		cfg, err := config.Load()
		if err != nil {
			fmt.Println("API Key: ? Unable to load config")
			return
		}
		if cfg.Providers.OpenAI.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found (set OPENAI_API_KEY)")
		}

		if cfg.Channels.Slack.Enabled {
			fmt.Println("Slack:   ✓ Enabled")
		} else {
			fmt.Println("Slack:   ✗ Disabled")
		}
		if cfg.Channels.Kafka.Enabled {
			fmt.Println("Kafka:   ✓ Enabled")
		} else {
			fmt.Println("Kafka:   ✗ Disabled")
		}
		if cfg.Scheduler.Enabled {
			fmt.Printf("Scheduler: ✓ Enabled (%d job(s))\n", len(cfg.Scheduler.Jobs))
		} else {
			fmt.Println("Scheduler: ✗ Disabled")
		}
		fmt.Printf("Memory:  %s (partition: %s)\n", cfg.Memory.Path, cfg.Memory.Partition)
	},
}
