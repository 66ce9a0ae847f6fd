package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/LoomClaw/LoomClaw/internal/cli.version=1.2.3"
	version = "0.9.0"
	logo    = "\n" +
		"  _                           ____ _\n" +
		" | |    ___   ___  _ __ ___  / ___| | __ ___      __\n" +
		" | |   / _ \\ / _ \\| '_ ` _ \\| |   | |/ _` \\ \\ /\\ / /\n" +
		" | |__| (_) | (_) | | | | | | |___| | (_| |\\ V  V /\n" +
		" |_____\\___/ \\___/|_| |_| |_|\\____|_|\\__,_| \\_/\\_/\n"
)

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

var rootCmd = &cobra.Command{
	Use:   "loomclaw",
	Short: "LoomClaw - Personal AI Assistant",
	Long:  color.CyanString(logo) + "\nA lightweight personal AI assistant framework written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
}
