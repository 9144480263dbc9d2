package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/KafClaw/cmd/kafclaw/cmd.version=1.2.3"
	version = "1.0.0"
	logo    = "\n" +
		"   __  ______    ___    \n" +
		"  / / / /_  __/ |__ \\   \n" +
		" / /_/ / / /  __/ /   \n" +
		"/ __  / / /  / __/    \n" +
		"/_/ /_/ /_/  /____/    agent-to-agent\n"
)

var rootCmd = &cobra.Command{
	Use:   "kafclaw",
	Short: "KafClaw - Personal AI Assistant",
	Long:  color.CyanString(logo) + "\nA lightweight, ultra-fast AI assistant framework written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(a2aCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("KafClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}
