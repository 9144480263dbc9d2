// Package main is the entry point for the kafclaw CLI.
package main

import (
	"os"

	"github.com/KafClaw/KafClaw/cmd/kafclaw/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
