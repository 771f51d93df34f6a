// Package main provides the entry point for the agent-brain CLI.
package main

import (
	"os"

	"github.com/agent-brain/agent-brain/cmd/agent-brain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
