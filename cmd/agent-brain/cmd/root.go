// Package cmd provides the CLI commands for agent-brain.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agent-brain/agent-brain/pkg/version"
)

// NewRootCmd creates the root command for the agent-brain CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent-brain",
		Short:   "Local-first hybrid retrieval service for codebases",
		Version: version.Version,
		Long: `agent-brain indexes a project with BM25 keyword search, semantic
vector search, and an optional knowledge graph, then serves query/index
operations over a local HTTP API.

Run 'agent-brain start' in a project directory to launch an instance.`,
	}

	cmd.SetVersionTemplate("agent-brain version {{.Version}}\n")

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
