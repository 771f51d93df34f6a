package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agent-brain/internal/lifecycle"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an agent-brain instance is running for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	projectRoot, err := lifecycle.ResolveProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	info, err := lifecycle.Discover(projectRoot, stateDirName)
	if err != nil {
		fmt.Println("no running instance")
		return nil
	}

	fmt.Printf("running: %s (pid %d, mode %s, started %s)\n", info.BaseURL, info.PID, info.Mode, info.StartedAt)
	return nil
}
