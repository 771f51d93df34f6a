package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agent-brain/internal/lifecycle"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running agent-brain instance for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

// stopPollInterval and stopTimeout bound how long stop waits for the
// instance's own signal-triggered graceful shutdown (see runStart's
// signal.NotifyContext) to remove its runtime file.
const (
	stopPollInterval = 200 * time.Millisecond
	stopTimeout      = lifecycle.DefaultDrainTimeout + 5*time.Second
)

func runStop() error {
	projectRoot, err := lifecycle.ResolveProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	info, err := lifecycle.Discover(projectRoot, stateDirName)
	if err != nil {
		fmt.Println("no running instance found for this project")
		return nil
	}

	if err := syscall.Kill(info.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal instance (pid %d): %w", info.PID, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, err := lifecycle.Discover(projectRoot, stateDirName); err != nil {
			fmt.Printf("instance (pid %d) stopped\n", info.PID)
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	return fmt.Errorf("instance (pid %d) did not stop within %s", info.PID, stopTimeout)
}
