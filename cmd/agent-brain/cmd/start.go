package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agentbrainerrors "github.com/agent-brain/agent-brain/internal/errors"
	"github.com/agent-brain/agent-brain/internal/lifecycle"
)

func newStartCmd() *cobra.Command {
	var port int
	var offline bool
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an agent-brain instance for the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), port, offline, foreground)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to bind (0 lets the OS assign one)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip model download)")
	cmd.Flags().BoolVar(&foreground, "foreground", true, "Block and serve until interrupted")

	return cmd
}

func runStart(ctx context.Context, port int, offline, foreground bool) error {
	projectRoot, err := lifecycle.ResolveProjectRoot(".")
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}

	application, err := buildApp(ctx, projectRoot, offline)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	instance, err := lifecycle.Start(lifecycle.Config{
		ProjectRoot: projectRoot,
		StateDir:    stateDirName,
		Mode:        lifecycle.ModeEmbedded,
		Port:        port,
	}, application.server)
	if err != nil {
		application.Close()
		var ae *agentbrainerrors.AmanError
		if errors.As(err, &ae) {
			return fmt.Errorf("%s", ae.Error())
		}
		return err
	}

	info := instance.Info()
	fmt.Printf("agent-brain listening at %s (pid %d)\n", info.BaseURL, info.PID)

	if !foreground {
		return nil
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), lifecycle.DefaultDrainTimeout)
	defer cancel()
	if err := instance.Stop(shutdownCtx); err != nil {
		application.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	application.Close()
	return nil
}
