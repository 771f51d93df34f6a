package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-brain/agent-brain/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent-brain version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Info())
			return nil
		},
	}
}
