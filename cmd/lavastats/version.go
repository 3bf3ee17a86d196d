package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lavalink-stats/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Info()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lavastats %s (commit %s, built %s)\n", info.Version, info.Commit, info.Built)
			return err
		},
	}
}
