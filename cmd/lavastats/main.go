package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"lavalink-stats/internal/agent"
	"lavalink-stats/internal/config"
	"lavalink-stats/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "lavastats",
		Short:        "Aggregate live stats from a pool of Lavalink nodes",
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Printf("load config: %v", err)
				return err
			}

			logger := agent.BuildLogger(cfg)
			a, err := agent.New(cfg, logger)
			if err != nil {
				logger.Error("agent initialization failed", "error", err)
				return err
			}
			if err := a.Run(cmd.Context()); err != nil {
				logger.Error("agent runtime failed", "error", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the INI config file (default $LAVASTATS_CONFIG or config.ini)")
	cmd.AddCommand(versionCmd(), queryCmd())
	return cmd
}
