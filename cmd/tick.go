package main

import (
	"context"

	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/agent"
	"github.com/spf13/cobra"
)

func tickCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one engagement pipeline pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			a, _, err := agent.Build(cfg)
			if err != nil {
				return err
			}
			return a.Tick(context.Background())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./dragon.json)")
	return cmd
}
