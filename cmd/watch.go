package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/agent"
	"github.com/spf13/cobra"
)

func watchCMD() *cobra.Command {
	var cfgPath string
	var cronSpec string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run ticks on a cron cadence until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cronSpec != "" {
				cfg.Scheduler.Cron = cronSpec
			}
			a, _, err := agent.Build(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = agent.NewScheduler(a, cfg.Scheduler.Cron).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./dragon.json)")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "override scheduler cadence (@hourly, @daily or cron expression)")
	return cmd
}
