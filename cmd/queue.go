package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/spf13/cobra"
)

func queueCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and operate on the job queue",
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./dragon.json)")

	list := &cobra.Command{
		Use:   "list [outbox|sent|dead]",
		Short: "List jobs in a queue area",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			q := queue.New(cfg.Runtime.Dir)

			area := queue.AreaOutbox
			if len(args) == 1 {
				area = queue.Area(args[0])
				switch area {
				case queue.AreaOutbox, queue.AreaSent, queue.AreaDead:
				default:
					return fmt.Errorf("unknown area %q", args[0])
				}
			}
			paths, err := q.List(area, 0)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(strings.TrimSuffix(filepath.Base(p), ".json"))
			}
			return nil
		},
	}

	counts := &cobra.Command{
		Use:   "counts",
		Short: "Show job counts per area",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			c, err := queue.New(cfg.Runtime.Dir).Count()
			if err != nil {
				return err
			}
			fmt.Printf("outbox=%d sent=%d dead=%d\n", c.Outbox, c.Sent, c.Dead)
			return nil
		},
	}

	requeue := &cobra.Command{
		Use:   "requeue <action_id>",
		Short: "Move a dead-lettered job back into the outbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return queue.New(cfg.Runtime.Dir).Requeue(args[0])
		},
	}

	cmd.AddCommand(list, counts, requeue)
	return cmd
}
