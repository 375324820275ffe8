package main

import (
	"github.com/pytrel-systems/dragon/config"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/server"
	"github.com/pytrel-systems/dragon/internal/state"
	"github.com/pytrel-systems/dragon/internal/telemetry"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Address
			}
			srv := server.New(
				queue.New(cfg.Runtime.Dir),
				state.NewStore(cfg.Runtime.Dir),
				telemetry.New(),
			)
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./dragon.json)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
