package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "dragon",
		Short: "Governed social engagement agent",
	}

	root.AddCommand(tickCMD(), watchCMD(), serveCMD(), queueCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
