package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"framerand/internal/daemon"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the framerand daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemon.Run(cmd.Context(), cfg, daemon.Options{SkipPreflight: skipPreflight})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks at startup")
	return cmd
}
