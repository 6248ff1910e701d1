package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"framerand/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			tailer := logs.NewTailer(cfg.Paths.LogDir)

			trailing, offset, err := tailer.Last(lines)
			if err != nil {
				return err
			}
			for _, line := range trailing {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			for {
				batch, next, err := tailer.Wait(cmd.Context(), offset, 2*time.Second)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range batch {
					fmt.Fprintln(out, line)
				}
				offset = next
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	return cmd
}
