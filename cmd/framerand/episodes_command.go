package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"framerand/internal/logging"
	"framerand/internal/media"
	"framerand/internal/store"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List the playable episodes with their generation windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(logging.Options{Level: "warn", Format: "console"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open state store: %w", err)
			}
			defer st.Close()

			library, err := media.LoadLibrary(cmd.Context(), cfg, st, logger)
			if err != nil {
				return fmt.Errorf("load episode library: %w", err)
			}

			if jsonOutput {
				return writeJSON(cmd, library.Episodes)
			}

			rows := make([][]string, 0, len(library.Episodes))
			for _, episode := range library.Episodes {
				rows = append(rows, []string{
					media.EpisodeTag(episode.Season, episode.Episode),
					formatSeconds(episode.LengthSec),
					formatSeconds(episode.GenLength),
					strconv.Itoa(len(episode.SkipRanges)),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"EPISODE", "LENGTH", "GEN WINDOW", "SKIP RANGES"}, rows, 1, 2, 3))
			fmt.Fprintf(out, "%d episodes, languages: %v\n", len(library.Episodes), library.Languages())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func formatSeconds(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total%3600/60, total%60)
}
