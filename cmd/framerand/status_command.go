package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"framerand/internal/preflight"
	"framerand/internal/queue"
)

type daemonStatus struct {
	Instance string       `json:"instance"`
	Version  string       `json:"version"`
	Episodes int          `json:"episodes"`
	Queue    queue.Status `json:"queue"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show environment health and the running daemon's queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			status, statusErr := fetchDaemonStatus(ctx)

			if jsonOutput {
				payload := map[string]any{
					"daemonReachable": statusErr == nil,
					"checks":          preflight.RunAll(cfg),
					"binaries":        preflight.SystemDeps(cfg),
				}
				if statusErr == nil {
					payload["daemon"] = status
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			sectionHeader(out, "Environment", colorize)
			for _, result := range preflight.RunAll(cfg) {
				state := stateFail
				if result.Passed {
					state = stateOK
				}
				fmt.Fprintln(out, statusLine(result.Name, state, result.Detail, colorize))
			}
			for _, binary := range preflight.SystemDeps(cfg) {
				state := stateFail
				detail := binary.Detail
				if binary.Available {
					state = stateOK
					detail = binary.Command
				}
				fmt.Fprintln(out, statusLine(binary.Name, state, detail, colorize))
			}

			fmt.Fprintln(out)
			sectionHeader(out, "Daemon", colorize)
			if statusErr != nil {
				fmt.Fprintln(out, statusLine("Daemon", stateWarn, "not reachable; is framerand serve running?", colorize))
				return nil
			}
			fmt.Fprintln(out, statusLine("Instance", stateInfo, status.Instance, colorize))
			fmt.Fprintln(out, statusLine("Version", stateInfo, status.Version, colorize))
			fmt.Fprintln(out, statusLine("Episodes", stateInfo, strconv.Itoa(status.Episodes), colorize))
			fmt.Fprintln(out, statusLine("Producing", stateInfo, strconv.Itoa(status.Queue.Active), colorize))

			rows := make([][]string, 0, len(status.Queue.Kinds))
			for _, kind := range status.Queue.Kinds {
				rows = append(rows, []string{
					kind.Kind,
					strconv.Itoa(kind.QueueLength),
					strconv.Itoa(kind.Traffic),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable([]string{"KIND", "QUEUED", "TRAFFIC"}, rows, 1, 2))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func fetchDaemonStatus(ctx *commandContext) (daemonStatus, error) {
	var status daemonStatus

	base, err := ctx.apiBaseURL()
	if err != nil {
		return status, err
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/api/status")
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}
