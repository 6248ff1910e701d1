package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"framerand/internal/run"
)

// verify checks a run export offline, without contacting the instance that
// produced it.
func newVerifyCommand() *cobra.Command {
	var publicKey string

	cmd := &cobra.Command{
		Use:         "verify <export.json>",
		Short:       "Verify the signature on an exported run",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readExport(args[0])
			if err != nil {
				return err
			}

			var export run.Export
			if err := json.Unmarshal(data, &export); err != nil {
				return fmt.Errorf("parse run export: %w", err)
			}
			if export.SignedString == "" || export.Signature == "" {
				return fmt.Errorf("export carries no signature; the instance serves unsigned runs")
			}

			key := publicKey
			if key == "" {
				key = export.PublicKey
			}
			if key == "" {
				return fmt.Errorf("no public key: export omits it and --public-key was not given")
			}

			valid, err := run.Verify(key, export.SignedString, export.Signature)
			if err != nil {
				return fmt.Errorf("verify signature: %w", err)
			}
			if !valid {
				return fmt.Errorf("signature is NOT valid")
			}

			var state run.State
			if err := json.Unmarshal([]byte(export.SignedString), &state); err != nil {
				return fmt.Errorf("parse signed run state: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Signature valid")
			fmt.Fprintf(out, "Run created: %s\n", time.UnixMilli(state.CreationTS).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "Guesses: %d\n", len(state.History))
			correct := 0
			for _, entry := range state.History {
				if entry.Guess == entry.Answer {
					correct++
				}
			}
			fmt.Fprintf(out, "Correct: %d\n", correct)
			fmt.Fprintf(out, "Anomalies: %d\n", len(state.Errors))
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKey, "public-key", "", "Base64 public key to verify against")
	return cmd
}

func readExport(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	return data, nil
}
