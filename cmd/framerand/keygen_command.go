package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"framerand/internal/config"
	"framerand/internal/run"
)

func newKeygenCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "keygen",
		Short:       "Generate the run signing keypair",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				target = cfg.Verification.PrivateKeyPath
			}
			if target == "" {
				return fmt.Errorf("no key path: set verification.private_key_path or pass --path")
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve key path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(expanded); err == nil {
					return fmt.Errorf("key already exists at %s (use --overwrite to replace it)", expanded)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check key path: %w", err)
				}
			}
			if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
				return fmt.Errorf("create key directory: %w", err)
			}

			if err := run.GenerateKey(expanded); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			signer, err := run.LoadSigner(expanded)
			if err != nil {
				return fmt.Errorf("load generated key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote signing key to %s\n", expanded)
			fmt.Fprintf(out, "Public key: %s\n", signer.PublicKey())
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the private key")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing key")
	return cmd
}
