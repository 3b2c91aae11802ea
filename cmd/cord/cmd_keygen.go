package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/integrity"
)

func newKeygenCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		out   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 signing key",
		Long: `Writes a hex-encoded private key and prints its address. Use the address
as author id, or trust it for another author id in signing.trusted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = filepath.Join(filepath.Dir(rootOpts.ConfigPath), "device.key")
			}
			if _, err := os.Stat(out); err == nil && !force {
				return newExitError(exitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", out))
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return wrapExitError(exitCommandError, "create key directory", err)
			}

			signer, err := integrity.GenerateKeySigner()
			if err != nil {
				return err
			}
			if err := signer.Save(out); err != nil {
				return wrapExitError(exitCommandError, "save key", err)
			}

			a := &app{out: cmd.OutOrStdout(), format: rootOpts.Format}
			a.emit(map[string]string{"key_file": out, "address": signer.AuthorID()}, func(w io.Writer) {
				fmt.Fprintf(w, "wrote %s\naddress: %s\n", out, signer.AuthorID())
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "key file (default: next to the config)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}
