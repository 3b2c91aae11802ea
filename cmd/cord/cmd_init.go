package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/config"
	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/store"
)

func newInitCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		withKey  bool
		idScheme string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file and database for this device",
		Long: `Writes a default config next to the database and creates the schema.
With --key a fresh secp256k1 signing key is generated and its address
becomes the author id unless --author is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, rootOpts, withKey, idScheme, force)
		},
	}

	cmd.Flags().BoolVar(&withKey, "key", false, "generate a signing key")
	cmd.Flags().StringVar(&idScheme, "id-scheme", config.IDSchemeRandom, "message id scheme (random|content)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func runInit(cmd *cobra.Command, rootOpts *rootOptions, withKey bool, idScheme string, force bool) error {
	path := rootOpts.ConfigPath
	dir := filepath.Dir(path)
	if _, err := os.Stat(path); err == nil && !force {
		return newExitError(exitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapExitError(exitCommandError, "stat config", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapExitError(exitCommandError, "cannot create "+dir, err)
	}

	cfg := config.Default()
	cfg.DB = filepath.Join(dir, filepath.Base(config.DefaultDB))
	if rootOpts.DB != "" {
		cfg.DB = rootOpts.DB
	}
	cfg.AuthorID = rootOpts.Author
	cfg.IDScheme = idScheme

	if withKey {
		signer, err := integrity.GenerateKeySigner()
		if err != nil {
			return err
		}
		cfg.Signing.KeyFile = filepath.Join(dir, "device.key")
		if err := signer.Save(cfg.Signing.KeyFile); err != nil {
			return wrapExitError(exitCommandError, "save key", err)
		}
		if cfg.AuthorID == "" {
			cfg.AuthorID = signer.AuthorID()
		}
	}
	if err := cfg.Validate(); err != nil {
		return wrapExitError(exitCommandError, "invalid flags", err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return wrapExitError(exitCommandError, "write config", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
		return wrapExitError(exitCommandError, "cannot create database directory", err)
	}
	st, err := store.New(cfg.DB)
	if err != nil {
		return wrapExitError(exitCommandError, fmt.Sprintf("cannot open database %q", cfg.DB), err)
	}
	st.Close()

	a := &app{out: cmd.OutOrStdout(), format: rootOpts.Format}
	a.emit(map[string]string{
		"config":    path,
		"db":        cfg.DB,
		"author_id": cfg.AuthorID,
		"key_file":  cfg.Signing.KeyFile,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "initialized cord in %s\n", dir)
		fmt.Fprintf(w, "  config: %s\n", path)
		fmt.Fprintf(w, "  db:     %s\n", cfg.DB)
		if cfg.AuthorID != "" {
			fmt.Fprintf(w, "  author: %s\n", cfg.AuthorID)
		} else {
			fmt.Fprintf(w, "  author: (unset, pass --author or set %s)\n", config.EnvAuthor)
		}
		if cfg.Signing.KeyFile != "" {
			fmt.Fprintf(w, "  key:    %s\n", cfg.Signing.KeyFile)
		}
	})
	return nil
}
