package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/config"
	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/store"
)

// app holds shared state for one CLI invocation.
type app struct {
	cfg    config.Config
	log    hclog.Logger
	store  *store.Store
	out    io.Writer
	format string

	replica *cord.Replica // opened on demand
}

// newApp resolves the config and opens the database, creating its
// directory when needed.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger(cmd.ErrOrStderr())

	if dir := filepath.Dir(cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrapExitError(exitCommandError, "cannot create "+dir, err)
		}
	}
	st, err := store.New(cfg.DB)
	if err != nil {
		return nil, wrapExitError(exitCommandError, fmt.Sprintf("cannot open database %q", cfg.DB), err)
	}
	log.Debug("opened database", "path", cfg.DB)
	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		out:    cmd.OutOrStdout(),
		format: opts.Format,
	}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// openReplica attaches this device's replica to the store. It needs an
// author id, given directly or derived from the signing key.
func (a *app) openReplica(ctx context.Context) (*cord.Replica, error) {
	if a.replica != nil {
		return a.replica, nil
	}
	ropts, err := replicaOptions(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	if ropts.AuthorID == "" && ropts.Signer == nil {
		return nil, newExitError(exitCommandError,
			"no author id: pass --author, set "+config.EnvAuthor+" or configure signing.key_file")
	}
	r, err := cord.Open(ctx, a.store, ropts)
	if err != nil {
		return nil, err
	}
	a.replica = r
	return r, nil
}

// replicaOptions builds signer, verifier and id scheme from the config.
func replicaOptions(cfg config.Config, log hclog.Logger) (cord.Options, error) {
	opts := cord.Options{AuthorID: cfg.AuthorID, Logger: log}
	if cfg.Signing.KeyFile != "" {
		s, err := integrity.LoadKeySigner(cfg.Signing.KeyFile)
		if err != nil {
			return opts, wrapExitError(exitCommandError, "signing key", err)
		}
		opts.Signer = s
	}
	kr, err := keyring(cfg)
	if err != nil {
		return opts, err
	}
	opts.Verifier = kr
	if cfg.IDScheme == config.IDSchemeContent {
		opts.IDs = integrity.ContentIDs{}
	} else {
		opts.IDs = integrity.RandomIDs{}
	}
	return opts, nil
}

func keyring(cfg config.Config) (*integrity.Keyring, error) {
	kr := integrity.NewKeyring(cfg.Signing.RequireSignatures)
	for author, addr := range cfg.Signing.Trusted {
		if err := kr.Trust(author, addr); err != nil {
			return nil, wrapExitError(exitCommandError, "signing.trusted", err)
		}
	}
	return kr, nil
}

// emit writes v as JSON in json mode and calls text otherwise.
func (a *app) emit(v any, text func(w io.Writer)) {
	if a.format == "json" {
		printJSON(a.out, v)
		return
	}
	text(a.out)
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
