package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/config"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	DB         string
	Author     string
	LogLevel   string
	Format     string // "json" | "text"

	// configExplicit is set when the config path came from a flag or the
	// environment; the file must then exist.
	configExplicit bool
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "cord",
		Short:         "cord - append-only event log for devices that sync when they meet",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return newExitError(exitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			opts.configExplicit = cmd.Flags().Changed("config") || os.Getenv(config.EnvConfig) != ""
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", envOr(config.EnvConfig, config.DefaultConfig), "config file ($"+config.EnvConfig+")")
	pf.StringVar(&opts.DB, "db", "", "database path ($"+config.EnvDB+")")
	pf.StringVar(&opts.Author, "author", "", "author id of this device ($"+config.EnvAuthor+")")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level ($"+config.EnvLogLevel+")")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		newInitCommand(opts),
		newKeygenCommand(opts),
		newAppendCommand(opts),
		newLogCommand(opts),
		newGetCommand(opts),
		newWatchCommand(opts),
		newMarkCommand(opts),
		newStatusCommand(opts),
		newClockCommand(opts),
		newVerifyCommand(opts),
		newSyncCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the config file and applies flag overrides, which win
// over the environment.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, !o.configExplicit)
	if err != nil {
		return config.Config{}, wrapExitError(exitCommandError, "load config", err)
	}
	if o.DB != "" {
		cfg.DB = o.DB
	}
	if o.Author != "" {
		cfg.AuthorID = o.Author
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, wrapExitError(exitCommandError, "invalid flags", err)
	}
	return cfg, nil
}
