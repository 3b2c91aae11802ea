package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/clock"
)

func newClockCommand(rootOpts *rootOptions) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Show this device's Lamport clock",
		Long: `Shows the persisted clock state. With --rebuild the clock is recovered
from the stored log, keeping the larger of the persisted and derived
values, so it never moves backwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			var st clock.State
			if rebuild {
				// Open rebuilds and persists the clock.
				r, err := a.openReplica(ctx)
				if err != nil {
					return err
				}
				st = r.Clock()
			} else {
				if a.cfg.AuthorID == "" {
					return newExitError(exitCommandError, "no author id: pass --author or use --rebuild with a signing key")
				}
				var ok bool
				if st, ok, err = a.store.LoadClock(ctx, a.cfg.AuthorID); err != nil {
					return err
				} else if !ok {
					st = clock.State{AuthorID: a.cfg.AuthorID}
				}
			}
			maxTS, err := a.store.MaxTimestamp(ctx)
			if err != nil {
				return err
			}

			a.emit(struct {
				clock.State
				LogMaxTimestamp int64 `json:"log_max_timestamp"`
			}{st, maxTS}, func(w io.Writer) {
				fmt.Fprintf(w, "%s: ts=%d counter=%d (log max ts=%d)\n",
					st.AuthorID, st.LastTimestamp, st.LastCounter, maxTS)
				if st.LastTimestamp < maxTS {
					fmt.Fprintln(w, "clock is behind the log; the next append or ingest catches up")
				}
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "recover the clock from the log")
	return cmd
}
