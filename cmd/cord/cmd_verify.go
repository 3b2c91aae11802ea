package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/store"
)

// problem is one finding of verify.
type problem struct {
	MessageID string `json:"message_id"`
	Problem   string `json:"problem"`
}

type verifyReport struct {
	Checked  int64     `json:"checked"`
	Problems []problem `json:"problems"`
}

func newVerifyCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-check every stored entry",
		Long: `Walks the log in total order and checks, for each entry, the schema, the
integrity hash recorded at insert, content-derived ids, signatures against
the configured keyring, and that each author's counters increase with its
timestamps. Exits 1 when any problem is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			kr, err := keyring(a.cfg)
			if err != nil {
				return err
			}

			rep, err := verifyLog(cmd.Context(), a.store, kr)
			if err != nil {
				return err
			}
			a.emit(rep, func(w io.Writer) {
				for _, p := range rep.Problems {
					fmt.Fprintf(w, "%s: %s\n", p.MessageID, p.Problem)
				}
				fmt.Fprintf(w, "checked %d entries, %d problem(s)\n", rep.Checked, len(rep.Problems))
			})
			if len(rep.Problems) > 0 {
				return newExitError(exitFailure, fmt.Sprintf("%d problem(s) found", len(rep.Problems)))
			}
			return nil
		},
	}
}

func verifyLog(ctx context.Context, st store.StoreInterface, v integrity.Verifier) (verifyReport, error) {
	rep := verifyReport{Problems: []problem{}}
	last := make(map[string]model.Entry)

	for rec, err := range st.All(ctx) {
		if err != nil {
			return rep, err
		}
		rep.Checked++
		e := rec.Entry
		report := func(format string, args ...any) {
			rep.Problems = append(rep.Problems, problem{MessageID: e.MessageID, Problem: fmt.Sprintf(format, args...)})
		}

		if err := e.Validate(); err != nil {
			report("%v", err)
		}
		want, err := st.IntegrityHash(ctx, e.MessageID)
		if err != nil {
			return rep, err
		}
		if got, err := integrity.HashHex(e); err != nil {
			report("hash: %v", err)
		} else if got != want {
			report("integrity hash mismatch: stored %s, computed %s", want, got)
		}
		if err := integrity.Check(e, v); err != nil {
			report("%v", err)
		}

		// In total order an author's timestamps only grow, so its
		// counters must too.
		if prev, ok := last[e.AuthorID]; ok {
			if e.AuthorCounter <= prev.AuthorCounter || e.LamportTS <= prev.LamportTS {
				report("author %s: counter %d at ts=%d follows counter %d at ts=%d (%s)",
					e.AuthorID, e.AuthorCounter, e.LamportTS, prev.AuthorCounter, prev.LamportTS, prev.MessageID)
			}
		}
		last[e.AuthorID] = e
	}
	return rep, nil
}
