package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/reconcile"
)

type syncOutcome struct {
	reconcile.Result
	Error string `json:"error,omitempty"`
}

func newSyncCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		noPush   bool
		full     bool
		batch    int
		parallel int
		retries  int
	)

	cmd := &cobra.Command{
		Use:   "sync [peer...]",
		Short: "Reconcile with peers now",
		Long: `Runs one reconciliation round against each peer: pulls what this replica
lacks, pushes what the peer lacks, and records a checkpoint on success. A
peer is a relay URL (http://host:8477) or the path of another cord
database. Without arguments the peers from sync.peers are used.

An interrupted round keeps whatever was already merged; run sync again
to continue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			specs := args
			if len(specs) == 0 {
				specs = a.cfg.Sync.Peers
			}
			if len(specs) == 0 {
				return newExitError(exitCommandError, "no peers: pass one or configure sync.peers")
			}

			r, err := a.openReplica(ctx)
			if err != nil {
				return err
			}
			peers, closePeers, err := a.openPeers(ctx, specs)
			if err != nil {
				return err
			}
			defer closePeers()

			if full {
				for _, p := range peers {
					if err := a.store.ResetCheckpoint(ctx, p.ID()); err != nil {
						return err
					}
				}
			}

			if batch <= 0 {
				batch = a.cfg.Sync.BatchSize
			}
			if retries < 0 {
				retries = int(a.cfg.Sync.Retries)
			}
			eng := reconcile.New(r, reconcile.Options{
				BatchSize:    batch,
				VerifyDigest: a.cfg.Sync.VerifyDigest,
				Push:         a.cfg.Sync.Push && !noPush,
				Logger:       a.log,
			})

			arrivals := make(chan reconcile.Peer, len(peers))
			for _, p := range peers {
				arrivals <- p
			}
			close(arrivals)

			var (
				mu       sync.Mutex
				outcomes []syncOutcome
				failed   int
			)
			err = eng.Serve(ctx, arrivals, reconcile.ServeOptions{
				Parallel: parallel,
				Retries:  uint64(retries),
				OnResult: func(res reconcile.Result, err error) {
					mu.Lock()
					defer mu.Unlock()
					o := syncOutcome{Result: res}
					if err != nil {
						o.Error = err.Error()
						failed++
					}
					outcomes = append(outcomes, o)
				},
			})
			if err != nil {
				return err
			}

			a.emit(outcomes, func(w io.Writer) {
				for _, o := range outcomes {
					printOutcome(w, o)
				}
			})
			if failed > 0 {
				return newExitError(exitFailure, fmt.Sprintf("%d of %d peer(s) failed", failed, len(peers)))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&noPush, "no-push", false, "only pull")
	f.BoolVar(&full, "full", false, "ignore checkpoints and compare everything")
	f.IntVar(&batch, "batch", 0, "ids per fetch or push (default sync.batch_size)")
	f.IntVar(&parallel, "parallel", 1, "peers reconciled at once")
	f.IntVar(&retries, "retries", -1, "retries per failed round (default sync.retries)")
	return cmd
}

func printOutcome(w io.Writer, o syncOutcome) {
	switch {
	case o.Error != "":
		fmt.Fprintf(w, "%s: FAILED after %d new: %s\n", o.Peer, o.Inserted, o.Error)
	case o.InSync:
		fmt.Fprintf(w, "%s: in sync\n", o.Peer)
	default:
		pass := ""
		if o.FullPass {
			pass = " (full pass)"
		}
		if o.PushRefused {
			pass += " (peer is read-only)"
		}
		fmt.Fprintf(w, "%s: pulled %d new, %d duplicate, pushed %d in %s%s\n",
			o.Peer, o.Inserted, o.Duplicates, o.Pushed, o.Duration.Round(time.Millisecond), pass)
	}
	for _, rj := range o.Rejected {
		fmt.Fprintf(w, "  rejected %s: %s\n", rj.MessageID, rj.Reason)
	}
	for _, rj := range o.PushRejected {
		fmt.Fprintf(w, "  peer rejected %s: %s\n", rj.MessageID, rj.Reason)
	}
}
