package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guildofsmiths/cord/pkg/reconcile"
	"github.com/guildofsmiths/cord/pkg/transport/httprelay"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		listen    string
		allowPush bool
		every     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a relay so other devices can sync with this replica",
		Long: `Serves the replica over HTTP. With --sync-every the configured peers are
also reconciled on that interval, which is how an always-on machine keeps
its store current while devices come and go.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := a.openReplica(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.Relay.Listen
			}
			if !cmd.Flags().Changed("allow-push") {
				allowPush = a.cfg.Relay.AllowPush
			}

			srv := httprelay.NewServer(r, httprelay.ServerOptions{AllowPush: allowPush, Logger: a.log})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(listen) })
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})

			if every > 0 && len(a.cfg.Sync.Peers) > 0 {
				peers, closePeers, err := a.openPeers(ctx, a.cfg.Sync.Peers)
				if err != nil {
					stop()
					_ = g.Wait()
					return err
				}
				defer closePeers()

				eng := reconcile.New(r, reconcile.Options{
					BatchSize:    a.cfg.Sync.BatchSize,
					VerifyDigest: a.cfg.Sync.VerifyDigest,
					Push:         a.cfg.Sync.Push,
					Logger:       a.log,
				})
				arrivals := make(chan reconcile.Peer)
				g.Go(func() error { return offerPeers(gctx, peers, every, arrivals) })
				g.Go(func() error {
					err := eng.Serve(gctx, arrivals, reconcile.ServeOptions{
						Parallel: len(peers),
						Retries:  a.cfg.Sync.Retries,
						OnResult: func(res reconcile.Result, err error) {
							if err == nil && !res.InSync {
								a.log.Info("synced", "peer", res.Peer, "inserted", res.Inserted, "pushed", res.Pushed)
							}
						},
					})
					if ctx.Err() != nil {
						return nil
					}
					return err
				})
			}

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			a.log.Info("stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "listen address (default relay.listen)")
	f.BoolVar(&allowPush, "allow-push", false, "accept entries pushed by clients (default relay.allow_push)")
	f.DurationVar(&every, "sync-every", 0, "also reconcile sync.peers on this interval")
	return cmd
}

// offerPeers hands every peer to arrivals once per interval, starting
// immediately. Sends block while the engine is at capacity, so a slow
// round delays the next tick rather than queueing more.
func offerPeers(ctx context.Context, peers []reconcile.Peer, every time.Duration, arrivals chan<- reconcile.Peer) error {
	defer close(arrivals)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for _, p := range peers {
			select {
			case arrivals <- p:
			case <-ctx.Done():
				return nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}
