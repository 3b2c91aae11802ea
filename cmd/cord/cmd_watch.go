package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/store"
)

const watchBatch = 100

func newWatchCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		interval  time.Duration
		fromStart bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream entries as they arrive",
		Long: `Prints entries in the order this replica stored them, including entries
merged from peers with timestamps below ones already printed. With
--format json each entry is one JSON object per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			var cursor int64
			if !fromStart {
				if cursor, err = a.store.MaxSeq(cmd.Context()); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (poll every %s, ctrl-c to stop)\n", a.cfg.DB, interval)
			err = watch(ctx, a.store, cursor, interval, func(arr store.Arrival) {
				if a.format == "json" {
					b, _ := json.Marshal(arr)
					fmt.Fprintln(a.out, string(b))
					return
				}
				printRecord(a.out, arr.Record)
			})
			fmt.Fprintln(cmd.ErrOrStderr(), "\nstopped")
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "print stored entries first")
	return cmd
}

// watch polls for arrivals after cursor until ctx is done. Poll errors go
// to stderr and the poll is retried on the next tick.
func watch(ctx context.Context, st store.StoreInterface, cursor int64, interval time.Duration, emit func(store.Arrival)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	poll := func() error {
		for {
			batch, err := st.ArrivalsSince(ctx, cursor, watchBatch)
			if err != nil {
				return err
			}
			for _, arr := range batch {
				emit(arr)
				cursor = arr.Seq
			}
			if len(batch) < watchBatch {
				return nil
			}
		}
	}

	for {
		if err := poll(); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "cord: watch: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
