package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/frontier"
	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/store"
)

type statusReport struct {
	DB            string                         `json:"db"`
	SizeBytes     uint64                         `json:"size_bytes"`
	SchemaVersion int                            `json:"schema_version"`
	AuthorID      string                         `json:"author_id,omitempty"`
	Clock         *clock.State                   `json:"clock,omitempty"`
	Entries       int64                          `json:"entries"`
	MaxTimestamp  int64                          `json:"max_timestamp"`
	Digest        model.Digest                   `json:"digest"`
	Markers       map[model.DeliveryMarker]int64 `json:"markers"`
	Peers         []peerStatus                   `json:"peers"`
	Settlement    frontier.Status                `json:"settlement"`
}

type peerStatus struct {
	store.Checkpoint
	Freshness string `json:"freshness"`
}

func newStatusCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the replica, its clock, markers and peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			rep := statusReport{DB: a.cfg.DB, AuthorID: a.cfg.AuthorID, SizeBytes: dbSize(a.cfg.DB)}
			if rep.SchemaVersion, err = a.store.SchemaVersion(ctx); err != nil {
				return err
			}
			if rep.Entries, err = a.store.Count(ctx); err != nil {
				return err
			}
			if rep.MaxTimestamp, err = a.store.MaxTimestamp(ctx); err != nil {
				return err
			}
			if rep.Digest, err = a.store.Digest(ctx); err != nil {
				return err
			}
			if rep.Markers, err = a.store.CountByMarker(ctx); err != nil {
				return err
			}
			// Status works without an author; the clock is shown when known.
			if rep.AuthorID != "" {
				if st, ok, err := a.store.LoadClock(ctx, rep.AuthorID); err != nil {
					return err
				} else if ok {
					rep.Clock = &st
				}
			}
			cps, err := a.store.ListCheckpoints(ctx)
			if err != nil {
				return err
			}
			rep.Peers = make([]peerStatus, len(cps))
			progress := make([]frontier.Progress, len(cps))
			for i, cp := range cps {
				rep.Peers[i] = peerStatus{Checkpoint: cp, Freshness: peerFreshness(cp, time.Now())}
				progress[i] = frontier.Progress{PeerID: cp.PeerID, PulledTS: cp.PulledTS, PushedTS: cp.PushedTS}
			}
			rep.Settlement = frontier.ComputeStatus(rep.MaxTimestamp, progress)

			a.emit(rep, func(w io.Writer) { printStatus(w, rep) })
			return nil
		},
	}
}

func printStatus(w io.Writer, rep statusReport) {
	fmt.Fprintf(w, "db:      %s (%s, schema v%d)\n", rep.DB, humanize.Bytes(rep.SizeBytes), rep.SchemaVersion)
	fmt.Fprintf(w, "entries: %s, max ts=%d, digest %s\n",
		humanize.Comma(rep.Entries), rep.MaxTimestamp, shortSum(rep.Digest.Sum))

	switch {
	case rep.AuthorID == "":
		fmt.Fprintln(w, "author:  (unset)")
	case rep.Clock == nil:
		fmt.Fprintf(w, "author:  %s (no clock yet)\n", rep.AuthorID)
	default:
		fmt.Fprintf(w, "author:  %s clock=%d counter=%d\n", rep.AuthorID, rep.Clock.LastTimestamp, rep.Clock.LastCounter)
	}

	if len(rep.Markers) > 0 {
		fmt.Fprintln(w, "markers:")
		keys := make([]string, 0, len(rep.Markers))
		for m := range rep.Markers {
			keys = append(keys, string(m))
		}
		sort.Strings(keys)
		for _, k := range keys {
			name := k
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(w, "  %-10s %s\n", name, humanize.Comma(rep.Markers[model.DeliveryMarker(k)]))
		}
	}

	if len(rep.Peers) == 0 {
		fmt.Fprintln(w, "peers:   none")
		return
	}
	fmt.Fprintln(w, "peers:")
	for _, p := range rep.Peers {
		fmt.Fprintf(w, "  %s %-30s pulled=%-5d pushed=%-5d last=%s\n",
			freshnessIndicator(p.Freshness), p.PeerID, p.PulledTS, p.PushedTS, humanize.Time(p.UpdatedAt))
	}

	s := rep.Settlement
	if s.Settled {
		fmt.Fprintf(w, "settled: everything through ts=%d has reached every peer\n", rep.MaxTimestamp)
		return
	}
	fmt.Fprintf(w, "settled: through ts=%d of %d\n", s.Horizon, rep.MaxTimestamp)
	for _, p := range s.Frontier {
		fmt.Fprintf(w, "  lagging %s (pulled=%d pushed=%d)\n", p.PeerID, p.PulledTS, p.PushedTS)
	}
}

// peerFreshness classifies when a peer was last reconciled.
//   - "fresh" within an hour
//   - "stale" within a day
//   - "cold"  otherwise
func peerFreshness(cp store.Checkpoint, now time.Time) string {
	since := now.Sub(cp.UpdatedAt)
	switch {
	case since < time.Hour:
		return "fresh"
	case since < 24*time.Hour:
		return "stale"
	default:
		return "cold"
	}
}

func freshnessIndicator(f string) string {
	switch f {
	case "fresh":
		return "●"
	case "stale":
		return "◐"
	default:
		return "○"
	}
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

// dbSize adds the WAL file, which holds recent writes until checkpoint.
func dbSize(path string) uint64 {
	var n uint64
	for _, p := range []string{path, path + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			n += uint64(fi.Size())
		}
	}
	return n
}
