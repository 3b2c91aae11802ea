package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/store"
)

// logFilter narrows a stream. Zero fields match everything.
type logFilter struct {
	Hub, Channel, Cord, Thread, Author string
	Class                              string
	Since, Until                       int64 // since < ts <= until; until 0 is unbounded
}

func (f logFilter) match(r model.Record) bool {
	switch {
	case f.Hub != "" && r.HubID != f.Hub,
		f.Channel != "" && r.ChannelID != f.Channel,
		f.Cord != "" && r.CordID != f.Cord,
		f.Thread != "" && r.ThreadID != f.Thread,
		f.Author != "" && r.AuthorID != f.Author,
		f.Class != "" && string(r.Class) != f.Class,
		r.LamportTS <= f.Since,
		f.Until > 0 && r.LamportTS > f.Until:
		return false
	}
	return true
}

// stream picks the most selective indexed stream; match does the rest.
func (f logFilter) stream(cmd *cobra.Command, st store.StoreInterface) store.Stream {
	ctx := cmd.Context()
	switch {
	case f.Thread != "":
		return st.ForThread(ctx, f.Thread)
	case f.Cord != "":
		return st.ForCord(ctx, f.Cord)
	case f.Hub != "" && f.Channel != "":
		return st.ForGroup(ctx, f.Hub, f.Channel)
	case f.Author != "":
		return st.ForAuthor(ctx, f.Author)
	case f.Class != "":
		return st.ForClass(ctx, model.MessageClass(f.Class))
	case f.Until > 0:
		return st.Range(ctx, f.Since, f.Until)
	case f.Since > 0:
		return st.Since(ctx, f.Since)
	}
	return st.All(ctx)
}

func newLogCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		f     logFilter
		after string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print entries in total order",
		Long: `Prints stored entries ordered by (lamport_ts, author_id, author_counter).
Every replica holding the same entries prints the same sequence.
--after resumes a listing after the given message id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			stream := f.stream(cmd, a.store)
			if after != "" {
				rec, err := a.store.Get(cmd.Context(), after)
				if errors.Is(err, model.ErrNotFound) {
					return newExitError(exitCommandError, "unknown message id "+after)
				}
				if err != nil {
					return err
				}
				stream = a.store.Page(cmd.Context(), rec.Position(), 0)
			}

			records := []model.Record{}
			for rec, err := range stream {
				if err != nil {
					return err
				}
				if !f.match(rec) {
					continue
				}
				records = append(records, rec)
				if limit > 0 && len(records) >= limit {
					break
				}
			}

			a.emit(records, func(w io.Writer) {
				for _, r := range records {
					printRecord(w, r)
				}
				if len(records) == 0 {
					fmt.Fprintln(w, "no entries")
				}
			})
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.Hub, "hub", "", "only this hub")
	fl.StringVar(&f.Channel, "channel", "", "only this channel")
	fl.StringVar(&f.Cord, "cord", "", "only this cord")
	fl.StringVar(&f.Thread, "thread", "", "only this thread")
	fl.StringVar(&f.Author, "from", "", "only entries by this author")
	fl.StringVar(&f.Class, "class", "", "only this message class")
	fl.Int64Var(&f.Since, "since", 0, "only entries with lamport_ts > N")
	fl.Int64Var(&f.Until, "until", 0, "only entries with lamport_ts <= N")
	fl.StringVar(&after, "after", "", "resume after this message id")
	fl.IntVarP(&limit, "limit", "n", 0, "print at most N entries")
	return cmd
}
