package store

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/guildofsmiths/cord/pkg/model"
)

// Stream is an ordered, lazy, finite sequence of records. Ranging over it
// again re-runs the query. Each run reads one snapshot: appends committed
// while a run is in progress are not observed by it.
type Stream = iter.Seq2[model.Record, error]

// stream builds a Stream for the given WHERE clause (may be empty).
func (s *Store) stream(ctx context.Context, where string, args []any, limit int) Stream {
	q := `SELECT ` + selectRecordCols + ` ` + fromRecords
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ` + orderTotal
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	return func(yield func(model.Record, error) bool) {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			yield(model.Record{}, fmt.Errorf("stream conn: %w", err))
			return
		}
		defer conn.Close()

		// A deferred read transaction pins one WAL snapshot for the whole run.
		if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
			yield(model.Record{}, fmt.Errorf("stream begin: %w", err))
			return
		}
		defer conn.ExecContext(context.Background(), "ROLLBACK")

		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			yield(model.Record{}, fmt.Errorf("stream query: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				yield(model.Record{}, fmt.Errorf("stream scan: %w", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Record{}, fmt.Errorf("stream: %w", err))
		}
	}
}

// All streams every entry in total order.
func (s *Store) All(ctx context.Context) Stream {
	return s.stream(ctx, "", nil, 0)
}

// ForGroup streams the entries of one hub channel.
func (s *Store) ForGroup(ctx context.Context, hubID, channelID string) Stream {
	return s.stream(ctx, "e.hub_id = ? AND e.channel_id = ?", []any{hubID, channelID}, 0)
}

// ForCord streams the entries of one cord.
func (s *Store) ForCord(ctx context.Context, cordID string) Stream {
	return s.stream(ctx, "e.cord_id = ?", []any{cordID}, 0)
}

// ForClass streams the entries of one message class.
func (s *Store) ForClass(ctx context.Context, class model.MessageClass) Stream {
	return s.stream(ctx, "e.class = ?", []any{string(class)}, 0)
}

// ForAuthor streams one author's entries.
func (s *Store) ForAuthor(ctx context.Context, authorID string) Stream {
	return s.stream(ctx, "e.author_id = ?", []any{authorID}, 0)
}

// ForThread streams the entries of one thread.
func (s *Store) ForThread(ctx context.Context, threadID string) Stream {
	return s.stream(ctx, "e.thread_id = ?", []any{threadID}, 0)
}

// Range streams entries with since < LamportTS <= until.
func (s *Store) Range(ctx context.Context, since, until int64) Stream {
	return s.stream(ctx, "e.lamport_ts > ? AND e.lamport_ts <= ?", []any{since, until}, 0)
}

// Since streams entries with LamportTS > since.
func (s *Store) Since(ctx context.Context, since int64) Stream {
	return s.stream(ctx, "e.lamport_ts > ?", []any{since}, 0)
}

// Page streams up to limit entries strictly after the position in total
// order. A zero position starts from the beginning.
func (s *Store) Page(ctx context.Context, after model.Position, limit int) Stream {
	if after.IsZero() {
		return s.stream(ctx, "", nil, limit)
	}
	return s.stream(ctx,
		"(e.lamport_ts, e.author_id, e.author_counter, e.message_id) > (?, ?, ?, ?)",
		[]any{after.LamportTS, after.AuthorID, after.AuthorCounter, after.MessageID}, limit)
}

// Collect drains a stream into a slice.
func Collect(seq Stream) ([]model.Record, error) {
	var out []model.Record
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Entries drops the delivery side records.
func Entries(recs []model.Record) []model.Entry {
	out := make([]model.Entry, len(recs))
	for i, r := range recs {
		out[i] = r.Entry
	}
	return out
}

func sortEntries(es []model.Entry) {
	slices.SortFunc(es, func(a, b model.Entry) int {
		return model.Compare(a.Position(), b.Position())
	})
}
