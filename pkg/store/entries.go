package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/model"
)

// maxVars bounds the number of bound parameters per IN (...) query.
const maxVars = 500

const insertEntrySQL = `INSERT INTO entries
	(message_id, author_id, author_counter, lamport_ts, hub_id, channel_id,
	 cord_id, thread_id, class, payload, signature, integrity_hash, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(message_id) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertEntry validates e and inserts it. Returns false when the id was
// already present.
func insertEntry(ctx context.Context, x execer, e model.Entry) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	hash, err := integrity.HashHex(e)
	if err != nil {
		return false, err
	}
	res, err := x.ExecContext(ctx, insertEntrySQL,
		e.MessageID, e.AuthorID, e.AuthorCounter, e.LamportTS, e.HubID, e.ChannelID,
		e.CordID, e.ThreadID, string(e.Class), e.Payload, e.Signature, hash, now())
	if err != nil {
		return false, fmt.Errorf("insert entry %s: %w", e.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert entry %s: %w", e.MessageID, err)
	}
	return n > 0, nil
}

// Append stores e if its message id is new. A duplicate id is a no-op and
// reports inserted=false with a nil error.
func (s *Store) Append(ctx context.Context, e model.Entry) (bool, error) {
	var inserted bool
	err := retryOnContention(ctx, func() error {
		var err error
		inserted, err = insertEntry(ctx, s.db, e)
		return err
	})
	return inserted, err
}

// AppendLocal stores a locally authored entry and the author's clock state
// in one transaction, so a crash never leaves a persisted entry ahead of
// the persisted clock.
func (s *Store) AppendLocal(ctx context.Context, e model.Entry, st clock.State) (bool, error) {
	var inserted bool
	err := retryOnContention(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		inserted, err = insertEntry(ctx, tx, e)
		if err != nil {
			return err
		}
		if err := saveClock(ctx, tx, st); err != nil {
			return err
		}
		return tx.Commit()
	})
	return inserted, err
}

// Outcome is the result of appending one entry of a batch.
type Outcome struct {
	MessageID string
	Inserted  bool
	Err       error
}

// BatchResult reports per-entry outcomes of AppendBatch, in input order.
type BatchResult struct {
	Outcomes []Outcome
	// MaxTimestamp is the highest LamportTS among entries that are now
	// stored (inserted or already present).
	MaxTimestamp int64
}

// Inserted counts entries that were new.
func (r BatchResult) Inserted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Inserted {
			n++
		}
	}
	return n
}

// Duplicates counts entries that were already present.
func (r BatchResult) Duplicates() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Inserted && o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that carry an error.
func (r BatchResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// AppendBatch stores each entry independently. A failing entry is recorded
// in its outcome and does not prevent the others from being stored. The
// returned error is non-nil only when the batch as a whole could not be
// committed, in which case nothing from it was stored.
func (s *Store) AppendBatch(ctx context.Context, entries []model.Entry) (BatchResult, error) {
	var res BatchResult
	err := retryOnContention(ctx, func() error {
		res = BatchResult{Outcomes: make([]Outcome, 0, len(entries))}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		for _, e := range entries {
			// A failed statement inside a transaction only rolls back itself.
			ins, err := insertEntry(ctx, tx, e)
			if err != nil && isTransientSQLiteErr(err) {
				return err
			}
			res.Outcomes = append(res.Outcomes, Outcome{MessageID: e.MessageID, Inserted: ins, Err: err})
			if err == nil && e.LamportTS > res.MaxTimestamp {
				res.MaxTimestamp = e.LamportTS
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

const selectRecordCols = `e.message_id, e.author_id, e.author_counter, e.lamport_ts,
	e.hub_id, e.channel_id, e.cord_id, e.thread_id, e.class, e.payload, e.signature,
	COALESCE(d.marker, ''), COALESCE(d.updated_at, '')`

const fromRecords = `FROM entries e LEFT JOIN deliveries d ON d.message_id = e.message_id`

const orderTotal = `ORDER BY e.lamport_ts, e.author_id, e.author_counter, e.message_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.Record, error) {
	var r model.Record
	var class, marker, updated string
	if err := sc.Scan(&r.MessageID, &r.AuthorID, &r.AuthorCounter, &r.LamportTS,
		&r.HubID, &r.ChannelID, &r.CordID, &r.ThreadID, &class, &r.Payload, &r.Signature,
		&marker, &updated); err != nil {
		return r, err
	}
	r.Class = model.MessageClass(class)
	if marker != "" {
		t, err := parseTime(updated)
		if err != nil {
			return r, fmt.Errorf("parse delivery time: %w", err)
		}
		r.Delivery = model.Delivery{MessageID: r.MessageID, Marker: model.DeliveryMarker(marker), UpdatedAt: t}
	}
	return r, nil
}

// Get returns the record with the given id, or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectRecordCols+` `+fromRecords+` WHERE e.message_id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return r, nil
}

// Exists reports whether an entry with the id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE message_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return true, nil
}

// ExistsAny returns the subset of ids that are stored.
func (s *Store) ExistsAny(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, chunk := range chunks(ids, maxVars) {
		q := `SELECT message_id FROM entries WHERE message_id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, q, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("exists any: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("exists any: %w", err)
			}
			known[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("exists any: %w", err)
		}
	}
	return known, nil
}

// Fetch returns the stored entries among ids in total order. Unknown ids
// are skipped.
func (s *Store) Fetch(ctx context.Context, ids []string) ([]model.Entry, error) {
	var out []model.Entry
	for _, chunk := range chunks(ids, maxVars) {
		q := `SELECT ` + selectRecordCols + ` ` + fromRecords +
			` WHERE e.message_id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, q, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("fetch: %w", err)
			}
			out = append(out, r.Entry)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}
	sortEntries(out)
	return out, nil
}

// IntegrityHash returns the integrity hash computed when the entry was
// stored.
func (s *Store) IntegrityHash(ctx context.Context, id string) (string, error) {
	var h string
	err := s.db.QueryRowContext(ctx, `SELECT integrity_hash FROM entries WHERE message_id = ?`, id).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("integrity hash %s: %w", id, err)
	}
	return h, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
