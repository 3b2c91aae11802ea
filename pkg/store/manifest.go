package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/guildofsmiths/cord/pkg/model"
)

// Manifest lists (message id, timestamp) for every entry with
// LamportTS > since, in total order.
func (s *Store) Manifest(ctx context.Context, since int64) (model.Manifest, error) {
	m := model.Manifest{Since: since, MaxTimestamp: since, Items: []model.ManifestItem{}}
	rows, err := s.db.QueryContext(ctx, `SELECT e.message_id, e.lamport_ts FROM entries e
		WHERE e.lamport_ts > ? `+orderTotal, since)
	if err != nil {
		return m, fmt.Errorf("manifest: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it model.ManifestItem
		if err := rows.Scan(&it.MessageID, &it.LamportTS); err != nil {
			return m, fmt.Errorf("manifest: %w", err)
		}
		if it.LamportTS > m.MaxTimestamp {
			m.MaxTimestamp = it.LamportTS
		}
		m.Items = append(m.Items, it)
	}
	return m, rows.Err()
}

// Digest fingerprints the full id set: xxh3-128 over the sorted ids, each
// terminated by a newline. Equal digests mean equal sets.
func (s *Store) Digest(ctx context.Context) (model.Digest, error) {
	var d model.Digest
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM entries ORDER BY message_id`)
	if err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	defer rows.Close()

	h := xxh3.New()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return d, fmt.Errorf("digest: %w", err)
		}
		h.WriteString(id)
		h.Write([]byte{'\n'})
		d.Count++
	}
	if err := rows.Err(); err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	sum := h.Sum128().Bytes()
	d.Sum = hex.EncodeToString(sum[:])
	return d, nil
}

// MaxTimestamp returns the highest stored LamportTS, or 0 when empty.
func (s *Store) MaxTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(lamport_ts), 0) FROM entries`).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("max timestamp: %w", err)
	}
	return ts, nil
}

// MaxTimestampForAuthor returns the author's highest LamportTS, or 0.
func (s *Store) MaxTimestampForAuthor(ctx context.Context, authorID string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(lamport_ts), 0) FROM entries WHERE author_id = ?`, authorID).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("max timestamp for %s: %w", authorID, err)
	}
	return ts, nil
}

// MaxCounterForAuthor returns the highest counter among the author's
// entries with LamportTS <= ts, or 0 when there are none. A ts <= 0 means
// no bound.
func (s *Store) MaxCounterForAuthor(ctx context.Context, authorID string, ts int64) (int64, error) {
	q := `SELECT COALESCE(MAX(author_counter), 0) FROM entries WHERE author_id = ?`
	args := []any{authorID}
	if ts > 0 {
		q += ` AND lamport_ts <= ?`
		args = append(args, ts)
	}
	var c int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&c); err != nil {
		return 0, fmt.Errorf("max counter for %s: %w", authorID, err)
	}
	return c, nil
}

// CounterTaken returns the id of the stored entry holding the author's
// counter, if any.
func (s *Store) CounterTaken(ctx context.Context, authorID string, counter int64) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id FROM entries WHERE author_id = ? AND author_counter = ?
		 ORDER BY message_id LIMIT 1`, authorID, counter).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("counter taken %s/%d: %w", authorID, counter, err)
	}
	return id, true, nil
}

// AuthorConflict returns the id of a stored entry by e's author that would
// break the author's monotonic history if e were added: same counter or
// timestamp, or a counter/timestamp pair ordered the other way round.
// Returns "" when e fits.
func (s *Store) AuthorConflict(ctx context.Context, e model.Entry) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT message_id FROM entries
		WHERE author_id = ? AND message_id <> ?
		  AND ((author_counter >= ? AND lamport_ts <= ?)
		    OR (author_counter <= ? AND lamport_ts >= ?))
		ORDER BY lamport_ts, author_counter LIMIT 1`,
		e.AuthorID, e.MessageID,
		e.AuthorCounter, e.LamportTS,
		e.AuthorCounter, e.LamportTS).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("author conflict %s: %w", e.MessageID, err)
	}
	return id, nil
}
