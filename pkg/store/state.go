package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guildofsmiths/cord/pkg/clock"
)

// saveClock upserts the clock state, never moving either value backwards.
func saveClock(ctx context.Context, x execer, st clock.State) error {
	_, err := x.ExecContext(ctx, `INSERT INTO clock_state (author_id, last_timestamp, last_counter, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(author_id) DO UPDATE SET
			last_timestamp = MAX(clock_state.last_timestamp, excluded.last_timestamp),
			last_counter   = MAX(clock_state.last_counter, excluded.last_counter),
			updated_at     = excluded.updated_at`,
		st.AuthorID, st.LastTimestamp, st.LastCounter, now())
	if err != nil {
		return fmt.Errorf("save clock %s: %w", st.AuthorID, err)
	}
	return nil
}

// SaveClock persists the author's clock state. Values only ratchet up.
func (s *Store) SaveClock(ctx context.Context, st clock.State) error {
	return retryOnContention(ctx, func() error {
		return saveClock(ctx, s.db, st)
	})
}

// LoadClock returns the persisted clock state of an author and whether
// one was found.
func (s *Store) LoadClock(ctx context.Context, authorID string) (clock.State, bool, error) {
	st := clock.State{AuthorID: authorID}
	err := s.db.QueryRowContext(ctx,
		`SELECT last_timestamp, last_counter FROM clock_state WHERE author_id = ?`, authorID).
		Scan(&st.LastTimestamp, &st.LastCounter)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("load clock %s: %w", authorID, err)
	}
	return st, true, nil
}

// Checkpoint is how far reconciliation with one peer has progressed, in
// Lamport timestamps of the manifests exchanged.
type Checkpoint struct {
	PeerID    string    `json:"peer_id"`
	PulledTS  int64     `json:"pulled_ts"`
	PushedTS  int64     `json:"pushed_ts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpoint returns the stored checkpoint for a peer (zero if unset).
func (s *Store) Checkpoint(ctx context.Context, peerID string) (Checkpoint, error) {
	cp := Checkpoint{PeerID: peerID}
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT pulled_ts, pushed_ts, updated_at FROM peer_checkpoints WHERE peer_id = ?`, peerID).
		Scan(&cp.PulledTS, &cp.PushedTS, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("checkpoint %s: %w", peerID, err)
	}
	cp.UpdatedAt, err = parseTime(updated)
	return cp, err
}

// SetCheckpoint advances a peer checkpoint. Each direction only ratchets
// up, so concurrent rounds against one peer never move it back.
func (s *Store) SetCheckpoint(ctx context.Context, cp Checkpoint) error {
	return retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO peer_checkpoints (peer_id, pulled_ts, pushed_ts, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(peer_id) DO UPDATE SET
				pulled_ts  = MAX(peer_checkpoints.pulled_ts, excluded.pulled_ts),
				pushed_ts  = MAX(peer_checkpoints.pushed_ts, excluded.pushed_ts),
				updated_at = excluded.updated_at`,
			cp.PeerID, cp.PulledTS, cp.PushedTS, now())
		if err != nil {
			return fmt.Errorf("set checkpoint %s: %w", cp.PeerID, err)
		}
		return nil
	})
}

// ResetCheckpoint zeroes a peer checkpoint so the next round compares
// everything.
func (s *Store) ResetCheckpoint(ctx context.Context, peerID string) error {
	return retryOnContention(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO peer_checkpoints (peer_id, pulled_ts, pushed_ts, updated_at)
			VALUES (?, 0, 0, ?)
			ON CONFLICT(peer_id) DO UPDATE SET pulled_ts = 0, pushed_ts = 0, updated_at = excluded.updated_at`,
			peerID, now())
		if err != nil {
			return fmt.Errorf("reset checkpoint %s: %w", peerID, err)
		}
		return nil
	})
}

// ListCheckpoints returns every peer checkpoint ordered by peer id.
func (s *Store) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT peer_id, pulled_ts, pushed_ts, updated_at FROM peer_checkpoints ORDER BY peer_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()
	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var updated string
		if err := rows.Scan(&cp.PeerID, &cp.PulledTS, &cp.PushedTS, &updated); err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		if cp.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
