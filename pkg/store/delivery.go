package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/guildofsmiths/cord/pkg/model"
)

// UpdateDeliveryMarker sets the delivery marker of a stored entry
// (last write wins). It never touches the entries table. Returns
// model.ErrNotFound when the entry is unknown.
func (s *Store) UpdateDeliveryMarker(ctx context.Context, id string, marker model.DeliveryMarker) error {
	if !marker.Valid() {
		return fmt.Errorf("update delivery %s: unknown marker %q", id, marker)
	}
	return retryOnContention(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `INSERT INTO deliveries (message_id, marker, updated_at)
			SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM entries WHERE message_id = ?)
			ON CONFLICT(message_id) DO UPDATE SET marker = excluded.marker, updated_at = excluded.updated_at`,
			id, string(marker), now(), id)
		if err != nil {
			return fmt.Errorf("update delivery %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update delivery %s: %w", id, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return nil
	})
}

// DeliveryFor returns the delivery record of an entry. An entry without a
// recorded marker yields a Delivery with MarkerNone.
func (s *Store) DeliveryFor(ctx context.Context, id string) (model.Delivery, error) {
	d := model.Delivery{MessageID: id}
	var marker, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT marker, updated_at FROM deliveries WHERE message_id = ?`, id).Scan(&marker, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return d, err
		}
		if !ok {
			return d, fmt.Errorf("%w: %s", model.ErrNotFound, id)
		}
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("delivery %s: %w", id, err)
	}
	d.Marker = model.DeliveryMarker(marker)
	d.UpdatedAt, err = parseTime(updated)
	if err != nil {
		return d, fmt.Errorf("delivery %s: %w", id, err)
	}
	return d, nil
}

// CountByMarker returns the number of entries per recorded marker.
func (s *Store) CountByMarker(ctx context.Context) (map[model.DeliveryMarker]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT marker, COUNT(*) FROM deliveries GROUP BY marker`)
	if err != nil {
		return nil, fmt.Errorf("count markers: %w", err)
	}
	defer rows.Close()
	out := make(map[model.DeliveryMarker]int64)
	for rows.Next() {
		var m string
		var n int64
		if err := rows.Scan(&m, &n); err != nil {
			return nil, fmt.Errorf("count markers: %w", err)
		}
		out[model.DeliveryMarker(m)] = n
	}
	return out, rows.Err()
}
