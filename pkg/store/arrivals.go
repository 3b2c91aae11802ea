package store

import (
	"context"
	"fmt"

	"github.com/guildofsmiths/cord/pkg/model"
)

// Arrival is a record tagged with its local arrival sequence. Sequences
// follow insertion order on this replica only; they are never exchanged
// and carry no ordering meaning across replicas.
type Arrival struct {
	Seq int64 `json:"seq"`
	model.Record
}

// ArrivalsSince returns records stored after seq, in arrival order. It
// lets a follower see entries merged below the current max timestamp.
func (s *Store) ArrivalsSince(ctx context.Context, seq int64, limit int) ([]Arrival, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT e.rowid, `+selectRecordCols+` `+fromRecords+`
		WHERE e.rowid > ? ORDER BY e.rowid LIMIT ?`, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("arrivals: %w", err)
	}
	defer rows.Close()

	var out []Arrival
	for rows.Next() {
		var a Arrival
		r, err := scanRecord(prefixScanner{rows, &a.Seq})
		if err != nil {
			return nil, fmt.Errorf("arrivals: %w", err)
		}
		a.Record = r
		out = append(out, a)
	}
	return out, rows.Err()
}

// MaxSeq returns the latest arrival sequence, or 0 when empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(rowid), 0) FROM entries`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// prefixScanner scans one leading column into first, then the rest.
type prefixScanner struct {
	sc    scanner
	first any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.sc.Scan(append([]any{p.first}, dest...)...)
}
