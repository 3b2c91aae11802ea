package cord

import (
	"context"
	"fmt"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/model"
)

// IngestResult reports what happened to each entry handed to Ingest.
type IngestResult struct {
	Inserted   []string          `json:"inserted"`
	Duplicates []string          `json:"duplicates"`
	Rejected   []model.Rejection `json:"rejected"`
	// MaxTimestamp is the highest timestamp among stored entries of the
	// batch, observed by the clock.
	MaxTimestamp int64 `json:"max_timestamp"`
}

// Accepted returns the ids now held locally: inserted and duplicates.
func (r IngestResult) Accepted() []string {
	out := make([]string, 0, len(r.Inserted)+len(r.Duplicates))
	out = append(out, r.Inserted...)
	return append(out, r.Duplicates...)
}

// Ingest validates entries received from a peer and stores the acceptable
// ones. Each entry is judged independently; a rejected entry does not block
// the others. The clock observes the batch's max timestamp once. The error
// is non-nil only for store failures.
func (r *Replica) Ingest(ctx context.Context, entries []model.Entry) (IngestResult, error) {
	var res IngestResult
	if len(entries) == 0 {
		return res, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
	}
	known, err := r.st.ExistsAny(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}

	reject := func(e model.Entry, err error) {
		res.Rejected = append(res.Rejected, model.Rejection{MessageID: e.MessageID, Reason: err.Error(), Err: err})
		r.log.Warn("rejected entry", "id", e.MessageID, "author", e.AuthorID, "error", err)
	}

	var accepted []model.Entry
	batchIDs := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			reject(e, err)
			continue
		}
		if err := integrity.Check(e, r.verify); err != nil {
			reject(e, err)
			continue
		}
		if known[e.MessageID] || batchIDs[e.MessageID] {
			if err := r.sameContent(ctx, e, accepted); err != nil {
				reject(e, err)
				continue
			}
			res.Duplicates = append(res.Duplicates, e.MessageID)
			if e.LamportTS > res.MaxTimestamp {
				res.MaxTimestamp = e.LamportTS
			}
			continue
		}
		if err := r.checkAuthorHistory(ctx, e, accepted); err != nil {
			reject(e, err)
			continue
		}
		batchIDs[e.MessageID] = true
		accepted = append(accepted, e)
	}

	if len(accepted) > 0 {
		br, err := r.st.AppendBatch(ctx, accepted)
		if err != nil {
			return res, fmt.Errorf("ingest: %w", err)
		}
		stored := accepted[:0:0]
		for i, o := range br.Outcomes {
			switch {
			case o.Err != nil:
				reject(accepted[i], o.Err)
				continue
			case o.Inserted:
				res.Inserted = append(res.Inserted, o.MessageID)
			default:
				res.Duplicates = append(res.Duplicates, o.MessageID)
			}
			stored = append(stored, accepted[i])
		}
		if br.MaxTimestamp > res.MaxTimestamp {
			res.MaxTimestamp = br.MaxTimestamp
		}
		r.adoptOwnHistory(stored)
	}

	if res.MaxTimestamp > 0 {
		r.clk.Observe(res.MaxTimestamp)
		if err := r.st.SaveClock(ctx, r.clk.State()); err != nil {
			return res, fmt.Errorf("ingest: %w", err)
		}
	}
	r.log.Debug("ingested", "inserted", len(res.Inserted), "duplicates", len(res.Duplicates),
		"rejected", len(res.Rejected), "max_ts", res.MaxTimestamp)
	return res, nil
}

// sameContent checks that a duplicate id carries the content already
// stored (or already accepted in this batch).
func (r *Replica) sameContent(ctx context.Context, e model.Entry, batch []model.Entry) error {
	want, err := integrity.HashHex(e)
	if err != nil {
		return err
	}
	var have string
	for _, b := range batch {
		if b.MessageID == e.MessageID {
			have, err = integrity.HashHex(b)
			if err != nil {
				return err
			}
			break
		}
	}
	if have == "" {
		if have, err = r.st.IntegrityHash(ctx, e.MessageID); err != nil {
			return err
		}
	}
	if have != want {
		return fmt.Errorf("%w: message id %s already stored with different content", model.ErrIntegrity, e.MessageID)
	}
	return nil
}

// checkAuthorHistory rejects an entry whose (counter, timestamp) pair does
// not fit the author's history in the store and in the current batch.
func (r *Replica) checkAuthorHistory(ctx context.Context, e model.Entry, batch []model.Entry) error {
	conflict, err := r.st.AuthorConflict(ctx, e)
	if err != nil {
		return err
	}
	if conflict == "" {
		for _, b := range batch {
			if historyConflict(e, b) {
				conflict = b.MessageID
				break
			}
		}
	}
	if conflict != "" {
		return fmt.Errorf("%w: %s (counter %d, ts %d) conflicts with %s",
			model.ErrNonMonotonic, e.MessageID, e.AuthorCounter, e.LamportTS, conflict)
	}
	return nil
}

// historyConflict reports whether two entries of the same author cannot
// both belong to a history whose counter strictly increases with time.
func historyConflict(a, b model.Entry) bool {
	if a.AuthorID != b.AuthorID || a.MessageID == b.MessageID {
		return false
	}
	return (b.AuthorCounter >= a.AuthorCounter && b.LamportTS <= a.LamportTS) ||
		(b.AuthorCounter <= a.AuthorCounter && b.LamportTS >= a.LamportTS)
}

// adoptOwnHistory moves the local counter past entries authored by this
// device that came back from a peer, e.g. after a restore.
func (r *Replica) adoptOwnHistory(entries []model.Entry) {
	for _, e := range entries {
		if e.AuthorID == r.author {
			r.clk.Restore(clock.State{AuthorID: r.author, LastTimestamp: e.LamportTS, LastCounter: e.AuthorCounter})
		}
	}
}
