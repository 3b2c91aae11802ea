package cord

import (
	"context"

	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/store"
)

// Manifest lists the entries held with LamportTS > since.
func (r *Replica) Manifest(ctx context.Context, since int64) (model.Manifest, error) {
	return r.st.Manifest(ctx, since)
}

// Digest fingerprints the full set of held ids.
func (r *Replica) Digest(ctx context.Context) (model.Digest, error) {
	return r.st.Digest(ctx)
}

// Fetch returns the held entries among ids, in total order.
func (r *Replica) Fetch(ctx context.Context, ids []string) ([]model.Entry, error) {
	return r.st.Fetch(ctx, ids)
}

// Since streams held entries with LamportTS > since.
func (r *Replica) Since(ctx context.Context, since int64) store.Stream {
	return r.st.Since(ctx, since)
}

// Missing returns the ids this replica does not hold, preserving order.
func (r *Replica) Missing(ctx context.Context, ids []string) ([]string, error) {
	known, err := r.st.ExistsAny(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
