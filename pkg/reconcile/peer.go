// Package reconcile brings two Cord replicas to the union of their entries.
//
// A round pulls the peer's manifest since the last checkpoint, fetches the
// entries the local replica lacks in bounded batches and ingests each batch
// through the replica. When the peer also accepts entries, the round pushes
// what the peer lacks; a peer answering model.ErrPushRefused is pulled
// from only. Checkpoints advance only after a fully successful
// round, so an interrupted round leaves a valid subset and the next round
// re-offers what is still missing.
package reconcile

import (
	"context"

	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/model"
)

// Peer is a remote replica reachable over some transport.
type Peer interface {
	// ID names the peer for checkpoints and logs. Must be stable.
	ID() string
	Manifest(ctx context.Context, since int64) (model.Manifest, error)
	Digest(ctx context.Context) (model.Digest, error)
	Fetch(ctx context.Context, ids []string) ([]model.Entry, error)
}

// Pusher is implemented by peers that accept entries.
type Pusher interface {
	// Missing returns the ids the peer does not hold.
	Missing(ctx context.Context, ids []string) ([]string, error)
	// Push hands entries to the peer and returns the ones it rejected.
	// Missing and Push return model.ErrPushRefused when the peer is
	// read-only.
	Push(ctx context.Context, entries []model.Entry) ([]model.Rejection, error)
}

// LocalPeer exposes an in-process replica as a Peer and Pusher.
type LocalPeer struct {
	Name    string
	Replica *cord.Replica
}

// NewLocalPeer names the replica by its author id.
func NewLocalPeer(r *cord.Replica) *LocalPeer {
	return &LocalPeer{Name: r.AuthorID(), Replica: r}
}

func (p *LocalPeer) ID() string { return p.Name }

func (p *LocalPeer) Manifest(ctx context.Context, since int64) (model.Manifest, error) {
	return p.Replica.Manifest(ctx, since)
}

func (p *LocalPeer) Digest(ctx context.Context) (model.Digest, error) {
	return p.Replica.Digest(ctx)
}

func (p *LocalPeer) Fetch(ctx context.Context, ids []string) ([]model.Entry, error) {
	return p.Replica.Fetch(ctx, ids)
}

func (p *LocalPeer) Missing(ctx context.Context, ids []string) ([]string, error) {
	return p.Replica.Missing(ctx, ids)
}

func (p *LocalPeer) Push(ctx context.Context, entries []model.Entry) ([]model.Rejection, error) {
	res, err := p.Replica.Ingest(ctx, entries)
	return res.Rejected, err
}

var (
	_ Peer   = (*LocalPeer)(nil)
	_ Pusher = (*LocalPeer)(nil)
)
