package reconcile

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/guildofsmiths/cord/pkg/cord"
	"github.com/guildofsmiths/cord/pkg/model"
	"github.com/guildofsmiths/cord/pkg/store"
)

// DefaultBatchSize bounds the ids per Fetch or Push call.
const DefaultBatchSize = 256

// ErrShortFetch is returned when a peer returns fewer entries than it
// listed in its manifest.
var ErrShortFetch = errors.New("peer returned fewer entries than requested")

// Options configures an Engine.
type Options struct {
	// BatchSize bounds ids per Fetch/Push. Defaults to DefaultBatchSize.
	BatchSize int

	// VerifyDigest compares digests before a round (equal sets skip the
	// round) and after an incremental round (a mismatch triggers one full
	// pass from timestamp 0).
	VerifyDigest bool

	// Push sends local entries to peers that implement Pusher.
	Push bool

	Logger hclog.Logger
}

// Engine reconciles a local replica with peers. Rounds against different
// peers may run concurrently; the replica serializes ingestion.
type Engine struct {
	r    *cord.Replica
	opts Options
	log  hclog.Logger
}

// New returns an engine for r.
func New(r *cord.Replica, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Engine{r: r, opts: opts, log: opts.Logger.Named("reconcile")}
}

// Result summarizes one round.
type Result struct {
	Peer         string            `json:"peer"`
	InSync       bool              `json:"in_sync"`
	FullPass     bool              `json:"full_pass"`
	Offered      int               `json:"offered"`
	Unknown      int               `json:"unknown"`
	Inserted     int               `json:"inserted"`
	Duplicates   int               `json:"duplicates"`
	Rejected     []model.Rejection `json:"rejected,omitempty"`
	Pushed       int               `json:"pushed"`
	PushRefused  bool              `json:"push_refused,omitempty"`
	PushRejected []model.Rejection `json:"push_rejected,omitempty"`
	Checkpoint   store.Checkpoint  `json:"checkpoint"`
	Duration     time.Duration     `json:"duration"`
}

// Reconcile runs one round against p. On error the entries already
// ingested stay stored and the checkpoint is left unchanged.
func (e *Engine) Reconcile(ctx context.Context, p Peer) (Result, error) {
	start := time.Now()
	res := Result{Peer: p.ID()}
	log := e.log.With("peer", p.ID())

	st := e.r.Store()
	cp, err := st.Checkpoint(ctx, p.ID())
	if err != nil {
		return res, errors.Wrap(err, "load checkpoint")
	}
	res.Checkpoint = cp

	pusher, canPush := p.(Pusher)
	canPush = canPush && e.opts.Push

	if e.opts.VerifyDigest {
		same, err := e.sameDigest(ctx, p)
		if err != nil {
			return res, err
		}
		if same {
			maxTS, err := st.MaxTimestamp(ctx)
			if err != nil {
				return res, errors.Wrap(err, "max timestamp")
			}
			res.InSync = true
			return e.finish(ctx, log, res, cp, maxTS, maxTS, start)
		}
	}

	pulled, err := e.pull(ctx, p, cp.PulledTS, &res)
	if err != nil {
		return res, err
	}
	pushed := cp.PushedTS
	if canPush {
		if canPush, err = e.pushIfAccepted(ctx, log, pusher, cp.PushedTS, &pushed, &res); err != nil {
			return res, err
		}
	}

	// A checkpoint hides entries the peer (or this replica) learned later
	// with lower timestamps. If the sets still differ after an incremental
	// round, rescan from zero in every direction the round covers.
	incremental := cp.PulledTS > 0 || cp.PushedTS > 0
	if e.opts.VerifyDigest && incremental && len(res.Rejected) == 0 && len(res.PushRejected) == 0 {
		same, err := e.sameDigest(ctx, p)
		if err != nil {
			return res, err
		}
		if !same {
			log.Info("digest mismatch after incremental round, running full pass", "push", canPush)
			res.FullPass = true
			if pulled, err = e.pull(ctx, p, 0, &res); err != nil {
				return res, err
			}
			if canPush {
				if _, err = e.pushIfAccepted(ctx, log, pusher, 0, &pushed, &res); err != nil {
					return res, err
				}
			}
		}
	}

	return e.finish(ctx, log, res, cp, pulled, pushed, start)
}

func (e *Engine) finish(ctx context.Context, log hclog.Logger, res Result, cp store.Checkpoint, pulled, pushed int64, start time.Time) (Result, error) {
	cp.PulledTS = max(cp.PulledTS, pulled)
	cp.PushedTS = max(cp.PushedTS, pushed)
	if err := e.r.Store().SetCheckpoint(ctx, cp); err != nil {
		return res, errors.Wrap(err, "save checkpoint")
	}
	res.Checkpoint = cp
	res.Duration = time.Since(start)
	log.Info("reconciled", "in_sync", res.InSync, "inserted", res.Inserted, "duplicates", res.Duplicates,
		"rejected", len(res.Rejected), "pushed", res.Pushed, "pulled_ts", cp.PulledTS, "pushed_ts", cp.PushedTS,
		"duration", res.Duration)
	return res, nil
}

func (e *Engine) sameDigest(ctx context.Context, p Peer) (bool, error) {
	remote, err := p.Digest(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "digest from %s", p.ID())
	}
	local, err := e.r.Digest(ctx)
	if err != nil {
		return false, errors.Wrap(err, "local digest")
	}
	return remote == local, nil
}

// pull fetches and ingests the entries p lists since the timestamp that
// the local replica lacks. It returns the manifest's max timestamp.
func (e *Engine) pull(ctx context.Context, p Peer, since int64, res *Result) (int64, error) {
	m, err := p.Manifest(ctx, since)
	if err != nil {
		return 0, errors.Wrapf(err, "manifest from %s", p.ID())
	}
	res.Offered += len(m.Items)

	unknown, err := e.r.Missing(ctx, m.IDs())
	if err != nil {
		return 0, errors.Wrap(err, "diff manifest")
	}
	res.Unknown += len(unknown)

	for _, batch := range batches(unknown, e.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entries, fetchErr := p.Fetch(ctx, batch)
		entries = requested(entries, batch)
		if len(entries) > 0 {
			if err := e.ingest(ctx, entries, res); err != nil {
				return 0, err
			}
		}
		if fetchErr != nil {
			return 0, errors.Wrapf(fetchErr, "fetch from %s", p.ID())
		}
		if len(entries) < len(batch) {
			return 0, errors.Wrapf(ErrShortFetch, "%s returned %d of %d", p.ID(), len(entries), len(batch))
		}
	}
	return m.MaxTimestamp, nil
}

func (e *Engine) ingest(ctx context.Context, entries []model.Entry, res *Result) error {
	ir, err := e.r.Ingest(ctx, entries)
	if err != nil {
		return errors.Wrap(err, "ingest batch")
	}
	res.Inserted += len(ir.Inserted)
	res.Duplicates += len(ir.Duplicates)
	res.Rejected = append(res.Rejected, ir.Rejected...)
	if err := e.r.Tracker().MarkAll(ctx, ir.Inserted, model.MarkerReceived); err != nil {
		e.log.Warn("mark received failed", "error", err)
	}
	return nil
}

// pushIfAccepted pushes since the timestamp and stores the pushed
// watermark. A peer that refuses pushes turns the round pull-only: the
// watermark is left alone and accepted reports false.
func (e *Engine) pushIfAccepted(ctx context.Context, log hclog.Logger, p Pusher, since int64, watermark *int64, res *Result) (accepted bool, err error) {
	ts, err := e.push(ctx, p, since, res)
	switch {
	case errors.Is(err, model.ErrPushRefused):
		log.Debug("peer refuses pushes, pulling only")
		res.PushRefused = true
		return false, nil
	case err != nil:
		return false, err
	}
	*watermark = ts
	return true, nil
}

// push sends the local entries since the timestamp that p lacks. It
// returns the local manifest's max timestamp.
func (e *Engine) push(ctx context.Context, p Pusher, since int64, res *Result) (int64, error) {
	m, err := e.r.Manifest(ctx, since)
	if err != nil {
		return 0, errors.Wrap(err, "local manifest")
	}
	missing, err := p.Missing(ctx, m.IDs())
	if err != nil {
		return 0, errors.Wrap(err, "peer missing")
	}

	for _, batch := range batches(missing, e.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entries, err := e.r.Fetch(ctx, batch)
		if err != nil {
			return 0, errors.Wrap(err, "local fetch")
		}
		rejected, err := p.Push(ctx, entries)
		if err != nil {
			return 0, errors.Wrap(err, "push")
		}
		res.PushRejected = append(res.PushRejected, rejected...)

		refused := make(map[string]bool, len(rejected))
		for _, rj := range rejected {
			refused[rj.MessageID] = true
		}
		synced := make([]string, 0, len(entries))
		for _, en := range entries {
			if !refused[en.MessageID] {
				synced = append(synced, en.MessageID)
			}
		}
		res.Pushed += len(synced)
		if err := e.r.Tracker().MarkAll(ctx, synced, model.MarkerSynced); err != nil {
			e.log.Warn("mark synced failed", "error", err)
		}
	}
	return m.MaxTimestamp, nil
}

func batches(ids []string, size int) [][]string {
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

// requested drops entries the peer sent without being asked.
func requested(entries []model.Entry, ids []string) []model.Entry {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := entries[:0:0]
	for _, en := range entries {
		if want[en.MessageID] {
			out = append(out, en)
			delete(want, en.MessageID)
		}
	}
	return out
}
