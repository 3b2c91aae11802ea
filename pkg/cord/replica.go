// Package cord is one device's replica of the Cord.
//
// A Replica owns the device's Lamport clock and its store. It is the only
// path by which entries enter the store: local appends are stamped, signed
// and persisted together with the clock in one critical section, and
// entries from peers pass schema, integrity and author-history checks
// before they are stored. Rejected entries are logged and reported, never
// stored and never repaired.
package cord

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/delivery"
	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/store"
)

// Options configures a Replica.
type Options struct {
	// AuthorID identifies this device. Defaults to Signer.AuthorID().
	AuthorID string

	// Signer signs local entries. Nil leaves them unsigned.
	Signer integrity.Signer

	// Verifier checks signatures of ingested entries. Nil skips
	// signature checks; content-derived ids are still verified.
	Verifier integrity.Verifier

	// IDs assigns message ids. Defaults to integrity.RandomIDs.
	IDs integrity.IDGenerator

	Logger hclog.Logger

	// Tracker records delivery markers. Defaults to a tracker over the store.
	Tracker *delivery.Tracker
}

// Replica is a device-local Cord replica. Safe for concurrent use.
type Replica struct {
	// mu serializes tick+append and ingestion. Reads bypass it.
	mu sync.Mutex

	st      store.StoreInterface
	clk     *clock.Clock
	author  string
	signer  integrity.Signer
	verify  integrity.Verifier
	ids     integrity.IDGenerator
	tracker *delivery.Tracker
	log     hclog.Logger
}

// Open builds a replica over st and bootstraps its clock from persisted
// clock state and the stored log.
func Open(ctx context.Context, st store.StoreInterface, opts Options) (*Replica, error) {
	author := opts.AuthorID
	if author == "" && opts.Signer != nil {
		author = opts.Signer.AuthorID()
	}
	if author == "" {
		return nil, fmt.Errorf("open replica: author id is required")
	}
	if opts.IDs == nil {
		opts.IDs = integrity.RandomIDs{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Tracker == nil {
		opts.Tracker = delivery.NewTracker(st, 0, opts.Logger)
	}

	r := &Replica{
		st:      st,
		clk:     clock.New(author),
		author:  author,
		signer:  opts.Signer,
		verify:  opts.Verifier,
		ids:     opts.IDs,
		tracker: opts.Tracker,
		log:     opts.Logger.Named("replica").With("author", author),
	}
	if _, err := r.RebuildClock(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// RebuildClock restores the clock from the persisted clock state and from
// the store (highest timestamp overall, highest own counter), keeping the
// larger of each. The clock never moves backwards.
func (r *Replica) RebuildClock(ctx context.Context) (clock.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	persisted, ok, err := r.st.LoadClock(ctx, r.author)
	if err != nil {
		return clock.State{}, fmt.Errorf("rebuild clock: %w", err)
	}
	if ok {
		r.clk.Restore(persisted)
	}

	maxTS, err := r.st.MaxTimestamp(ctx)
	if err != nil {
		return clock.State{}, fmt.Errorf("rebuild clock: %w", err)
	}
	maxCtr, err := r.st.MaxCounterForAuthor(ctx, r.author, 0)
	if err != nil {
		return clock.State{}, fmt.Errorf("rebuild clock: %w", err)
	}
	r.clk.Restore(clock.State{AuthorID: r.author, LastTimestamp: maxTS, LastCounter: maxCtr})

	st := r.clk.State()
	if ok && (persisted.LastTimestamp < st.LastTimestamp || persisted.LastCounter < st.LastCounter) {
		r.log.Warn("persisted clock was behind the log, recovered",
			"persisted_ts", persisted.LastTimestamp, "persisted_counter", persisted.LastCounter,
			"ts", st.LastTimestamp, "counter", st.LastCounter)
	}
	if err := r.st.SaveClock(ctx, st); err != nil {
		return st, fmt.Errorf("rebuild clock: %w", err)
	}
	return st, nil
}

// AuthorID returns the device's author id.
func (r *Replica) AuthorID() string { return r.author }

// Clock returns a snapshot of the clock state.
func (r *Replica) Clock() clock.State { return r.clk.State() }

// Store returns the underlying store.
func (r *Replica) Store() store.StoreInterface { return r.st }

// Tracker returns the delivery tracker.
func (r *Replica) Tracker() *delivery.Tracker { return r.tracker }
