// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The replica, the
// delivery tracker and the CLI accept StoreInterface instead of *Store, so
// tests can wrap a real store with fault injection.
package store

import (
	"context"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/model"
)

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Entries ---

	// Append stores an entry. Idempotent on message id.
	Append(ctx context.Context, e model.Entry) (bool, error)

	// AppendLocal stores a local entry together with the author's clock state.
	AppendLocal(ctx context.Context, e model.Entry, st clock.State) (bool, error)

	// AppendBatch stores entries independently of each other.
	AppendBatch(ctx context.Context, entries []model.Entry) (BatchResult, error)

	// Get returns one record or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.Record, error)

	// Exists reports whether an id is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// ExistsAny returns the stored subset of ids.
	ExistsAny(ctx context.Context, ids []string) (map[string]bool, error)

	// Fetch returns stored entries among ids in total order.
	Fetch(ctx context.Context, ids []string) ([]model.Entry, error)

	// IntegrityHash returns the hash recorded at insert.
	IntegrityHash(ctx context.Context, id string) (string, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	// --- Streams ---

	All(ctx context.Context) Stream
	ForGroup(ctx context.Context, hubID, channelID string) Stream
	ForCord(ctx context.Context, cordID string) Stream
	ForClass(ctx context.Context, class model.MessageClass) Stream
	ForAuthor(ctx context.Context, authorID string) Stream
	ForThread(ctx context.Context, threadID string) Stream
	Range(ctx context.Context, since, until int64) Stream
	Since(ctx context.Context, since int64) Stream
	Page(ctx context.Context, after model.Position, limit int) Stream

	// ArrivalsSince returns records in local insertion order after seq.
	ArrivalsSince(ctx context.Context, seq int64, limit int) ([]Arrival, error)
	MaxSeq(ctx context.Context) (int64, error)

	// --- Sync ---

	Manifest(ctx context.Context, since int64) (model.Manifest, error)
	Digest(ctx context.Context) (model.Digest, error)
	MaxTimestamp(ctx context.Context) (int64, error)
	MaxTimestampForAuthor(ctx context.Context, authorID string) (int64, error)
	MaxCounterForAuthor(ctx context.Context, authorID string, ts int64) (int64, error)
	CounterTaken(ctx context.Context, authorID string, counter int64) (string, bool, error)
	AuthorConflict(ctx context.Context, e model.Entry) (string, error)

	// --- Delivery ---

	UpdateDeliveryMarker(ctx context.Context, id string, marker model.DeliveryMarker) error
	DeliveryFor(ctx context.Context, id string) (model.Delivery, error)
	CountByMarker(ctx context.Context) (map[model.DeliveryMarker]int64, error)

	// --- Clock state and checkpoints ---

	SaveClock(ctx context.Context, st clock.State) error
	LoadClock(ctx context.Context, authorID string) (clock.State, bool, error)
	Checkpoint(ctx context.Context, peerID string) (Checkpoint, error)
	SetCheckpoint(ctx context.Context, cp Checkpoint) error
	ResetCheckpoint(ctx context.Context, peerID string) error
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
