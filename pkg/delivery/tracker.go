// Package delivery records best-effort delivery telemetry for Cord entries.
//
// Markers are last-write-wins and live outside the entry itself, so no
// update here can affect ordering, uniqueness or integrity. Every mark
// goes through the store's UpdateDeliveryMarker.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/patrickmn/go-cache"

	"github.com/guildofsmiths/cord/pkg/model"
)

// DefaultTTL is how long a marker read stays cached.
const DefaultTTL = time.Minute

// MarkerStore is the slice of the store the tracker needs.
type MarkerStore interface {
	UpdateDeliveryMarker(ctx context.Context, id string, marker model.DeliveryMarker) error
	DeliveryFor(ctx context.Context, id string) (model.Delivery, error)
}

// Tracker writes delivery markers and caches the last known marker per
// entry. Safe for concurrent use.
type Tracker struct {
	st    MarkerStore
	cache *cache.Cache
	log   hclog.Logger
}

// NewTracker returns a tracker over st. A ttl <= 0 uses DefaultTTL; a nil
// logger discards output.
func NewTracker(st MarkerStore, ttl time.Duration, logger hclog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Tracker{
		st:    st,
		// No janitor goroutine; expired items are purged by MarkAll.
		cache: cache.New(ttl, 0),
		log:   logger.Named("delivery"),
	}
}

// Mark sets the marker of one entry. A mark equal to the cached marker is
// skipped.
func (t *Tracker) Mark(ctx context.Context, id string, marker model.DeliveryMarker) error {
	if cached, ok := t.cache.Get(id); ok && cached.(model.DeliveryMarker) == marker {
		return nil
	}
	if err := t.st.UpdateDeliveryMarker(ctx, id, marker); err != nil {
		t.cache.Delete(id)
		return err
	}
	t.cache.SetDefault(id, marker)
	return nil
}

// MarkAll sets the same marker on every id. Failures do not stop the
// remaining marks; they are returned joined.
func (t *Tracker) MarkAll(ctx context.Context, ids []string, marker model.DeliveryMarker) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := t.Mark(ctx, id, marker); err != nil {
			t.log.Warn("mark failed", "id", id, "marker", marker, "error", err)
			errs = append(errs, err)
		}
	}
	t.cache.DeleteExpired()
	return errors.Join(errs...)
}

// Marker returns the current marker of an entry, MarkerNone if none was
// recorded.
func (t *Tracker) Marker(ctx context.Context, id string) (model.DeliveryMarker, error) {
	if cached, ok := t.cache.Get(id); ok {
		return cached.(model.DeliveryMarker), nil
	}
	d, err := t.st.DeliveryFor(ctx, id)
	if err != nil {
		return model.MarkerNone, err
	}
	t.cache.SetDefault(id, d.Marker)
	return d.Marker, nil
}

// Forget drops the cached marker of an entry.
func (t *Tracker) Forget(id string) { t.cache.Delete(id) }
