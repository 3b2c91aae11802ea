package cord

import (
	"context"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/guildofsmiths/cord/pkg/integrity"
	"github.com/guildofsmiths/cord/pkg/model"
)

// Draft is the caller-supplied content of a new local entry. The replica
// fills in id, author, counter, timestamp and signature.
type Draft struct {
	HubID     string
	ChannelID string
	CordID    string
	ThreadID  string
	Class     model.MessageClass
	Payload   []byte
}

// entry builds the entry for a stamp. Grouping keys are NFC-normalized so
// the same name typed on different devices lands in the same group.
func (d Draft) entry(author string, counter, ts int64) model.Entry {
	return model.Entry{
		AuthorID:      author,
		AuthorCounter: counter,
		LamportTS:     ts,
		HubID:         norm.NFC.String(d.HubID),
		ChannelID:     norm.NFC.String(d.ChannelID),
		CordID:        norm.NFC.String(d.CordID),
		ThreadID:      norm.NFC.String(d.ThreadID),
		Class:         d.Class,
		Payload:       append([]byte(nil), d.Payload...),
	}
}

// Append authors a new entry: it ticks the clock, assigns the id, signs,
// and stores the entry with the new clock state in one transaction. The
// entry is marked pending. A draft that fails validation does not tick the
// clock.
func (r *Replica) Append(ctx context.Context, d Draft) (model.Entry, error) {
	pre := d.entry(r.author, 1, 1)
	pre.MessageID = "draft"
	if err := pre.Validate(); err != nil {
		return model.Entry{}, err
	}

	e, err := r.appendLocked(ctx, d)
	if err != nil {
		return model.Entry{}, err
	}
	if err := r.tracker.Mark(ctx, e.MessageID, model.MarkerPending); err != nil {
		r.log.Warn("mark pending failed", "id", e.MessageID, "error", err)
	}
	return e, nil
}

func (r *Replica) appendLocked(ctx context.Context, d Draft) (model.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.clk.Tick()
	e := d.entry(r.author, stamp.Counter, stamp.Timestamp)

	id, err := r.ids.NewID(e)
	if err != nil {
		return model.Entry{}, fmt.Errorf("append: %w", err)
	}
	e.MessageID = id

	if r.signer != nil {
		if e, err = integrity.Sign(e, r.signer); err != nil {
			return model.Entry{}, fmt.Errorf("append: %w", err)
		}
	}

	inserted, err := r.st.AppendLocal(ctx, e, r.clk.State())
	if err != nil {
		return model.Entry{}, fmt.Errorf("append: %w", err)
	}
	if !inserted {
		return model.Entry{}, fmt.Errorf("append: message id %s already stored", e.MessageID)
	}
	r.log.Debug("appended", "id", e.MessageID, "ts", e.LamportTS, "counter", e.AuthorCounter)
	return e.Clone(), nil
}
