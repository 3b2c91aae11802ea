// Package model defines the core domain types for the Cord.
//
// The Cord is an append-only, multi-writer event log. Every device appends
// entries stamped by its own Lamport clock; replicas exchange entries when
// they meet and each one reconstructs the same total order:
//
//	(LamportTS, AuthorID, AuthorCounter) ascending
//
// An Entry never changes once stored. The only mutable state attached to an
// entry is its delivery telemetry, which lives in a separate Delivery record
// so that nothing holding an Entry can alter it.
package model

import (
	"bytes"
	"strings"
	"time"
)

// MessageClass discriminates how an entry's payload is interpreted.
type MessageClass string

const (
	ClassText      MessageClass = "text"
	ClassTimeEntry MessageClass = "time_entry"
	ClassJobEvent  MessageClass = "job_event"
	ClassSystem    MessageClass = "system"
)

// Valid reports whether c is one of the known classes.
func (c MessageClass) Valid() bool {
	switch c {
	case ClassText, ClassTimeEntry, ClassJobEvent, ClassSystem:
		return true
	}
	return false
}

// DeliveryMarker is best-effort delivery telemetry. It never participates in
// ordering, uniqueness, or integrity hashing.
type DeliveryMarker string

const (
	MarkerNone      DeliveryMarker = ""
	MarkerPending   DeliveryMarker = "pending"
	MarkerSent      DeliveryMarker = "sent"
	MarkerDelivered DeliveryMarker = "delivered"
	MarkerSynced    DeliveryMarker = "synced"
	MarkerReceived  DeliveryMarker = "received"
	MarkerFailed    DeliveryMarker = "failed"
)

// Valid reports whether m is a known marker. MarkerNone is not assignable.
func (m DeliveryMarker) Valid() bool {
	switch m {
	case MarkerPending, MarkerSent, MarkerDelivered, MarkerSynced, MarkerReceived, MarkerFailed:
		return true
	}
	return false
}

// Entry is the atomic, durable unit of the Cord. All fields are immutable
// once the entry has been stored.
type Entry struct {
	MessageID     string       `json:"message_id"`
	AuthorID      string       `json:"author_id"`
	AuthorCounter int64        `json:"author_counter"`
	LamportTS     int64        `json:"lamport_ts"`
	HubID         string       `json:"hub_id,omitempty"`
	ChannelID     string       `json:"channel_id,omitempty"`
	CordID        string       `json:"cord_id,omitempty"`
	ThreadID      string       `json:"thread_id,omitempty"`
	Class         MessageClass `json:"class"`
	Payload       []byte       `json:"payload,omitempty"`
	Signature     []byte       `json:"signature,omitempty"`
}

// Clone returns a deep copy of e so callers cannot alias stored byte slices.
func (e Entry) Clone() Entry {
	c := e
	if e.Payload != nil {
		c.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Signature != nil {
		c.Signature = append([]byte(nil), e.Signature...)
	}
	return c
}

// Position returns the entry's key in the total order.
func (e Entry) Position() Position {
	return Position{
		LamportTS:     e.LamportTS,
		AuthorID:      e.AuthorID,
		AuthorCounter: e.AuthorCounter,
		MessageID:     e.MessageID,
	}
}

// Equal reports whether two entries carry identical immutable content.
func (e Entry) Equal(o Entry) bool {
	return e.MessageID == o.MessageID &&
		e.AuthorID == o.AuthorID &&
		e.AuthorCounter == o.AuthorCounter &&
		e.LamportTS == o.LamportTS &&
		e.HubID == o.HubID &&
		e.ChannelID == o.ChannelID &&
		e.CordID == o.CordID &&
		e.ThreadID == o.ThreadID &&
		e.Class == o.Class &&
		bytes.Equal(e.Payload, o.Payload) &&
		bytes.Equal(e.Signature, o.Signature)
}

// Delivery is the side record holding an entry's telemetry marker.
type Delivery struct {
	MessageID string         `json:"message_id"`
	Marker    DeliveryMarker `json:"marker"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// Record pairs a stored entry with its delivery state, as returned by reads.
type Record struct {
	Entry
	Delivery Delivery `json:"delivery"`
}

// Position is a key in the total order. It is used for keyset pagination.
type Position struct {
	LamportTS     int64  `json:"lamport_ts"`
	AuthorID      string `json:"author_id"`
	AuthorCounter int64  `json:"author_counter"`
	MessageID     string `json:"message_id"`
}

// IsZero reports whether p is the start of the order.
func (p Position) IsZero() bool { return p == Position{} }

// Compare orders two positions: LamportTS, then AuthorID, then AuthorCounter
// ascending. MessageID is the last tiebreak; it only matters when an author
// reused a counter, and keeps the comparator total in that case.
func Compare(a, b Position) int {
	switch {
	case a.LamportTS < b.LamportTS:
		return -1
	case a.LamportTS > b.LamportTS:
		return 1
	}
	if c := strings.Compare(a.AuthorID, b.AuthorID); c != 0 {
		return c
	}
	switch {
	case a.AuthorCounter < b.AuthorCounter:
		return -1
	case a.AuthorCounter > b.AuthorCounter:
		return 1
	}
	return strings.Compare(a.MessageID, b.MessageID)
}

// Less reports whether a precedes b in the total order.
func Less(a, b Entry) bool { return Compare(a.Position(), b.Position()) < 0 }

// ManifestItem is one line of a replica's manifest.
type ManifestItem struct {
	MessageID string `json:"message_id"`
	LamportTS int64  `json:"lamport_ts"`
}

// Manifest lists the entries a replica holds with LamportTS > Since, in
// total order.
type Manifest struct {
	Since        int64          `json:"since"`
	MaxTimestamp int64          `json:"max_timestamp"`
	Items        []ManifestItem `json:"items"`
}

// IDs returns the message ids of the manifest in order.
func (m Manifest) IDs() []string {
	ids := make([]string, len(m.Items))
	for i, it := range m.Items {
		ids[i] = it.MessageID
	}
	return ids
}

// Digest is a compact fingerprint of a replica's full id set. Two replicas
// with equal digests hold the same entries.
type Digest struct {
	Count int64  `json:"count"`
	Sum   string `json:"sum"`
}
