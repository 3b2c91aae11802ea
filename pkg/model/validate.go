package model

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxIDLength bounds message and author identifiers.
	MaxIDLength = 128
	// MaxPayloadSize bounds an entry payload. Mesh links carry small frames.
	MaxPayloadSize = 256 << 10
)

// Validate checks the schema shape of e. It does not check integrity or
// signatures; see package integrity.
func (e Entry) Validate() error {
	fail := func(field, reason string) error {
		return &ValidationError{MessageID: e.MessageID, Field: field, Reason: reason}
	}
	switch {
	case e.MessageID == "":
		return fail("message_id", "is required")
	case len(e.MessageID) > MaxIDLength:
		return fail("message_id", "is too long")
	case e.AuthorID == "":
		return fail("author_id", "is required")
	case len(e.AuthorID) > MaxIDLength:
		return fail("author_id", "is too long")
	case e.AuthorCounter < 1:
		return fail("author_counter", "must be positive")
	case e.LamportTS < 1:
		return fail("lamport_ts", "must be positive")
	case !e.Class.Valid():
		return fail("class", "is unknown: "+string(e.Class))
	case len(e.Payload) > MaxPayloadSize:
		return fail("payload", "exceeds maximum size")
	}

	// Hashing encodes these as NFC JSON strings; anything that encoding
	// would rewrite could collide with a different entry.
	for _, f := range [...]struct{ name, v string }{
		{"message_id", e.MessageID},
		{"author_id", e.AuthorID},
		{"hub_id", e.HubID},
		{"channel_id", e.ChannelID},
		{"cord_id", e.CordID},
		{"thread_id", e.ThreadID},
	} {
		if !utf8.ValidString(f.v) {
			return fail(f.name, "is not valid UTF-8")
		}
		if !norm.NFC.IsNormalString(f.v) {
			return fail(f.name, "is not NFC-normalized")
		}
	}
	return nil
}
