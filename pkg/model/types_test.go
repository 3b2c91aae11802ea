package model

import (
	"errors"
	"sort"
	"testing"
)

func entry(id, author string, ts, ctr int64) Entry {
	return Entry{MessageID: id, AuthorID: author, LamportTS: ts, AuthorCounter: ctr, Class: ClassText}
}

func TestCompare_TimestampFirst(t *testing.T) {
	a := entry("x", "z", 1, 9).Position()
	b := entry("y", "a", 2, 1).Position()
	if Compare(a, b) >= 0 {
		t.Fatal("lower lamport_ts must sort first regardless of author")
	}
}

func TestCompare_AuthorBreaksTie(t *testing.T) {
	a := entry("m2", "A", 1, 1).Position()
	b := entry("m1", "B", 1, 1).Position()
	if Compare(a, b) >= 0 {
		t.Fatal("expected A@1 before B@1")
	}
}

func TestCompare_CounterBreaksTie(t *testing.T) {
	a := entry("m2", "A", 1, 1).Position()
	b := entry("m1", "A", 1, 2).Position()
	if Compare(a, b) >= 0 {
		t.Fatal("expected counter 1 before counter 2")
	}
}

func TestCompare_Reflexive(t *testing.T) {
	p := entry("m", "A", 3, 3).Position()
	if Compare(p, p) != 0 {
		t.Fatal("Compare(p, p) must be 0")
	}
}

func TestLess_SortIsInsertionIndependent(t *testing.T) {
	// Scenario: A ticks 1,2,3; B ticks 1 without contact.
	es := []Entry{
		entry("a3", "A", 3, 3),
		entry("b1", "B", 1, 1),
		entry("a1", "A", 1, 1),
		entry("a2", "A", 2, 2),
	}
	rev := make([]Entry, len(es))
	for i := range es {
		rev[len(es)-1-i] = es[i]
	}
	sort.Slice(es, func(i, j int) bool { return Less(es[i], es[j]) })
	sort.Slice(rev, func(i, j int) bool { return Less(rev[i], rev[j]) })

	want := []string{"a1", "b1", "a2", "a3"}
	for i, id := range want {
		if es[i].MessageID != id || rev[i].MessageID != id {
			t.Fatalf("position %d: got %s / %s, want %s", i, es[i].MessageID, rev[i].MessageID, id)
		}
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	e := entry("m", "A", 1, 1)
	e.Payload = []byte("hello")
	c := e.Clone()
	c.Payload[0] = 'j'
	if string(e.Payload) != "hello" {
		t.Fatal("Clone aliased the payload")
	}
	if !e.Equal(e.Clone()) {
		t.Fatal("clone should be equal")
	}
}

func TestValidate(t *testing.T) {
	long := make([]byte, MaxIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	cases := []struct {
		name  string
		mut   func(*Entry)
		field string
	}{
		{"ok", func(*Entry) {}, ""},
		{"missing id", func(e *Entry) { e.MessageID = "" }, "message_id"},
		{"long id", func(e *Entry) { e.MessageID = string(long) }, "message_id"},
		{"missing author", func(e *Entry) { e.AuthorID = "" }, "author_id"},
		{"zero counter", func(e *Entry) { e.AuthorCounter = 0 }, "author_counter"},
		{"zero ts", func(e *Entry) { e.LamportTS = 0 }, "lamport_ts"},
		{"bad class", func(e *Entry) { e.Class = "gossip" }, "class"},
		{"big payload", func(e *Entry) { e.Payload = make([]byte, MaxPayloadSize+1) }, "payload"},
		{"invalid utf8 hub", func(e *Entry) { e.HubID = "h\xff" }, "hub_id"},
		{"invalid utf8 id", func(e *Entry) { e.MessageID = "m\xfe" }, "message_id"},
		{"invalid utf8 thread", func(e *Entry) { e.ThreadID = "\xc3" }, "thread_id"},
		{"decomposed channel", func(e *Entry) { e.ChannelID = "cafe\u0301" }, "channel_id"},
		{"composed channel", func(e *Entry) { e.ChannelID = "caf\u00e9" }, ""},
		{"binary payload", func(e *Entry) { e.Payload = []byte{0xff, 0xfe} }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := entry("m1", "A", 1, 1)
			tc.mut(&e)
			err := e.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidEntry) {
				t.Fatalf("got %v, want ErrInvalidEntry", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("got %v, want field %s", err, tc.field)
			}
		})
	}
}

func TestMarkerValid(t *testing.T) {
	if MarkerNone.Valid() {
		t.Fatal("empty marker must not be assignable")
	}
	for _, m := range []DeliveryMarker{MarkerPending, MarkerSent, MarkerDelivered, MarkerSynced, MarkerReceived, MarkerFailed} {
		if !m.Valid() {
			t.Fatalf("%q should be valid", m)
		}
	}
}

func TestManifestIDs(t *testing.T) {
	m := Manifest{Items: []ManifestItem{{MessageID: "a", LamportTS: 1}, {MessageID: "b", LamportTS: 2}}}
	ids := m.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("IDs() = %v", ids)
	}
}
