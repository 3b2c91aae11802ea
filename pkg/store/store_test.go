package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/guildofsmiths/cord/pkg/clock"
	"github.com/guildofsmiths/cord/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(id, author string, counter, ts int64) model.Entry {
	return model.Entry{
		MessageID:     id,
		AuthorID:      author,
		AuthorCounter: counter,
		LamportTS:     ts,
		HubID:         "hub",
		ChannelID:     "general",
		Class:         model.ClassText,
		Payload:       []byte(id),
	}
}

func ids(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.MessageID
	}
	return out
}

func mustAppend(t *testing.T, s *Store, es ...model.Entry) {
	t.Helper()
	for _, e := range es {
		if _, err := s.Append(context.Background(), e); err != nil {
			t.Fatalf("Append(%s): %v", e.MessageID, err)
		}
	}
}

func equalIDs(t *testing.T, got, want []string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// --- Append ---

func TestAppend_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := entry("m1", "A", 1, 1)

	ins, err := s.Append(ctx, e)
	if err != nil || !ins {
		t.Fatalf("first Append = %v, %v; want true, nil", ins, err)
	}
	ins, err = s.Append(ctx, e)
	if err != nil || ins {
		t.Fatalf("second Append = %v, %v; want false, nil", ins, err)
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestAppend_DuplicateKeepsFirstContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("m1", "A", 1, 1))

	other := entry("m1", "A", 1, 1)
	other.Payload = []byte("different")
	if ins, err := s.Append(ctx, other); err != nil || ins {
		t.Fatalf("Append conflicting = %v, %v", ins, err)
	}
	r, err := s.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if string(r.Payload) != "m1" {
		t.Fatalf("payload = %q, stored entry must not change", r.Payload)
	}
}

func TestAppend_RejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	e := entry("m1", "A", 0, 1)
	_, err := s.Append(context.Background(), e)
	if !errors.Is(err, model.ErrInvalidEntry) {
		t.Fatalf("err = %v, want ErrInvalidEntry", err)
	}
	if ok, _ := s.Exists(context.Background(), "m1"); ok {
		t.Fatal("invalid entry must not be stored")
	}
}

func TestEntries_AppendOnly(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("m1", "A", 1, 1))

	if _, err := s.db.Exec(`UPDATE entries SET payload = 'x' WHERE message_id = 'm1'`); err == nil {
		t.Fatal("UPDATE on entries should abort")
	}
	if _, err := s.db.Exec(`DELETE FROM entries WHERE message_id = 'm1'`); err == nil {
		t.Fatal("DELETE on entries should abort")
	}
}

func TestAppendBatch_PartialFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("m0", "A", 1, 1))

	batch := []model.Entry{
		entry("m0", "A", 1, 1),    // duplicate
		entry("m1", "A", 2, 3),    // new
		{MessageID: "bad"},        // invalid
		entry("m2", "B", 1, 2),    // new
	}
	res, err := s.AppendBatch(ctx, batch)
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if len(res.Outcomes) != 4 {
		t.Fatalf("outcomes = %d, want 4", len(res.Outcomes))
	}
	if res.Inserted() != 2 || res.Duplicates() != 1 || len(res.Failed()) != 1 {
		t.Fatalf("inserted/dup/failed = %d/%d/%d, want 2/1/1",
			res.Inserted(), res.Duplicates(), len(res.Failed()))
	}
	if res.Failed()[0].MessageID != "bad" {
		t.Fatalf("failed = %+v", res.Failed())
	}
	if res.MaxTimestamp != 3 {
		t.Fatalf("MaxTimestamp = %d, want 3", res.MaxTimestamp)
	}
	n, _ := s.Count(ctx)
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestAppendBatch_InvalidIDWithCodeLikeText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := entry("bad(5)", "A", 2, 2)
	bad.Class = "bogus"
	locked := entry("database is locked (6)", "B", 1, 1)
	locked.AuthorCounter = 0

	res, err := s.AppendBatch(ctx, []model.Entry{entry("good", "A", 1, 1), bad, locked})
	if err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if res.Inserted() != 1 || len(res.Failed()) != 2 {
		t.Fatalf("inserted/failed = %d/%d, want 1/2", res.Inserted(), len(res.Failed()))
	}
	for _, o := range res.Failed() {
		if !errors.Is(o.Err, model.ErrInvalidEntry) {
			t.Errorf("%s: err = %v, want ErrInvalidEntry", o.MessageID, o.Err)
		}
	}
	if ok, _ := s.Exists(ctx, "good"); !ok {
		t.Fatal("valid entry of the batch was not stored")
	}
}

func TestAppendLocal_PersistsClock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := clock.State{AuthorID: "A", LastTimestamp: 7, LastCounter: 3}
	if _, err := s.AppendLocal(ctx, entry("m1", "A", 3, 7), st); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.LoadClock(ctx, "A")
	if err != nil || !ok {
		t.Fatalf("LoadClock = %v, %v", ok, err)
	}
	if got != st {
		t.Fatalf("clock = %+v, want %+v", got, st)
	}

	// A failed append must not persist the clock either.
	bad := entry("m2", "A", 0, 9)
	if _, err := s.AppendLocal(ctx, bad, clock.State{AuthorID: "A", LastTimestamp: 9, LastCounter: 4}); err == nil {
		t.Fatal("expected validation error")
	}
	got, _, _ = s.LoadClock(ctx, "A")
	if got.LastTimestamp != 7 {
		t.Fatalf("clock moved on failed append: %+v", got)
	}
}

func TestSaveClock_NeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SaveClock(ctx, clock.State{AuthorID: "A", LastTimestamp: 10, LastCounter: 5})
	s.SaveClock(ctx, clock.State{AuthorID: "A", LastTimestamp: 3, LastCounter: 1})

	got, _, _ := s.LoadClock(ctx, "A")
	if got.LastTimestamp != 10 || got.LastCounter != 5 {
		t.Fatalf("clock = %+v, want 10/5", got)
	}
	if _, ok, _ := s.LoadClock(ctx, "nobody"); ok {
		t.Fatal("unknown author should have no clock state")
	}
}

func TestAppend_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= 25; i++ {
				e := entry(fmt.Sprintf("w%d-%d", w, i), fmt.Sprintf("W%d", w), int64(i), int64(i))
				if _, err := s.Append(ctx, e); err != nil {
					t.Errorf("Append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	n, _ := s.Count(ctx)
	if n != 100 {
		t.Fatalf("count = %d, want 100", n)
	}
}

// --- Lookups ---

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := entry("m1", "A", 1, 1)
	e.CordID = "cord-1"
	e.ThreadID = "t-1"
	e.Signature = []byte{9, 9}
	mustAppend(t, s, e)

	r, err := s.Get(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Entry.Equal(e) {
		t.Fatalf("got %+v, want %+v", r.Entry, e)
	}
	if r.Delivery.Marker != model.MarkerNone {
		t.Fatalf("marker = %q, want none", r.Delivery.Marker)
	}
}

func TestExistsAny_Chunked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var all []string
	for i := 1; i <= maxVars+20; i++ {
		id := fmt.Sprintf("m%04d", i)
		all = append(all, id)
		if i%2 == 0 {
			mustAppend(t, s, entry(id, "A", int64(i), int64(i)))
		}
	}
	known, err := s.ExistsAny(ctx, all)
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != (maxVars+20)/2 {
		t.Fatalf("known = %d, want %d", len(known), (maxVars+20)/2)
	}
	if known["m0001"] || !known["m0002"] {
		t.Fatal("wrong membership")
	}
}

func TestFetch_TotalOrderSkipsUnknown(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("z", "A", 2, 5), entry("y", "B", 1, 2), entry("x", "A", 1, 2))

	got, err := s.Fetch(context.Background(), []string{"z", "nope", "y", "x"})
	if err != nil {
		t.Fatal(err)
	}
	var gotIDs []string
	for _, e := range got {
		gotIDs = append(gotIDs, e.MessageID)
	}
	equalIDs(t, gotIDs, []string{"x", "y", "z"})
}

func TestIntegrityHash_Stored(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("m1", "A", 1, 1))
	h, err := s.IntegrityHash(context.Background(), "m1")
	if err != nil || len(h) != 64 {
		t.Fatalf("IntegrityHash = %q, %v", h, err)
	}
	if _, err := s.IntegrityHash(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

// --- Streams ---

func TestAll_TotalOrder(t *testing.T) {
	s := newTestStore(t)
	// Stored in arbitrary order; read back by (ts, author, counter).
	mustAppend(t, s,
		entry("c", "B", 1, 2),
		entry("a", "A", 1, 1),
		entry("d", "A", 3, 3),
		entry("b", "A", 2, 2),
	)
	recs, err := Collect(s.All(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, ids(recs), []string{"a", "b", "c", "d"})
}

func TestStreams_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e1 := entry("e1", "A", 1, 1)
	e2 := entry("e2", "B", 1, 2)
	e2.ChannelID = "random"
	e2.Class = model.ClassTimeEntry
	e3 := entry("e3", "A", 2, 3)
	e3.CordID = "c1"
	e3.ThreadID = "t1"
	mustAppend(t, s, e1, e2, e3)

	tests := []struct {
		name string
		seq  Stream
		want []string
	}{
		{"group", s.ForGroup(ctx, "hub", "general"), []string{"e1", "e3"}},
		{"cord", s.ForCord(ctx, "c1"), []string{"e3"}},
		{"class", s.ForClass(ctx, model.ClassTimeEntry), []string{"e2"}},
		{"author", s.ForAuthor(ctx, "A"), []string{"e1", "e3"}},
		{"thread", s.ForThread(ctx, "t1"), []string{"e3"}},
		{"range", s.Range(ctx, 1, 2), []string{"e2"}},
		{"since", s.Since(ctx, 1), []string{"e2", "e3"}},
		{"since zero", s.Since(ctx, 0), []string{"e1", "e2", "e3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Collect(tt.seq)
			if err != nil {
				t.Fatal(err)
			}
			equalIDs(t, ids(recs), tt.want)
		})
	}
}

func TestStream_Restartable(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("a", "A", 1, 1))
	seq := s.All(context.Background())
	first, _ := Collect(seq)
	mustAppend(t, s, entry("b", "A", 2, 2))
	second, _ := Collect(seq)
	if len(first) != 1 || len(second) != 2 {
		t.Fatalf("runs = %d, %d; want 1, 2", len(first), len(second))
	}
}

func TestStream_SnapshotIgnoresConcurrentAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("a", "A", 1, 1), entry("b", "A", 2, 2))

	var seen []string
	for r, err := range s.All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, r.MessageID)
		if r.MessageID == "a" {
			// Lands after "b" in order; the running stream must not see it.
			mustAppend(t, s, entry("c", "A", 3, 3))
		}
	}
	equalIDs(t, seen, []string{"a", "b"})
}

func TestStream_EarlyBreak(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("a", "A", 1, 1), entry("b", "A", 2, 2))
	for range s.All(context.Background()) {
		break
	}
	// Connection must be released; a write still succeeds.
	mustAppend(t, s, entry("c", "A", 3, 3))
}

func TestPage_Keyset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		mustAppend(t, s, entry(fmt.Sprintf("m%d", i), "A", int64(i), int64(i)))
	}
	var all []string
	var after model.Position
	for {
		recs, err := Collect(s.Page(ctx, after, 2))
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) == 0 {
			break
		}
		all = append(all, ids(recs)...)
		after = recs[len(recs)-1].Position()
	}
	equalIDs(t, all, []string{"m1", "m2", "m3", "m4", "m5"})
}

// --- Manifest, digest, max queries ---

func TestManifest_Since(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, entry("a", "A", 1, 1), entry("b", "B", 1, 4), entry("c", "A", 2, 2))

	m, err := s.Manifest(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, m.IDs(), []string{"c", "b"})
	if m.MaxTimestamp != 4 || m.Since != 1 {
		t.Fatalf("manifest = %+v", m)
	}

	empty, _ := s.Manifest(context.Background(), 10)
	if len(empty.Items) != 0 || empty.MaxTimestamp != 10 {
		t.Fatalf("empty manifest = %+v", empty)
	}
}

func TestDigest_SetSemantics(t *testing.T) {
	s1 := newTestStore(t)
	s2 := newTestStore(t)
	ctx := context.Background()

	mustAppend(t, s1, entry("a", "A", 1, 1), entry("b", "B", 1, 2))
	mustAppend(t, s2, entry("b", "B", 1, 2), entry("a", "A", 1, 1))
	d1, _ := s1.Digest(ctx)
	d2, _ := s2.Digest(ctx)
	if d1 != d2 {
		t.Fatalf("digests differ for same set: %+v vs %+v", d1, d2)
	}
	if d1.Count != 2 || len(d1.Sum) != 32 {
		t.Fatalf("digest = %+v", d1)
	}

	mustAppend(t, s2, entry("c", "A", 2, 3))
	d2, _ = s2.Digest(ctx)
	if d1 == d2 {
		t.Fatal("digests should differ")
	}
}

func TestMaxQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if ts, _ := s.MaxTimestamp(ctx); ts != 0 {
		t.Fatalf("empty MaxTimestamp = %d", ts)
	}
	mustAppend(t, s, entry("a", "A", 1, 2), entry("b", "A", 2, 5), entry("c", "B", 1, 9))

	if ts, _ := s.MaxTimestamp(ctx); ts != 9 {
		t.Fatalf("MaxTimestamp = %d, want 9", ts)
	}
	if ts, _ := s.MaxTimestampForAuthor(ctx, "A"); ts != 5 {
		t.Fatalf("MaxTimestampForAuthor = %d, want 5", ts)
	}
	if c, _ := s.MaxCounterForAuthor(ctx, "A", 0); c != 2 {
		t.Fatalf("MaxCounterForAuthor unbounded = %d, want 2", c)
	}
	if c, _ := s.MaxCounterForAuthor(ctx, "A", 4); c != 1 {
		t.Fatalf("MaxCounterForAuthor(ts<=4) = %d, want 1", c)
	}
	if c, _ := s.MaxCounterForAuthor(ctx, "Z", 0); c != 0 {
		t.Fatalf("unknown author counter = %d", c)
	}

	id, ok, err := s.CounterTaken(ctx, "A", 2)
	if err != nil || !ok || id != "b" {
		t.Fatalf("CounterTaken = %q, %v, %v", id, ok, err)
	}
	if _, ok, _ := s.CounterTaken(ctx, "A", 3); ok {
		t.Fatal("counter 3 should be free")
	}
}

func TestAuthorConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("a1", "A", 1, 2), entry("a2", "A", 2, 5))

	tests := []struct {
		name string
		e    model.Entry
		want string
	}{
		{"next", entry("a3", "A", 3, 6), ""},
		{"gap fill", entry("x", "A", 3, 9), ""},
		{"same counter", entry("x", "A", 2, 7), "a2"},
		{"counter below later ts", entry("x", "A", 1, 7), "a1"},
		{"counter above earlier ts", entry("x", "A", 3, 4), "a2"},
		{"same ts", entry("x", "A", 3, 5), "a2"},
		{"self", entry("a2", "A", 2, 5), ""},
		{"other author", entry("x", "B", 1, 1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AuthorConflict(ctx, tt.e)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("conflict = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Delivery ---

func TestDeliveryMarker_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("m1", "A", 1, 1))
	hashBefore, _ := s.IntegrityHash(ctx, "m1")

	if err := s.UpdateDeliveryMarker(ctx, "m1", model.MarkerPending); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDeliveryMarker(ctx, "m1", model.MarkerSynced); err != nil {
		t.Fatal(err)
	}
	d, err := s.DeliveryFor(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Marker != model.MarkerSynced || d.UpdatedAt.IsZero() {
		t.Fatalf("delivery = %+v", d)
	}

	r, _ := s.Get(ctx, "m1")
	if r.Delivery.Marker != model.MarkerSynced {
		t.Fatalf("record marker = %q", r.Delivery.Marker)
	}
	hashAfter, _ := s.IntegrityHash(ctx, "m1")
	if hashBefore != hashAfter {
		t.Fatal("marker update changed the integrity hash")
	}

	counts, _ := s.CountByMarker(ctx)
	if counts[model.MarkerSynced] != 1 || len(counts) != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestDeliveryMarker_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, entry("m1", "A", 1, 1))

	if err := s.UpdateDeliveryMarker(ctx, "nope", model.MarkerSent); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
	if err := s.UpdateDeliveryMarker(ctx, "m1", "bogus"); err == nil {
		t.Fatal("expected error for unknown marker")
	}
	d, err := s.DeliveryFor(ctx, "m1")
	if err != nil || d.Marker != model.MarkerNone {
		t.Fatalf("DeliveryFor unmarked = %+v, %v", d, err)
	}
	if _, err := s.DeliveryFor(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeliveryFor unknown err = %v", err)
	}
}

// --- Checkpoints ---

func TestCheckpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp, err := s.Checkpoint(ctx, "peer-1")
	if err != nil || cp.PulledTS != 0 || cp.PushedTS != 0 {
		t.Fatalf("default checkpoint = %+v, %v", cp, err)
	}
	if err := s.SetCheckpoint(ctx, Checkpoint{PeerID: "peer-1", PulledTS: 5, PushedTS: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCheckpoint(ctx, Checkpoint{PeerID: "peer-0", PulledTS: 1}); err != nil {
		t.Fatal(err)
	}
	cp, _ = s.Checkpoint(ctx, "peer-1")
	if cp.PulledTS != 5 || cp.PushedTS != 3 || cp.UpdatedAt.IsZero() {
		t.Fatalf("checkpoint = %+v", cp)
	}
	list, _ := s.ListCheckpoints(ctx)
	if len(list) != 2 || list[0].PeerID != "peer-0" {
		t.Fatalf("list = %+v", list)
	}

	// A slower round finishing late never lowers the checkpoint.
	if err := s.SetCheckpoint(ctx, Checkpoint{PeerID: "peer-1", PulledTS: 2, PushedTS: 7}); err != nil {
		t.Fatal(err)
	}
	cp, _ = s.Checkpoint(ctx, "peer-1")
	if cp.PulledTS != 5 || cp.PushedTS != 7 {
		t.Fatalf("after stale set: checkpoint = %+v, want pulled 5 pushed 7", cp)
	}

	if err := s.ResetCheckpoint(ctx, "peer-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.ResetCheckpoint(ctx, "peer-new"); err != nil {
		t.Fatal(err)
	}
	cp, _ = s.Checkpoint(ctx, "peer-1")
	if cp.PulledTS != 0 || cp.PushedTS != 0 {
		t.Fatalf("after reset: checkpoint = %+v", cp)
	}
}

func TestReopen_KeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cord.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	mustAppend(t, s, entry("m1", "A", 1, 1))
	s.Close()

	s2, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if ok, _ := s2.Exists(context.Background(), "m1"); !ok {
		t.Fatal("entry lost across reopen")
	}
	if v, _ := s2.SchemaVersion(context.Background()); v != schemaVersion {
		t.Fatalf("schema version = %d", v)
	}
}

func TestArrivalsSince_InsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if seq, _ := s.MaxSeq(ctx); seq != 0 {
		t.Fatalf("empty MaxSeq = %d", seq)
	}
	// The late entry has the lowest timestamp but arrives last.
	mustAppend(t, s, entry("m5", "A", 1, 5), entry("m6", "A", 2, 6))
	cursor, err := s.MaxSeq(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mustAppend(t, s, entry("late", "B", 1, 1))

	got, err := s.ArrivalsSince(ctx, cursor, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MessageID != "late" || got[0].Seq <= cursor {
		t.Fatalf("arrivals = %+v", got)
	}

	all, _ := s.ArrivalsSince(ctx, 0, 2)
	if len(all) != 2 || all[0].MessageID != "m5" || all[1].MessageID != "m6" {
		t.Fatalf("limited arrivals = %+v", all)
	}
}
