// Package clock implements the per-device Lamport clock of the Cord.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (local event): before a local event, increment the clock.
//	IR2 (observation): on seeing a foreign timestamp t, set the clock to
//	     max(own, t). The next local tick is then strictly greater than
//	     anything seen so far.
//
// Alongside the timestamp the clock keeps the local author's counter, which
// increments by one per local event. Together (timestamp, author, counter)
// give every replica the same total order without coordination.
//
// Clock is safe for concurrent use. Durability is the caller's job: the
// replica persists State() in the same transaction as each local append.
package clock

import "sync"

// Stamp is the pair produced by one local tick.
type Stamp struct {
	Timestamp int64 `json:"lamport_ts"`
	Counter   int64 `json:"author_counter"`
}

// State is the persisted form of a clock.
type State struct {
	AuthorID      string `json:"author_id"`
	LastTimestamp int64  `json:"last_timestamp"`
	LastCounter   int64  `json:"last_counter"`
}

// Clock is a Lamport logical clock scoped to one local author.
type Clock struct {
	mu      sync.Mutex
	author  string
	ts      int64
	counter int64
}

// New returns a zeroed clock for authorID.
func New(authorID string) *Clock {
	return &Clock{author: authorID}
}

// Author returns the local author the counter is scoped to.
func (c *Clock) Author() string { return c.author }

// Tick implements IR1. It is a single atomic read-modify-write; no two
// ticks return the same stamp.
func (c *Clock) Tick() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	c.counter++
	return Stamp{Timestamp: c.ts, Counter: c.counter}
}

// Observe implements IR2 for a foreign timestamp. Returns the clock value
// after the update.
func (c *Clock) Observe(remote int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.ts {
		c.ts = remote
	}
	return c.ts
}

// Value returns the last timestamp without advancing it.
func (c *Clock) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

// Counter returns the last local author counter.
func (c *Clock) Counter() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// State snapshots the clock for persistence.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{AuthorID: c.author, LastTimestamp: c.ts, LastCounter: c.counter}
}

// Restore seeds the clock from persisted or rebuilt state. It never moves
// the clock backwards, so restoring a stale snapshot is harmless. State for
// a different author only contributes its timestamp.
func (c *Clock) Restore(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.LastTimestamp > c.ts {
		c.ts = s.LastTimestamp
	}
	if s.AuthorID == c.author && s.LastCounter > c.counter {
		c.counter = s.LastCounter
	}
}

// TotalOrderLess defines the deterministic total order over entries.
// Event A is "less" if:
//
//	tsA < tsB, or
//	tsA == tsB and authorA < authorB (lexicographic), or
//	tsA == tsB and authorA == authorB and ctrA < ctrB
func TotalOrderLess(tsA int64, authorA string, ctrA int64, tsB int64, authorB string, ctrB int64) bool {
	if tsA != tsB {
		return tsA < tsB
	}
	if authorA != authorB {
		return authorA < authorB
	}
	return ctrA < ctrB
}
