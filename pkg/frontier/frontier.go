// Package frontier computes how far this replica's log has settled across
// its peers.
//
// Each peer's sync checkpoint is a pointstamp (pulled, pushed) ordered
// componentwise. The frontier is the antichain of minimal pointstamps: the
// peers that lag furthest behind in at least one direction. An entry at
// Lamport timestamp t is settled when every known peer has been reconciled
// past t both ways, so nothing at or below t still has to travel.
//
// Checkpoints only advance after successful rounds, so the horizon is a
// lower bound. Entries merged late with timestamps under a checkpoint are
// caught by the next full pass, not by the frontier.
package frontier

// Progress is one peer's reconciled position.
type Progress struct {
	PeerID   string `json:"peer_id"`
	PulledTS int64  `json:"pulled_ts"`
	PushedTS int64  `json:"pushed_ts"`
}

// Low is the lesser of the two directions.
func (p Progress) Low() int64 { return min(p.PulledTS, p.PushedTS) }

// Less reports whether p is strictly behind q: no further in either
// direction and behind in at least one.
func (p Progress) Less(q Progress) bool {
	return p.PulledTS <= q.PulledTS && p.PushedTS <= q.PushedTS &&
		(p.PulledTS < q.PulledTS || p.PushedTS < q.PushedTS)
}

// covers reports whether p has been reconciled past ts in both directions.
func (p Progress) covers(ts int64) bool { return p.PulledTS >= ts && p.PushedTS >= ts }

// Compute returns the antichain of minimal progress points. A peer is in
// the frontier iff no other peer is strictly behind it.
func Compute(progress []Progress) []Progress {
	var frontier []Progress
	for _, p := range progress {
		dominated := false
		for _, q := range progress {
			if q.PeerID != p.PeerID && q.Less(p) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, p)
		}
	}
	return frontier
}

// Status is the result of a settlement check at one timestamp.
type Status struct {
	Settled bool `json:"settled"`
	// Horizon is the highest timestamp settled with every peer.
	Horizon   int64      `json:"horizon"`
	Frontier  []Progress `json:"frontier"`
	BlockedBy []Progress `json:"blocked_by,omitempty"`
}

// ComputeStatus checks whether entries at ts have settled with every peer.
// Without peers nothing has left the device, so nothing is settled.
func ComputeStatus(ts int64, progress []Progress) Status {
	st := Status{Frontier: Compute(progress)}
	if len(progress) == 0 {
		return st
	}

	st.Horizon = progress[0].Low()
	for _, p := range progress[1:] {
		st.Horizon = min(st.Horizon, p.Low())
	}

	st.Settled = true
	for _, p := range progress {
		if !p.covers(ts) {
			st.Settled = false
			st.BlockedBy = append(st.BlockedBy, p)
		}
	}
	return st
}
