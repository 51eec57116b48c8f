package ndp

// NeighborState is the reachability state of a neighbor cache entry
// (RFC 4861 Section 7.3.2).
type NeighborState uint8

const (
	// StateInvalid marks an empty cache slot.
	StateInvalid NeighborState = iota

	// StateIncomplete means address resolution is in progress and the
	// link-layer address is not yet known.
	StateIncomplete

	// StateReachable means the neighbor was recently confirmed reachable.
	StateReachable

	// StateStale means reachability is unknown; no traffic is generated
	// until a packet is sent to the neighbor.
	StateStale

	// StateDelay means a packet was sent to a Stale neighbor and an upper
	// layer confirmation is awaited before probing.
	StateDelay

	// StateProbe means unicast Neighbor Solicitations are being sent to
	// verify reachability.
	StateProbe

	// StateCreated marks a freshly claimed slot that has not yet been
	// given a state by its creator.
	StateCreated
)

// String returns the human-readable name of the state.
func (s NeighborState) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateIncomplete:
		return "Incomplete"
	case StateReachable:
		return "Reachable"
	case StateStale:
		return "Stale"
	case StateDelay:
		return "Delay"
	case StateProbe:
		return "Probe"
	case StateCreated:
		return "Created"
	default:
		return "Unknown"
	}
}

// Resolved reports whether the state carries a usable link-layer address.
// RFC 4861 Section 7.3.3: any state other than Incomplete may be used for
// transmission.
func (s NeighborState) Resolved() bool {
	return s >= StateReachable && s <= StateProbe
}

// ParseNeighborState maps a state name back to its value. Unknown names
// return StateInvalid and false.
func ParseNeighborState(name string) (NeighborState, bool) {
	for s := StateInvalid; s <= StateCreated; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return StateInvalid, false
}
