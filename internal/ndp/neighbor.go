package ndp

import (
	"net/netip"
)

// -------------------------------------------------------------------------
// Neighbor Cache: RFC 4861 Section 5.1, 7.3
// -------------------------------------------------------------------------

// Packet is an outbound packet held while its next hop is resolved. The
// cache owns a queued packet until it either transmits it or calls
// Release.
type Packet interface {
	// Release returns the packet to its buffer pool without sending it.
	Release()
}

// NeighborRef is a weak handle to a neighbor cache slot. The zero value
// refers to nothing; a handle is stale once its slot has been reused.
type NeighborRef struct {
	slot uint16
	gen  uint32
}

// IsZero reports whether the handle refers to nothing.
func (r NeighborRef) IsZero() bool { return r.gen == 0 }

// NeighborEntry is a read-only snapshot of one neighbor cache entry.
type NeighborEntry struct {
	// Addr is the neighbor's IPv6 address.
	Addr netip.Addr

	// LinkAddr is the resolved link-layer address. Zero while Incomplete.
	LinkAddr LinkAddr

	// State is the reachability state.
	State NeighborState

	// Interface is the index of the outgoing interface.
	Interface int

	// Static is true for manually configured entries that never age.
	Static bool

	// IsRouter is true when a default router entry links to this neighbor.
	IsRouter bool

	// SolicitsLeft is the remaining solicitation budget in Incomplete/Probe.
	SolicitsLeft uint32

	// RetransTicks is the remaining retransmit time in fast ticks
	// (Incomplete/Probe).
	RetransTicks uint32

	// ExpiresIn is the remaining time in seconds (Reachable/Delay).
	ExpiresIn uint32

	// Idle is the number of seconds spent in Stale.
	Idle uint32

	// Queued is the number of packets awaiting resolution.
	Queued int
}

// neighborEntry is one cache slot. Each timer field belongs to the states
// named beside it and is zero in every other state.
type neighborEntry struct {
	addr     netip.Addr
	linkAddr LinkAddr
	state    NeighborState
	static   bool
	router   RouterRef
	gen      uint32

	retransTicks uint32 // Incomplete, Probe: fast ticks until next NS
	solicitsLeft uint32 // Incomplete, Probe
	expiresIn    uint32 // Reachable, Delay: slow ticks until transition
	idle         uint32 // Stale: slow ticks since entering Stale

	iface  int
	source netip.Addr

	queue packetQueue
}

// setState switches to s and clears the timers owned by other states.
func (e *neighborEntry) setState(s NeighborState) {
	e.state = s
	if s != StateIncomplete && s != StateProbe {
		e.retransTicks, e.solicitsLeft = 0, 0
	}
	if s != StateReachable && s != StateDelay {
		e.expiresIn = 0
	}
	e.idle = 0
}

// snapshot copies the entry into its exported form.
func (e *neighborEntry) snapshot() NeighborEntry {
	return NeighborEntry{
		Addr:         e.addr,
		LinkAddr:     e.linkAddr,
		State:        e.state,
		Interface:    e.iface,
		Static:       e.static,
		IsRouter:     !e.router.IsZero(),
		SolicitsLeft: e.solicitsLeft,
		RetransTicks: e.retransTicks,
		ExpiresIn:    e.expiresIn,
		Idle:         e.idle,
		Queued:       e.queue.len(),
	}
}

// -------------------------------------------------------------------------
// Pending packet queue
// -------------------------------------------------------------------------

// packetQueue is a fixed-capacity FIFO. Pushing onto a full queue evicts
// the oldest packet.
type packetQueue struct {
	buf  []Packet
	head int
	n    int
}

func newPacketQueue(depth int) packetQueue {
	return packetQueue{buf: make([]Packet, depth)}
}

func (q *packetQueue) len() int { return q.n }

// push appends p and returns the packet dropped to make room, if any.
func (q *packetQueue) push(p Packet) Packet {
	if len(q.buf) == 0 {
		return p
	}

	var dropped Packet
	if q.n == len(q.buf) {
		dropped = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.n--
	}

	q.buf[(q.head+q.n)%len(q.buf)] = p
	q.n++
	return dropped
}

// drain removes every packet in FIFO order and appends them to out.
func (q *packetQueue) drain(out []Packet) []Packet {
	for q.n > 0 {
		out = append(out, q.buf[q.head])
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.n--
	}
	q.head = 0
	return out
}

// -------------------------------------------------------------------------
// Cache table
// -------------------------------------------------------------------------

// neighborCache is an open-addressed hash table of fixed size.
type neighborCache struct {
	entries     []neighborEntry
	evictOnFull bool
}

func newNeighborCache(size, queueDepth int, evictOnFull bool) *neighborCache {
	c := &neighborCache{
		entries:     make([]neighborEntry, size),
		evictOnFull: evictOnFull,
	}
	for i := range c.entries {
		c.entries[i].queue = newPacketQueue(queueDepth)
	}
	return c
}

// hash is the sum of the four address words modulo the table size.
func (c *neighborCache) hash(addr netip.Addr) int {
	w := words(addr)
	sum := uint64(w[0]) + uint64(w[1]) + uint64(w[2]) + uint64(w[3])
	return int(sum % uint64(len(c.entries)))
}

// find probes linearly from the hash slot over the whole table.
func (c *neighborCache) find(addr netip.Addr) (int, bool) {
	n := len(c.entries)
	start := c.hash(addr)
	for k := range n {
		i := (start + k) % n
		e := &c.entries[i]
		if e.state != StateInvalid && e.addr == addr {
			return i, true
		}
	}
	return 0, false
}

// selectSlot picks the slot for a new entry: the first Invalid slot on the
// probe path, else (with eviction enabled) the Stale entry idle the
// longest, else the Reachable entry closest to expiry. Router-linked and
// static entries are never chosen. victim is true when the returned slot
// holds a live entry that must be torn down before reuse.
func (c *neighborCache) selectSlot(addr netip.Addr) (slot int, victim bool, err error) {
	n := len(c.entries)
	start := c.hash(addr)

	stale, reachable := -1, -1
	for k := range n {
		i := (start + k) % n
		e := &c.entries[i]

		if e.state == StateInvalid {
			return i, false, nil
		}
		if !c.evictOnFull || e.static || !e.router.IsZero() {
			continue
		}

		switch e.state {
		case StateStale:
			if stale < 0 || e.idle > c.entries[stale].idle {
				stale = i
			}
		case StateReachable:
			if reachable < 0 || e.expiresIn < c.entries[reachable].expiresIn {
				reachable = i
			}
		}
	}

	switch {
	case stale >= 0:
		return stale, true, nil
	case reachable >= 0:
		return reachable, true, nil
	default:
		return 0, false, ErrTableFull
	}
}

// claim initializes slot i for addr in the Created state.
func (c *neighborCache) claim(i int, addr netip.Addr, iface int, source netip.Addr) {
	e := &c.entries[i]
	e.addr = addr
	e.linkAddr = LinkAddr{}
	e.static = false
	e.router = RouterRef{}
	e.gen++
	e.iface = iface
	e.source = source
	e.setState(StateCreated)
}

// ref returns the weak handle for slot i.
func (c *neighborCache) ref(i int) NeighborRef {
	return NeighborRef{slot: uint16(i), gen: c.entries[i].gen} //nolint:gosec // table size is bounded by config validation.
}

// resolve returns the slot a handle points at if it is still current.
func (c *neighborCache) resolve(r NeighborRef) (int, bool) {
	if r.IsZero() || int(r.slot) >= len(c.entries) {
		return 0, false
	}
	e := &c.entries[r.slot]
	if e.state == StateInvalid || e.gen != r.gen {
		return 0, false
	}
	return int(r.slot), true
}

// count returns the number of live entries per state.
func (c *neighborCache) count() map[NeighborState]int {
	out := make(map[NeighborState]int)
	for i := range c.entries {
		if s := c.entries[i].state; s != StateInvalid {
			out[s]++
		}
	}
	return out
}
