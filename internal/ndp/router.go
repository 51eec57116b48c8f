package ndp

import (
	"net/netip"
)

// -------------------------------------------------------------------------
// Default Router Table: RFC 4861 Section 6.3.4, 6.3.6
// -------------------------------------------------------------------------

// InfiniteRouterLifetime marks a router entry that never expires.
const InfiniteRouterLifetime uint16 = 0xFFFF

// RouterKind records how a router entry was learned.
type RouterKind uint8

const (
	// RouterStatic is a manually configured router.
	RouterStatic RouterKind = iota + 1

	// RouterDynamic is a router learned from a Router Advertisement.
	RouterDynamic
)

// String returns the human-readable name of the kind.
func (k RouterKind) String() string {
	switch k {
	case RouterStatic:
		return "static"
	case RouterDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// RouterRef is a weak handle to a router table slot. The zero value
// refers to nothing; a handle whose generation no longer matches the slot
// is stale and resolves to nothing.
type RouterRef struct {
	slot uint16
	gen  uint32
}

// IsZero reports whether the handle refers to nothing.
func (r RouterRef) IsZero() bool { return r.gen == 0 }

// RouterEntry is a snapshot of one default router.
type RouterEntry struct {
	// Addr is the router's address, normally link-local.
	Addr netip.Addr

	// Interface is the index of the interface the router was learned on.
	Interface int

	// Lifetime is the remaining lifetime in seconds, or
	// InfiniteRouterLifetime.
	Lifetime uint16

	// Kind records whether the entry is static or learned.
	Kind RouterKind

	// NeighborState is the state of the linked neighbor entry, or
	// StateInvalid when the router has not been resolved yet.
	NeighborState NeighborState
}

// routerEntry is one router table slot.
type routerEntry struct {
	addr     netip.Addr
	iface    int
	lifetime uint16
	kind     RouterKind
	valid    bool
	gen      uint32
	neighbor NeighborRef
}

// routerTable is the fixed-size default router list with a persistent
// round-robin cursor for the fallback selection policy.
type routerTable struct {
	entries []routerEntry
	cursor  int
}

func newRouterTable(size int) *routerTable {
	return &routerTable{entries: make([]routerEntry, size)}
}

// find returns the slot holding (addr, iface).
func (t *routerTable) find(addr netip.Addr, iface int) (int, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid && e.addr == addr && e.iface == iface {
			return i, true
		}
	}
	return 0, false
}

// findAddr returns the first slot holding addr on any interface.
func (t *routerTable) findAddr(addr netip.Addr) (int, bool) {
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].addr == addr {
			return i, true
		}
	}
	return 0, false
}

// claim populates the first free slot.
func (t *routerTable) claim(addr netip.Addr, iface int, lifetime uint16, kind RouterKind) (int, error) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			continue
		}
		*e = routerEntry{
			addr:     addr,
			iface:    iface,
			lifetime: lifetime,
			kind:     kind,
			valid:    true,
			gen:      e.gen + 1,
		}
		return i, nil
	}
	return 0, ErrTableFull
}

// clear empties slot i. The caller severs the neighbor link first.
func (t *routerTable) clear(i int) {
	gen := t.entries[i].gen
	t.entries[i] = routerEntry{gen: gen}
}

// ref returns the weak handle for slot i.
func (t *routerTable) ref(i int) RouterRef {
	return RouterRef{slot: uint16(i), gen: t.entries[i].gen} //nolint:gosec // table size is bounded by config validation.
}

// resolve returns the slot a handle points at if it is still current.
func (t *routerTable) resolve(r RouterRef) (int, bool) {
	if r.IsZero() || int(r.slot) >= len(t.entries) {
		return 0, false
	}
	e := &t.entries[r.slot]
	if !e.valid || e.gen != r.gen {
		return 0, false
	}
	return int(r.slot), true
}

// next scans cyclically from the round-robin cursor and returns the first
// valid slot bound to iface. The cursor moves past the returned
// slot even when it is the only candidate.
func (t *routerTable) next(iface int) (int, bool) {
	n := len(t.entries)
	if n == 0 {
		return 0, false
	}
	for k := range n {
		i := (t.cursor + k) % n
		e := &t.entries[i]
		if e.valid && e.iface == iface {
			t.cursor = (i + 1) % n
			return i, true
		}
	}
	return 0, false
}

// tick ages every valid entry by one second and returns the entries whose
// lifetime has run out. The caller deletes them.
func (t *routerTable) tick(expired []int) []int {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid {
			continue
		}
		switch e.lifetime {
		case 0:
			expired = append(expired, i)
		case InfiniteRouterLifetime:
		default:
			e.lifetime--
			if e.lifetime == 0 {
				expired = append(expired, i)
			}
		}
	}
	return expired
}

// count returns the number of valid entries.
func (t *routerTable) count() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].valid {
			n++
		}
	}
	return n
}
