package ndp

import (
	"net/netip"
)

// -------------------------------------------------------------------------
// Prefix List: RFC 4861 Section 5.1, 6.3.4
// -------------------------------------------------------------------------

const (
	// InfiniteLifetime marks a prefix that never expires.
	InfiniteLifetime uint32 = 0xFFFFFFFF

	// twoHours is the RFC 4862 Section 5.5.3(e) lifetime floor in seconds.
	twoHours uint32 = 2 * 60 * 60

	// noNode terminates the arena links.
	noNode int16 = -1
)

// PrefixEntry is a snapshot of one on-link prefix.
type PrefixEntry struct {
	// Prefix is the network address with host bits zeroed.
	Prefix netip.Prefix

	// ValidLifetime is the remaining lifetime in seconds, or
	// InfiniteLifetime for static prefixes.
	ValidLifetime uint32
}

// prefixNode is one arena slot. A slot is on exactly one of the free list
// (singly linked through next) or the active list (doubly linked).
type prefixNode struct {
	prefix   netip.Prefix
	lifetime uint32
	next     int16
	prev     int16
	active   bool
}

// prefixList keeps on-link prefixes ordered by descending length so the
// first match found by a linear scan is the longest one.
type prefixList struct {
	nodes []prefixNode
	head  int16
	free  int16
	count int
}

// newPrefixList allocates a pool of size nodes, all on the free list.
func newPrefixList(size int) *prefixList {
	l := &prefixList{
		nodes: make([]prefixNode, size),
		head:  noNode,
		free:  noNode,
	}
	for i := size - 1; i >= 0; i-- {
		l.nodes[i] = prefixNode{next: l.free, prev: noNode}
		l.free = int16(i) //nolint:gosec // pool size is bounded by config validation.
	}
	return l
}

// insertResult describes what insert did.
type insertResult uint8

const (
	prefixInserted insertResult = iota + 1
	prefixRefreshed
)

// insert adds prefix or refreshes an identical active entry. A refreshed
// entry's lifetime follows RFC 4862 Section 5.5.3(e).
func (l *prefixList) insert(prefix netip.Prefix, lifetime uint32) (int16, insertResult, error) {
	prefix = prefix.Masked()
	length := prefix.Bits()

	at := noNode   // node the new entry goes in front of
	last := noNode // last node with length >= new length
	for i := l.head; i != noNode; i = l.nodes[i].next {
		n := &l.nodes[i]
		if length > n.prefix.Bits() {
			at = i
			break
		}
		if n.prefix == prefix {
			n.lifetime = refreshLifetime(n.lifetime, lifetime)
			return i, prefixRefreshed, nil
		}
		last = i
	}

	if l.free == noNode {
		return noNode, 0, ErrTableFull
	}

	idx := l.free
	n := &l.nodes[idx]
	l.free = n.next

	n.prefix = prefix
	n.lifetime = lifetime
	n.active = true
	n.prev = last
	n.next = at

	if last == noNode {
		l.head = idx
	} else {
		l.nodes[last].next = idx
	}
	if at != noNode {
		l.nodes[at].prev = idx
	}

	l.count++
	return idx, prefixInserted, nil
}

// refreshLifetime applies the RFC 4862 Section 5.5.3(e) two-hour rule.
func refreshLifetime(remaining, received uint32) uint32 {
	switch {
	case received > twoHours || received > remaining:
		return received
	case remaining <= twoHours:
		return remaining
	default:
		return twoHours
	}
}

// find returns the active node holding exactly prefix.
func (l *prefixList) find(prefix netip.Prefix) (int16, bool) {
	prefix = prefix.Masked()
	for i := l.head; i != noNode; i = l.nodes[i].next {
		if l.nodes[i].prefix == prefix {
			return i, true
		}
	}
	return noNode, false
}

// unlink moves node idx from the active list to the free list and returns
// the prefix it held.
func (l *prefixList) unlink(idx int16) netip.Prefix {
	n := &l.nodes[idx]
	prefix := n.prefix

	if n.prev == noNode {
		l.head = n.next
	} else {
		l.nodes[n.prev].next = n.next
	}
	if n.next != noNode {
		l.nodes[n.next].prev = n.prev
	}

	*n = prefixNode{next: l.free, prev: noNode}
	l.free = idx
	l.count--

	return prefix
}

// contains reports whether addr falls inside any active prefix.
func (l *prefixList) contains(addr netip.Addr) bool {
	for i := l.head; i != noNode; i = l.nodes[i].next {
		n := &l.nodes[i]
		if MatchPrefix(addr, n.prefix.Addr(), n.prefix.Bits()) {
			return true
		}
	}
	return false
}

// tick ages every finite lifetime by one second and returns the nodes
// that reached zero. The caller deletes them.
func (l *prefixList) tick(expired []int16) []int16 {
	for i := l.head; i != noNode; i = l.nodes[i].next {
		n := &l.nodes[i]
		if n.lifetime == InfiniteLifetime {
			continue
		}
		if n.lifetime > 0 {
			n.lifetime--
		}
		if n.lifetime == 0 {
			expired = append(expired, i)
		}
	}
	return expired
}

// snapshot returns the active entries in list order.
func (l *prefixList) snapshot() []PrefixEntry {
	out := make([]PrefixEntry, 0, l.count)
	for i := l.head; i != noNode; i = l.nodes[i].next {
		out = append(out, PrefixEntry{
			Prefix:        l.nodes[i].prefix,
			ValidLifetime: l.nodes[i].lifetime,
		})
	}
	return out
}
