package route

import (
	"log/slog"
	"net/netip"
	"sync"

	"github.com/gaissmai/bart"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultSize is the number of destinations a Cache holds when New is
// given a non-positive size.
const DefaultSize = 256

// Destination is one cached next-hop decision.
type Destination struct {
	// Dst is the destination address.
	Dst netip.Addr

	// NextHop is the neighbor packets to Dst are sent to. It equals Dst
	// for on-link destinations.
	NextHop netip.Addr

	// MTU is the path MTU toward Dst in bytes.
	MTU int
}

// Cache is a bounded destination cache keyed by host prefixes in a bart
// routing table, with a reverse index by next hop so invalidation does not
// scan the whole table. When full, the least recently added destination
// is dropped. It is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	table  bart.Table[Destination]
	byHop  map[netip.Addr]map[netip.Addr]struct{}
	recent *simplelru.LRU[netip.Addr, struct{}]

	logger *slog.Logger
}

// New creates an empty Cache holding at most size destinations.
func New(logger *slog.Logger, size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}

	c := &Cache{
		byHop:  make(map[netip.Addr]map[netip.Addr]struct{}),
		logger: logger.With(slog.String("component", "route.cache")),
	}
	// NewLRU only fails for a non-positive size.
	c.recent, _ = simplelru.NewLRU[netip.Addr, struct{}](size, c.dropLocked)
	return c
}

// hostPrefix returns the full-length prefix of addr.
func hostPrefix(addr netip.Addr) netip.Prefix {
	return netip.PrefixFrom(addr, addr.BitLen())
}

// Add records nextHop and mtu for dst, replacing any previous entry.
func (c *Cache) Add(dst, nextHop netip.Addr, mtu int) {
	if !dst.IsValid() || !nextHop.IsValid() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pfx := hostPrefix(dst)
	if old, ok := c.table.Get(pfx); ok {
		c.unindexLocked(old.NextHop, dst)
	}

	c.table.Insert(pfx, Destination{Dst: dst, NextHop: nextHop, MTU: mtu})

	set, ok := c.byHop[nextHop]
	if !ok {
		set = make(map[netip.Addr]struct{})
		c.byHop[nextHop] = set
	}
	set[dst] = struct{}{}

	if c.recent.Add(dst, struct{}{}) {
		c.logger.Debug("destination cache full, oldest entry dropped",
			slog.Int("size", c.recent.Len()),
		)
	}
}

// Lookup returns the cached next hop for dst.
func (c *Cache) Lookup(dst netip.Addr) (netip.Addr, bool) {
	d, ok := c.Get(dst)
	if !ok {
		return netip.Addr{}, false
	}
	return d.NextHop, true
}

// Get returns the full cache entry for dst.
func (c *Cache) Get(dst netip.Addr) (Destination, bool) {
	if !dst.IsValid() {
		return Destination{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.table.Get(hostPrefix(dst))
}

// Delete removes the entry for dst and reports whether one existed.
func (c *Cache) Delete(dst netip.Addr) bool {
	if !dst.IsValid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.recent.Remove(dst)
}

// InvalidateNextHop removes every entry routed through nextHop and returns
// how many were removed.
func (c *Cache) InvalidateNextHop(nextHop netip.Addr) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.invalidateLocked(nextHop)
	if n > 0 {
		c.logger.Debug("destinations invalidated",
			slog.String("next_hop", nextHop.String()),
			slog.Int("count", n),
		)
	}
	return n
}

// InvalidatePrefix removes every entry whose next hop lies inside prefix.
// On-link destinations use themselves as next hop, so this drops them
// when the prefix that made them on-link goes away.
func (c *Cache) InvalidatePrefix(prefix netip.Prefix) int {
	if !prefix.IsValid() {
		return 0
	}
	prefix = prefix.Masked()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for hop := range c.byHop {
		if prefix.Contains(hop) {
			n += c.invalidateLocked(hop)
		}
	}

	if n > 0 {
		c.logger.Debug("destinations invalidated",
			slog.String("prefix", prefix.String()),
			slog.Int("count", n),
		)
	}
	return n
}

func (c *Cache) invalidateLocked(nextHop netip.Addr) int {
	set := c.byHop[nextHop]
	n := len(set)
	for dst := range set {
		c.recent.Remove(dst)
	}
	return n
}

// Len returns the number of cached destinations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.table.Size()
}

// Entries returns a snapshot of every cached destination, oldest first.
func (c *Cache) Entries() []Destination {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Destination, 0, c.recent.Len())
	for _, dst := range c.recent.Keys() {
		if d, ok := c.table.Get(hostPrefix(dst)); ok {
			out = append(out, d)
		}
	}
	return out
}

// dropLocked removes dst from the table and the next-hop index. The LRU
// calls it for both explicit removals and capacity evictions, always with
// c.mu held.
func (c *Cache) dropLocked(dst netip.Addr, _ struct{}) {
	pfx := hostPrefix(dst)
	old, ok := c.table.Get(pfx)
	if !ok {
		return
	}
	c.table.Delete(pfx)
	c.unindexLocked(old.NextHop, dst)
}

func (c *Cache) unindexLocked(nextHop, dst netip.Addr) {
	set, ok := c.byHop[nextHop]
	if !ok {
		return
	}
	delete(set, dst)
	if len(set) == 0 {
		delete(c.byHop, nextHop)
	}
}
