package ndp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
)

// -------------------------------------------------------------------------
// Default router operations: RFC 4861 Section 6.3.4, 6.3.6
// -------------------------------------------------------------------------

// AddRouter adds a default router or refreshes the lifetime of an existing
// (addr, iface) entry. A dynamic refresh leaves a static entry untouched. Link-local routers are always accepted; a global
// router must be on-link for an address configured on iface or for an
// on-link prefix.
func (s *Stack) AddRouter(addr netip.Addr, iface int, lifetime uint16, kind RouterKind) (RouterEntry, error) {
	if kind != RouterStatic && kind != RouterDynamic {
		return RouterEntry{}, fmt.Errorf("router kind %d: %w", kind, ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.addRouterLocked(addr, iface, lifetime, kind)
	if err != nil {
		return RouterEntry{}, err
	}
	return s.routerSnapshotLocked(i), nil
}

func (s *Stack) addRouterLocked(addr netip.Addr, iface int, lifetime uint16, kind RouterKind) (int, error) {
	if _, ok := s.ifaceLocked(iface); !ok {
		return 0, fmt.Errorf("interface %d: %w", iface, ErrInvalidInterface)
	}

	t := Classify(addr)
	switch {
	case t.Has(AddrUnicast | AddrLinkLocal):
	case t.Has(AddrUnicast | AddrGlobal):
		if !s.addrs.onLinkFor(addr, iface) && !s.prefixes.contains(addr) {
			return 0, fmt.Errorf("router %s: %w", addr, ErrUnreachable)
		}
	default:
		return 0, fmt.Errorf("router %s: %w", addr, ErrInvalidAddress)
	}

	if i, ok := s.routers.find(addr, iface); ok {
		r := &s.routers.entries[i]
		// Advertisements never shorten a configured router.
		if r.kind == RouterStatic && kind != RouterStatic {
			return i, nil
		}
		r.lifetime, r.kind = lifetime, kind
		return i, nil
	}

	i, err := s.routers.claim(addr, iface, lifetime, kind)
	if err != nil {
		s.logger.Warn("default router table full",
			slog.String("router", addr.String()),
			slog.Int("iface", iface),
		)
		return 0, fmt.Errorf("router %s: %w", addr, err)
	}

	s.logger.Debug("default router added",
		slog.String("router", addr.String()),
		slog.Int("iface", iface),
		slog.Int("lifetime", int(lifetime)),
		slog.String("kind", kind.String()),
	)
	return i, nil
}

// DeleteRouter removes the router with address addr.
func (s *Stack) DeleteRouter(addr netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.routers.findAddr(addr)
	if !ok {
		return fmt.Errorf("router %s: %w", addr, ErrNotFound)
	}
	s.deleteRouterLocked(i)
	return nil
}

// deleteRouterLocked severs the neighbor link on both sides, invalidates
// destinations routed through the router and clears the slot.
func (s *Stack) deleteRouterLocked(i int) {
	r := &s.routers.entries[i]

	if ni, ok := s.cache.resolve(r.neighbor); ok {
		s.cache.entries[ni].router = RouterRef{}
	}
	if s.dests != nil {
		s.dests.InvalidateNextHop(r.addr)
	}

	s.logger.Debug("default router deleted",
		slog.String("router", r.addr.String()),
		slog.Int("iface", r.iface),
	)
	s.routers.clear(i)
}

// Router returns the index-th router bound to iface, counting only valid
// entries in table order.
func (s *Stack) Router(iface, index int) (RouterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.routers.entries {
		r := &s.routers.entries[i]
		if !r.valid || r.iface != iface {
			continue
		}
		if n == index {
			return s.routerSnapshotLocked(i), nil
		}
		n++
	}
	return RouterEntry{}, ErrNotFound
}

// Routers returns a snapshot of every valid router in table order.
func (s *Stack) Routers() []RouterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RouterEntry
	for i := range s.routers.entries {
		if s.routers.entries[i].valid {
			out = append(out, s.routerSnapshotLocked(i))
		}
	}
	return out
}

func (s *Stack) routerSnapshotLocked(i int) RouterEntry {
	r := &s.routers.entries[i]
	out := RouterEntry{
		Addr:      r.addr,
		Interface: r.iface,
		Lifetime:  r.lifetime,
		Kind:      r.kind,
	}
	if ni, ok := s.cache.resolve(r.neighbor); ok {
		out.NeighborState = s.cache.entries[ni].state
	}
	return out
}

// LookupReachable selects a default router on iface. The first router
// whose neighbor entry is known (Reachable, Stale, Delay or Probe) wins.
// Otherwise routers are returned round-robin regardless of reachability
// (RFC 4861 Section 6.3.6). The returned handle is zero when the router's
// neighbor entry does not exist yet.
func (s *Stack) LookupReachable(iface int) (netip.Addr, NeighborRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookupReachableLocked(iface)
}

func (s *Stack) lookupReachableLocked(iface int) (netip.Addr, NeighborRef, bool) {
	for i := range s.routers.entries {
		r := &s.routers.entries[i]
		if !r.valid || r.iface != iface {
			continue
		}
		ni, ok := s.cache.resolve(r.neighbor)
		if !ok || !s.cache.entries[ni].state.Resolved() {
			continue
		}
		return r.addr, r.neighbor, true
	}

	i, ok := s.routers.next(iface)
	if !ok {
		return netip.Addr{}, NeighborRef{}, false
	}
	r := &s.routers.entries[i]
	if _, linked := s.cache.resolve(r.neighbor); !linked {
		return r.addr, NeighborRef{}, true
	}
	return r.addr, r.neighbor, true
}

// -------------------------------------------------------------------------
// Prefix list operations
// -------------------------------------------------------------------------

// AddPrefix adds an on-link prefix or refreshes an existing one.
// Re-adding a known prefix returns ErrDuplicate, which callers treat as
// success.
func (s *Stack) AddPrefix(prefix netip.Prefix, lifetime uint32) error {
	if !prefix.IsValid() || !prefix.Addr().Is6() || prefix.Addr().Is4In6() {
		return fmt.Errorf("prefix %s: %w", prefix, ErrInvalidAddress)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, res, err := s.insertPrefixLocked(prefix, lifetime)
	if err != nil {
		return err
	}
	if res == prefixRefreshed {
		return fmt.Errorf("prefix %s: %w", prefix.Masked(), ErrDuplicate)
	}
	return nil
}

func (s *Stack) insertPrefixLocked(prefix netip.Prefix, lifetime uint32) (int16, insertResult, error) {
	idx, res, err := s.prefixes.insert(prefix, lifetime)
	if err != nil {
		s.logger.Warn("prefix list full", slog.String("prefix", prefix.String()))
		return noNode, 0, fmt.Errorf("prefix %s: %w", prefix, err)
	}
	if res == prefixInserted {
		s.logger.Debug("prefix added",
			slog.String("prefix", prefix.Masked().String()),
			slog.Uint64("lifetime", uint64(lifetime)),
		)
	}
	return idx, res, nil
}

// DeletePrefix removes an on-link prefix and retracts the addresses
// autoconfigured from it.
func (s *Stack) DeletePrefix(ctx context.Context, prefix netip.Prefix) error {
	s.mu.Lock()
	idx, ok := s.prefixes.find(prefix)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("prefix %s: %w", prefix, ErrNotFound)
	}

	fx := &effects{}
	s.deletePrefixLocked(idx, fx)
	s.unlock(ctx, fx)
	return nil
}

// deletePrefixLocked unlinks node idx and invalidates the addresses that
// were autoconfigured from it and the destinations it made on-link.
func (s *Stack) deletePrefixLocked(idx int16, fx *effects) {
	prefix := s.prefixes.unlink(idx)
	if s.dests != nil {
		s.dests.InvalidatePrefix(prefix)
	}

	for i := range s.addrs.slots {
		a := &s.addrs.slots[i]
		if a.state == AddressUnknown || a.method != MethodAutoconf {
			continue
		}
		if a.prefix.Bits() == prefix.Bits() && MatchPrefix(a.prefix.Addr(), prefix.Addr(), prefix.Bits()) {
			s.invalidateAddressLocked(i, fx)
		}
	}

	s.logger.Debug("prefix deleted", slog.String("prefix", prefix.String()))
}

// OnLink reports whether addr is on-link: link-local addresses always are,
// then addresses inside an on-link prefix, then addresses inside the
// prefix of a manually configured interface address.
func (s *Stack) OnLink(addr netip.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.onLinkLocked(addr)
}

func (s *Stack) onLinkLocked(addr netip.Addr) bool {
	if Classify(addr).Has(AddrLinkLocal) {
		return true
	}
	return s.prefixes.contains(addr) || s.addrs.onLink(addr)
}

// Prefixes returns the on-link prefixes, longest first.
func (s *Stack) Prefixes() []PrefixEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.prefixes.snapshot()
}
