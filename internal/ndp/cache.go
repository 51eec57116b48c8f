package ndp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
)

// -------------------------------------------------------------------------
// Neighbor cache operations
// -------------------------------------------------------------------------

// NeighborSpec describes a neighbor to add or update.
type NeighborSpec struct {
	// Addr is the neighbor's unicast IPv6 address.
	Addr netip.Addr

	// Interface is the outgoing interface index.
	Interface int

	// LinkAddr is the neighbor's link address. Required for resolved
	// states (Reachable, Stale, Delay, Probe).
	LinkAddr LinkAddr

	// Static entries never age and are never evicted.
	Static bool

	// State is the state to enter. The zero value means Reachable.
	State NeighborState

	// Source is the local address used when soliciting the neighbor.
	// When invalid the Stack picks one from the interface addresses.
	Source netip.Addr
}

// FindNeighbor returns a snapshot of the entry for addr.
func (s *Stack) FindNeighbor(addr netip.Addr) (NeighborEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.cache.find(addr)
	if !ok {
		return NeighborEntry{}, ErrNotFound
	}
	return s.cache.entries[i].snapshot(), nil
}

// Neighbors returns a snapshot of every live entry in slot order.
func (s *Stack) Neighbors() []NeighborEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []NeighborEntry
	for i := range s.cache.entries {
		e := &s.cache.entries[i]
		if e.state != StateInvalid && e.state != StateCreated {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// AddNeighbor creates or updates a neighbor entry (RFC 4861 Section 7.3.3).
// An entry that is already Reachable with the same link address and the
// same static flag is left untouched, timer included. Static entries are
// forced into the requested state. Dynamic entries reload their timer only
// when the state actually changes. Packets queued on the entry are sent
// once it is resolved.
func (s *Stack) AddNeighbor(ctx context.Context, spec NeighborSpec) (NeighborEntry, error) {
	if !Classify(spec.Addr).Has(AddrUnicast) {
		return NeighborEntry{}, fmt.Errorf("neighbor %s: %w", spec.Addr, ErrInvalidAddress)
	}
	if spec.State == StateInvalid {
		spec.State = StateReachable
	}
	if spec.State == StateCreated {
		return NeighborEntry{}, fmt.Errorf("neighbor %s state %s: %w", spec.Addr, spec.State, ErrInvalidState)
	}
	if spec.State.Resolved() && spec.LinkAddr.IsZero() {
		return NeighborEntry{}, fmt.Errorf("neighbor %s: missing link address: %w", spec.Addr, ErrInvalidAddress)
	}

	s.mu.Lock()
	if _, ok := s.ifaceLocked(spec.Interface); !ok {
		s.mu.Unlock()
		return NeighborEntry{}, fmt.Errorf("interface %d: %w", spec.Interface, ErrInvalidInterface)
	}

	fx := &effects{}
	i, err := s.addNeighborLocked(spec, fx)
	if err != nil {
		s.unlock(ctx, fx)
		return NeighborEntry{}, err
	}
	out := s.cache.entries[i].snapshot()
	s.unlock(ctx, fx)
	return out, nil
}

func (s *Stack) addNeighborLocked(spec NeighborSpec, fx *effects) (int, error) {
	i, err := s.findOrCreateLocked(spec.Addr, spec.Interface, spec.Source, fx)
	if err != nil {
		return 0, err
	}
	e := &s.cache.entries[i]

	if e.state == StateReachable && e.linkAddr == spec.LinkAddr && e.static == spec.Static {
		return i, nil
	}

	e.static = spec.Static
	e.iface = spec.Interface
	e.linkAddr = spec.LinkAddr
	if spec.State != e.state {
		s.setStateLocked(i, spec.State, fx)
		switch spec.State {
		case StateReachable:
			e.expiresIn = s.reachableTicks
		case StateDelay:
			e.expiresIn = s.delayTicks
		case StateIncomplete:
			e.solicitsLeft = s.cfg.MaxMulticastSolicit
			e.retransTicks = s.retransTicks
		case StateProbe:
			e.solicitsLeft = s.cfg.MaxUnicastSolicit
			e.retransTicks = s.retransTicks
		}
	}

	s.flushQueueLocked(i, fx)
	return i, nil
}

// DeleteNeighbor removes the entry for addr, releasing its queued packets.
func (s *Stack) DeleteNeighbor(ctx context.Context, addr netip.Addr) error {
	s.mu.Lock()
	i, ok := s.cache.find(addr)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("neighbor %s: %w", addr, ErrNotFound)
	}

	fx := &effects{}
	s.deleteNeighborLocked(i, fx)
	s.unlock(ctx, fx)
	return nil
}

// InvalidateNeighbors deletes every entry, static ones included, and
// returns how many were removed.
func (s *Stack) InvalidateNeighbors(ctx context.Context) int {
	return s.flushNeighbors(ctx, true)
}

// FlushNeighbors deletes every dynamic entry and returns how many were
// removed. Static entries are kept.
func (s *Stack) FlushNeighbors(ctx context.Context) int {
	return s.flushNeighbors(ctx, false)
}

func (s *Stack) flushNeighbors(ctx context.Context, includeStatic bool) int {
	s.mu.Lock()
	fx := &effects{}
	n := 0
	for i := range s.cache.entries {
		e := &s.cache.entries[i]
		if e.state == StateInvalid || (e.static && !includeStatic) {
			continue
		}
		s.deleteNeighborLocked(i, fx)
		n++
	}
	s.unlock(ctx, fx)

	if n > 0 {
		s.logger.Info("neighbor cache flushed",
			slog.Int("count", n),
			slog.Bool("static", includeStatic),
		)
	}
	return n
}

// -------------------------------------------------------------------------
// Locked helpers
// -------------------------------------------------------------------------

// findOrCreateLocked returns the slot for addr, claiming (and if needed
// evicting) one when the address is not cached.
func (s *Stack) findOrCreateLocked(addr netip.Addr, iface int, source netip.Addr, fx *effects) (int, error) {
	if i, ok := s.cache.find(addr); ok {
		return i, nil
	}

	i, victim, err := s.cache.selectSlot(addr)
	if err != nil {
		s.logger.Warn("neighbor cache full",
			slog.String("addr", addr.String()),
			slog.Int("size", len(s.cache.entries)),
		)
		return 0, fmt.Errorf("neighbor %s: %w", addr, err)
	}

	if victim {
		v := &s.cache.entries[i]
		s.logger.Debug("evicting neighbor",
			slog.String("victim", v.addr.String()),
			slog.String("state", v.state.String()),
			slog.String("for", addr.String()),
		)
		fx.evictions++
		s.deleteNeighborLocked(i, fx)
	}

	s.cache.claim(i, addr, iface, source)
	return i, nil
}

// deleteNeighborLocked tears down slot i: queued packets are released,
// the router link is severed on both sides, destination cache rows using
// the neighbor are invalidated and the slot returns to Invalid.
func (s *Stack) deleteNeighborLocked(i int, fx *effects) {
	e := &s.cache.entries[i]

	fx.releases = e.queue.drain(fx.releases)

	if ri, ok := s.routers.resolve(e.router); ok {
		s.routers.entries[ri].neighbor = NeighborRef{}
	}
	e.router = RouterRef{}

	if s.dests != nil {
		s.dests.InvalidateNextHop(e.addr)
	}

	s.setStateLocked(i, StateInvalid, fx)
	e.linkAddr = LinkAddr{}
	e.static = false
	e.addr = netip.Addr{}
	e.source = netip.Addr{}
	e.iface = 0
}

// setStateLocked moves slot i to st and records the transition. A new
// entry is reported as leaving Invalid; one torn down before leaving
// Created is not reported at all.
func (s *Stack) setStateLocked(i int, st NeighborState, fx *effects) {
	e := &s.cache.entries[i]
	old := e.state
	if old == st {
		return
	}
	e.setState(st)

	if old == StateCreated {
		if st == StateInvalid {
			return
		}
		old = StateInvalid
	}
	fx.transitions = append(fx.transitions, NeighborEvent{
		Addr:      e.addr,
		Interface: e.iface,
		LinkAddr:  e.linkAddr,
		OldState:  old,
		NewState:  st,
	})
}

// solicitLocked queues a Neighbor Solicitation for slot i, spends one
// unit of its budget and reloads the retransmit timer.
func (s *Stack) solicitLocked(i int, unicast bool, fx *effects) {
	e := &s.cache.entries[i]

	src := e.source
	if !src.IsValid() {
		src = s.addrs.sourceFor(e.iface, e.addr)
	}

	fx.solicits = append(fx.solicits, Solicitation{
		Target:    e.addr,
		Source:    src,
		Interface: e.iface,
		Unicast:   unicast,
		LinkAddr:  e.linkAddr,
	})
	if e.solicitsLeft > 0 {
		e.solicitsLeft--
	}
	e.retransTicks = s.retransTicks
}

// flushQueueLocked hands every packet queued on a resolved slot to the
// transmitter.
func (s *Stack) flushQueueLocked(i int, fx *effects) {
	e := &s.cache.entries[i]
	if !e.state.Resolved() || e.linkAddr.IsZero() || e.queue.len() == 0 {
		return
	}

	var pkts []Packet
	pkts = e.queue.drain(pkts)
	for _, p := range pkts {
		fx.transmits = append(fx.transmits, transmission{iface: e.iface, dst: e.linkAddr, pkt: p})
	}
}

// runActionsLocked applies a state machine result to slot i and executes
// the actions that do not involve the triggering packet.
func (s *Stack) runActionsLocked(i int, res FSMResult, fx *effects) {
	e := &s.cache.entries[i]

	if slices.Contains(res.Actions, ActionDelete) {
		s.logger.Debug("neighbor unreachable",
			slog.String("addr", e.addr.String()),
			slog.Int("iface", e.iface),
		)
		fx.unreachable++
		s.deleteNeighborLocked(i, fx)
		return
	}

	s.setStateLocked(i, res.NewState, fx)
	for _, a := range res.Actions {
		switch a {
		case ActionSendMulticastSolicit:
			s.solicitLocked(i, false, fx)
		case ActionSendUnicastSolicit:
			s.solicitLocked(i, true, fx)
		case ActionArmDelay:
			e.expiresIn = s.delayTicks
		case ActionArmProbe:
			e.solicitsLeft = s.cfg.MaxUnicastSolicit
			e.retransTicks = 0
		case ActionArmReachable:
			e.expiresIn = s.reachableTicks
		case ActionFlushQueue:
			s.flushQueueLocked(i, fx)
		case ActionQueuePacket, ActionTransmit, ActionDelete:
			// The send path owns the packet; Delete returned above.
		}
	}
}

// linkRouterLocked cross-links slot i with the router entry for the same
// address on the same interface, if one exists and is not linked yet.
func (s *Stack) linkRouterLocked(i int) {
	e := &s.cache.entries[i]
	ri, ok := s.routers.find(e.addr, e.iface)
	if !ok {
		return
	}
	r := &s.routers.entries[ri]
	if _, linked := s.cache.resolve(r.neighbor); linked {
		return
	}
	r.neighbor = s.cache.ref(i)
	e.router = s.routers.ref(ri)
}

// -------------------------------------------------------------------------
// Send path: RFC 4861 Section 7.2.2
// -------------------------------------------------------------------------

// Resolve looks up the link address of nextHop. When the neighbor is
// resolved it returns the link address and true; a Stale neighbor moves to
// Delay. Otherwise pkt is queued on the entry, a multicast solicitation is
// sent if none is outstanding, and Resolve returns false. Multicast next
// hops map directly to their link address. On error pkt is released.
func (s *Stack) Resolve(ctx context.Context, nextHop netip.Addr, iface int, src netip.Addr, pkt Packet) (LinkAddr, bool, error) {
	t := Classify(nextHop)
	if t.Has(AddrMulticast) {
		return MulticastLinkAddr(nextHop), true, nil
	}
	if !t.Has(AddrUnicast) {
		releasePacket(pkt)
		return LinkAddr{}, false, fmt.Errorf("next hop %s: %w", nextHop, ErrInvalidAddress)
	}

	s.mu.Lock()
	if _, ok := s.mode.(enabledMode); !ok {
		s.mu.Unlock()
		releasePacket(pkt)
		return LinkAddr{}, false, ErrDisabled
	}
	if _, ok := s.ifaceLocked(iface); !ok {
		s.mu.Unlock()
		releasePacket(pkt)
		return LinkAddr{}, false, fmt.Errorf("interface %d: %w", iface, ErrInvalidInterface)
	}

	fx := &effects{}
	i, err := s.findOrCreateLocked(nextHop, iface, src, fx)
	if err != nil {
		s.unlock(ctx, fx)
		releasePacket(pkt)
		return LinkAddr{}, false, err
	}
	s.linkRouterLocked(i)

	e := &s.cache.entries[i]

	// An Incomplete entry with nothing queued has no solicitation in
	// flight for this send; restart resolution with a fresh budget.
	reissue := e.state == StateIncomplete && e.queue.len() == 0
	if e.state == StateCreated || reissue {
		e.solicitsLeft = s.cfg.MaxMulticastSolicit
	}

	res := ApplyEvent(e.state, EventSend)

	var (
		la       LinkAddr
		resolved bool
	)
	for _, a := range res.Actions {
		switch a {
		case ActionQueuePacket:
			if pkt == nil {
				continue
			}
			if dropped := e.queue.push(pkt); dropped != nil {
				fx.releases = append(fx.releases, dropped)
				fx.queueDrops++
				s.logger.Warn("resolution queue overflow, dropping oldest packet",
					slog.String("addr", e.addr.String()),
				)
			}
		case ActionTransmit:
			la, resolved = e.linkAddr, true
		}
	}

	s.runActionsLocked(i, res, fx)
	if reissue {
		s.solicitLocked(i, false, fx)
	}
	s.unlock(ctx, fx)

	return la, resolved, nil
}

// NextHop selects the next hop for dst on iface: a cached destination,
// else dst itself when it is on-link, else a default router.
func (s *Stack) NextHop(dst netip.Addr, iface int) (netip.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dests != nil {
		if nh, ok := s.dests.Lookup(dst); ok {
			return nh, nil
		}
	}

	var nh netip.Addr
	switch {
	case Classify(dst).Has(AddrMulticast) || s.onLinkLocked(dst):
		nh = dst
	default:
		addr, _, ok := s.lookupReachableLocked(iface)
		if !ok {
			return netip.Addr{}, fmt.Errorf("destination %s: %w", dst, ErrUnreachable)
		}
		nh = addr
	}

	if s.dests != nil {
		mtu := defaultMTU
		if st, ok := s.ifaceLocked(iface); ok {
			mtu = st.mtu()
		}
		s.dests.Add(dst, nh, mtu)
	}
	return nh, nil
}

// Send routes pkt toward dst: it picks the next hop, resolves it and
// transmits the packet, or leaves it queued until resolution completes.
func (s *Stack) Send(ctx context.Context, dst netip.Addr, iface int, src netip.Addr, pkt Packet) error {
	nh, err := s.NextHop(dst, iface)
	if err != nil {
		releasePacket(pkt)
		return err
	}

	la, ok, err := s.Resolve(ctx, nh, iface, src, pkt)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	en, enabled := s.mode.(enabledMode)
	s.mu.Unlock()
	if !enabled || en.tx == nil {
		releasePacket(pkt)
		return ErrDisabled
	}
	return en.tx.Transmit(ctx, iface, la, pkt)
}

func releasePacket(p Packet) {
	if p != nil {
		p.Release()
	}
}
