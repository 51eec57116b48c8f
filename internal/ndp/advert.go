package ndp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// Router Advertisement: RFC 4861 Section 6.3.4
// -------------------------------------------------------------------------

// Router Advertisement flag bits.
const (
	// RAFlagManaged is the M (managed address configuration) flag.
	RAFlagManaged uint8 = 0x80

	// RAFlagOther is the O (other configuration) flag.
	RAFlagOther uint8 = 0x40
)

// slaacPrefixLen is the only prefix length usable for EUI-64 SLAAC
// (RFC 4862 Section 5.5.3(d)).
const slaacPrefixLen = 64

// PrefixInfo is one Prefix Information option (RFC 4861 Section 4.6.2).
type PrefixInfo struct {
	Prefix            netip.Prefix
	OnLink            bool
	Autonomous        bool
	ValidLifetime     uint32
	PreferredLifetime uint32
}

// RouterAdvert is a decoded Router Advertisement.
type RouterAdvert struct {
	// Source is the IPv6 source of the message; it must be link-local.
	Source netip.Addr

	// Destination is the IPv6 destination. A unicast destination marks a
	// solicited advertisement.
	Destination netip.Addr

	// Interface is the receiving interface index.
	Interface int

	HopLimit       uint8
	Flags          uint8
	RouterLifetime uint16

	// ReachableTime and RetransTimer are in milliseconds; zero means
	// unspecified.
	ReachableTime uint32
	RetransTimer  uint32

	// SourceLinkAddr is the Source Link-Layer Address option, if present.
	SourceLinkAddr    LinkAddr
	HasSourceLinkAddr bool

	// MTU is the MTU option value, or zero when absent.
	MTU uint32

	Prefixes []PrefixInfo
}

// ProcessRouterAdvert applies a Router Advertisement: it updates the
// default router list, the protocol timers, the prefix list and the
// router's neighbor entry, and forms SLAAC addresses. Table exhaustion
// while processing options is logged and skipped.
func (s *Stack) ProcessRouterAdvert(ctx context.Context, ra RouterAdvert) error {
	if !Classify(ra.Source).Has(AddrUnicast | AddrLinkLocal) {
		return fmt.Errorf("router advertisement from %s: %w", ra.Source, ErrInvalidAddress)
	}

	s.mu.Lock()
	if _, ok := s.mode.(enabledMode); !ok {
		s.mu.Unlock()
		return ErrDisabled
	}
	st, ok := s.ifaceLocked(ra.Interface)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("interface %d: %w", ra.Interface, ErrInvalidInterface)
	}

	fx := &effects{routerAdvs: 1}
	fx.raFlags = append(fx.raFlags, raFlag{iface: ra.Interface, flags: ra.Flags & (RAFlagManaged | RAFlagOther)})

	if ra.RouterLifetime == 0 {
		if i, found := s.routers.find(ra.Source, ra.Interface); found && s.routers.entries[i].kind != RouterStatic {
			s.deleteRouterLocked(i)
		}
	}

	if ra.RetransTimer != 0 {
		s.retransTicks = ticksOf(time.Duration(ra.RetransTimer)*time.Millisecond, s.cfg.FastTick)
	}
	if ra.ReachableTime != 0 {
		s.reachableTicks = ticksOf(time.Duration(ra.ReachableTime)*time.Millisecond, s.cfg.SlowTick)
	}

	for _, pi := range ra.Prefixes {
		s.processPrefixLocked(st, pi, fx)
	}

	ni, haveNeighbor := s.cache.find(ra.Source)
	if ra.HasSourceLinkAddr {
		ni, haveNeighbor = s.learnRouterLinkAddrLocked(ra, fx)
	}

	if ra.MTU != 0 && s.dests != nil {
		mtu := min(int(ra.MTU), st.mtu())
		s.dests.Add(ra.Source, ra.Source, mtu)
	}

	if ra.RouterLifetime != 0 {
		ri, err := s.addRouterLocked(ra.Source, ra.Interface, ra.RouterLifetime, RouterDynamic)
		if err == nil && haveNeighbor {
			r := &s.routers.entries[ri]
			r.neighbor = s.cache.ref(ni)
			s.cache.entries[ni].router = s.routers.ref(ri)
		}
		if ra.HopLimit != 0 {
			s.hopLimit = ra.HopLimit
		}
	}

	st.rsLeft, st.rsTimer = 0, 0
	s.unlock(ctx, fx)

	s.logger.Debug("router advertisement processed",
		slog.String("router", ra.Source.String()),
		slog.Int("iface", ra.Interface),
		slog.Int("lifetime", int(ra.RouterLifetime)),
		slog.Int("prefixes", len(ra.Prefixes)),
	)
	return nil
}

// processPrefixLocked applies one Prefix Information option
// (RFC 4861 Section 6.3.4, RFC 4862 Section 5.5.3).
func (s *Stack) processPrefixLocked(st *ifaceState, pi PrefixInfo, fx *effects) {
	if !pi.Prefix.IsValid() || Classify(pi.Prefix.Addr()).Has(AddrLinkLocal) {
		return
	}
	if pi.PreferredLifetime > pi.ValidLifetime {
		return
	}
	if !pi.OnLink {
		return
	}

	if pi.ValidLifetime == 0 {
		if idx, ok := s.prefixes.find(pi.Prefix); ok {
			s.deletePrefixLocked(idx, fx)
		}
		return
	}

	_, res, err := s.insertPrefixLocked(pi.Prefix, pi.ValidLifetime)
	if err != nil || res != prefixInserted {
		return
	}

	if !pi.Autonomous || !st.Autoconf || pi.Prefix.Bits() != slaacPrefixLen || st.LinkAddr.IsZero() {
		return
	}
	if s.addrs.hasGlobalWithPrefix(pi.Prefix.Masked()) {
		return
	}

	addr := AutoconfAddr(pi.Prefix, st.LinkAddr)
	if err := s.addAddressLocked(st.Index, netip.PrefixFrom(addr, slaacPrefixLen), MethodAutoconf, AddressTentative, fx); err != nil {
		return
	}
	s.logger.Info("autoconfigured address",
		slog.String("addr", addr.String()),
		slog.Int("iface", st.Index),
	)
}

// learnRouterLinkAddrLocked records the advertised link address of the
// router. A new neighbor is created Stale; an existing one only moves to
// Stale when its link address changed. Static entries are left alone.
func (s *Stack) learnRouterLinkAddrLocked(ra RouterAdvert, fx *effects) (int, bool) {
	i, err := s.findOrCreateLocked(ra.Source, ra.Interface, netip.Addr{}, fx)
	if err != nil {
		return 0, false
	}

	e := &s.cache.entries[i]
	if e.static {
		return i, true
	}
	if e.state == StateCreated || e.linkAddr != ra.SourceLinkAddr {
		e.linkAddr = ra.SourceLinkAddr
		e.iface = ra.Interface
		s.runActionsLocked(i, ApplyEvent(e.state, EventUnconfirmedUpdate), fx)
	}
	s.flushQueueLocked(i, fx)
	return i, true
}

// -------------------------------------------------------------------------
// Neighbor Advertisement: RFC 4861 Section 7.2.5
// -------------------------------------------------------------------------

// NeighborAdvert is a decoded Neighbor Advertisement.
type NeighborAdvert struct {
	Source    netip.Addr
	Target    netip.Addr
	Interface int

	Router    bool
	Solicited bool
	Override  bool

	// TargetLinkAddr is the Target Link-Layer Address option, if present.
	TargetLinkAddr    LinkAddr
	HasTargetLinkAddr bool
}

// ProcessNeighborAdvert applies a Neighbor Advertisement to the cached
// entry for its target. Advertisements for uncached targets and for
// static entries are ignored.
func (s *Stack) ProcessNeighborAdvert(ctx context.Context, na NeighborAdvert) error {
	s.mu.Lock()
	if _, ok := s.mode.(enabledMode); !ok {
		s.mu.Unlock()
		return ErrDisabled
	}

	i, ok := s.cache.find(na.Target)
	if !ok || s.cache.entries[i].static {
		s.mu.Unlock()
		return nil
	}

	fx := &effects{}
	e := &s.cache.entries[i]

	if e.state == StateIncomplete || e.state == StateCreated {
		if !na.HasTargetLinkAddr {
			s.mu.Unlock()
			return nil
		}
		e.linkAddr = na.TargetLinkAddr
		ev := EventUnconfirmedUpdate
		if na.Solicited {
			ev = EventConfirm
		}
		s.runActionsLocked(i, ApplyEvent(e.state, ev), fx)
	} else {
		differ := na.HasTargetLinkAddr && na.TargetLinkAddr != e.linkAddr
		switch {
		case differ && !na.Override:
			s.runActionsLocked(i, ApplyEvent(e.state, EventConflict), fx)
		case na.Solicited:
			if na.HasTargetLinkAddr {
				e.linkAddr = na.TargetLinkAddr
			}
			s.runActionsLocked(i, ApplyEvent(e.state, EventConfirm), fx)
		case differ:
			e.linkAddr = na.TargetLinkAddr
			s.runActionsLocked(i, ApplyEvent(e.state, EventUnconfirmedUpdate), fx)
		}
	}

	if !na.Router {
		if ri, linked := s.routers.resolve(e.router); linked && s.routers.entries[ri].kind != RouterStatic {
			s.logger.Debug("neighbor is no longer a router",
				slog.String("addr", na.Target.String()),
			)
			s.deleteRouterLocked(ri)
		}
	}

	s.flushQueueLocked(i, fx)
	s.unlock(ctx, fx)
	return nil
}
