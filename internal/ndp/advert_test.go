package ndp_test

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// Test Helpers: destination cache
// -------------------------------------------------------------------------

// fakeDests is a map-backed DestinationCache.
type fakeDests struct {
	mu   sync.Mutex
	hops map[netip.Addr]netip.Addr
	mtus map[netip.Addr]int
}

func newFakeDests() *fakeDests {
	return &fakeDests{hops: make(map[netip.Addr]netip.Addr), mtus: make(map[netip.Addr]int)}
}

func (d *fakeDests) Lookup(dst netip.Addr) (netip.Addr, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nh, ok := d.hops[dst]
	return nh, ok
}

func (d *fakeDests) Add(dst, nextHop netip.Addr, mtu int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hops[dst] = nextHop
	d.mtus[dst] = mtu
}

func (d *fakeDests) InvalidateNextHop(nextHop netip.Addr) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for dst, nh := range d.hops {
		if nh == nextHop {
			delete(d.hops, dst)
			n++
		}
	}
	return n
}

func (d *fakeDests) InvalidatePrefix(prefix netip.Prefix) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for dst, nh := range d.hops {
		if prefix.Contains(nh) {
			delete(d.hops, dst)
			n++
		}
	}
	return n
}

func (d *fakeDests) mtu(dst netip.Addr) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtus[dst]
}

var (
	routerLL = netip.MustParseAddr("fe80::1")
	allNodes = netip.MustParseAddr("ff02::1")
)

func baseAdvert() ndp.RouterAdvert {
	return ndp.RouterAdvert{
		Source:         routerLL,
		Destination:    allNodes,
		Interface:      testIface,
		RouterLifetime: 1800,
	}
}

// -------------------------------------------------------------------------
// Router Advertisement
// -------------------------------------------------------------------------

// TestRouterAdvertSLAAC verifies that an autonomous /64 prefix forms a
// Tentative EUI-64 address and joins its solicited-node group.
func TestRouterAdvertSLAAC(t *testing.T) {
	t.Parallel()

	var changes []ndp.AddressChange
	s, rec := newTestStack(t, testConfig(), ndp.WithAddressChangeFunc(func(c ndp.AddressChange) {
		changes = append(changes, c)
	}))
	ctx := context.Background()

	prefix := netip.MustParsePrefix("2001:db8:1::/64")
	ra := baseAdvert()
	ra.Prefixes = []ndp.PrefixInfo{{
		Prefix:            prefix,
		OnLink:            true,
		Autonomous:        true,
		ValidLifetime:     3600,
		PreferredLifetime: 1800,
	}}

	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	want := ndp.AutoconfAddr(prefix, testLinkAddr)
	if want != netip.MustParseAddr("2001:db8:1::ff:fe00:1") {
		t.Fatalf("AutoconfAddr = %s", want)
	}

	addrs := s.Addresses()
	if len(addrs) != 1 {
		t.Fatalf("addresses = %+v, want one", addrs)
	}
	if addrs[0].Prefix != netip.PrefixFrom(want, 64) || addrs[0].State != ndp.AddressTentative || addrs[0].Method != ndp.MethodAutoconf {
		t.Errorf("address = %+v, want %s/64 Tentative autoconf", addrs[0], want)
	}

	joins, _ := rec.groups()
	if !slices.Contains(joins, ndp.SolicitedNodeMulticast(want)) {
		t.Errorf("joins = %v, want solicited-node group of %s", joins, want)
	}
	if len(changes) != 1 || changes[0].State != ndp.AddressTentative {
		t.Errorf("changes = %+v, want one Tentative", changes)
	}

	// The daemon promotes the address once DAD completes; a repeated
	// advertisement must not form a second address.
	if err := s.SetAddressState(ctx, want, ndp.AddressPreferred); err != nil {
		t.Fatalf("SetAddressState: %v", err)
	}
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("second ProcessRouterAdvert: %v", err)
	}
	if got := s.Addresses(); len(got) != 1 || got[0].State != ndp.AddressPreferred {
		t.Errorf("addresses after refresh = %+v, want one Preferred", got)
	}
	if got := s.Prefixes(); len(got) != 1 || got[0].ValidLifetime != 3600 {
		t.Errorf("prefixes = %+v, want one with lifetime 3600", got)
	}
}

// TestRouterAdvertPrefixFiltering verifies which prefix options are
// ignored (RFC 4861 Section 6.3.4, RFC 4862 Section 5.5.3).
func TestRouterAdvertPrefixFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pi         ndp.PrefixInfo
		autoconf   bool
		wantPrefix bool
		wantAddr   bool
	}{
		{
			name:       "autonomous /64",
			pi:         ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/64"), OnLink: true, Autonomous: true, ValidLifetime: 60, PreferredLifetime: 30},
			autoconf:   true,
			wantPrefix: true,
			wantAddr:   true,
		},
		{
			name:       "on-link only",
			pi:         ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/64"), OnLink: true, ValidLifetime: 60},
			autoconf:   true,
			wantPrefix: true,
		},
		{
			name:       "interface autoconf off",
			pi:         ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/64"), OnLink: true, Autonomous: true, ValidLifetime: 60},
			wantPrefix: true,
		},
		{
			name:       "not /64",
			pi:         ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/56"), OnLink: true, Autonomous: true, ValidLifetime: 60},
			autoconf:   true,
			wantPrefix: true,
		},
		{
			name:     "not on-link",
			pi:       ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/64"), Autonomous: true, ValidLifetime: 60},
			autoconf: true,
		},
		{
			name:     "link-local prefix",
			pi:       ndp.PrefixInfo{Prefix: netip.MustParsePrefix("fe80::/64"), OnLink: true, Autonomous: true, ValidLifetime: 60},
			autoconf: true,
		},
		{
			name:     "preferred above valid",
			pi:       ndp.PrefixInfo{Prefix: netip.MustParsePrefix("2001:db8:1::/64"), OnLink: true, Autonomous: true, ValidLifetime: 60, PreferredLifetime: 120},
			autoconf: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestStack(t, testConfig())
			if !tt.autoconf {
				// Register a second interface without autoconf.
				if err := s.AddInterface(ndp.Interface{Index: 2, Name: "eth1", LinkAddr: macA}); err != nil {
					t.Fatalf("AddInterface: %v", err)
				}
			}
			ra := baseAdvert()
			if !tt.autoconf {
				ra.Interface = 2
			}
			ra.Prefixes = []ndp.PrefixInfo{tt.pi}

			if err := s.ProcessRouterAdvert(context.Background(), ra); err != nil {
				t.Fatalf("ProcessRouterAdvert: %v", err)
			}
			if got := len(s.Prefixes()) == 1; got != tt.wantPrefix {
				t.Errorf("prefix present = %v, want %v", got, tt.wantPrefix)
			}
			if got := len(s.Addresses()) == 1; got != tt.wantAddr {
				t.Errorf("address formed = %v, want %v", got, tt.wantAddr)
			}
		})
	}
}

// TestRouterAdvertZeroValidDeletesPrefix verifies that a zero valid
// lifetime removes the prefix and its autoconfigured address.
func TestRouterAdvertZeroValidDeletesPrefix(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	pi := ndp.PrefixInfo{
		Prefix:        netip.MustParsePrefix("2001:db8:1::/64"),
		OnLink:        true,
		Autonomous:    true,
		ValidLifetime: 3600,
	}
	ra := baseAdvert()
	ra.Prefixes = []ndp.PrefixInfo{pi}
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	ra.Prefixes[0].ValidLifetime = 0
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := s.Prefixes(); len(got) != 0 {
		t.Errorf("prefixes = %+v, want none", got)
	}
	if got := s.Addresses(); len(got) != 0 {
		t.Errorf("addresses = %+v, want none", got)
	}
}

// TestRouterAdvertTimers verifies that advertised ReachableTime and
// RetransTimer replace the configured values.
func TestRouterAdvertTimers(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	ctx := context.Background()

	ra := baseAdvert()
	ra.ReachableTime = 10000
	ra.RetransTimer = 300
	ra.HopLimit = 64
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := s.HopLimit(); got != 64 {
		t.Errorf("HopLimit = %d, want 64", got)
	}

	e := addNeighbor(t, s, "fe80::10", macA, ndp.StateReachable)
	if e.ExpiresIn != 10 {
		t.Errorf("ExpiresIn = %d, want 10", e.ExpiresIn)
	}

	// A new resolution solicits immediately, then every 3 fast ticks.
	if _, _, err := s.Resolve(ctx, netip.MustParseAddr("fe80::20"), testIface, netip.Addr{}, &testPacket{id: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := len(rec.solicits()); got != 1 {
		t.Fatalf("solicits after resolve = %d, want 1", got)
	}
	fastTicks(s, 2)
	if got := len(rec.solicits()); got != 1 {
		t.Fatalf("solicits after 2 fast ticks = %d, want 1", got)
	}
	fastTicks(s, 1)
	if got := len(rec.solicits()); got != 2 {
		t.Errorf("solicits after 3 fast ticks = %d, want 2", got)
	}
}

func TestRouterAdvertZeroLifetimeDeletesRouter(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	if err := s.ProcessRouterAdvert(ctx, baseAdvert()); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := s.Routers(); len(got) != 1 || got[0].Kind != ndp.RouterDynamic || got[0].Lifetime != 1800 {
		t.Fatalf("routers = %+v, want one dynamic with lifetime 1800", got)
	}

	ra := baseAdvert()
	ra.RouterLifetime = 0
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := s.Routers(); len(got) != 0 {
		t.Errorf("routers = %+v, want none", got)
	}
}

func TestRouterAdvertRejected(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	ra := baseAdvert()
	ra.Source = netip.MustParseAddr("2001:db8::1")
	if err := s.ProcessRouterAdvert(ctx, ra); !errors.Is(err, ndp.ErrInvalidAddress) {
		t.Errorf("global source: err = %v, want ErrInvalidAddress", err)
	}

	ra = baseAdvert()
	ra.Interface = 9
	if err := s.ProcessRouterAdvert(ctx, ra); !errors.Is(err, ndp.ErrInvalidInterface) {
		t.Errorf("unknown interface: err = %v, want ErrInvalidInterface", err)
	}

	s.Disable()
	if err := s.ProcessRouterAdvert(ctx, baseAdvert()); !errors.Is(err, ndp.ErrDisabled) {
		t.Errorf("disabled: err = %v, want ErrDisabled", err)
	}
	if got := s.Routers(); len(got) != 0 {
		t.Errorf("routers = %+v, want none", got)
	}
}

// TestRouterAdvertFlags verifies that only the M and O bits reach the
// flag callback.
func TestRouterAdvertFlags(t *testing.T) {
	t.Parallel()

	type call struct {
		iface int
		flags uint8
	}
	var calls []call
	s, _ := newTestStack(t, testConfig(), ndp.WithRAFlagFunc(func(iface int, flags uint8) {
		calls = append(calls, call{iface, flags})
	}))

	ra := baseAdvert()
	ra.Flags = ndp.RAFlagManaged | ndp.RAFlagOther | 0x08
	if err := s.ProcessRouterAdvert(context.Background(), ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	want := []call{{testIface, ndp.RAFlagManaged | ndp.RAFlagOther}}
	if !slices.Equal(calls, want) {
		t.Errorf("flag calls = %+v, want %+v", calls, want)
	}
}

// TestRouterAdvertSourceLinkAddr verifies that the SLLA option creates a
// Stale entry and that an unchanged SLLA leaves a Reachable entry alone.
func TestRouterAdvertSourceLinkAddr(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	ra := baseAdvert()
	ra.SourceLinkAddr = macA
	ra.HasSourceLinkAddr = true
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	e := mustFind(t, s, "fe80::1")
	if e.State != ndp.StateStale || e.LinkAddr != macA || !e.IsRouter {
		t.Fatalf("entry = %+v, want Stale router with macA", e)
	}

	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::1"); e.State != ndp.StateReachable {
		t.Errorf("state = %s, want Reachable", e.State)
	}

	ra.SourceLinkAddr = macB
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::1"); e.State != ndp.StateStale || e.LinkAddr != macB {
		t.Errorf("entry = %+v, want Stale with macB", e)
	}
}

// TestRouterAdvertMTU verifies the MTU option is clamped to the link MTU.
func TestRouterAdvertMTU(t *testing.T) {
	t.Parallel()

	dests := newFakeDests()
	s, _ := newTestStack(t, testConfig(), ndp.WithDestinationCache(dests))

	ra := baseAdvert()
	ra.MTU = 9000
	if err := s.ProcessRouterAdvert(context.Background(), ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := dests.mtu(routerLL); got != 1500 {
		t.Errorf("mtu = %d, want 1500", got)
	}

	ra.MTU = 1280
	if err := s.ProcessRouterAdvert(context.Background(), ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	if got := dests.mtu(routerLL); got != 1280 {
		t.Errorf("mtu = %d, want 1280", got)
	}
}

// -------------------------------------------------------------------------
// Neighbor Advertisement
// -------------------------------------------------------------------------

// TestNeighborAdvert verifies RFC 4861 Section 7.2.5 processing against
// an existing entry.
func TestNeighborAdvert(t *testing.T) {
	t.Parallel()

	target := "fe80::10"

	tests := []struct {
		name      string
		initial   ndp.NeighborState
		na        ndp.NeighborAdvert
		wantState ndp.NeighborState
		wantLink  ndp.LinkAddr
	}{
		{
			name:      "unsolicited differing without override is a conflict",
			initial:   ndp.StateReachable,
			na:        ndp.NeighborAdvert{TargetLinkAddr: macB, HasTargetLinkAddr: true},
			wantState: ndp.StateStale,
			wantLink:  macA,
		},
		{
			name:      "unsolicited differing with override",
			initial:   ndp.StateReachable,
			na:        ndp.NeighborAdvert{Override: true, TargetLinkAddr: macB, HasTargetLinkAddr: true},
			wantState: ndp.StateStale,
			wantLink:  macB,
		},
		{
			name:      "solicited same address confirms",
			initial:   ndp.StateStale,
			na:        ndp.NeighborAdvert{Solicited: true, TargetLinkAddr: macA, HasTargetLinkAddr: true},
			wantState: ndp.StateReachable,
			wantLink:  macA,
		},
		{
			name:      "solicited without option confirms",
			initial:   ndp.StateProbe,
			na:        ndp.NeighborAdvert{Solicited: true},
			wantState: ndp.StateReachable,
			wantLink:  macA,
		},
		{
			name:      "solicited override updates",
			initial:   ndp.StateDelay,
			na:        ndp.NeighborAdvert{Solicited: true, Override: true, TargetLinkAddr: macB, HasTargetLinkAddr: true},
			wantState: ndp.StateReachable,
			wantLink:  macB,
		},
		{
			name:      "solicited differing without override on stale",
			initial:   ndp.StateStale,
			na:        ndp.NeighborAdvert{Solicited: true, TargetLinkAddr: macB, HasTargetLinkAddr: true},
			wantState: ndp.StateStale,
			wantLink:  macA,
		},
		{
			name:      "unsolicited same address is ignored",
			initial:   ndp.StateReachable,
			na:        ndp.NeighborAdvert{TargetLinkAddr: macA, HasTargetLinkAddr: true},
			wantState: ndp.StateReachable,
			wantLink:  macA,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestStack(t, testConfig())
			addNeighbor(t, s, target, macA, tt.initial)

			na := tt.na
			na.Target = netip.MustParseAddr(target)
			na.Source = na.Target
			na.Interface = testIface
			if err := s.ProcessNeighborAdvert(context.Background(), na); err != nil {
				t.Fatalf("ProcessNeighborAdvert: %v", err)
			}

			e := mustFind(t, s, target)
			if e.State != tt.wantState || e.LinkAddr != tt.wantLink {
				t.Errorf("entry = %s %s, want %s %s", e.State, e.LinkAddr, tt.wantState, tt.wantLink)
			}
		})
	}
}

// TestNeighborAdvertIncomplete verifies resolution of a pending entry and
// the flush of its queue.
func TestNeighborAdvertIncomplete(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	ctx := context.Background()
	target := netip.MustParseAddr("fe80::10")

	pkt := &testPacket{id: 1}
	if _, ok, err := s.Resolve(ctx, target, testIface, netip.Addr{}, pkt); err != nil || ok {
		t.Fatalf("Resolve = ok %v, err %v; want queued", ok, err)
	}

	// No target link-layer option: nothing to learn.
	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{Target: target, Interface: testIface, Solicited: true}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::10"); e.State != ndp.StateIncomplete {
		t.Fatalf("state = %s, want Incomplete", e.State)
	}

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: target, Interface: testIface, Solicited: true,
		TargetLinkAddr: macA, HasTargetLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}

	e := mustFind(t, s, "fe80::10")
	if e.State != ndp.StateReachable || e.LinkAddr != macA || e.Queued != 0 {
		t.Errorf("entry = %+v, want Reachable macA with empty queue", e)
	}
	tx := rec.transmitted()
	if len(tx) != 1 || tx[0].pkt != pkt || tx[0].dst != macA {
		t.Errorf("transmitted = %+v, want the queued packet to macA", tx)
	}
}

func TestNeighborAdvertUnsolicitedIncomplete(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()
	target := netip.MustParseAddr("fe80::10")

	if _, _, err := s.Resolve(ctx, target, testIface, netip.Addr{}, &testPacket{id: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: target, Interface: testIface, TargetLinkAddr: macA, HasTargetLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::10"); e.State != ndp.StateStale || e.LinkAddr != macA {
		t.Errorf("entry = %+v, want Stale macA", e)
	}
}

// TestNeighborAdvertIgnored verifies that advertisements for unknown
// targets and static entries change nothing.
func TestNeighborAdvertIgnored(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: netip.MustParseAddr("fe80::99"), Interface: testIface,
		Solicited: true, TargetLinkAddr: macA, HasTargetLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::99")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("unknown target created an entry: err = %v", err)
	}

	if _, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::11"), Interface: testIface, LinkAddr: macA, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}
	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: netip.MustParseAddr("fe80::11"), Interface: testIface,
		Override: true, TargetLinkAddr: macB, HasTargetLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::11"); e.LinkAddr != macA || e.State != ndp.StateReachable {
		t.Errorf("static entry changed: %+v", e)
	}
}

// TestNeighborAdvertRouterFlagCleared verifies that an advertisement
// without the Router flag removes the router the neighbor backed.
func TestNeighborAdvertRouterFlagCleared(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	ra := baseAdvert()
	ra.SourceLinkAddr = macA
	ra.HasSourceLinkAddr = true
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	// Still a router: nothing changes.
	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: routerLL, Interface: testIface, Router: true, Solicited: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if got := s.Routers(); len(got) != 1 || got[0].NeighborState != ndp.StateReachable {
		t.Fatalf("routers = %+v, want one Reachable", got)
	}

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: routerLL, Interface: testIface, Solicited: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if got := s.Routers(); len(got) != 0 {
		t.Errorf("routers = %+v, want none", got)
	}
	if e := mustFind(t, s, "fe80::1"); e.IsRouter {
		t.Error("neighbor still marked as router")
	}
}

// TestAdvertsKeepStaticRouter verifies that advertisements neither shorten
// nor remove a configured router.
func TestAdvertsKeepStaticRouter(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	if _, err := s.AddRouter(routerLL, testIface, ndp.InfiniteRouterLifetime, ndp.RouterStatic); err != nil {
		t.Fatalf("AddRouter: %v", err)
	}
	wantStatic := func(step string) {
		t.Helper()
		got := s.Routers()
		if len(got) != 1 || got[0].Kind != ndp.RouterStatic || got[0].Lifetime != ndp.InfiniteRouterLifetime {
			t.Fatalf("%s: routers = %+v, want one static infinite router", step, got)
		}
	}

	ra := baseAdvert()
	ra.SourceLinkAddr = macA
	ra.HasSourceLinkAddr = true
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	wantStatic("refresh")

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target: routerLL, Interface: testIface, Solicited: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	wantStatic("router flag cleared")

	ra.RouterLifetime = 0
	if err := s.ProcessRouterAdvert(ctx, ra); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	wantStatic("zero lifetime")
}
