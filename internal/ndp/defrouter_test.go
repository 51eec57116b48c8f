package ndp_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// Default router table
// -------------------------------------------------------------------------

func addRouter(t *testing.T, s *ndp.Stack, addr string, lifetime uint16) {
	t.Helper()

	if _, err := s.AddRouter(netip.MustParseAddr(addr), testIface, lifetime, ndp.RouterDynamic); err != nil {
		t.Fatalf("AddRouter(%s): %v", addr, err)
	}
}

// TestRoutersExpire verifies that two routers with lifetime 5 are gone
// after 5 slow ticks and that no router is selectable afterward.
func TestRoutersExpire(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 5)
	addRouter(t, s, "fe80::2", 5)

	slowTicks(s, 4)
	if got := len(s.Routers()); got != 2 {
		t.Fatalf("routers after 4 ticks = %d, want 2", got)
	}

	slowTicks(s, 1)
	if got := s.Routers(); len(got) != 0 {
		t.Fatalf("routers after 5 ticks = %+v, want none", got)
	}
	if addr, _, ok := s.LookupReachable(testIface); ok {
		t.Errorf("LookupReachable = %s, want none", addr)
	}
}

func TestRouterInfiniteLifetime(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", ndp.InfiniteRouterLifetime)

	slowTicks(s, int(ndp.InfiniteRouterLifetime)+1)
	if got := s.Routers(); len(got) != 1 || got[0].Lifetime != ndp.InfiniteRouterLifetime {
		t.Errorf("routers = %+v, want one infinite entry", got)
	}
}

// TestAddRouterRefresh verifies that re-adding (addr, iface) refreshes
// the lifetime instead of claiming a second slot.
func TestAddRouterRefresh(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 5)
	slowTicks(s, 3)
	addRouter(t, s, "fe80::1", 100)

	got := s.Routers()
	if len(got) != 1 || got[0].Lifetime != 100 {
		t.Errorf("routers = %+v, want one entry with lifetime 100", got)
	}
}

func TestAddRouterValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		addr string
		want error
	}{
		{"off-link global", "2001:db8:ffff::1", ndp.ErrUnreachable},
		{"multicast", "ff02::2", ndp.ErrInvalidAddress},
		{"unspecified", "::", ndp.ErrInvalidAddress},
	}
	for _, tt := range tests {
		_, err := s.AddRouter(netip.MustParseAddr(tt.addr), testIface, 30, ndp.RouterStatic)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: AddRouter error = %v, want %v", tt.name, err, tt.want)
		}
	}

	if _, err := s.AddRouter(netip.MustParseAddr("fe80::1"), 42, 30, ndp.RouterStatic); !errors.Is(err, ndp.ErrInvalidInterface) {
		t.Errorf("unknown interface: err = %v, want ErrInvalidInterface", err)
	}

	// A global router becomes acceptable once an address on its prefix is
	// configured on the interface.
	if err := s.AddAddress(ctx, testIface, netip.MustParsePrefix("2001:db8:ffff::10/64"), ndp.MethodManual); err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if _, err := s.AddRouter(netip.MustParseAddr("2001:db8:ffff::1"), testIface, 30, ndp.RouterStatic); err != nil {
		t.Errorf("on-link global router rejected: %v", err)
	}
}

func TestRouterTableFull(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RouterTableSize = 1
	s, _ := newTestStack(t, cfg)

	addRouter(t, s, "fe80::1", 30)
	_, err := s.AddRouter(netip.MustParseAddr("fe80::2"), testIface, 30, ndp.RouterDynamic)
	if !errors.Is(err, ndp.ErrTableFull) {
		t.Errorf("err = %v, want ErrTableFull", err)
	}
}

// TestLookupReachableRoundRobin verifies the fallback selection when no
// router is known reachable.
func TestLookupReachableRoundRobin(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 300)
	addRouter(t, s, "fe80::2", 300)

	want := []string{"fe80::1", "fe80::2", "fe80::1", "fe80::2"}
	for i, w := range want {
		addr, ref, ok := s.LookupReachable(testIface)
		if !ok || addr != netip.MustParseAddr(w) {
			t.Fatalf("call %d: LookupReachable = %s, %v; want %s", i, addr, ok, w)
		}
		if !ref.IsZero() {
			t.Errorf("call %d: unresolved router returned a neighbor handle", i)
		}
	}
}

// TestLookupReachableSingleRouter checks that a single candidate is
// returned every time.
func TestLookupReachableSingleRouter(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 300)

	for range 3 {
		addr, _, ok := s.LookupReachable(testIface)
		if !ok || addr != netip.MustParseAddr("fe80::1") {
			t.Fatalf("LookupReachable = %s, %v", addr, ok)
		}
	}
	if _, _, ok := s.LookupReachable(testIface + 1); ok {
		t.Error("router found on an interface without routers")
	}
}

// TestLookupReachablePrefersResolved verifies that a router with a
// resolved neighbor entry wins over round robin.
func TestLookupReachablePrefersResolved(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 300)
	addRouter(t, s, "fe80::2", 300)

	// Resolving fe80::2 through the send path links it lazily.
	if _, _, err := s.Resolve(context.Background(), netip.MustParseAddr("fe80::2"), testIface, netip.Addr{}, &testPacket{id: 1}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	addNeighbor(t, s, "fe80::2", macB, ndp.StateStale)

	for range 3 {
		addr, ref, ok := s.LookupReachable(testIface)
		if !ok || addr != netip.MustParseAddr("fe80::2") || ref.IsZero() {
			t.Fatalf("LookupReachable = %s, %v, %v; want fe80::2 with handle", addr, ref, ok)
		}
	}

	if e := mustFind(t, s, "fe80::2"); !e.IsRouter {
		t.Error("neighbor entry not linked to its router")
	}
}

// TestDeleteRouterSeversLink verifies that deleting a router clears the
// neighbor entry's back link.
func TestDeleteRouterSeversLink(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	if err := s.ProcessRouterAdvert(ctx, ndp.RouterAdvert{
		Source:            netip.MustParseAddr("fe80::1"),
		Destination:       netip.MustParseAddr("ff02::1"),
		Interface:         testIface,
		RouterLifetime:    1800,
		SourceLinkAddr:    macA,
		HasSourceLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	if e := mustFind(t, s, "fe80::1"); !e.IsRouter {
		t.Fatal("router advertisement did not link the neighbor")
	}
	if r := s.Routers(); len(r) != 1 || r[0].NeighborState != ndp.StateStale {
		t.Fatalf("routers = %+v, want one linked to a Stale neighbor", r)
	}

	if err := s.DeleteRouter(netip.MustParseAddr("fe80::1")); err != nil {
		t.Fatalf("DeleteRouter: %v", err)
	}
	if e := mustFind(t, s, "fe80::1"); e.IsRouter {
		t.Error("neighbor still linked after router deletion")
	}
	if err := s.DeleteRouter(netip.MustParseAddr("fe80::1")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("second DeleteRouter: err = %v, want ErrNotFound", err)
	}
}

// TestRouterNeighborNeverEvicted verifies that a router-linked neighbor is
// protected from eviction.
func TestRouterNeighborNeverEvicted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NeighborCacheSize = 1
	s, _ := newTestStack(t, cfg)

	if err := s.ProcessRouterAdvert(context.Background(), ndp.RouterAdvert{
		Source:            netip.MustParseAddr("fe80::1"),
		Interface:         testIface,
		RouterLifetime:    1800,
		SourceLinkAddr:    macA,
		HasSourceLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}

	_, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::2"), Interface: testIface, LinkAddr: macB,
	})
	if !errors.Is(err, ndp.ErrTableFull) {
		t.Errorf("err = %v, want ErrTableFull", err)
	}
	mustFind(t, s, "fe80::1")
}

func TestRouterByIndex(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addRouter(t, s, "fe80::1", 300)
	addRouter(t, s, "fe80::2", 300)

	r, err := s.Router(testIface, 1)
	if err != nil || r.Addr != netip.MustParseAddr("fe80::2") {
		t.Errorf("Router(1) = %+v, %v; want fe80::2", r, err)
	}
	if _, err := s.Router(testIface, 2); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("Router(2) err = %v, want ErrNotFound", err)
	}
}

// TestInterfaceDownFlushesDynamic verifies link-down cleanup.
func TestInterfaceDownFlushesDynamic(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ctx := context.Background()

	addRouter(t, s, "fe80::1", 300)
	if _, err := s.AddRouter(netip.MustParseAddr("fe80::2"), testIface, ndp.InfiniteRouterLifetime, ndp.RouterStatic); err != nil {
		t.Fatalf("AddRouter static: %v", err)
	}
	addNeighbor(t, s, "fe80::10", macA, ndp.StateReachable)
	if _, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::11"), Interface: testIface, LinkAddr: macB, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor static: %v", err)
	}

	if err := s.SetInterfaceUp(ctx, testIface, false); err != nil {
		t.Fatalf("SetInterfaceUp: %v", err)
	}

	routers := s.Routers()
	if len(routers) != 1 || routers[0].Kind != ndp.RouterStatic {
		t.Errorf("routers = %+v, want only the static one", routers)
	}
	neighbors := s.Neighbors()
	if len(neighbors) != 1 || !neighbors[0].Static {
		t.Errorf("neighbors = %+v, want only the static one", neighbors)
	}
	if st := s.Interfaces(); len(st) != 1 || st[0].Up {
		t.Errorf("interfaces = %+v, want one down", st)
	}
}

// TestRouterSolicitation verifies the RS schedule and that an RA stops it.
func TestRouterSolicitation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRtrSolicitations = 3
	s, rec := newTestStack(t, cfg)

	slowTicks(s, 1)
	if got := rec.routerSolicits(); got != 1 {
		t.Fatalf("RS after 1 tick = %d, want 1", got)
	}
	slowTicks(s, 3)
	if got := rec.routerSolicits(); got != 1 {
		t.Fatalf("RS after 4 ticks = %d, want 1", got)
	}
	slowTicks(s, 1)
	if got := rec.routerSolicits(); got != 2 {
		t.Fatalf("RS after 5 ticks = %d, want 2", got)
	}

	if err := s.ProcessRouterAdvert(context.Background(), ndp.RouterAdvert{
		Source:         netip.MustParseAddr("fe80::1"),
		Interface:      testIface,
		RouterLifetime: 1800,
	}); err != nil {
		t.Fatalf("ProcessRouterAdvert: %v", err)
	}
	slowTicks(s, 20)
	if got := rec.routerSolicits(); got != 2 {
		t.Errorf("RS after advertisement = %d, want 2", got)
	}
}

// TestRouterSolicitationBudget verifies that RS stops after the budget.
func TestRouterSolicitationBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxRtrSolicitations = 3
	s, rec := newTestStack(t, cfg)

	slowTicks(s, 60)
	if got := rec.routerSolicits(); got != 3 {
		t.Errorf("RS = %d, want 3", got)
	}
}
