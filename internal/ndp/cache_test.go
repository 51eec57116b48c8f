package ndp_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// Neighbor cache: add / find / delete
// -------------------------------------------------------------------------

// TestAddNeighborIdempotent verifies that re-adding a Reachable entry with
// the same link address leaves its timer untouched.
func TestAddNeighborIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())

	first := addNeighbor(t, s, "fe80::10", macA, ndp.StateReachable)
	if first.ExpiresIn != 30 {
		t.Fatalf("ExpiresIn after add = %d, want 30", first.ExpiresIn)
	}

	slowTicks(s, 2)
	before := mustFind(t, s, "fe80::10")
	if before.ExpiresIn != 28 {
		t.Fatalf("ExpiresIn after 2 ticks = %d, want 28", before.ExpiresIn)
	}

	after := addNeighbor(t, s, "fe80::10", macA, ndp.StateReachable)
	if diff := cmp.Diff(before, after, addrComparer); diff != "" {
		t.Errorf("re-add changed the entry (-before +after):\n%s", diff)
	}
}

// TestAddNeighborDynamicTimerOnlyOnStateChange verifies that a dynamic
// entry keeps its timer when the state does not change.
func TestAddNeighborDynamicTimerOnlyOnStateChange(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())

	addNeighbor(t, s, "fe80::10", macA, ndp.StateReachable)
	slowTicks(s, 3)

	// Same state, new link address: link address updated, timer kept.
	e := addNeighbor(t, s, "fe80::10", macB, ndp.StateReachable)
	if e.LinkAddr != macB {
		t.Errorf("LinkAddr = %s, want %s", e.LinkAddr, macB)
	}
	if e.ExpiresIn != 27 {
		t.Errorf("ExpiresIn = %d, want 27", e.ExpiresIn)
	}

	// State change to Stale then back to Reachable reloads the timer.
	addNeighbor(t, s, "fe80::10", macB, ndp.StateStale)
	e = addNeighbor(t, s, "fe80::10", macB, ndp.StateReachable)
	if e.ExpiresIn != 30 {
		t.Errorf("ExpiresIn after state change = %d, want 30", e.ExpiresIn)
	}
}

// TestFindReturnsLinkAddr verifies that find returns the inserted link
// address and that the table never holds the same address twice.
func TestFindReturnsLinkAddr(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())

	addrs := []string{"fe80::1", "fe80::2", "2001:db8::1", "fe80::1"}
	for _, a := range addrs {
		addNeighbor(t, s, a, macA, ndp.StateStale)
	}

	if got := len(s.Neighbors()); got != 3 {
		t.Fatalf("len(Neighbors) = %d, want 3", got)
	}
	for _, a := range addrs {
		if e := mustFind(t, s, a); e.LinkAddr != macA {
			t.Errorf("FindNeighbor(%s).LinkAddr = %s, want %s", a, e.LinkAddr, macA)
		}
	}
}

func TestAddNeighborValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())

	tests := []struct {
		name string
		spec ndp.NeighborSpec
		want error
	}{
		{
			name: "multicast",
			spec: ndp.NeighborSpec{Addr: netip.MustParseAddr("ff02::1"), Interface: testIface, LinkAddr: macA},
			want: ndp.ErrInvalidAddress,
		},
		{
			name: "missing link address",
			spec: ndp.NeighborSpec{Addr: netip.MustParseAddr("fe80::1"), Interface: testIface, State: ndp.StateReachable},
			want: ndp.ErrInvalidAddress,
		},
		{
			name: "created state",
			spec: ndp.NeighborSpec{Addr: netip.MustParseAddr("fe80::1"), Interface: testIface, State: ndp.StateCreated},
			want: ndp.ErrInvalidState,
		},
		{
			name: "unknown interface",
			spec: ndp.NeighborSpec{Addr: netip.MustParseAddr("fe80::1"), Interface: 99, LinkAddr: macA},
			want: ndp.ErrInvalidInterface,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := s.AddNeighbor(context.Background(), tt.spec)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddNeighbor error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeleteNeighbor(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)

	if err := s.DeleteNeighbor(context.Background(), netip.MustParseAddr("fe80::1")); err != nil {
		t.Fatalf("DeleteNeighbor: %v", err)
	}
	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::1")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("FindNeighbor after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteNeighbor(context.Background(), netip.MustParseAddr("fe80::1")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("second DeleteNeighbor: err = %v, want ErrNotFound", err)
	}
}

// TestInvalidateNeighbors verifies that every entry, static ones included,
// is removed.
func TestInvalidateNeighbors(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)
	if _, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::2"), Interface: testIface, LinkAddr: macB, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor static: %v", err)
	}

	if n := s.InvalidateNeighbors(context.Background()); n != 2 {
		t.Errorf("InvalidateNeighbors = %d, want 2", n)
	}
	if got := s.Neighbors(); len(got) != 0 {
		t.Errorf("Neighbors after invalidate = %v, want empty", got)
	}
}

// TestFlushNeighborsKeepsStatic verifies that a flush removes dynamic
// entries only.
func TestFlushNeighborsKeepsStatic(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)
	if _, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::2"), Interface: testIface, LinkAddr: macB, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor static: %v", err)
	}

	if n := s.FlushNeighbors(context.Background()); n != 1 {
		t.Errorf("FlushNeighbors = %d, want 1", n)
	}
	got := s.Neighbors()
	if len(got) != 1 || got[0].Addr != netip.MustParseAddr("fe80::2") || !got[0].Static {
		t.Errorf("Neighbors after flush = %v, want static fe80::2 only", got)
	}
}

// -------------------------------------------------------------------------
// Eviction
// -------------------------------------------------------------------------

// TestEvictionSkipsStatic verifies that a full cache replaces the Stale
// entry and never a static one, and fails once only protected entries
// remain.
func TestEvictionSkipsStatic(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NeighborCacheSize = 2
	s, _ := newTestStack(t, cfg)

	ctx := context.Background()
	if _, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::a"), Interface: testIface, LinkAddr: macA, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor static: %v", err)
	}
	addNeighbor(t, s, "fe80::b", macB, ndp.StateStale)

	addNeighbor(t, s, "fe80::c", macB, ndp.StateReachable)
	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::b")); !errors.Is(err, ndp.ErrNotFound) {
		t.Error("Stale entry fe80::b was not evicted")
	}
	mustFind(t, s, "fe80::a")

	// Make fe80::c static too: nothing left to evict.
	if _, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::c"), Interface: testIface, LinkAddr: macB, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor static: %v", err)
	}
	_, err := s.AddNeighbor(ctx, ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::d"), Interface: testIface, LinkAddr: macB,
	})
	if !errors.Is(err, ndp.ErrTableFull) {
		t.Errorf("AddNeighbor on protected full cache: err = %v, want ErrTableFull", err)
	}
}

// TestEvictionPrefersStale verifies that any Stale entry is chosen before
// a Reachable one, and the longest-idle Stale entry among several.
func TestEvictionPrefersStale(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NeighborCacheSize = 3
	s, _ := newTestStack(t, cfg)

	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)
	addNeighbor(t, s, "fe80::2", macA, ndp.StateStale)
	slowTicks(s, 29) // fe80::1 is one tick from expiry, fe80::2 idle 29
	addNeighbor(t, s, "fe80::3", macA, ndp.StateStale)

	addNeighbor(t, s, "fe80::4", macA, ndp.StateReachable)

	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::2")); !errors.Is(err, ndp.ErrNotFound) {
		t.Error("longest-idle Stale entry fe80::2 was not evicted")
	}
	for _, a := range []string{"fe80::1", "fe80::3", "fe80::4"} {
		mustFind(t, s, a)
	}
}

// TestEvictionDisabled verifies that without EvictOnFull a full cache
// rejects new entries.
func TestEvictionDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NeighborCacheSize = 1
	cfg.EvictOnFull = false
	s, _ := newTestStack(t, cfg)

	addNeighbor(t, s, "fe80::1", macA, ndp.StateStale)
	_, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::2"), Interface: testIface, LinkAddr: macA,
	})
	if !errors.Is(err, ndp.ErrTableFull) {
		t.Errorf("err = %v, want ErrTableFull", err)
	}
}

// -------------------------------------------------------------------------
// Timers
// -------------------------------------------------------------------------

// TestIncompleteExhaustsSolicits verifies that an Incomplete entry with a
// budget of 3 is deleted on the 4th fast tick after exactly 3
// retransmissions.
func TestIncompleteExhaustsSolicits(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())

	e := addNeighbor(t, s, "fe80::99", ndp.LinkAddr{}, ndp.StateIncomplete)
	if e.SolicitsLeft != 3 {
		t.Fatalf("SolicitsLeft = %d, want 3", e.SolicitsLeft)
	}

	fastTicks(s, 3)
	if got := len(rec.solicits()); got != 3 {
		t.Fatalf("solicitations after 3 ticks = %d, want 3", got)
	}
	if e := mustFind(t, s, "fe80::99"); e.SolicitsLeft != 0 {
		t.Fatalf("SolicitsLeft after 3 ticks = %d, want 0", e.SolicitsLeft)
	}

	fastTicks(s, 1)
	if got := len(rec.solicits()); got != 3 {
		t.Errorf("solicitations after 4 ticks = %d, want 3", got)
	}
	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::99")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("entry still present after budget exhausted: err = %v", err)
	}
	for _, sol := range rec.solicits() {
		if sol.Unicast {
			t.Errorf("Incomplete sent a unicast solicitation: %+v", sol)
		}
	}
}

// TestReachableAgesToStale verifies the Reachable timer and Stale idle
// counting.
func TestReachableAgesToStale(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)

	slowTicks(s, 29)
	if e := mustFind(t, s, "fe80::1"); e.State != ndp.StateReachable || e.ExpiresIn != 1 {
		t.Fatalf("after 29 ticks: state %s expires %d, want Reachable 1", e.State, e.ExpiresIn)
	}

	slowTicks(s, 1)
	if e := mustFind(t, s, "fe80::1"); e.State != ndp.StateStale {
		t.Fatalf("after 30 ticks: state %s, want Stale", e.State)
	}

	slowTicks(s, 4)
	if e := mustFind(t, s, "fe80::1"); e.Idle != 4 {
		t.Errorf("Idle = %d, want 4", e.Idle)
	}
}

// TestStaticNeverAges verifies that static entries skip the slow tick.
func TestStaticNeverAges(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	if _, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr: netip.MustParseAddr("fe80::1"), Interface: testIface, LinkAddr: macA, Static: true,
	}); err != nil {
		t.Fatalf("AddNeighbor: %v", err)
	}

	slowTicks(s, 100)
	if e := mustFind(t, s, "fe80::1"); e.State != ndp.StateReachable || !e.Static {
		t.Errorf("static entry aged: %+v", e)
	}
}

// -------------------------------------------------------------------------
// Send path
// -------------------------------------------------------------------------

// TestResolveQueuesUntilAdvert verifies that packets to an unresolved
// neighbor are queued behind one multicast solicitation and transmitted
// in order once a solicited advertisement arrives.
func TestResolveQueuesUntilAdvert(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	ctx := context.Background()
	target := netip.MustParseAddr("fe80::42")

	p1, p2 := &testPacket{id: 1}, &testPacket{id: 2}
	for _, p := range []*testPacket{p1, p2} {
		_, ok, err := s.Resolve(ctx, target, testIface, netip.Addr{}, p)
		if err != nil || ok {
			t.Fatalf("Resolve(%d) = ok %v, err %v; want queued", p.id, ok, err)
		}
	}

	sols := rec.solicits()
	if len(sols) != 1 || sols[0].Target != target || sols[0].Unicast {
		t.Fatalf("solicitations = %+v, want one multicast NS for %s", sols, target)
	}
	e := mustFind(t, s, "fe80::42")
	if e.State != ndp.StateIncomplete || e.SolicitsLeft != 2 || e.Queued != 2 {
		t.Fatalf("entry = %+v, want Incomplete solicits 2 queued 2", e)
	}

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target:            target,
		Interface:         testIface,
		Solicited:         true,
		TargetLinkAddr:    macA,
		HasTargetLinkAddr: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}

	tx := rec.transmitted()
	if len(tx) != 2 || tx[0].pkt != p1 || tx[1].pkt != p2 {
		t.Fatalf("transmitted = %+v, want p1 then p2", tx)
	}
	if tx[0].dst != macA {
		t.Errorf("transmit dst = %s, want %s", tx[0].dst, macA)
	}
	if e := mustFind(t, s, "fe80::42"); e.State != ndp.StateReachable || e.Queued != 0 {
		t.Errorf("entry = %+v, want Reachable with empty queue", e)
	}
}

// TestResolveQueueOverflow verifies that the oldest packet is released
// when the queue is full.
func TestResolveQueueOverflow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QueueDepth = 2
	s, _ := newTestStack(t, cfg)
	ctx := context.Background()
	target := netip.MustParseAddr("fe80::42")

	pkts := []*testPacket{{id: 1}, {id: 2}, {id: 3}}
	for _, p := range pkts {
		if _, _, err := s.Resolve(ctx, target, testIface, netip.Addr{}, p); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	if !pkts[0].released {
		t.Error("oldest packet was not released")
	}
	if pkts[1].released || pkts[2].released {
		t.Error("newer packets were released")
	}
	if e := mustFind(t, s, "fe80::42"); e.Queued != 2 {
		t.Errorf("Queued = %d, want 2", e.Queued)
	}
}

// TestResolveStaleDelayProbe walks Stale -> Delay -> Probe -> Reachable.
func TestResolveStaleDelayProbe(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	ctx := context.Background()
	addNeighbor(t, s, "fe80::7", macA, ndp.StateStale)

	la, ok, err := s.Resolve(ctx, netip.MustParseAddr("fe80::7"), testIface, netip.Addr{}, nil)
	if err != nil || !ok || la != macA {
		t.Fatalf("Resolve = %s, %v, %v; want %s, true, nil", la, ok, err, macA)
	}
	if e := mustFind(t, s, "fe80::7"); e.State != ndp.StateDelay || e.ExpiresIn != 5 {
		t.Fatalf("entry = %+v, want Delay expires 5", e)
	}

	slowTicks(s, 5)
	e := mustFind(t, s, "fe80::7")
	if e.State != ndp.StateProbe || e.SolicitsLeft != 3 {
		t.Fatalf("entry = %+v, want Probe with 3 solicits", e)
	}
	if len(rec.solicits()) != 0 {
		t.Fatal("slow tick sent a solicitation")
	}

	fastTicks(s, 1)
	sols := rec.solicits()
	if len(sols) != 1 || !sols[0].Unicast || sols[0].LinkAddr != macA {
		t.Fatalf("solicitations = %+v, want one unicast NS to %s", sols, macA)
	}

	if err := s.ProcessNeighborAdvert(ctx, ndp.NeighborAdvert{
		Target:    netip.MustParseAddr("fe80::7"),
		Interface: testIface,
		Solicited: true,
	}); err != nil {
		t.Fatalf("ProcessNeighborAdvert: %v", err)
	}
	if e := mustFind(t, s, "fe80::7"); e.State != ndp.StateReachable {
		t.Errorf("state = %s, want Reachable", e.State)
	}
}

// TestProbeExhaustsSolicits verifies deletion after the unicast budget.
func TestProbeExhaustsSolicits(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::7", macA, ndp.StateDelay)
	slowTicks(s, 5)

	fastTicks(s, 4)
	if got := len(rec.solicits()); got != 3 {
		t.Errorf("unicast solicitations = %d, want 3", got)
	}
	if _, err := s.FindNeighbor(netip.MustParseAddr("fe80::7")); !errors.Is(err, ndp.ErrNotFound) {
		t.Errorf("Probe entry not deleted: err = %v", err)
	}
}

func TestResolveMulticast(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())

	la, ok, err := s.Resolve(context.Background(), netip.MustParseAddr("ff02::1"), testIface, netip.Addr{}, nil)
	if err != nil || !ok {
		t.Fatalf("Resolve multicast = %v, %v", ok, err)
	}
	if la != (ndp.LinkAddr{0x33, 0x33, 0, 0, 0, 1}) {
		t.Errorf("link addr = %s, want 33:33:00:00:00:01", la)
	}
	if len(rec.solicits()) != 0 || len(s.Neighbors()) != 0 {
		t.Error("multicast resolution touched the cache")
	}
}

// TestResolveDisabled verifies that a disabled stack refuses resolution
// and releases the packet.
func TestResolveDisabled(t *testing.T) {
	t.Parallel()

	s, rec := newTestStack(t, testConfig())
	s.Disable()

	p := &testPacket{id: 1}
	_, _, err := s.Resolve(context.Background(), netip.MustParseAddr("fe80::1"), testIface, netip.Addr{}, p)
	if !errors.Is(err, ndp.ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
	if !p.released {
		t.Error("packet not released")
	}

	addNeighbor(t, s, "fe80::2", ndp.LinkAddr{}, ndp.StateIncomplete)
	fastTicks(s, 10)
	if len(rec.solicits()) != 0 {
		t.Error("fast tick ran while disabled")
	}
}

// TestDeleteReleasesQueue verifies that deleting an Incomplete entry
// releases its queued packets.
func TestDeleteReleasesQueue(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	p := &testPacket{id: 1}
	if _, _, err := s.Resolve(context.Background(), netip.MustParseAddr("fe80::5"), testIface, netip.Addr{}, p); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	fastTicks(s, 3)
	if !p.released {
		t.Error("queued packet not released when resolution failed")
	}
}

// -------------------------------------------------------------------------
// Events
// -------------------------------------------------------------------------

func TestEvents(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	addNeighbor(t, s, "fe80::1", macA, ndp.StateReachable)
	if err := s.DeleteNeighbor(context.Background(), netip.MustParseAddr("fe80::1")); err != nil {
		t.Fatalf("DeleteNeighbor: %v", err)
	}

	want := []ndp.NeighborEvent{
		{Addr: netip.MustParseAddr("fe80::1"), Interface: testIface, LinkAddr: macA, OldState: ndp.StateInvalid, NewState: ndp.StateReachable},
		{Addr: netip.MustParseAddr("fe80::1"), Interface: testIface, LinkAddr: macA, OldState: ndp.StateReachable, NewState: ndp.StateInvalid},
	}
	var got []ndp.NeighborEvent
	for range want {
		got = append(got, <-s.Events())
	}
	if diff := cmp.Diff(want, got, addrComparer); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	s, _ := newTestStack(t, testConfig())
	ch, cancel := s.Subscribe(4)

	addNeighbor(t, s, "fe80::1", macA, ndp.StateStale)
	ev := <-ch
	if ev.NewState != ndp.StateStale {
		t.Errorf("NewState = %s, want Stale", ev.NewState)
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
}
