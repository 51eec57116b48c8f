package ndp_test

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// Test Helpers: collaborators
// -------------------------------------------------------------------------

// recorder implements Solicitor, LinkLayer and Transmitter and records
// every call.
type recorder struct {
	mu     sync.Mutex
	ns     []ndp.Solicitation
	rs     []int
	joins  []netip.Addr
	leaves []netip.Addr
	tx     []sent
}

type sent struct {
	iface int
	dst   ndp.LinkAddr
	pkt   *testPacket
}

func (r *recorder) SendNeighborSolicit(_ context.Context, s ndp.Solicitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ns = append(r.ns, s)
	return nil
}

func (r *recorder) SendRouterSolicit(_ context.Context, iface int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rs = append(r.rs, iface)
	return nil
}

func (r *recorder) JoinGroup(_ int, group netip.Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, group)
	return nil
}

func (r *recorder) LeaveGroup(_ int, group netip.Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, group)
	return nil
}

func (r *recorder) Transmit(_ context.Context, iface int, dst ndp.LinkAddr, pkt ndp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tp, _ := pkt.(*testPacket)
	r.tx = append(r.tx, sent{iface: iface, dst: dst, pkt: tp})
	return nil
}

func (r *recorder) solicits() []ndp.Solicitation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ndp.Solicitation(nil), r.ns...)
}

func (r *recorder) routerSolicits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rs)
}

func (r *recorder) groups() (joins, leaves []netip.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]netip.Addr(nil), r.joins...), append([]netip.Addr(nil), r.leaves...)
}

func (r *recorder) transmitted() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.tx...)
}

// testPacket is a Packet that records its release.
type testPacket struct {
	id       int
	released bool
}

func (p *testPacket) Release() { p.released = true }

// -------------------------------------------------------------------------
// Test Helpers: Stack
// -------------------------------------------------------------------------

const testIface = 1

// addrComparer lets cmp compare netip.Addr values, which have unexported
// fields.
var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

var (
	testLinkAddr = ndp.LinkAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	macA         = ndp.LinkAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xaa}
	macB         = ndp.LinkAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xbb}
)

// testConfig returns a Config whose retransmit timer is one fast tick,
// reachable time is 30 slow ticks and delay is 5 slow ticks. Router
// solicitation is off so tests see only the traffic they trigger.
func testConfig() ndp.Config {
	cfg := ndp.DefaultConfig()
	cfg.FastTick = 100 * time.Millisecond
	cfg.SlowTick = time.Second
	cfg.RetransTimer = 100 * time.Millisecond
	cfg.ReachableTime = 30 * time.Second
	cfg.DelayFirstProbeTime = 5 * time.Second
	cfg.MaxRtrSolicitations = 0
	return cfg
}

// newTestStack creates an enabled Stack with one interface.
func newTestStack(t *testing.T, cfg ndp.Config, opts ...ndp.Option) (*ndp.Stack, *recorder) {
	t.Helper()

	s, err := ndp.New(cfg, slog.New(slog.DiscardHandler), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddInterface(ndp.Interface{
		Index:    testIface,
		Name:     "eth0",
		LinkAddr: testLinkAddr,
		Autoconf: true,
	}); err != nil {
		t.Fatalf("AddInterface: %v", err)
	}

	rec := &recorder{}
	if err := s.Enable(context.Background(), ndp.Handlers{
		Solicitor:   rec,
		LinkLayer:   rec,
		Transmitter: rec,
	}); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return s, rec
}

func addNeighbor(t *testing.T, s *ndp.Stack, addr string, la ndp.LinkAddr, state ndp.NeighborState) ndp.NeighborEntry {
	t.Helper()

	e, err := s.AddNeighbor(context.Background(), ndp.NeighborSpec{
		Addr:      netip.MustParseAddr(addr),
		Interface: testIface,
		LinkAddr:  la,
		State:     state,
	})
	if err != nil {
		t.Fatalf("AddNeighbor(%s): %v", addr, err)
	}
	return e
}

func mustFind(t *testing.T, s *ndp.Stack, addr string) ndp.NeighborEntry {
	t.Helper()

	e, err := s.FindNeighbor(netip.MustParseAddr(addr))
	if err != nil {
		t.Fatalf("FindNeighbor(%s): %v", addr, err)
	}
	return e
}

func fastTicks(s *ndp.Stack, n int) {
	for range n {
		s.FastTick(context.Background())
	}
}

func slowTicks(s *ndp.Stack, n int) {
	for range n {
		s.SlowTick(context.Background())
	}
}
