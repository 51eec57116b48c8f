package ndp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
)

// -------------------------------------------------------------------------
// Collaborators
// -------------------------------------------------------------------------

// Solicitation describes a Neighbor Solicitation the Stack wants sent.
type Solicitation struct {
	// Target is the address being resolved or probed.
	Target netip.Addr

	// Source is the IPv6 source address. It may be invalid, in which case
	// the sender picks the interface's link-local address.
	Source netip.Addr

	// Interface is the outgoing interface index.
	Interface int

	// Unicast selects a unicast probe to LinkAddr instead of a multicast
	// solicitation to the target's solicited-node group.
	Unicast bool

	// LinkAddr is the cached link address of the target (Unicast only).
	LinkAddr LinkAddr
}

// Solicitor sends Neighbor and Router Solicitations. The Stack decides
// when to solicit; building and transmitting the ICMPv6 message is left
// to the Solicitor.
type Solicitor interface {
	SendNeighborSolicit(ctx context.Context, s Solicitation) error
	SendRouterSolicit(ctx context.Context, iface int) error
}

// LinkLayer manages multicast group membership on an interface.
type LinkLayer interface {
	JoinGroup(iface int, group netip.Addr) error
	LeaveGroup(iface int, group netip.Addr) error
}

// Transmitter sends a packet to a resolved link address. Transmit takes
// ownership of pkt and must release it when the send fails.
type Transmitter interface {
	Transmit(ctx context.Context, iface int, dst LinkAddr, pkt Packet) error
}

// DestinationCache remembers next hops chosen for destinations. The Stack
// invalidates entries that point at a neighbor or router it deletes, and
// entries made on-link by a prefix it deletes.
// Methods are called with the Stack lock held and must not call back into
// the Stack.
type DestinationCache interface {
	Lookup(dst netip.Addr) (nextHop netip.Addr, ok bool)
	Add(dst, nextHop netip.Addr, mtu int)
	InvalidateNextHop(nextHop netip.Addr) int
	InvalidatePrefix(prefix netip.Prefix) int
}

// Handlers bundles the collaborators installed by Enable.
type Handlers struct {
	// Solicitor is required.
	Solicitor Solicitor

	// LinkLayer is optional; group changes are dropped when nil.
	LinkLayer LinkLayer

	// Transmitter is optional; resolved packets are released when nil.
	Transmitter Transmitter
}

// AddressChangeFunc is called after an interface address changes state.
type AddressChangeFunc func(change AddressChange)

// RAFlagFunc is called with the M/O flags byte of every accepted Router
// Advertisement.
type RAFlagFunc func(iface int, flags uint8)

// NeighborEvent reports a neighbor cache state change.
type NeighborEvent struct {
	Addr      netip.Addr
	Interface int
	LinkAddr  LinkAddr
	OldState  NeighborState
	NewState  NeighborState
}

// -------------------------------------------------------------------------
// Stack mode: Disabled | Enabled(handlers)
// -------------------------------------------------------------------------

// mode is the tagged enable state of the Stack.
type mode interface{ isMode() }

type disabledMode struct{}

type enabledMode struct {
	solicitor Solicitor
	link      LinkLayer
	tx        Transmitter
}

func (disabledMode) isMode() {}
func (enabledMode) isMode()  {}

// -------------------------------------------------------------------------
// Stack
// -------------------------------------------------------------------------

// eventChSize is the buffer size of each event subscription.
const eventChSize = 64

// Stack owns the neighbor cache, the default router table, the prefix list
// and the interface address table of one IPv6 instance. Every operation
// holds a single lock while it mutates the tables. Side effects that leave
// the package (solicitations, transmits, callbacks, events) are collected
// under the lock and executed after it is released, so collaborators may
// call back into the Stack.
type Stack struct {
	mu sync.Mutex

	cfg Config

	cache    *neighborCache
	routers  *routerTable
	prefixes *prefixList
	addrs    *addressTable
	ifaces   []*ifaceState

	mode mode

	// Live protocol timers in ticks. Router Advertisements may change
	// reachableTicks and retransTicks.
	reachableTicks  uint32
	retransTicks    uint32
	delayTicks      uint32
	rsDelayTicks    uint32
	rsIntervalTicks uint32
	hopLimit        uint8

	dests    DestinationCache
	onChange AddressChangeFunc
	onRAFlag RAFlagFunc

	subMu  sync.Mutex
	subs   []chan NeighborEvent
	events chan NeighborEvent

	// metrics is the optional metrics reporter. Never nil -- uses
	// noopMetrics when no reporter is provided.
	metrics MetricsReporter

	logger *slog.Logger
}

// Option configures optional Stack parameters.
type Option func(*Stack)

// WithMetrics sets the metrics reporter. A nil reporter is ignored.
func WithMetrics(mr MetricsReporter) Option {
	return func(s *Stack) {
		if mr != nil {
			s.metrics = mr
		}
	}
}

// WithDestinationCache installs the destination cache consulted by NextHop
// and invalidated on neighbor and router deletion.
func WithDestinationCache(dc DestinationCache) Option {
	return func(s *Stack) {
		s.dests = dc
	}
}

// WithAddressChangeFunc installs the interface address change callback.
func WithAddressChangeFunc(fn AddressChangeFunc) Option {
	return func(s *Stack) {
		s.onChange = fn
	}
}

// WithRAFlagFunc installs the Router Advertisement flag callback.
func WithRAFlagFunc(fn RAFlagFunc) Option {
	return func(s *Stack) {
		s.onRAFlag = fn
	}
}

// New creates a disabled Stack with empty tables sized by cfg.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Stack{
		cfg:             cfg,
		cache:           newNeighborCache(cfg.NeighborCacheSize, cfg.QueueDepth, cfg.EvictOnFull),
		routers:         newRouterTable(cfg.RouterTableSize),
		prefixes:        newPrefixList(cfg.PrefixListSize),
		addrs:           newAddressTable(cfg.MaxAddresses),
		mode:            disabledMode{},
		reachableTicks:  ticksOf(cfg.ReachableTime, cfg.SlowTick),
		retransTicks:    ticksOf(cfg.RetransTimer, cfg.FastTick),
		delayTicks:      ticksOf(cfg.DelayFirstProbeTime, cfg.SlowTick),
		rsDelayTicks:    ticksOf(cfg.RtrSolicitationDelay, cfg.SlowTick),
		rsIntervalTicks: 1,
		metrics:         noopMetrics{},
		logger:          logger.With(slog.String("component", "ndp.stack")),
	}
	if cfg.MaxRtrSolicitations > 0 {
		s.rsIntervalTicks = ticksOf(cfg.RtrSolicitationInterval, cfg.SlowTick)
	}

	s.events = make(chan NeighborEvent, eventChSize)
	s.subs = append(s.subs, s.events)

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Config returns the configuration the Stack was built with.
func (s *Stack) Config() Config {
	return s.cfg
}

// Enable installs the collaborators and starts protocol processing. The
// periodic ticks are no-ops until Enable is called. Groups of addresses
// configured while disabled are joined now.
func (s *Stack) Enable(ctx context.Context, h Handlers) error {
	if h.Solicitor == nil {
		return fmt.Errorf("enable: nil solicitor: %w", ErrInvalidConfig)
	}

	s.mu.Lock()
	fx := &effects{}
	s.mode = enabledMode{solicitor: h.Solicitor, link: h.LinkLayer, tx: h.Transmitter}
	for i := range s.addrs.slots {
		a := &s.addrs.slots[i]
		if a.state != AddressUnknown {
			fx.join(a.iface, SolicitedNodeMulticast(a.prefix.Addr()))
		}
	}
	s.unlock(ctx, fx)

	s.logger.Info("neighbor discovery enabled")
	return nil
}

// Disable stops protocol processing. Table contents are kept; the periodic
// ticks do nothing and Resolve fails with ErrDisabled until re-enabled.
func (s *Stack) Disable() {
	s.mu.Lock()
	s.mode = disabledMode{}
	s.mu.Unlock()

	s.logger.Info("neighbor discovery disabled")
}

// Enabled reports whether protocol processing is running.
func (s *Stack) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.mode.(enabledMode)
	return ok
}

// Events returns the default event channel. Sends never block; events are
// dropped when the channel is full.
func (s *Stack) Events() <-chan NeighborEvent {
	return s.events
}

// Subscribe registers an additional event channel of the given buffer size.
// The returned cancel function unregisters and closes it.
func (s *Stack) Subscribe(buf int) (<-chan NeighborEvent, func()) {
	if buf < 1 {
		buf = eventChSize
	}
	ch := make(chan NeighborEvent, buf)

	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, c := range s.subs {
				if c == ch {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// -------------------------------------------------------------------------
// Deferred side effects
// -------------------------------------------------------------------------

// groupOp is one multicast membership change.
type groupOp struct {
	iface int
	group netip.Addr
	join  bool
}

// transmission is one resolved packet.
type transmission struct {
	iface int
	dst   LinkAddr
	pkt   Packet
}

// gauges is a snapshot of table occupancy.
type gauges struct {
	neighbors [StateCreated + 1]int
	routers   int
	prefixes  int
}

// effects collects everything an operation must do once the lock is
// released.
type effects struct {
	mode mode

	groups         []groupOp
	solicits       []Solicitation
	routerSolicits []int
	transmits      []transmission
	releases       []Packet
	changes        []AddressChange
	transitions    []NeighborEvent
	raFlags        []raFlag

	evictions   int
	unreachable int
	queueDrops  int
	routerAdvs  int

	gauges gauges
}

type raFlag struct {
	iface int
	flags uint8
}

func (fx *effects) join(iface int, group netip.Addr) {
	fx.groups = append(fx.groups, groupOp{iface: iface, group: group, join: true})
}

func (fx *effects) leave(iface int, group netip.Addr) {
	fx.groups = append(fx.groups, groupOp{iface: iface, group: group})
}

// unlock snapshots the gauges, releases the lock and runs fx.
func (s *Stack) unlock(ctx context.Context, fx *effects) {
	fx.mode = s.mode
	fx.gauges = s.gaugesLocked()
	s.mu.Unlock()
	s.apply(ctx, fx)
}

func (s *Stack) gaugesLocked() gauges {
	var g gauges
	for i := range s.cache.entries {
		g.neighbors[s.cache.entries[i].state]++
	}
	g.routers = s.routers.count()
	g.prefixes = s.prefixes.count
	return g
}

// apply executes collected side effects. Called without the lock.
func (s *Stack) apply(ctx context.Context, fx *effects) {
	en, enabled := fx.mode.(enabledMode)

	for _, p := range fx.releases {
		p.Release()
	}

	if enabled && en.link != nil {
		for _, g := range fx.groups {
			var err error
			if g.join {
				err = en.link.JoinGroup(g.iface, g.group)
			} else {
				err = en.link.LeaveGroup(g.iface, g.group)
			}
			if err != nil {
				s.logger.Warn("multicast group change failed",
					slog.Int("iface", g.iface),
					slog.String("group", g.group.String()),
					slog.Bool("join", g.join),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, sol := range fx.solicits {
		if !enabled {
			break
		}
		kind := "multicast_ns"
		if sol.Unicast {
			kind = "unicast_ns"
		}
		s.metrics.IncSolicitations(kind)
		if err := en.solicitor.SendNeighborSolicit(ctx, sol); err != nil {
			s.logger.Debug("neighbor solicitation failed",
				slog.String("target", sol.Target.String()),
				slog.Bool("unicast", sol.Unicast),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, iface := range fx.routerSolicits {
		if !enabled {
			break
		}
		s.metrics.IncSolicitations("rs")
		if err := en.solicitor.SendRouterSolicit(ctx, iface); err != nil {
			s.logger.Debug("router solicitation failed",
				slog.Int("iface", iface),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, t := range fx.transmits {
		if !enabled || en.tx == nil {
			t.pkt.Release()
			continue
		}
		if err := en.tx.Transmit(ctx, t.iface, t.dst, t.pkt); err != nil {
			s.logger.Debug("transmit failed",
				slog.Int("iface", t.iface),
				slog.String("dst", t.dst.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.onRAFlag != nil {
		for _, f := range fx.raFlags {
			s.onRAFlag(f.iface, f.flags)
		}
	}
	if s.onChange != nil {
		for _, c := range fx.changes {
			s.onChange(c)
		}
	}

	for range fx.evictions {
		s.metrics.IncEvictions()
	}
	for range fx.unreachable {
		s.metrics.IncUnreachable()
	}
	for range fx.queueDrops {
		s.metrics.IncQueueDrops()
	}
	for range fx.routerAdvs {
		s.metrics.IncRouterAdverts()
	}

	for _, ev := range fx.transitions {
		s.metrics.RecordStateTransition(ev.OldState.String(), ev.NewState.String())
		s.publish(ev)
	}

	for st := StateIncomplete; st <= StateProbe; st++ {
		s.metrics.SetNeighbors(st.String(), fx.gauges.neighbors[st])
	}
	s.metrics.SetRouters(fx.gauges.routers)
	s.metrics.SetPrefixes(fx.gauges.prefixes)
}

// publish delivers ev to every subscriber without blocking.
func (s *Stack) publish(ev NeighborEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("event dropped, subscriber full",
				slog.String("addr", ev.Addr.String()),
				slog.String("state", ev.NewState.String()),
			)
		}
	}
}

// -------------------------------------------------------------------------
// Interfaces
// -------------------------------------------------------------------------

func (s *Stack) ifaceLocked(index int) (*ifaceState, bool) {
	for _, ifc := range s.ifaces {
		if ifc.Index == index {
			return ifc, true
		}
	}
	return nil, false
}

// AddInterface registers an interface in the up state and arms router
// solicitation on it.
func (s *Stack) AddInterface(ifc Interface) error {
	if ifc.Index <= 0 {
		return fmt.Errorf("interface index %d: %w", ifc.Index, ErrInvalidInterface)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ifaceLocked(ifc.Index); ok {
		return fmt.Errorf("interface %d: %w", ifc.Index, ErrDuplicate)
	}
	if len(s.ifaces) >= s.cfg.MaxInterfaces {
		return fmt.Errorf("interface %d: %w", ifc.Index, ErrTableFull)
	}

	st := &ifaceState{Interface: ifc}
	s.linkUpLocked(st)
	s.ifaces = append(s.ifaces, st)

	s.logger.Info("interface added",
		slog.Int("iface", ifc.Index),
		slog.String("name", ifc.Name),
		slog.String("link_addr", ifc.LinkAddr.String()),
	)
	return nil
}

func (s *Stack) linkUpLocked(st *ifaceState) {
	st.up = true
	st.rsLeft = s.cfg.MaxRtrSolicitations
	st.rsTimer = s.rsDelayTicks
}

// SetInterfaceUp records a link state change. Link down deletes every
// dynamic neighbor and dynamic router bound to the interface and stops
// router solicitation; link up restarts router solicitation.
func (s *Stack) SetInterfaceUp(ctx context.Context, index int, up bool) error {
	s.mu.Lock()
	st, ok := s.ifaceLocked(index)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("interface %d: %w", index, ErrInvalidInterface)
	}
	if st.up == up {
		s.mu.Unlock()
		return nil
	}

	fx := &effects{}
	if up {
		s.linkUpLocked(st)
	} else {
		st.up = false
		st.rsLeft, st.rsTimer = 0, 0

		for i := range s.routers.entries {
			r := &s.routers.entries[i]
			if r.valid && r.iface == index && r.kind == RouterDynamic {
				s.deleteRouterLocked(i)
			}
		}
		for i := range s.cache.entries {
			e := &s.cache.entries[i]
			if e.state != StateInvalid && e.iface == index && !e.static {
				s.deleteNeighborLocked(i, fx)
			}
		}
	}
	s.unlock(ctx, fx)

	s.logger.Info("interface link state changed",
		slog.Int("iface", index),
		slog.Bool("up", up),
	)
	return nil
}

// Interfaces returns a snapshot of every registered interface.
func (s *Stack) Interfaces() []InterfaceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]InterfaceStatus, 0, len(s.ifaces))
	for _, st := range s.ifaces {
		out = append(out, InterfaceStatus{
			Interface:    st.Interface,
			Up:           st.up,
			SolicitsLeft: st.rsLeft,
		})
	}
	return out
}

// HopLimit returns the current hop limit advertised by routers, or zero
// when none has been advertised.
func (s *Stack) HopLimit() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hopLimit
}

// SourceAddress picks the source for a packet to dst on iface: the
// non-tentative address of matching scope sharing the longest prefix with
// dst. It returns false when the interface has no such address.
func (s *Stack) SourceAddress(iface int, dst netip.Addr) (netip.Addr, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.addrs.sourceFor(iface, dst)
	return src, src.IsValid()
}

// -------------------------------------------------------------------------
// Addresses
// -------------------------------------------------------------------------

// AddAddress configures an address on an interface. Manual and DHCP
// addresses start Valid; autoconfigured ones start Tentative. The
// solicited-node group of the address is joined.
func (s *Stack) AddAddress(ctx context.Context, iface int, prefix netip.Prefix, method AddressMethod) error {
	addr := prefix.Addr()
	if !prefix.IsValid() || !Classify(addr).Has(AddrUnicast) {
		return fmt.Errorf("address %s: %w", prefix, ErrInvalidAddress)
	}

	s.mu.Lock()
	if _, ok := s.ifaceLocked(iface); !ok {
		s.mu.Unlock()
		return fmt.Errorf("interface %d: %w", iface, ErrInvalidInterface)
	}
	if _, ok := s.addrs.find(addr); ok {
		s.mu.Unlock()
		return fmt.Errorf("address %s: %w", addr, ErrDuplicate)
	}

	state := AddressValid
	if method == MethodAutoconf {
		state = AddressTentative
	}

	fx := &effects{}
	if err := s.addAddressLocked(iface, prefix, method, state, fx); err != nil {
		s.mu.Unlock()
		return err
	}
	s.unlock(ctx, fx)
	return nil
}

func (s *Stack) addAddressLocked(iface int, prefix netip.Prefix, method AddressMethod, state AddressState, fx *effects) error {
	i, ok := s.addrs.free()
	if !ok {
		s.logger.Warn("address table full",
			slog.Int("iface", iface),
			slog.String("addr", prefix.String()),
		)
		return fmt.Errorf("address %s: %w", prefix, ErrTableFull)
	}

	s.addrs.slots[i] = addrSlot{prefix: prefix, iface: iface, state: state, method: method}
	fx.join(iface, SolicitedNodeMulticast(prefix.Addr()))
	fx.changes = append(fx.changes, AddressChange{
		Address:  s.addrs.slots[i].snapshot(),
		OldState: AddressUnknown,
	})
	return nil
}

// RemoveAddress deletes an interface address and leaves its
// solicited-node group.
func (s *Stack) RemoveAddress(ctx context.Context, addr netip.Addr) error {
	s.mu.Lock()
	i, ok := s.addrs.find(addr)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("address %s: %w", addr, ErrNotFound)
	}

	fx := &effects{}
	s.invalidateAddressLocked(i, fx)
	s.unlock(ctx, fx)
	return nil
}

// SetAddressState moves an address to a new lifecycle state, typically
// after duplicate address detection completes. AddressUnknown removes it.
func (s *Stack) SetAddressState(ctx context.Context, addr netip.Addr, state AddressState) error {
	if state > AddressValid {
		return fmt.Errorf("address state %d: %w", state, ErrInvalidState)
	}

	s.mu.Lock()
	i, ok := s.addrs.find(addr)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("address %s: %w", addr, ErrNotFound)
	}

	fx := &effects{}
	slot := &s.addrs.slots[i]
	switch {
	case state == AddressUnknown:
		s.invalidateAddressLocked(i, fx)
	case slot.state != state:
		old := slot.state
		slot.state = state
		fx.changes = append(fx.changes, AddressChange{Address: slot.snapshot(), OldState: old})
	}
	s.unlock(ctx, fx)
	return nil
}

// invalidateAddressLocked clears address slot i, leaves its group and
// queues the change callback.
func (s *Stack) invalidateAddressLocked(i int, fx *effects) {
	slot := &s.addrs.slots[i]
	change := AddressChange{Address: slot.snapshot(), OldState: slot.state}
	change.State = AddressUnknown

	fx.leave(slot.iface, SolicitedNodeMulticast(slot.prefix.Addr()))
	fx.changes = append(fx.changes, change)
	*slot = addrSlot{}

	s.logger.Debug("address invalidated",
		slog.String("addr", change.Prefix.String()),
		slog.Int("iface", change.Interface),
	)
}

// Addresses returns a snapshot of every configured address.
func (s *Stack) Addresses() []Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Address
	for i := range s.addrs.slots {
		if s.addrs.slots[i].state != AddressUnknown {
			out = append(out, s.addrs.slots[i].snapshot())
		}
	}
	return out
}
