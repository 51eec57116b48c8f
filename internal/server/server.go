// Package server implements the ConnectRPC admin server of the gond daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"connectrpc.com/connect"

	ndapi "github.com/dantte-lp/gond/internal/api"
	"github.com/dantte-lp/gond/internal/ndp"
	"github.com/dantte-lp/gond/internal/netio"
)

// defaultPingHopLimit is used when no router has advertised a hop limit.
const defaultPingHopLimit = 64

// watchBuffer is the event buffer of each WatchEvents subscription.
const watchBuffer = 256

// Sentinel errors for request validation.
var (
	errBadAddress  = errors.New("invalid IPv6 address")
	errBadPrefix   = errors.New("invalid IPv6 prefix")
	errBadState    = errors.New("unknown state")
	errBadMethod   = errors.New("unknown address method")
	errNoSource    = errors.New("no source address on interface")
	errEventStream = errors.New("send event")
)

// NDServer implements ndapi.NeighborServiceHandler.
//
// Each RPC delegates to the Stack. The server is a thin adapter between
// the admin API and the Neighbor Discovery tables.
type NDServer struct {
	stack  *ndp.Stack
	codec  *netio.Codec
	echoID uint16
	logger *slog.Logger
}

// verify interface compliance at compile time.
var _ ndapi.NeighborServiceHandler = (*NDServer)(nil)

// New creates a new NDServer and returns the HTTP handler and path.
func New(stack *ndp.Stack, logger *slog.Logger, opts ...connect.HandlerOption) (string, http.Handler) {
	srv := &NDServer{
		stack:  stack,
		codec:  netio.NewCodec(),
		echoID: uint16(os.Getpid() & 0xffff), //nolint:gosec // masked to 16 bits.
		logger: logger.With(slog.String("component", "server")),
	}
	return ndapi.NewNeighborServiceHandler(srv, opts...)
}

// -------------------------------------------------------------------------
// Neighbors
// -------------------------------------------------------------------------

// ListNeighbors returns the neighbor cache, optionally filtered by
// interface and state.
func (s *NDServer) ListNeighbors(_ context.Context, req *ndapi.ListNeighborsRequest) (*ndapi.ListNeighborsResponse, error) {
	var (
		want    ndp.NeighborState
		byState bool
	)
	if req.State != "" {
		st, ok := ndp.ParseNeighborState(req.State)
		if !ok {
			return nil, invalidArgument("state", req.State, errBadState)
		}
		want, byState = st, true
	}

	resp := &ndapi.ListNeighborsResponse{Neighbors: []ndapi.Neighbor{}}
	for _, e := range s.stack.Neighbors() {
		if req.Interface != 0 && e.Interface != req.Interface {
			continue
		}
		if byState && e.State != want {
			continue
		}
		resp.Neighbors = append(resp.Neighbors, neighborToAPI(e))
	}
	return resp, nil
}

// AddNeighbor creates or updates a neighbor entry.
func (s *NDServer) AddNeighbor(ctx context.Context, req *ndapi.AddNeighborRequest) (*ndapi.AddNeighborResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}

	spec := ndp.NeighborSpec{
		Addr:      addr,
		Interface: req.Interface,
		Static:    req.Static,
	}
	if req.LinkAddr != "" {
		la, err := ndp.ParseLinkAddr(req.LinkAddr)
		if err != nil {
			return nil, invalidArgument("link_addr", req.LinkAddr, err)
		}
		spec.LinkAddr = la
	}
	if req.State != "" {
		st, ok := ndp.ParseNeighborState(req.State)
		if !ok {
			return nil, invalidArgument("state", req.State, errBadState)
		}
		spec.State = st
	}

	e, err := s.stack.AddNeighbor(ctx, spec)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "neighbor added",
		slog.String("addr", addr.String()),
		slog.Int("iface", req.Interface),
		slog.String("state", e.State.String()),
		slog.Bool("static", e.Static),
	)
	return &ndapi.AddNeighborResponse{Neighbor: neighborToAPI(e)}, nil
}

// DeleteNeighbor removes a neighbor entry.
func (s *NDServer) DeleteNeighbor(ctx context.Context, req *ndapi.DeleteNeighborRequest) (*ndapi.DeleteNeighborResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}
	if err := s.stack.DeleteNeighbor(ctx, addr); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "neighbor deleted", slog.String("addr", addr.String()))
	return &ndapi.DeleteNeighborResponse{}, nil
}

// FlushNeighbors deletes every dynamic neighbor entry. Static entries
// survive.
func (s *NDServer) FlushNeighbors(ctx context.Context, _ *ndapi.FlushNeighborsRequest) (*ndapi.FlushNeighborsResponse, error) {
	return &ndapi.FlushNeighborsResponse{Flushed: s.stack.FlushNeighbors(ctx)}, nil
}

// ResolveNeighbor returns the link address of a resolved neighbor or
// starts address resolution without queueing a packet.
func (s *NDServer) ResolveNeighbor(ctx context.Context, req *ndapi.ResolveNeighborRequest) (*ndapi.ResolveNeighborResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}

	la, ok, err := s.stack.Resolve(ctx, addr, req.Interface, netip.Addr{}, nil)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &ndapi.ResolveNeighborResponse{Resolved: ok}
	if ok {
		resp.LinkAddr = la.String()
	}
	return resp, nil
}

// -------------------------------------------------------------------------
// Routers
// -------------------------------------------------------------------------

// ListRouters returns the default router list.
func (s *NDServer) ListRouters(_ context.Context, _ *ndapi.ListRoutersRequest) (*ndapi.ListRoutersResponse, error) {
	routers := s.stack.Routers()
	resp := &ndapi.ListRoutersResponse{Routers: make([]ndapi.Router, 0, len(routers))}
	for _, r := range routers {
		resp.Routers = append(resp.Routers, routerToAPI(r))
	}
	return resp, nil
}

// AddRouter adds a static default router.
func (s *NDServer) AddRouter(ctx context.Context, req *ndapi.AddRouterRequest) (*ndapi.AddRouterResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}

	lifetime := req.Lifetime
	if lifetime == 0 {
		lifetime = ndp.InfiniteRouterLifetime
	}

	r, err := s.stack.AddRouter(addr, req.Interface, lifetime, ndp.RouterStatic)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "router added",
		slog.String("router", addr.String()),
		slog.Int("iface", req.Interface),
	)
	return &ndapi.AddRouterResponse{Router: routerToAPI(r)}, nil
}

// DeleteRouter removes a default router.
func (s *NDServer) DeleteRouter(ctx context.Context, req *ndapi.DeleteRouterRequest) (*ndapi.DeleteRouterResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}
	if err := s.stack.DeleteRouter(addr); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "router deleted", slog.String("router", addr.String()))
	return &ndapi.DeleteRouterResponse{}, nil
}

// -------------------------------------------------------------------------
// Prefixes
// -------------------------------------------------------------------------

// ListPrefixes returns the on-link prefix list, longest first.
func (s *NDServer) ListPrefixes(_ context.Context, _ *ndapi.ListPrefixesRequest) (*ndapi.ListPrefixesResponse, error) {
	prefixes := s.stack.Prefixes()
	resp := &ndapi.ListPrefixesResponse{Prefixes: make([]ndapi.Prefix, 0, len(prefixes))}
	for _, p := range prefixes {
		resp.Prefixes = append(resp.Prefixes, ndapi.Prefix{
			Prefix:        p.Prefix.String(),
			ValidLifetime: p.ValidLifetime,
		})
	}
	return resp, nil
}

// AddPrefix adds an on-link prefix. Re-adding an existing prefix refreshes
// its lifetime and succeeds.
func (s *NDServer) AddPrefix(ctx context.Context, req *ndapi.AddPrefixRequest) (*ndapi.AddPrefixResponse, error) {
	prefix, err := parsePrefix("prefix", req.Prefix)
	if err != nil {
		return nil, err
	}

	lifetime := req.Lifetime
	if lifetime == 0 {
		lifetime = ndp.InfiniteLifetime
	}
	if err := s.stack.AddPrefix(prefix.Masked(), lifetime); err != nil && !errors.Is(err, ndp.ErrDuplicate) {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "prefix added", slog.String("prefix", prefix.Masked().String()))
	return &ndapi.AddPrefixResponse{}, nil
}

// DeletePrefix removes an on-link prefix.
func (s *NDServer) DeletePrefix(ctx context.Context, req *ndapi.DeletePrefixRequest) (*ndapi.DeletePrefixResponse, error) {
	prefix, err := parsePrefix("prefix", req.Prefix)
	if err != nil {
		return nil, err
	}
	if err := s.stack.DeletePrefix(ctx, prefix.Masked()); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "prefix deleted", slog.String("prefix", prefix.Masked().String()))
	return &ndapi.DeletePrefixResponse{}, nil
}

// CheckOnLink reports whether an address is on-link.
func (s *NDServer) CheckOnLink(_ context.Context, req *ndapi.CheckOnLinkRequest) (*ndapi.CheckOnLinkResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}
	return &ndapi.CheckOnLinkResponse{OnLink: s.stack.OnLink(addr)}, nil
}

// -------------------------------------------------------------------------
// Interfaces and addresses
// -------------------------------------------------------------------------

// ListInterfaces returns the interfaces Neighbor Discovery runs on.
func (s *NDServer) ListInterfaces(_ context.Context, _ *ndapi.ListInterfacesRequest) (*ndapi.ListInterfacesResponse, error) {
	ifaces := s.stack.Interfaces()
	resp := &ndapi.ListInterfacesResponse{Interfaces: make([]ndapi.Interface, 0, len(ifaces))}
	for _, st := range ifaces {
		mtu := st.MTU
		if mtu == 0 {
			mtu = 1500
		}
		resp.Interfaces = append(resp.Interfaces, ndapi.Interface{
			Index:        st.Index,
			Name:         st.Name,
			LinkAddr:     linkAddrString(st.LinkAddr),
			MTU:          mtu,
			Autoconf:     st.Autoconf,
			Up:           st.Up,
			SolicitsLeft: st.SolicitsLeft,
		})
	}
	return resp, nil
}

// ListAddresses returns the interface addresses, optionally for one
// interface.
func (s *NDServer) ListAddresses(_ context.Context, req *ndapi.ListAddressesRequest) (*ndapi.ListAddressesResponse, error) {
	resp := &ndapi.ListAddressesResponse{Addresses: []ndapi.Address{}}
	for _, a := range s.stack.Addresses() {
		if req.Interface != 0 && a.Interface != req.Interface {
			continue
		}
		resp.Addresses = append(resp.Addresses, ndapi.Address{
			Prefix:    a.Prefix.String(),
			Interface: a.Interface,
			State:     a.State.String(),
			Method:    a.Method.String(),
		})
	}
	return resp, nil
}

// AddAddress configures an interface address.
func (s *NDServer) AddAddress(ctx context.Context, req *ndapi.AddAddressRequest) (*ndapi.AddAddressResponse, error) {
	prefix, err := parsePrefix("prefix", req.Prefix)
	if err != nil {
		return nil, err
	}

	method := ndp.MethodManual
	if req.Method != "" {
		m, ok := parseAddressMethod(req.Method)
		if !ok {
			return nil, invalidArgument("method", req.Method, errBadMethod)
		}
		method = m
	}

	if err := s.stack.AddAddress(ctx, req.Interface, prefix, method); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "address added",
		slog.String("addr", prefix.String()),
		slog.Int("iface", req.Interface),
		slog.String("method", method.String()),
	)
	return &ndapi.AddAddressResponse{}, nil
}

// RemoveAddress deletes an interface address.
func (s *NDServer) RemoveAddress(ctx context.Context, req *ndapi.RemoveAddressRequest) (*ndapi.RemoveAddressResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}
	if err := s.stack.RemoveAddress(ctx, addr); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.InfoContext(ctx, "address removed", slog.String("addr", addr.String()))
	return &ndapi.RemoveAddressResponse{}, nil
}

// SetAddressState moves an interface address to a new lifecycle state.
func (s *NDServer) SetAddressState(ctx context.Context, req *ndapi.SetAddressStateRequest) (*ndapi.SetAddressStateResponse, error) {
	addr, err := parseAddr("addr", req.Addr)
	if err != nil {
		return nil, err
	}
	state, ok := parseAddressState(req.State)
	if !ok {
		return nil, invalidArgument("state", req.State, errBadState)
	}
	if err := s.stack.SetAddressState(ctx, addr, state); err != nil {
		return nil, toConnectError(err)
	}
	return &ndapi.SetAddressStateResponse{}, nil
}

// -------------------------------------------------------------------------
// Diagnostics
// -------------------------------------------------------------------------

// Ping builds an ICMPv6 Echo Request and hands it to the send path: next
// hop selection, address resolution and frame transmission. A request
// whose next hop is unresolved stays queued on the neighbor entry.
func (s *NDServer) Ping(ctx context.Context, req *ndapi.PingRequest) (*ndapi.PingResponse, error) {
	dst, err := parseAddr("dst", req.Dst)
	if err != nil {
		return nil, err
	}

	var src netip.Addr
	if req.Source != "" {
		if src, err = parseAddr("source", req.Source); err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if src, ok = s.stack.SourceAddress(req.Interface, dst); !ok {
			return nil, connect.NewError(connect.CodeFailedPrecondition,
				fmt.Errorf("interface %d: %w", req.Interface, errNoSource))
		}
	}

	nh, err := s.stack.NextHop(dst, req.Interface)
	if err != nil {
		return nil, toConnectError(err)
	}

	hopLimit := s.stack.HopLimit()
	if hopLimit == 0 {
		hopLimit = defaultPingHopLimit
	}
	raw, err := s.codec.EncodeEchoRequest(netio.Echo{
		Src:      src,
		Dst:      dst,
		HopLimit: hopLimit,
		ID:       s.echoID,
		Seq:      req.Seq,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if err := s.stack.Send(ctx, dst, req.Interface, src, &netio.Frame{Data: raw}); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.DebugContext(ctx, "echo request sent",
		slog.String("dst", dst.String()),
		slog.String("next_hop", nh.String()),
		slog.String("src", src.String()),
	)
	return &ndapi.PingResponse{NextHop: nh.String(), Source: src.String()}, nil
}

// WatchEvents streams neighbor state changes until the client disconnects.
// With IncludeCurrent the existing entries are sent first, each as a
// transition from Invalid.
func (s *NDServer) WatchEvents(ctx context.Context, req *ndapi.WatchEventsRequest, stream *connect.ServerStream[ndapi.Event]) error {
	events, cancel := s.stack.Subscribe(watchBuffer)
	defer cancel()

	if req.IncludeCurrent {
		now := time.Now()
		for _, e := range s.stack.Neighbors() {
			ev := ndapi.Event{
				Timestamp: now,
				Addr:      e.Addr.String(),
				Interface: e.Interface,
				LinkAddr:  linkAddrString(e.LinkAddr),
				OldState:  ndp.StateInvalid.String(),
				NewState:  e.State.String(),
			}
			if err := stream.Send(&ev); err != nil {
				return fmt.Errorf("%w: %w", errEventStream, err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			out := eventToAPI(ev, time.Now())
			if err := stream.Send(&out); err != nil {
				return fmt.Errorf("%w: %w", errEventStream, err)
			}
		}
	}
}

// -------------------------------------------------------------------------
// Conversion and errors
// -------------------------------------------------------------------------

// toConnectError maps Stack sentinels to connect codes.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, ndp.ErrNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ndp.ErrTableFull):
		code = connect.CodeResourceExhausted
	case errors.Is(err, ndp.ErrDuplicate):
		code = connect.CodeAlreadyExists
	case errors.Is(err, ndp.ErrInvalidAddress),
		errors.Is(err, ndp.ErrInvalidState),
		errors.Is(err, ndp.ErrInvalidInterface):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ndp.ErrDisabled),
		errors.Is(err, ndp.ErrUnreachable):
		code = connect.CodeFailedPrecondition
	}
	return connect.NewError(code, err)
}

func invalidArgument(field, value string, err error) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s %q: %w", field, value, err))
}

func parseAddr(field, s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return netip.Addr{}, invalidArgument(field, s, errBadAddress)
	}
	return addr, nil
}

func parsePrefix(field, s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil || !prefix.Addr().Is6() || prefix.Addr().Is4In6() {
		return netip.Prefix{}, invalidArgument(field, s, errBadPrefix)
	}
	return prefix, nil
}

func parseAddressState(name string) (ndp.AddressState, bool) {
	for st := ndp.AddressUnknown; st <= ndp.AddressValid; st++ {
		if st.String() == name {
			return st, true
		}
	}
	return ndp.AddressUnknown, false
}

func parseAddressMethod(name string) (ndp.AddressMethod, bool) {
	for m := ndp.MethodManual; m <= ndp.MethodDHCP; m++ {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

func linkAddrString(la ndp.LinkAddr) string {
	if la.IsZero() {
		return ""
	}
	return la.String()
}

func neighborToAPI(e ndp.NeighborEntry) ndapi.Neighbor {
	return ndapi.Neighbor{
		Addr:         e.Addr.String(),
		Interface:    e.Interface,
		LinkAddr:     linkAddrString(e.LinkAddr),
		State:        e.State.String(),
		Static:       e.Static,
		IsRouter:     e.IsRouter,
		SolicitsLeft: e.SolicitsLeft,
		ExpiresIn:    e.ExpiresIn,
		Idle:         e.Idle,
		Queued:       e.Queued,
	}
}

func routerToAPI(r ndp.RouterEntry) ndapi.Router {
	return ndapi.Router{
		Addr:          r.Addr.String(),
		Interface:     r.Interface,
		Lifetime:      r.Lifetime,
		Kind:          r.Kind.String(),
		NeighborState: r.NeighborState.String(),
	}
}

func eventToAPI(ev ndp.NeighborEvent, ts time.Time) ndapi.Event {
	return ndapi.Event{
		Timestamp: ts,
		Addr:      ev.Addr.String(),
		Interface: ev.Interface,
		LinkAddr:  linkAddrString(ev.LinkAddr),
		OldState:  ev.OldState.String(),
		NewState:  ev.NewState.String(),
	}
}
