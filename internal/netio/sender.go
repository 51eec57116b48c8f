package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/dantte-lp/gond/internal/ndp"
)

// Sender implements ndp.Solicitor and ndp.LinkLayer over one PacketConn
// per interface. Solicitations carry the interface's own link address in
// the Source Link-Layer Address option.
type Sender struct {
	codec  *Codec
	logger *slog.Logger

	mu    sync.RWMutex
	links map[int]senderLink
}

type senderLink struct {
	conn     PacketConn
	linkAddr ndp.LinkAddr
}

// NewSender creates a Sender with no interfaces.
func NewSender(codec *Codec, logger *slog.Logger) *Sender {
	return &Sender{
		codec:  codec,
		links:  make(map[int]senderLink),
		logger: logger.With(slog.String("component", "netio.sender")),
	}
}

// Register makes conn the ND socket of its interface. la is the
// interface's link address.
func (s *Sender) Register(conn PacketConn, la ndp.LinkAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[conn.IfIndex()] = senderLink{conn: conn, linkAddr: la}
}

// Unregister forgets the socket of ifIndex. The socket is not closed.
func (s *Sender) Unregister(ifIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, ifIndex)
}

func (s *Sender) link(ifIndex int) (senderLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[ifIndex]
	if !ok {
		return senderLink{}, fmt.Errorf("ifindex %d: %w", ifIndex, ErrNoConn)
	}
	return l, nil
}

// SendNeighborSolicit sends a Neighbor Solicitation (RFC 4861 Section
// 7.2.2). Address resolution goes to the target's solicited-node group;
// unicast probes go to the target itself.
func (s *Sender) SendNeighborSolicit(_ context.Context, sol ndp.Solicitation) error {
	l, err := s.link(sol.Interface)
	if err != nil {
		return err
	}

	dst := ndp.SolicitedNodeMulticast(sol.Target)
	if sol.Unicast {
		dst = sol.Target
	}

	b, err := s.codec.EncodeNeighborSolicit(sol.Target, l.linkAddr)
	if err != nil {
		return err
	}

	if err := l.conn.WritePacket(b, sol.Source, dst); err != nil {
		return fmt.Errorf("neighbor solicitation for %s: %w", sol.Target, err)
	}

	s.logger.Debug("neighbor solicitation sent",
		slog.String("target", sol.Target.String()),
		slog.String("dst", dst.String()),
		slog.Int("ifindex", sol.Interface),
	)
	return nil
}

// SendRouterSolicit sends a Router Solicitation to all-routers
// (RFC 4861 Section 6.3.7).
func (s *Sender) SendRouterSolicit(_ context.Context, iface int) error {
	l, err := s.link(iface)
	if err != nil {
		return err
	}

	b, err := s.codec.EncodeRouterSolicit(l.linkAddr)
	if err != nil {
		return err
	}

	if err := l.conn.WritePacket(b, netip.Addr{}, AllRouters); err != nil {
		return fmt.Errorf("router solicitation: %w", err)
	}

	s.logger.Debug("router solicitation sent", slog.Int("ifindex", iface))
	return nil
}

// JoinGroup joins group on the interface's ND socket.
func (s *Sender) JoinGroup(iface int, group netip.Addr) error {
	l, err := s.link(iface)
	if err != nil {
		return err
	}
	return l.conn.JoinGroup(group)
}

// LeaveGroup leaves group on the interface's ND socket.
func (s *Sender) LeaveGroup(iface int, group netip.Addr) error {
	l, err := s.link(iface)
	if err != nil {
		return err
	}
	return l.conn.LeaveGroup(group)
}
