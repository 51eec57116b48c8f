//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxPacketConn: RFC 4861 socket requirements
// -------------------------------------------------------------------------

// LinuxPacketConn implements PacketConn over a raw ICMPv6 socket bound to
// one interface.
//
// Socket configuration:
//  1. SO_BINDTODEVICE so only the bound link's traffic is seen
//  2. Unicast and multicast Hop Limit 255 on TX (RFC 4861 Section 7.1.2)
//  3. IPV6_RECVHOPLIMIT and IPV6_RECVPKTINFO for RX validation
//  4. ICMPv6 filter passing Router and Neighbor Advertisements only
//  5. Membership in the all-nodes group ff02::1
type LinuxPacketConn struct {
	conn   net.PacketConn
	pc     *ipv6.PacketConn
	ifi    *net.Interface
	closed bool
	mu     sync.Mutex
}

// ErrUnexpectedConnType indicates net.ListenPacket returned an unexpected
// connection type instead of *net.IPConn.
var ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

// NewLinuxPacketConn opens the ND socket for the named interface.
func NewLinuxPacketConn(ctx context.Context, ifName string) (*LinuxPacketConn, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %s: %w", ifName, err)
	}

	conn, err := listenICMPv6(ctx, ifName)
	if err != nil {
		return nil, fmt.Errorf("ND socket on %s: %w", ifName, err)
	}

	pc := ipv6.NewPacketConn(conn)
	if err := configureConn(pc, ifi); err != nil {
		return nil, errors.Join(fmt.Errorf("configure ND socket on %s: %w", ifName, err), conn.Close())
	}

	return &LinuxPacketConn{
		conn: conn,
		pc:   pc,
		ifi:  ifi,
	}, nil
}

// listenICMPv6 creates the raw socket and binds it to the interface.
func listenICMPv6(ctx context.Context, ifName string) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c, ifName)
		},
	}

	conn, err := lc.ListenPacket(ctx, "ip6:ipv6-icmp", "::")
	if err != nil {
		return nil, fmt.Errorf("listen ip6:ipv6-icmp: %w", err)
	}

	if _, ok := conn.(*net.IPConn); !ok {
		return nil, errors.Join(ErrUnexpectedConnType, conn.Close())
	}

	return conn, nil
}

// setSocketOpts binds the socket to ifName via the Control callback.
func setSocketOpts(c syscall.RawConn, ifName string) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		if err := unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); err != nil {
			sockErr = fmt.Errorf("set SO_BINDTODEVICE(%s): %w", ifName, err)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}

// configureConn applies the ICMPv6 options through x/net/ipv6.
func configureConn(pc *ipv6.PacketConn, ifi *net.Interface) error {
	var filter ipv6.ICMPFilter
	filter.SetAll(true)
	filter.Accept(ipv6.ICMPTypeRouterAdvertisement)
	filter.Accept(ipv6.ICMPTypeNeighborAdvertisement)

	if err := pc.SetICMPFilter(&filter); err != nil {
		return fmt.Errorf("set ICMPv6 filter: %w", err)
	}
	if err := pc.SetHopLimit(int(hopLimitRequired)); err != nil {
		return fmt.Errorf("set IPV6_UNICAST_HOPS: %w", err)
	}
	if err := pc.SetMulticastHopLimit(int(hopLimitRequired)); err != nil {
		return fmt.Errorf("set IPV6_MULTICAST_HOPS: %w", err)
	}
	if err := pc.SetMulticastLoopback(false); err != nil {
		return fmt.Errorf("set IPV6_MULTICAST_LOOP: %w", err)
	}
	if err := pc.SetControlMessage(ipv6.FlagHopLimit|ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
		return fmt.Errorf("enable control messages: %w", err)
	}
	if err := pc.JoinGroup(ifi, &net.IPAddr{IP: AllNodes.AsSlice()}); err != nil {
		return fmt.Errorf("join %s: %w", AllNodes, err)
	}
	return nil
}

// ReadPacket reads one ICMPv6 message and its ancillary metadata.
func (c *LinuxPacketConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	n, cm, src, err := c.pc.ReadFrom(buf)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("read ND packet: %w", err)
	}

	meta := PacketMeta{IfIndex: c.ifi.Index}
	if ipa, ok := src.(*net.IPAddr); ok {
		if a, ok := netip.AddrFromSlice(ipa.IP); ok {
			meta.SrcAddr = a
		}
	}
	if cm != nil {
		meta.HopLimit = uint8(cm.HopLimit) //nolint:gosec // G115: hop limit is a single octet on the wire.
		if a, ok := netip.AddrFromSlice(cm.Dst); ok {
			meta.DstAddr = a
		}
		if cm.IfIndex != 0 {
			meta.IfIndex = cm.IfIndex
		}
	}

	return n, meta, nil
}

// WritePacket sends buf to dst on the bound interface.
func (c *LinuxPacketConn) WritePacket(buf []byte, src, dst netip.Addr) error {
	cm := &ipv6.ControlMessage{
		HopLimit: int(hopLimitRequired),
		IfIndex:  c.ifi.Index,
	}
	if src.IsValid() {
		cm.Src = src.AsSlice()
	}

	to := &net.IPAddr{IP: dst.AsSlice()}
	if dst.IsLinkLocalUnicast() || dst.IsLinkLocalMulticast() {
		to.Zone = c.ifi.Name
	}

	if _, err := c.pc.WriteTo(buf, cm, to); err != nil {
		return fmt.Errorf("write ND packet to %s: %w", dst, err)
	}
	return nil
}

// JoinGroup joins group on the bound interface.
func (c *LinuxPacketConn) JoinGroup(group netip.Addr) error {
	if err := c.pc.JoinGroup(c.ifi, &net.IPAddr{IP: group.AsSlice()}); err != nil {
		return fmt.Errorf("join %s on %s: %w", group, c.ifi.Name, err)
	}
	return nil
}

// LeaveGroup leaves group on the bound interface.
func (c *LinuxPacketConn) LeaveGroup(group netip.Addr) error {
	if err := c.pc.LeaveGroup(c.ifi, &net.IPAddr{IP: group.AsSlice()}); err != nil {
		return fmt.Errorf("leave %s on %s: %w", group, c.ifi.Name, err)
	}
	return nil
}

// IfIndex returns the bound interface index.
func (c *LinuxPacketConn) IfIndex() int {
	return c.ifi.Index
}

// Close releases the underlying socket.
func (c *LinuxPacketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close ND socket: %w", err)
	}
	return nil
}
