//go:build linux

package netio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// FrameTransmitter: AF_PACKET IPv6 datagrams
// -------------------------------------------------------------------------

// FrameTransmitter implements ndp.Transmitter over an AF_PACKET/SOCK_DGRAM
// socket: the kernel builds the Ethernet header from the destination
// link address and the IPv6 ethertype.
type FrameTransmitter struct {
	mu     sync.Mutex
	fd     int
	closed bool
	logger *slog.Logger
}

// NewFrameTransmitter opens the packet socket. Requires CAP_NET_RAW.
func NewFrameTransmitter(logger *slog.Logger) (*FrameTransmitter, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, int(htons(unix.ETH_P_IPV6)))
	if err != nil {
		return nil, fmt.Errorf("open AF_PACKET socket: %w", err)
	}

	return &FrameTransmitter{
		fd:     fd,
		logger: logger.With(slog.String("component", "netio.frame")),
	}, nil
}

// Transmit sends pkt to dst on iface. The frame is released if the send
// fails.
func (t *FrameTransmitter) Transmit(_ context.Context, iface int, dst ndp.LinkAddr, pkt ndp.Packet) error {
	f, ok := pkt.(*Frame)
	if !ok {
		pkt.Release()
		return fmt.Errorf("transmit %T: %w", pkt, ErrPacketType)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  iface,
		Halen:    uint8(len(dst)),
	}
	copy(sa.Addr[:], dst[:])

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		f.Release()
		return fmt.Errorf("transmit to %s: %w", dst, ErrSocketClosed)
	}

	if err := unix.Sendto(t.fd, f.Data, 0, sa); err != nil {
		f.Release()
		return fmt.Errorf("transmit %d bytes to %s on ifindex %d: %w", len(f.Data), dst, iface, err)
	}

	t.logger.Debug("frame transmitted",
		slog.String("dst", dst.String()),
		slog.Int("ifindex", iface),
		slog.Int("len", len(f.Data)),
	)
	return nil
}

// Close closes the packet socket.
func (t *FrameTransmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("close AF_PACKET socket: %w", err)
	}
	return nil
}

// htons converts v to network byte order as the kernel expects in
// sockaddr_ll and the socket protocol argument.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}
