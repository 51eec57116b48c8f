package netio

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// -------------------------------------------------------------------------
// Neighbor Discovery Constants: RFC 4861
// -------------------------------------------------------------------------

const (
	// hopLimitRequired is the mandatory IPv6 Hop Limit of every Neighbor
	// Discovery message (RFC 4861 Sections 6.1.2 and 7.1.2: "The IP Hop
	// Limit field has a value of 255"). It proves the sender is on-link.
	hopLimitRequired uint8 = 255

	// maxPacketSize bounds a received ND message. ND messages never
	// exceed the IPv6 minimum MTU in practice, but a Router Advertisement
	// with many options may approach the link MTU.
	maxPacketSize = 1500
)

// Well-known multicast groups (RFC 4291 Section 2.7.1).
var (
	// AllNodes is the link-local all-nodes group ff02::1. Unsolicited
	// Router and Neighbor Advertisements are sent to it.
	AllNodes = netip.MustParseAddr("ff02::1")

	// AllRouters is the link-local all-routers group ff02::2. Router
	// Solicitations are sent to it.
	AllRouters = netip.MustParseAddr("ff02::2")
)

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// PacketMeta contains transport-layer metadata extracted from received
// ICMPv6 messages via ancillary data (IPV6_PKTINFO, IPV6_HOPLIMIT).
type PacketMeta struct {
	// SrcAddr is the source IPv6 address from the IP header.
	SrcAddr netip.Addr

	// DstAddr is the destination IPv6 address from IPV6_PKTINFO. A
	// multicast destination marks an unsolicited advertisement.
	DstAddr netip.Addr

	// HopLimit is the Hop Limit from the received IPv6 header.
	// RFC 4861: MUST be 255.
	HopLimit uint8

	// IfIndex is the interface index on which the packet was received.
	IfIndex int
}

// -------------------------------------------------------------------------
// PacketConn Interface
// -------------------------------------------------------------------------

// PacketConn abstracts ICMPv6 send/receive on one interface. The
// implementation owns socket configuration (hop limit, ICMPv6 filter,
// interface binding).
//
// The interface is intentionally minimal to enable mock implementations
// for testing without CAP_NET_RAW.
type PacketConn interface {
	// ReadPacket reads a single ICMPv6 message (without the IPv6 header)
	// into buf. Returns the number of bytes read and transport metadata.
	ReadPacket(buf []byte) (n int, meta PacketMeta, err error)

	// WritePacket sends an ICMPv6 message from src to dst with Hop
	// Limit 255. An invalid src lets the kernel pick the source address.
	// The kernel fills in the ICMPv6 checksum.
	WritePacket(buf []byte, src, dst netip.Addr) error

	// JoinGroup joins the IPv6 multicast group on the bound interface.
	JoinGroup(group netip.Addr) error

	// LeaveGroup leaves the IPv6 multicast group on the bound interface.
	LeaveGroup(group netip.Addr) error

	// Close releases the underlying socket resources.
	Close() error

	// IfIndex returns the index of the interface the socket is bound to.
	IfIndex() int
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrHopLimitInvalid indicates a received ND message whose Hop Limit is
	// not 255 (RFC 4861 Sections 6.1.2, 7.1.2).
	ErrHopLimitInvalid = errors.New("hop limit validation failed")

	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrPoolType indicates the packet pool returned an unexpected type.
	ErrPoolType = errors.New("packet pool returned unexpected type")

	// ErrNoConn indicates no PacketConn is registered for an interface.
	ErrNoConn = errors.New("no ND socket for interface")
)

// -------------------------------------------------------------------------
// Hop Limit Validation: RFC 4861 Sections 6.1.2, 7.1.2
// -------------------------------------------------------------------------

// ValidateHopLimit checks the received Hop Limit. A router more than one
// hop away cannot forge an ND message with Hop Limit 255, so anything
// else is discarded.
func ValidateHopLimit(meta PacketMeta) error {
	if meta.HopLimit != hopLimitRequired {
		return fmt.Errorf(
			"hop limit %d, required %d (RFC 4861 Section 7.1.2): %w",
			meta.HopLimit, hopLimitRequired, ErrHopLimitInvalid,
		)
	}
	return nil
}

// -------------------------------------------------------------------------
// Buffer Pool
// -------------------------------------------------------------------------

// packetPool holds receive buffers of maxPacketSize bytes.
var packetPool = sync.Pool{
	New: func() any {
		b := make([]byte, maxPacketSize)
		return &b
	},
}
