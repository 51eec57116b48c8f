package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/dantte-lp/gond/internal/ndp"
)

// -------------------------------------------------------------------------
// Message
// -------------------------------------------------------------------------

// MessageKind identifies a decoded ND message.
type MessageKind uint8

const (
	// KindRouterAdvert is a Router Advertisement (type 134).
	KindRouterAdvert MessageKind = iota + 1

	// KindNeighborAdvert is a Neighbor Advertisement (type 136).
	KindNeighborAdvert
)

// String returns the message name used in logs and metric labels.
func (k MessageKind) String() string {
	switch k {
	case KindRouterAdvert:
		return "router_advert"
	case KindNeighborAdvert:
		return "neighbor_advert"
	default:
		return "unknown"
	}
}

// Message is a decoded ND message. Exactly one of RouterAdvert and
// NeighborAdvert is meaningful, selected by Kind.
type Message struct {
	Kind           MessageKind
	RouterAdvert   ndp.RouterAdvert
	NeighborAdvert ndp.NeighborAdvert
}

var (
	// ErrMalformed indicates an ND message that fails RFC 4861 validity
	// checks.
	ErrMalformed = errors.New("malformed ND message")

	// ErrUnsupportedType indicates an ICMPv6 type the codec does not
	// decode.
	ErrUnsupportedType = errors.New("unsupported ICMPv6 type")

	// ErrNotIPv6 indicates an IPv4 or invalid address where IPv6 is
	// required.
	ErrNotIPv6 = errors.New("address is not IPv6")
)

// Option field layouts (RFC 4861 Section 4.6). gopacket strips the
// type and length octets, so offsets are relative to the option body.
const (
	prefixInfoLen   = 30
	prefixFlagL     = 0x80
	prefixFlagA     = 0x40
	mtuOptionLen    = 6
	naFlagRouter    = 0x80
	naFlagSolicited = 0x40
	naFlagOverride  = 0x20
)

// -------------------------------------------------------------------------
// Codec
// -------------------------------------------------------------------------

// Codec encodes outbound solicitations and decodes inbound advertisements.
// Messages start at the ICMPv6 header; the IPv6 header belongs to the
// socket. Checksums are left to the kernel (IPV6_CHECKSUM is implicit on
// raw ICMPv6 sockets).
type Codec struct {
	opts gopacket.SerializeOptions
}

// NewCodec creates a Codec.
func NewCodec() *Codec {
	return &Codec{opts: gopacket.SerializeOptions{FixLengths: true}}
}

// EncodeNeighborSolicit builds a Neighbor Solicitation for target
// (RFC 4861 Section 4.3). The Source Link-Layer Address option is
// included unless sll is zero.
func (c *Codec) EncodeNeighborSolicit(target netip.Addr, sll ndp.LinkAddr) ([]byte, error) {
	ns := &layers.ICMPv6NeighborSolicitation{
		TargetAddress: net.IP(target.AsSlice()),
	}
	if !sll.IsZero() {
		ns.Options = append(ns.Options, layers.ICMPv6Option{
			Type: layers.ICMPv6OptSourceAddress,
			Data: sll[:],
		})
	}

	return c.serialize(layers.ICMPv6TypeNeighborSolicitation, ns)
}

// EncodeRouterSolicit builds a Router Solicitation (RFC 4861 Section 4.1).
func (c *Codec) EncodeRouterSolicit(sll ndp.LinkAddr) ([]byte, error) {
	rs := &layers.ICMPv6RouterSolicitation{}
	if !sll.IsZero() {
		rs.Options = append(rs.Options, layers.ICMPv6Option{
			Type: layers.ICMPv6OptSourceAddress,
			Data: sll[:],
		})
	}

	return c.serialize(layers.ICMPv6TypeRouterSolicitation, rs)
}

// Echo describes an ICMPv6 Echo Request (RFC 4443 Section 4.1).
type Echo struct {
	Src, Dst netip.Addr
	HopLimit uint8
	ID, Seq  uint16
	Payload  []byte
}

// EncodeEchoRequest builds a complete IPv6 datagram carrying an Echo
// Request. Unlike the ND messages it bypasses the ICMPv6 socket, so the
// IPv6 header and checksum are filled in here.
func (c *Codec) EncodeEchoRequest(e Echo) ([]byte, error) {
	if !e.Src.Is6() || !e.Dst.Is6() {
		return nil, fmt.Errorf("echo %s -> %s: %w", e.Src, e.Dst, ErrNotIPv6)
	}

	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   e.HopLimit,
		SrcIP:      net.IP(e.Src.AsSlice()),
		DstIP:      net.IP(e.Dst.AsSlice()),
	}
	icmp := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0),
	}
	if err := icmp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("echo checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ip,
		icmp,
		&layers.ICMPv6Echo{Identifier: e.ID, SeqNumber: e.Seq},
		gopacket.Payload(e.Payload),
	)
	if err != nil {
		return nil, fmt.Errorf("serialize echo request: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) serialize(typ uint8, body gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, c.opts,
		&layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(typ, 0)},
		body,
	)
	if err != nil {
		return nil, fmt.Errorf("serialize ICMPv6 type %d: %w", typ, err)
	}
	return buf.Bytes(), nil
}

// Decode parses an ICMPv6 message received with meta. Only Router and
// Neighbor Advertisements are decoded; other types return
// ErrUnsupportedType.
func (c *Codec) Decode(b []byte, meta PacketMeta) (Message, error) {
	var icmp layers.ICMPv6
	if err := icmp.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return Message{}, fmt.Errorf("decode ICMPv6 header: %w: %w", ErrMalformed, err)
	}

	// RFC 4861 Sections 6.1.2, 7.1.2: ICMP Code is 0.
	if icmp.TypeCode.Code() != 0 {
		return Message{}, fmt.Errorf("ICMPv6 code %d: %w", icmp.TypeCode.Code(), ErrMalformed)
	}

	switch icmp.TypeCode.Type() {
	case layers.ICMPv6TypeRouterAdvertisement:
		ra, err := decodeRouterAdvert(icmp.Payload, meta)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindRouterAdvert, RouterAdvert: ra}, nil

	case layers.ICMPv6TypeNeighborAdvertisement:
		na, err := decodeNeighborAdvert(icmp.Payload, meta)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindNeighborAdvert, NeighborAdvert: na}, nil

	default:
		return Message{}, fmt.Errorf("ICMPv6 type %d: %w", icmp.TypeCode.Type(), ErrUnsupportedType)
	}
}

// decodeRouterAdvert parses a Router Advertisement body (RFC 4861
// Section 4.2). Unknown options are skipped.
func decodeRouterAdvert(body []byte, meta PacketMeta) (ndp.RouterAdvert, error) {
	var msg layers.ICMPv6RouterAdvertisement
	if err := msg.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
		return ndp.RouterAdvert{}, fmt.Errorf("decode router advertisement: %w: %w", ErrMalformed, err)
	}

	ra := ndp.RouterAdvert{
		Source:         meta.SrcAddr,
		Destination:    meta.DstAddr,
		Interface:      meta.IfIndex,
		HopLimit:       msg.HopLimit,
		Flags:          msg.Flags,
		RouterLifetime: msg.RouterLifetime,
		ReachableTime:  msg.ReachableTime,
		RetransTimer:   msg.RetransTimer,
	}

	for _, opt := range msg.Options {
		switch opt.Type {
		case layers.ICMPv6OptSourceAddress:
			if la, ok := linkAddrOption(opt.Data); ok {
				ra.SourceLinkAddr = la
				ra.HasSourceLinkAddr = true
			}
		case layers.ICMPv6OptPrefixInfo:
			if pi, ok := prefixInfoOption(opt.Data); ok {
				ra.Prefixes = append(ra.Prefixes, pi)
			}
		case layers.ICMPv6OptMTU:
			if len(opt.Data) == mtuOptionLen {
				ra.MTU = binary.BigEndian.Uint32(opt.Data[2:6])
			}
		}
	}

	return ra, nil
}

// decodeNeighborAdvert parses a Neighbor Advertisement body (RFC 4861
// Section 4.4) and applies the Section 7.1.2 validity checks.
func decodeNeighborAdvert(body []byte, meta PacketMeta) (ndp.NeighborAdvert, error) {
	var msg layers.ICMPv6NeighborAdvertisement
	if err := msg.DecodeFromBytes(body, gopacket.NilDecodeFeedback); err != nil {
		return ndp.NeighborAdvert{}, fmt.Errorf("decode neighbor advertisement: %w: %w", ErrMalformed, err)
	}

	target, ok := netip.AddrFromSlice(msg.TargetAddress)
	if !ok || !target.Is6() || target.IsMulticast() {
		return ndp.NeighborAdvert{}, fmt.Errorf("target %v: %w", msg.TargetAddress, ErrMalformed)
	}

	na := ndp.NeighborAdvert{
		Source:    meta.SrcAddr,
		Target:    target,
		Interface: meta.IfIndex,
		Router:    msg.Flags&naFlagRouter != 0,
		Solicited: msg.Flags&naFlagSolicited != 0,
		Override:  msg.Flags&naFlagOverride != 0,
	}

	// A solicited advertisement is always unicast.
	if na.Solicited && meta.DstAddr.IsMulticast() {
		return ndp.NeighborAdvert{}, fmt.Errorf("solicited advertisement to %s: %w", meta.DstAddr, ErrMalformed)
	}

	for _, opt := range msg.Options {
		if opt.Type != layers.ICMPv6OptTargetAddress {
			continue
		}
		if la, ok := linkAddrOption(opt.Data); ok {
			na.TargetLinkAddr = la
			na.HasTargetLinkAddr = true
		}
	}

	return na, nil
}

// linkAddrOption reads an Ethernet link-layer address option body.
func linkAddrOption(data []byte) (ndp.LinkAddr, bool) {
	var la ndp.LinkAddr
	if len(data) < len(la) {
		return la, false
	}
	copy(la[:], data)
	return la, true
}

// prefixInfoOption reads a Prefix Information option body
// (RFC 4861 Section 4.6.2).
func prefixInfoOption(data []byte) (ndp.PrefixInfo, bool) {
	if len(data) != prefixInfoLen {
		return ndp.PrefixInfo{}, false
	}

	bits := int(data[0])
	addr := netip.AddrFrom16([16]byte(data[14:30]))
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ndp.PrefixInfo{}, false
	}

	return ndp.PrefixInfo{
		Prefix:            prefix,
		OnLink:            data[1]&prefixFlagL != 0,
		Autonomous:        data[1]&prefixFlagA != 0,
		ValidLifetime:     binary.BigEndian.Uint32(data[2:6]),
		PreferredLifetime: binary.BigEndian.Uint32(data[6:10]),
	}, true
}
