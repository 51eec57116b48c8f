package ndp

import (
	"encoding/binary"
	"math/bits"
	"net"
	"net/netip"
	"strings"
)

// -------------------------------------------------------------------------
// Address Classification: RFC 4291 Section 2.4
// -------------------------------------------------------------------------

// AddrType is a bitmask describing the kind of an IPv6 address.
type AddrType uint16

const (
	// AddrUnicast marks any unicast address other than :: and ::1.
	AddrUnicast AddrType = 1 << iota

	// AddrMulticast marks ff00::/8.
	AddrMulticast

	// AddrLinkLocal marks fe80::/10 unicast addresses.
	AddrLinkLocal

	// AddrGlobal marks unicast addresses outside fe80::/10.
	// Site-local fec0::/10 is deprecated (RFC 3879) and classified here.
	AddrGlobal

	// AddrUnspecified marks ::.
	AddrUnspecified

	// AddrLoopback marks ::1.
	AddrLoopback

	// AddrAllNodeMcast marks ff01::1, ff02::1 and ff05::1:3.
	AddrAllNodeMcast

	// AddrAllRouterMcast marks ff01::2, ff02::2 and ff05::2.
	AddrAllRouterMcast

	// AddrSolicitedNodeMcast marks ff02::1:ff00:0/104 (RFC 4291 Section 2.7.1).
	AddrSolicitedNodeMcast
)

// Has reports whether all bits of f are set in t.
func (t AddrType) Has(f AddrType) bool {
	return t&f == f
}

// String returns the set flag names joined with "|".
func (t AddrType) String() string {
	if t == 0 {
		return "None"
	}

	names := []struct {
		flag AddrType
		name string
	}{
		{AddrUnicast, "Unicast"},
		{AddrMulticast, "Multicast"},
		{AddrLinkLocal, "LinkLocal"},
		{AddrGlobal, "Global"},
		{AddrUnspecified, "Unspecified"},
		{AddrLoopback, "Loopback"},
		{AddrAllNodeMcast, "AllNodeMcast"},
		{AddrAllRouterMcast, "AllRouterMcast"},
		{AddrSolicitedNodeMcast, "SolicitedNodeMcast"},
	}

	parts := make([]string, 0, 2)
	for _, n := range names {
		if t&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Classify returns the type bitmask of an IPv6 address. IPv4 and invalid
// addresses classify as zero.
//
// The unspecified address classifies as exactly AddrUnspecified and the
// loopback address as exactly AddrLoopback.
func Classify(a netip.Addr) AddrType {
	if !a.Is6() {
		return 0
	}

	w := words(a)

	switch {
	case w == [4]uint32{}:
		return AddrUnspecified
	case w == [4]uint32{0, 0, 0, 1}:
		return AddrLoopback
	case w[0]&0xFF000000 == 0xFF000000:
		return AddrMulticast | multicastScope(w)
	case w[0]&0xFFC00000 == 0xFE800000:
		return AddrUnicast | AddrLinkLocal
	default:
		return AddrUnicast | AddrGlobal
	}
}

// multicastScope returns the well-known group flag for a multicast address.
func multicastScope(w [4]uint32) AddrType {
	if w[1] != 0 {
		return 0
	}

	switch {
	case w[2] == 0 && w[3] == 1 && (w[0] == 0xFF010000 || w[0] == 0xFF020000):
		return AddrAllNodeMcast
	case w[0] == 0xFF050000 && w[2] == 0 && w[3] == 0x00010003:
		return AddrAllNodeMcast
	case w[2] == 0 && w[3] == 2 &&
		(w[0] == 0xFF010000 || w[0] == 0xFF020000 || w[0] == 0xFF050000):
		return AddrAllRouterMcast
	case w[0] == 0xFF020000 && w[2] == 1 && w[3]&0xFF000000 == 0xFF000000:
		return AddrSolicitedNodeMcast
	default:
		return 0
	}
}

// -------------------------------------------------------------------------
// Prefix comparison
// -------------------------------------------------------------------------

// MatchPrefix reports whether the first bits bits of a and b are equal.
// Full 32-bit words are compared directly and the remaining partial word
// is compared under a mask.
func MatchPrefix(a, b netip.Addr, bits int) bool {
	if bits <= 0 {
		return true
	}
	if bits > 128 {
		bits = 128
	}

	wa, wb := words(a), words(b)

	full := bits / 32
	for i := range full {
		if wa[i] != wb[i] {
			return false
		}
	}

	rem := bits % 32
	if rem == 0 {
		return true
	}

	mask := ^uint32(0) << (32 - rem)
	return wa[full]&mask == wb[full]&mask
}

// LongestPrefixMatch returns the number of leading bits a and b share,
// capped at maxBits. The word scan stops as soon as maxBits is reached.
func LongestPrefixMatch(a, b netip.Addr, maxBits int) int {
	if maxBits <= 0 {
		return 0
	}
	if maxBits > 128 {
		maxBits = 128
	}

	wa, wb := words(a), words(b)

	n := 0
	for i := range 4 {
		if n >= maxBits {
			break
		}
		if diff := wa[i] ^ wb[i]; diff != 0 {
			n += bits.LeadingZeros32(diff)
			break
		}
		n += 32
	}

	return min(n, maxBits)
}

// MaskPrefix zeroes the host bits of addr beyond length.
func MaskPrefix(addr netip.Addr, length int) netip.Prefix {
	p, err := addr.Prefix(length)
	if err != nil {
		return netip.Prefix{}
	}
	return p
}

// -------------------------------------------------------------------------
// Derived addresses
// -------------------------------------------------------------------------

// SolicitedNodeMulticast returns ff02::1:ffXX:XXXX built from the low
// 24 bits of addr (RFC 4291 Section 2.7.1).
func SolicitedNodeMulticast(addr netip.Addr) netip.Addr {
	src := addr.As16()
	return netip.AddrFrom16([16]byte{
		0xff, 0x02, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0x01, 0xff, src[13], src[14], src[15],
	})
}

// IsSolicitedNodeFor reports whether group is the solicited-node
// multicast address of addr.
func IsSolicitedNodeFor(group, addr netip.Addr) bool {
	return group == SolicitedNodeMulticast(addr)
}

// MulticastLinkAddr maps an IPv6 multicast group to its Ethernet address
// 33:33:xx:xx:xx:xx (RFC 2464 Section 7).
func MulticastLinkAddr(group netip.Addr) LinkAddr {
	b := group.As16()
	return LinkAddr{0x33, 0x33, b[12], b[13], b[14], b[15]}
}

// InterfaceID derives the modified EUI-64 interface identifier from a
// 48-bit link address (RFC 4291 Appendix A).
func InterfaceID(la LinkAddr) [8]byte {
	return [8]byte{la[0] ^ 0x02, la[1], la[2], 0xff, 0xfe, la[3], la[4], la[5]}
}

// AutoconfAddr forms a SLAAC address from a /64 prefix and a link address.
func AutoconfAddr(prefix netip.Prefix, la LinkAddr) netip.Addr {
	b := prefix.Masked().Addr().As16()
	id := InterfaceID(la)
	copy(b[8:], id[:])
	return netip.AddrFrom16(b)
}

// LinkLocalAddr returns fe80::/64 combined with the EUI-64 identifier of la.
func LinkLocalAddr(la LinkAddr) netip.Addr {
	return AutoconfAddr(netip.MustParsePrefix("fe80::/64"), la)
}

// words splits an address into four big-endian 32-bit words.
func words(a netip.Addr) [4]uint32 {
	b := a.As16()
	return [4]uint32{
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint32(b[4:8]),
		binary.BigEndian.Uint32(b[8:12]),
		binary.BigEndian.Uint32(b[12:16]),
	}
}

// -------------------------------------------------------------------------
// LinkAddr
// -------------------------------------------------------------------------

// LinkAddr is a 48-bit link-layer (MAC) address.
type LinkAddr [6]byte

// ParseLinkAddr parses a colon- or dash-separated 48-bit MAC address.
func ParseLinkAddr(s string) (LinkAddr, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return LinkAddr{}, err //nolint:wrapcheck // net.ParseMAC already names the input.
	}
	if len(hw) != len(LinkAddr{}) {
		return LinkAddr{}, &net.AddrError{Err: "not a 48-bit link address", Addr: s}
	}

	var la LinkAddr
	copy(la[:], hw)
	return la, nil
}

// IsZero reports whether the link address is all zeroes.
func (la LinkAddr) IsZero() bool {
	return la == LinkAddr{}
}

// String formats the address as xx:xx:xx:xx:xx:xx.
func (la LinkAddr) String() string {
	return net.HardwareAddr(la[:]).String()
}
