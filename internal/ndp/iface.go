package ndp

import (
	"net/netip"
)

// -------------------------------------------------------------------------
// Interfaces
// -------------------------------------------------------------------------

// Interface describes a link the stack runs Neighbor Discovery on.
type Interface struct {
	// Index is the kernel interface index. It must be positive.
	Index int

	// Name is the interface name (e.g., "eth0").
	Name string

	// LinkAddr is the interface's own link-layer address, used for the
	// source link-layer option and for EUI-64 address formation.
	LinkAddr LinkAddr

	// MTU is the link MTU in bytes. Zero means 1500.
	MTU int

	// Autoconf enables stateless address autoconfiguration from Router
	// Advertisement prefixes (RFC 4862).
	Autoconf bool
}

// InterfaceStatus is a snapshot of an interface and its runtime state.
type InterfaceStatus struct {
	Interface

	// Up is the last reported link state.
	Up bool

	// SolicitsLeft is the number of Router Solicitations still to send.
	SolicitsLeft uint32
}

// ifaceState is the per-interface runtime state.
type ifaceState struct {
	Interface
	up bool

	// Router solicitation (RFC 4861 Section 6.3.7).
	rsLeft  uint32
	rsTimer uint32
}

// defaultMTU is the Ethernet MTU used when an interface does not set one.
const defaultMTU = 1500

func (s *ifaceState) mtu() int {
	if s.MTU > 0 {
		return s.MTU
	}
	return defaultMTU
}

// -------------------------------------------------------------------------
// Address Table
// -------------------------------------------------------------------------

// AddressState is the lifecycle state of a configured interface address
// (RFC 4862 Section 5.5).
type AddressState uint8

const (
	// AddressUnknown marks an unused table slot.
	AddressUnknown AddressState = iota

	// AddressTentative is an address awaiting duplicate address detection.
	AddressTentative

	// AddressPreferred is an address valid for all communication.
	AddressPreferred

	// AddressDeprecated is an address that should not start new
	// communication.
	AddressDeprecated

	// AddressValid is a usable address whose preferred lifetime is not
	// tracked (manual configuration or DAD disabled).
	AddressValid
)

// String returns the human-readable name of the state.
func (s AddressState) String() string {
	switch s {
	case AddressUnknown:
		return "Unknown"
	case AddressTentative:
		return "Tentative"
	case AddressPreferred:
		return "Preferred"
	case AddressDeprecated:
		return "Deprecated"
	case AddressValid:
		return "Valid"
	default:
		return "Invalid"
	}
}

// AddressMethod records how an interface address was configured.
type AddressMethod uint8

const (
	// MethodManual is an operator-configured address.
	MethodManual AddressMethod = iota + 1

	// MethodAutoconf is a SLAAC address derived from an advertised prefix.
	MethodAutoconf

	// MethodDHCP is an address leased from a DHCPv6 server.
	MethodDHCP
)

// String returns the human-readable name of the method.
func (m AddressMethod) String() string {
	switch m {
	case MethodManual:
		return "manual"
	case MethodAutoconf:
		return "autoconf"
	case MethodDHCP:
		return "dhcp"
	default:
		return "unknown"
	}
}

// Address is a snapshot of one interface address.
type Address struct {
	// Prefix holds the address and its on-link prefix length.
	Prefix netip.Prefix

	// Interface is the index of the owning interface.
	Interface int

	// State is the address lifecycle state.
	State AddressState

	// Method records how the address was configured.
	Method AddressMethod
}

// AddressChange describes an address state change delivered to the
// AddressChangeFunc callback.
type AddressChange struct {
	Address
	OldState AddressState
}

// addrSlot is one address table row.
type addrSlot struct {
	prefix netip.Prefix
	iface  int
	state  AddressState
	method AddressMethod
}

func (a *addrSlot) snapshot() Address {
	return Address{Prefix: a.prefix, Interface: a.iface, State: a.state, Method: a.method}
}

// addressTable is a fixed-size table of interface addresses.
type addressTable struct {
	slots []addrSlot
}

func newAddressTable(size int) *addressTable {
	return &addressTable{slots: make([]addrSlot, size)}
}

// find returns the slot holding addr.
func (t *addressTable) find(addr netip.Addr) (int, bool) {
	for i := range t.slots {
		if t.slots[i].state != AddressUnknown && t.slots[i].prefix.Addr() == addr {
			return i, true
		}
	}
	return 0, false
}

// free returns the first unused slot.
func (t *addressTable) free() (int, bool) {
	for i := range t.slots {
		if t.slots[i].state == AddressUnknown {
			return i, true
		}
	}
	return 0, false
}

// onLink reports whether addr matches a manually configured address by
// that address's own prefix length.
func (t *addressTable) onLink(addr netip.Addr) bool {
	for i := range t.slots {
		s := &t.slots[i]
		if s.state == AddressUnknown || s.method != MethodManual {
			continue
		}
		if MatchPrefix(addr, s.prefix.Addr(), s.prefix.Bits()) {
			return true
		}
	}
	return false
}

// onLinkFor reports whether addr lies inside the prefix of any address
// configured on iface.
func (t *addressTable) onLinkFor(addr netip.Addr, iface int) bool {
	for i := range t.slots {
		s := &t.slots[i]
		if s.state == AddressUnknown || s.iface != iface {
			continue
		}
		if LongestPrefixMatch(addr, s.prefix.Addr(), s.prefix.Bits()) >= s.prefix.Bits() {
			return true
		}
	}
	return false
}

// hasGlobalWithPrefix reports whether any global address falls in prefix.
func (t *addressTable) hasGlobalWithPrefix(prefix netip.Prefix) bool {
	for i := range t.slots {
		s := &t.slots[i]
		if s.state == AddressUnknown {
			continue
		}
		if Classify(s.prefix.Addr()).Has(AddrGlobal) && prefix.Contains(s.prefix.Addr()) {
			return true
		}
	}
	return false
}

// sourceFor returns an address on iface suitable as the source of a
// solicitation for target: a global address sharing the longest prefix
// with target, else the interface's link-local address.
func (t *addressTable) sourceFor(iface int, target netip.Addr) netip.Addr {
	var best netip.Addr
	bestLen := -1
	for i := range t.slots {
		s := &t.slots[i]
		if s.iface != iface || s.state == AddressUnknown || s.state == AddressTentative {
			continue
		}
		a := s.prefix.Addr()
		if Classify(target).Has(AddrLinkLocal) != Classify(a).Has(AddrLinkLocal) {
			continue
		}
		if n := LongestPrefixMatch(a, target, 128); n > bestLen {
			best, bestLen = a, n
		}
	}
	return best
}
