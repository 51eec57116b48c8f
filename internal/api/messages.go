package ndapi

import "time"

// -------------------------------------------------------------------------
// Resources
// -------------------------------------------------------------------------

// Neighbor is a neighbor cache entry.
type Neighbor struct {
	Addr         string `json:"addr" yaml:"addr"`
	Interface    int    `json:"interface" yaml:"interface"`
	LinkAddr     string `json:"link_addr,omitempty" yaml:"link_addr,omitempty"`
	State        string `json:"state" yaml:"state"`
	Static       bool   `json:"static,omitempty" yaml:"static,omitempty"`
	IsRouter     bool   `json:"is_router,omitempty" yaml:"is_router,omitempty"`
	SolicitsLeft uint32 `json:"solicits_left,omitempty" yaml:"solicits_left,omitempty"`
	ExpiresIn    uint32 `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
	Idle         uint32 `json:"idle,omitempty" yaml:"idle,omitempty"`
	Queued       int    `json:"queued,omitempty" yaml:"queued,omitempty"`
}

// Router is a default router table entry. Lifetime 65535 means infinite.
type Router struct {
	Addr          string `json:"addr" yaml:"addr"`
	Interface     int    `json:"interface" yaml:"interface"`
	Lifetime      uint16 `json:"lifetime" yaml:"lifetime"`
	Kind          string `json:"kind" yaml:"kind"`
	NeighborState string `json:"neighbor_state" yaml:"neighbor_state"`
}

// Prefix is an on-link prefix. ValidLifetime 4294967295 means infinite.
type Prefix struct {
	Prefix        string `json:"prefix" yaml:"prefix"`
	ValidLifetime uint32 `json:"valid_lifetime" yaml:"valid_lifetime"`
}

// Address is an interface address.
type Address struct {
	Prefix    string `json:"prefix" yaml:"prefix"`
	Interface int    `json:"interface" yaml:"interface"`
	State     string `json:"state" yaml:"state"`
	Method    string `json:"method" yaml:"method"`
}

// Interface is a link Neighbor Discovery runs on.
type Interface struct {
	Index        int    `json:"index" yaml:"index"`
	Name         string `json:"name" yaml:"name"`
	LinkAddr     string `json:"link_addr,omitempty" yaml:"link_addr,omitempty"`
	MTU          int    `json:"mtu" yaml:"mtu"`
	Autoconf     bool   `json:"autoconf,omitempty" yaml:"autoconf,omitempty"`
	Up           bool   `json:"up" yaml:"up"`
	SolicitsLeft uint32 `json:"solicits_left,omitempty" yaml:"solicits_left,omitempty"`
}

// Event is a neighbor state change delivered by WatchEvents.
type Event struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Addr      string    `json:"addr" yaml:"addr"`
	Interface int       `json:"interface" yaml:"interface"`
	LinkAddr  string    `json:"link_addr,omitempty" yaml:"link_addr,omitempty"`
	OldState  string    `json:"old_state" yaml:"old_state"`
	NewState  string    `json:"new_state" yaml:"new_state"`
}

// -------------------------------------------------------------------------
// Neighbors
// -------------------------------------------------------------------------

// ListNeighborsRequest filters the listing. Zero values match everything.
type ListNeighborsRequest struct {
	Interface int    `json:"interface,omitempty"`
	State     string `json:"state,omitempty"`
}

type ListNeighborsResponse struct {
	Neighbors []Neighbor `json:"neighbors"`
}

// AddNeighborRequest adds or updates a neighbor. An empty State means
// Reachable.
type AddNeighborRequest struct {
	Addr      string `json:"addr"`
	Interface int    `json:"interface"`
	LinkAddr  string `json:"link_addr,omitempty"`
	State     string `json:"state,omitempty"`
	Static    bool   `json:"static,omitempty"`
}

type AddNeighborResponse struct {
	Neighbor Neighbor `json:"neighbor"`
}

type DeleteNeighborRequest struct {
	Addr string `json:"addr"`
}

type DeleteNeighborResponse struct{}

type FlushNeighborsRequest struct{}

type FlushNeighborsResponse struct {
	Flushed int `json:"flushed"`
}

// ResolveNeighborRequest starts or checks address resolution of Addr.
type ResolveNeighborRequest struct {
	Addr      string `json:"addr"`
	Interface int    `json:"interface"`
}

// ResolveNeighborResponse carries the link address when Resolved is true;
// otherwise a solicitation is in flight.
type ResolveNeighborResponse struct {
	LinkAddr string `json:"link_addr,omitempty"`
	Resolved bool   `json:"resolved"`
}

// -------------------------------------------------------------------------
// Routers
// -------------------------------------------------------------------------

type ListRoutersRequest struct{}

type ListRoutersResponse struct {
	Routers []Router `json:"routers"`
}

// AddRouterRequest adds a static default router. Lifetime 0 means
// infinite.
type AddRouterRequest struct {
	Addr      string `json:"addr"`
	Interface int    `json:"interface"`
	Lifetime  uint16 `json:"lifetime,omitempty"`
}

type AddRouterResponse struct {
	Router Router `json:"router"`
}

type DeleteRouterRequest struct {
	Addr string `json:"addr"`
}

type DeleteRouterResponse struct{}

// -------------------------------------------------------------------------
// Prefixes
// -------------------------------------------------------------------------

type ListPrefixesRequest struct{}

type ListPrefixesResponse struct {
	Prefixes []Prefix `json:"prefixes"`
}

// AddPrefixRequest adds an on-link prefix. Lifetime 0 means infinite.
type AddPrefixRequest struct {
	Prefix   string `json:"prefix"`
	Lifetime uint32 `json:"lifetime,omitempty"`
}

type AddPrefixResponse struct{}

type DeletePrefixRequest struct {
	Prefix string `json:"prefix"`
}

type DeletePrefixResponse struct{}

type CheckOnLinkRequest struct {
	Addr string `json:"addr"`
}

type CheckOnLinkResponse struct {
	OnLink bool `json:"on_link"`
}

// -------------------------------------------------------------------------
// Interfaces and addresses
// -------------------------------------------------------------------------

type ListInterfacesRequest struct{}

type ListInterfacesResponse struct {
	Interfaces []Interface `json:"interfaces"`
}

type ListAddressesRequest struct {
	Interface int `json:"interface,omitempty"`
}

type ListAddressesResponse struct {
	Addresses []Address `json:"addresses"`
}

// AddAddressRequest configures Prefix (address with prefix length) on an
// interface. An empty Method means manual.
type AddAddressRequest struct {
	Prefix    string `json:"prefix"`
	Interface int    `json:"interface"`
	Method    string `json:"method,omitempty"`
}

type AddAddressResponse struct{}

type RemoveAddressRequest struct {
	Addr string `json:"addr"`
}

type RemoveAddressResponse struct{}

// SetAddressStateRequest moves an address to State, for example from
// Tentative to Preferred once duplicate address detection has passed.
type SetAddressStateRequest struct {
	Addr  string `json:"addr"`
	State string `json:"state"`
}

type SetAddressStateResponse struct{}

// -------------------------------------------------------------------------
// Diagnostics
// -------------------------------------------------------------------------

// PingRequest sends one ICMPv6 Echo Request through the send path. An
// empty Source selects one from the interface addresses.
type PingRequest struct {
	Dst       string `json:"dst"`
	Interface int    `json:"interface"`
	Source    string `json:"source,omitempty"`
	Seq       uint16 `json:"seq,omitempty"`
}

// PingResponse reports the chosen next hop and source. The request is
// either transmitted or queued behind address resolution.
type PingResponse struct {
	NextHop string `json:"next_hop"`
	Source  string `json:"source"`
}

type WatchEventsRequest struct {
	// IncludeCurrent sends one event per existing neighbor before
	// streaming changes.
	IncludeCurrent bool `json:"include_current,omitempty"`
}
