// Package netio provides the packet I/O behind the Neighbor Discovery
// stack: the ICMPv6 codec, per-interface raw sockets, the receive loop,
// the solicitation sender, the AF_PACKET frame transmitter and the
// netlink interface monitor.
//
// Linux-specific implementations use golang.org/x/net/ipv6,
// golang.org/x/sys/unix and github.com/vishvananda/netlink.
package netio
