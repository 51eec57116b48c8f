// Package ndp implements IPv6 Neighbor Discovery (RFC 4861) and the
// routing tables it maintains.
//
// This includes the neighbor cache state machine (Section 7.3), the
// default router list (Section 6.3.6), the on-link prefix list with SLAAC
// address formation (RFC 4862), the periodic fast/slow timers, and the
// address classifier used by all of them.
package ndp
