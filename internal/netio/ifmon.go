package netio

import (
	"context"
)

// -------------------------------------------------------------------------
// Interface Monitor: network interface state change detection
// -------------------------------------------------------------------------

// InterfaceEvent represents a network interface state change. The daemon
// maps these to ndp.Stack.SetInterfaceUp so that link loss flushes the
// dynamic routers and neighbors learned on the link.
type InterfaceEvent struct {
	// IfName is the network interface name (e.g., "eth0", "bond0").
	IfName string

	// IfIndex is the kernel interface index.
	IfIndex int

	// Up indicates whether the interface is administratively up and its
	// carrier is present.
	Up bool
}

// InterfaceMonitor watches for network interface state changes and emits
// events when interfaces go up or down.
//
// Usage:
//
//	mon := netio.NewNetlinkInterfaceMonitor(logger, "eth0")
//	events := mon.Events()
//	go func() {
//	    for ev := range events {
//	        handleLinkChange(ev)
//	    }
//	}()
//	mon.Run(ctx) // blocks until ctx is cancelled
type InterfaceMonitor interface {
	// Run starts monitoring interface state changes. It blocks until ctx
	// is cancelled. Detected events are sent to the channel returned by
	// Events(). Run must be called at most once.
	Run(ctx context.Context) error

	// Events returns a read-only channel that receives interface state
	// change events. The channel is closed when Run returns.
	Events() <-chan InterfaceEvent

	// Close releases any resources held by the monitor. If Run is still
	// active, the caller should cancel the context first.
	Close() error
}
