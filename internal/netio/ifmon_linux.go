//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/dantte-lp/gond/internal/ndp"
)

// ErrMonitorClosed indicates the netlink subscription ended unexpectedly.
var ErrMonitorClosed = errors.New("netlink link subscription closed")

// ifEventChSize is the buffer size of the monitor event channel.
const ifEventChSize = 16

// NetlinkInterfaceMonitor implements InterfaceMonitor with RTM_NEWLINK and
// RTM_DELLINK notifications from NETLINK_ROUTE.
type NetlinkInterfaceMonitor struct {
	events chan InterfaceEvent
	names  map[string]struct{}
	logger *slog.Logger
}

// NewNetlinkInterfaceMonitor creates a monitor. When names is non-empty
// only those interfaces are reported.
func NewNetlinkInterfaceMonitor(logger *slog.Logger, names ...string) *NetlinkInterfaceMonitor {
	m := &NetlinkInterfaceMonitor{
		events: make(chan InterfaceEvent, ifEventChSize),
		names:  make(map[string]struct{}, len(names)),
		logger: logger.With(slog.String("component", "ifmon.netlink")),
	}
	for _, n := range names {
		m.names[n] = struct{}{}
	}
	return m
}

// Run subscribes to link updates and forwards them until ctx is
// cancelled. The current state of every link is reported first.
func (m *NetlinkInterfaceMonitor) Run(ctx context.Context) error {
	defer close(m.events)

	updates := make(chan netlink.LinkUpdate, ifEventChSize)
	done := make(chan struct{})
	defer close(done)

	err := netlink.LinkSubscribeWithOptions(updates, done, netlink.LinkSubscribeOptions{
		ListExisting: true,
		ErrorCallback: func(err error) {
			m.logger.Warn("netlink subscription error", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe to link updates: %w", err)
	}

	m.logger.Info("interface monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("interface monitor stopped")
			return nil
		case u, ok := <-updates:
			if !ok {
				return ErrMonitorClosed
			}
			ev := EventFromLink(u.Link)
			if !m.wanted(ev.IfName) {
				continue
			}
			select {
			case m.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (m *NetlinkInterfaceMonitor) wanted(name string) bool {
	if len(m.names) == 0 {
		return true
	}
	_, ok := m.names[name]
	return ok
}

// Events returns the event channel.
func (m *NetlinkInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Close is a no-op; the subscription ends with Run.
func (m *NetlinkInterfaceMonitor) Close() error {
	return nil
}

// EventFromLink derives an InterfaceEvent from a netlink link. A link is
// up when it is administratively up and its operational state is up or
// unknown (drivers without carrier reporting).
func EventFromLink(link netlink.Link) InterfaceEvent {
	attrs := link.Attrs()
	up := attrs.Flags&net.FlagUp != 0 &&
		(attrs.OperState == netlink.OperUp || attrs.OperState == netlink.OperUnknown)

	return InterfaceEvent{
		IfName:  attrs.Name,
		IfIndex: attrs.Index,
		Up:      up,
	}
}

// LookupInterface reads the index, hardware address and MTU of the named
// interface from the kernel.
func LookupInterface(name string) (ndp.Interface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return ndp.Interface{}, fmt.Errorf("lookup link %s: %w", name, err)
	}
	return InterfaceFromLink(link), nil
}

// InterfaceFromLink converts a netlink link into an ndp.Interface.
// Links without a 48-bit hardware address get a zero LinkAddr.
func InterfaceFromLink(link netlink.Link) ndp.Interface {
	attrs := link.Attrs()

	ifc := ndp.Interface{
		Index: attrs.Index,
		Name:  attrs.Name,
		MTU:   attrs.MTU,
	}
	if len(attrs.HardwareAddr) == len(ifc.LinkAddr) {
		copy(ifc.LinkAddr[:], attrs.HardwareAddr)
	}
	return ifc
}
