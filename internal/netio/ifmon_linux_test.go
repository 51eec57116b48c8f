//go:build linux

package netio_test

import (
	"log/slog"
	"net"
	"testing"

	"github.com/vishvananda/netlink"

	"github.com/dantte-lp/gond/internal/ndp"
	"github.com/dantte-lp/gond/internal/netio"
)

var _ netio.InterfaceMonitor = (*netio.NetlinkInterfaceMonitor)(nil)

func TestEventFromLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		flags  net.Flags
		oper   netlink.LinkOperState
		wantUp bool
	}{
		{"up with carrier", net.FlagUp, netlink.OperUp, true},
		{"up without carrier reporting", net.FlagUp, netlink.OperUnknown, true},
		{"up without carrier", net.FlagUp, netlink.OperDown, false},
		{"admin down", 0, netlink.OperUp, false},
		{"lower layer down", net.FlagUp, netlink.OperLowerLayerDown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{
				Index:     7,
				Name:      "eth7",
				Flags:     tt.flags,
				OperState: tt.oper,
			}}

			ev := netio.EventFromLink(link)
			want := netio.InterfaceEvent{IfName: "eth7", IfIndex: 7, Up: tt.wantUp}
			if ev != want {
				t.Errorf("EventFromLink() = %+v, want %+v", ev, want)
			}
		})
	}
}

func TestInterfaceFromLink(t *testing.T) {
	t.Parallel()

	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{
		Index:        4,
		Name:         "eth4",
		MTU:          9000,
		HardwareAddr: net.HardwareAddr{0x02, 0, 0, 0, 0, 0x04},
	}}

	want := ndp.Interface{
		Index:    4,
		Name:     "eth4",
		MTU:      9000,
		LinkAddr: ndp.LinkAddr{0x02, 0, 0, 0, 0, 0x04},
	}
	if got := netio.InterfaceFromLink(link); got != want {
		t.Errorf("InterfaceFromLink() = %+v, want %+v", got, want)
	}

	// Links without an Ethernet address (tun, ip6gre) get a zero LinkAddr.
	link.HardwareAddr = nil
	if got := netio.InterfaceFromLink(link); !got.LinkAddr.IsZero() {
		t.Errorf("LinkAddr = %s, want zero", got.LinkAddr)
	}
}

func TestNetlinkMonitorEventsChannel(t *testing.T) {
	t.Parallel()

	m := netio.NewNetlinkInterfaceMonitor(slog.New(slog.DiscardHandler), "eth0")
	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if m.Events() == nil {
		t.Error("Events() = nil, want channel")
	}
}
