package netio

import "errors"

// Frame is an IPv6 datagram (starting at the IPv6 header) waiting for its
// next hop to be resolved. It implements ndp.Packet.
type Frame struct {
	Data []byte

	// OnRelease, if set, is called when the frame is dropped unsent.
	OnRelease func()
}

// Release implements ndp.Packet.
func (f *Frame) Release() {
	if f.OnRelease != nil {
		f.OnRelease()
	}
}

// ErrPacketType indicates a packet that is not a *Frame.
var ErrPacketType = errors.New("packet is not a *netio.Frame")
