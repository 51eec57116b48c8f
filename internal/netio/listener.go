package netio

import (
	"context"
	"fmt"
)

// -------------------------------------------------------------------------
// Listener: validated ND receive loop
// -------------------------------------------------------------------------

// Listener wraps a PacketConn and provides a context-aware receive loop
// for ND messages. It handles buffer management using the package packet
// pool and discards messages that fail the Hop Limit check.
type Listener struct {
	conn PacketConn
}

// NewListener creates a Listener over an open PacketConn.
func NewListener(conn PacketConn) *Listener {
	return &Listener{conn: conn}
}

// Recv blocks until an ND message with Hop Limit 255 is received.
// Returns the message bytes (from the packet pool) and transport
// metadata. The caller returns the buffer with Release after processing.
//
// Messages with any other Hop Limit are dropped silently; the third
// result counts them (RFC 4861 Sections 6.1.2, 7.1.2).
func (l *Listener) Recv(ctx context.Context) ([]byte, PacketMeta, int, error) {
	var dropped int
	for {
		if err := ctx.Err(); err != nil {
			return nil, PacketMeta{}, dropped, fmt.Errorf("listener recv: %w", err)
		}

		buf, meta, err := l.recvOne()
		if err != nil {
			return nil, PacketMeta{}, dropped, err
		}

		if hlErr := ValidateHopLimit(meta); hlErr != nil {
			l.Release(buf)
			dropped++
			continue
		}

		return buf, meta, dropped, nil
	}
}

// recvOne performs a single read from the underlying connection using
// a pooled buffer.
func (l *Listener) recvOne() ([]byte, PacketMeta, error) {
	bufp, ok := packetPool.Get().(*[]byte)
	if !ok {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", ErrPoolType)
	}

	n, meta, err := l.conn.ReadPacket(*bufp)
	if err != nil {
		packetPool.Put(bufp)
		return nil, PacketMeta{}, fmt.Errorf("listener read: %w", err)
	}

	return (*bufp)[:n], meta, nil
}

// Release returns a buffer obtained from Recv to the packet pool.
func (l *Listener) Release(buf []byte) {
	if cap(buf) < maxPacketSize {
		return
	}
	b := buf[:cap(buf)]
	packetPool.Put(&b)
}

// IfIndex returns the interface the listener receives on.
func (l *Listener) IfIndex() int {
	return l.conn.IfIndex()
}

// Close closes the underlying PacketConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}
