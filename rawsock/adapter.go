// Package rawsock implements the external frame-I/O adapter the TCP engine
// sends and receives raw Ethernet frames through, bypassing the host
// kernel's TCP stack.
package rawsock

import "errors"

// ErrNoFrame is returned by RecvFrame when no frame is currently available;
// callers should treat it as "try again", not as a fatal condition.
var ErrNoFrame = errors.New("rawsock: no frame available")

// Adapter is the frame transport the engine's transmit/receive bridges
// drive. Implementations need not be safe for concurrent use by more than
// one sender and one receiver (matching the engine's single RX thread /
// single TX thread model).
type Adapter interface {
	// SendFrame transmits buf as a single Ethernet frame. flush requests the
	// adapter push any internally buffered frames immediately, for
	// implementations that batch writes.
	SendFrame(buf []byte, flush bool) error
	// RecvFrame returns the next available frame and its capture timestamp,
	// or ErrNoFrame if none is queued.
	RecvFrame() (frame []byte, secs int64, usecs int32, err error)
	// Close releases the adapter's underlying resources.
	Close() error
}
