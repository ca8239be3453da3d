package tcpengine

import "errors"

// Sentinel errors surfaced across the table/state-machine API. Wire-level
// anomalies (malformed frames, stale acks, duplicate segments) are handled
// locally and never reach the caller as one of these.
var (
	// ErrNoTCB is returned by Destroy when the control block is not linked
	// into any table bucket (double-destroy).
	ErrNoTCB = errors.New("tcpengine: control block not found in table")
	// ErrTableFull is returned by Create when every arena slot is in use.
	ErrTableFull = errors.New("tcpengine: connection table full")
	// ErrInvalidCapacity is returned by NewTable when Options.Template is
	// nil. An out-of-range capacity is clamped, not rejected.
	ErrInvalidCapacity = errors.New("tcpengine: capacity out of range")
	// ErrBadCookie is returned when a SYN-ACK's ack field does not match the
	// cookie computed for its 4-tuple; no TCB is created for it.
	ErrBadCookie = errors.New("tcpengine: syn-ack failed cookie validation")
	// ErrDeadlineExceeded marks a TCB destroyed by the connection-wide timeout.
	ErrDeadlineExceeded = errors.New("tcpengine: connection deadline exceeded")
	// ErrPeerReset marks a TCB destroyed because the peer sent RST.
	ErrPeerReset = errors.New("tcpengine: connection reset by peer")
	ErrClosed    = errors.New("tcpengine: connection closed")
	// ErrQueueAfterFIN is returned by Send when the segment queue already
	// has a FIN queued; no further data can be appended.
	ErrQueueAfterFIN = errors.New("tcpengine: cannot queue data after FIN")
	// ErrNoBuffer is returned by the transmit bridge when the free-buffer
	// pool is exhausted beyond the configured backoff budget.
	ErrNoBuffer = errors.New("tcpengine: no free transmit buffer")
)
