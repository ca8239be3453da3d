package tcpengine

// NetAPI is the surface a Stream implementation uses to talk back to its
// owning connection: queue outbound data and read the current event's
// wall-clock timestamp.
type NetAPI interface {
	// Send queues buf for transmission on the connection, applying the given
	// ownership discipline to buf once the engine has transmitted it.
	Send(buf []byte, ownership Ownership, isFin bool) error
	// Now returns the second/microsecond timestamp of the event currently
	// being processed.
	Now() (secs int64, usecs int32)
}

// Stream is the capability set a protocol parser exposes. Only Parse is
// required; the others are discovered via interface assertion at the call
// site (HelloBuffer, HelloTransmitter, Cleanup), matching the "parser forms
// a capability set" design note rather than a single monolithic interface
// every parser must fully implement.
type Stream interface {
	// Name identifies the stream for reporting, e.g. "http", "tlshello".
	Name() string
	// Parse consumes payload delivered for this connection, appending any
	// recognized banner text to out, and returns the (possibly grown) out
	// slice. state is opaque scratch private to the Stream implementation,
	// created fresh (nil) for each connection and threaded through calls.
	Parse(state any, payload []byte, out []byte, api NetAPI) (newState any, newOut []byte)
}

// HelloBuffer is implemented by streams with a static hello payload to send
// once the peer goes quiet (e.g. a fixed HTTP GET template).
type HelloBuffer interface {
	Hello() []byte
}

// HelloTransmitter is implemented by streams whose hello must be built
// dynamically (e.g. a TLS ClientHello templated per target).
type HelloTransmitter interface {
	TransmitHello(api NetAPI) error
}

// Cleanup is implemented by streams holding resources that must be released
// when the connection is destroyed.
type Cleanup interface {
	Cleanup()
}
