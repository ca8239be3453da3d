package tcpengine

import (
	"github.com/kestrelscan/tcpstack/seqnum"
	"github.com/rs/xid"
)

// Phase is the reduced TCP state for one control block. Only active-open
// states exist: the engine never accepts inbound connections, so there is
// no LISTEN or SYN_RCVD.
type Phase uint8

const (
	PhaseSynSent Phase = iota
	PhaseEstablishedSend
	PhaseEstablishedRecv
	PhaseCloseWait
	PhaseLastAck
	PhaseFinWait1
	PhaseFinWait2
	PhaseClosing
	PhaseTimeWait
)

func (p Phase) String() string {
	switch p {
	case PhaseSynSent:
		return "SYN_SENT"
	case PhaseEstablishedSend:
		return "ESTABLISHED_SEND"
	case PhaseEstablishedRecv:
		return "ESTABLISHED_RECV"
	case PhaseCloseWait:
		return "CLOSE_WAIT"
	case PhaseLastAck:
		return "LAST_ACK"
	case PhaseFinWait1:
		return "FIN_WAIT1"
	case PhaseFinWait2:
		return "FIN_WAIT2"
	case PhaseClosing:
		return "CLOSING"
	case PhaseTimeWait:
		return "TIME_WAIT"
	default:
		return "PHASE(?)"
	}
}

// AppPhase is the application-level phase, independent of the TCP phase:
// a connection can be ESTABLISHED_RECV while still waiting to send its
// first probe (AppReceiveHello).
type AppPhase uint8

const (
	AppConnect AppPhase = iota
	AppReceiveHello
	AppReceiveNext
	AppSendNext
)

// Event is the small alphabet the state machine is driven by. Event
// classification (DATA vs ACK) happens once, at frame-decode time, per the
// design note on TCP_WHAT_ACK vs TCP_WHAT_DATA: a segment with nonzero
// payload is always DATA, never re-derived downstream.
type Event uint8

const (
	EventSynAck Event = iota
	EventAck
	EventFin
	EventRst
	EventData
	EventTimeout
)

// Ownership tags an outbound segment buffer's release discipline.
type Ownership uint8

const (
	// OwnershipStatic buffers live for the process lifetime; never released.
	OwnershipStatic Ownership = iota
	// OwnershipAdopted buffers were supplied by the caller; release on retire.
	OwnershipAdopted
	// OwnershipCopied buffers were allocated and filled by the engine itself.
	OwnershipCopied
)

// Segment is one queued outbound byte range, identified by the TCB's
// sequence space. At most one Segment per TCB carries FIN, and it is always
// the tail.
type Segment struct {
	seq       seqnum.Value
	buf       []byte
	ownership Ownership
	fin       bool
	next      int32 // index into Table.segments, or -1
}

const nilSeg = -1

func (s *Segment) Len() seqnum.Size { return seqnum.Size(len(s.buf)) }

// Addr is a tagged-union IPv4/IPv6 address. Len is 4 or 16.
type Addr struct {
	bytes [16]byte
	n     uint8
}

func AddrFromBytes(b []byte) Addr {
	var a Addr
	a.n = uint8(len(b))
	copy(a.bytes[:], b)
	return a
}

func (a Addr) Bytes() []byte { return a.bytes[:a.n] }
func (a Addr) IsV6() bool    { return a.n == 16 }

// FourTuple identifies a connection direction-independently for hashing
// purposes, and direction-dependently (Local/Remote) for the protocol.
type FourTuple struct {
	Local      Addr
	Remote     Addr
	LocalPort  uint16
	RemotePort uint16
}

// TCB is one connection's control block. It is always owned by exactly one
// Table and addressed by arena index, never directly allocated by callers.
type TCB struct {
	id        xid.ID
	tuple     FourTuple
	ttl       uint8
	mss       uint16
	smallWindow bool

	seqLocal      seqnum.Value // next octet we will send
	ackRemote     seqnum.Value // last ack we sent (== seqRemote)
	seqRemote     seqnum.Value // next octet expected from peer
	seqLocalFirst seqnum.Value
	seqRemoteFirst seqnum.Value

	phase    Phase
	appPhase AppPhase
	active   bool

	synRetries int

	segHead int32 // index into Table.segments, or nilSeg
	segTail int32

	banner []byte

	stream Stream

	timerIdx uint32 // arena index, mirrors this TCB's own index

	createdTick uint64

	// inUse distinguishes a live arena slot from a freelist slot.
	inUse bool
	// freeNext chains free arena slots.
	freeNext int32
	// bucketNext chains collisions within a single hash bucket.
	bucketNext int32
}

// ID returns the correlation identifier minted when the TCB was created,
// stable for the connection's lifetime and reused as the banner report's
// join key.
func (t *TCB) ID() xid.ID { return t.id }

// Tuple returns the connection's 4-tuple.
func (t *TCB) Tuple() FourTuple { return t.tuple }

// Phase returns the current TCP phase.
func (t *TCB) Phase() Phase { return t.phase }

// AppPhase returns the current application phase.
func (t *TCB) AppPhase() AppPhase { return t.appPhase }

// IsActive reports whether the TCB is still live in the table.
func (t *TCB) IsActive() bool { return t.active }
