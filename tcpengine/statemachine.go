package tcpengine

import (
	"log/slog"

	"github.com/kestrelscan/tcpstack/internal"
	"github.com/kestrelscan/tcpstack/seqnum"
)

// Clock supplies the engine with the current time, both as a monotonic tick
// for the timer wheel and as the wall-clock seconds/microseconds pair
// reported to parsers and reporters.
type Clock interface {
	Tick() uint64
	Now() (secs int64, usecs int32)
}

// Driver runs the state machine against a Table, wiring the application
// bridge (Component G) and transmit bridge (Component H) together. One
// Driver is created per Table and owns no state beyond its collaborators;
// all mutable state lives in the Table/TCB arena.
type Driver struct {
	table *Table
	clock Clock
	cfg   *AppConfig
}

func NewDriver(table *Table, clock Clock, cfg *AppConfig) *Driver {
	return &Driver{table: table, clock: clock, cfg: cfg}
}

// HandleSynAck processes a SYN-ACK for a connection created by Connect. The
// caller has already validated the syncookie (see Driver.AcceptSynAck) and
// supplies the peer's initial sequence number.
func (d *Driver) HandleSynAck(tcb *TCB, peerISN seqnum.Value) {
	if tcb.phase != PhaseSynSent {
		return
	}
	tcb.seqLocal = seqnum.Add(tcb.seqLocalFirst, 1) // our SYN consumed one octet
	tcb.seqRemote = seqnum.Add(peerISN, 1)
	tcb.seqRemoteFirst = peerISN
	tcb.ackRemote = tcb.seqRemote
	d.sendAck(tcb)
	tcb.phase = PhaseEstablishedRecv
	d.onConnected(tcb)
	d.armSafetyNet(tcb)
}

// HandleAck retires acknowledged segments and, once the queue drains,
// notifies the application bridge that its send completed.
func (d *Driver) HandleAck(tcb *TCB, ack seqnum.Value) {
	res := d.table.Acknowledge(tcb, ack)
	if res == AckAdvanced && tcb.segHead == nilSeg {
		if tcb.phase == PhaseLastAck {
			secs, usecs := d.clock.Now()
			d.table.Destroy(tcb, ErrClosed, secs, usecs)
			return
		}
		if tcb.phase == PhaseEstablishedRecv {
			d.onSendSent(tcb)
		}
	}
	d.armSafetyNet(tcb)
}

// HandleData runs the segment-receive algorithm: discards duplicate or
// overlapping octets, hands the remainder to the application bridge, and
// acks.
func (d *Driver) HandleData(tcb *TCB, seq seqnum.Value, payload []byte) {
	// Discard pure duplicates: the entire segment is already behind
	// seqRemote.
	behind := seqnum.Sizeof(seq, tcb.seqRemote)
	if behind > 0 && uint32(behind) >= uint32(len(payload)) {
		d.sendAck(tcb)
		d.armSafetyNet(tcb)
		return
	}
	// Trim any leading overlap.
	if behind > 0 {
		payload = payload[behind:]
		seq = seqnum.Add(seq, seqnum.Size(behind))
	}
	if len(payload) == 0 {
		d.sendAck(tcb)
		d.armSafetyNet(tcb)
		return
	}

	d.onRecvPayload(tcb, payload)
	d.table.stats.BytesRecv += uint64(len(payload))

	tcb.seqRemote = seqnum.Add(tcb.seqRemote, seqnum.Size(len(payload)))
	tcb.ackRemote = tcb.seqRemote
	d.sendAck(tcb)
	d.armSafetyNet(tcb)
}

// HandleFin acks the FIN as an empty payload and advances the close
// sequence.
func (d *Driver) HandleFin(tcb *TCB, finSeq seqnum.Value) {
	if finSeq == tcb.seqRemote {
		tcb.seqRemote = seqnum.Add(tcb.seqRemote, 1)
		tcb.ackRemote = tcb.seqRemote
		d.sendAck(tcb)
	}
	switch tcb.phase {
	case PhaseEstablishedRecv, PhaseEstablishedSend:
		tcb.phase = PhaseCloseWait
		d.onPeerClosed(tcb)
	case PhaseFinWait1:
		tcb.phase = PhaseClosing
	case PhaseFinWait2:
		tcb.phase = PhaseTimeWait
		d.armTimeWait(tcb)
		return
	}
	d.armSafetyNet(tcb)
}

// HandleRst destroys the TCB unconditionally, per the reduced state
// machine's "any state, RST -> destroy" rule.
func (d *Driver) HandleRst(tcb *TCB) {
	secs, usecs := d.clock.Now()
	d.table.Destroy(tcb, ErrPeerReset, secs, usecs)
}

// HandleTimeout is invoked once per expired TCB returned by
// Table.ExpireOne. It implements retransmission, the connection-wide
// deadline, the hello timeout, and TIME_WAIT expiry.
func (d *Driver) HandleTimeout(tcb *TCB) {
	now := d.clock.Tick()
	if now-tcb.createdTick > uint64(d.table.connTimeout.Seconds()) {
		d.sendRst(tcb)
		secs, usecs := d.clock.Now()
		d.table.Destroy(tcb, ErrDeadlineExceeded, secs, usecs)
		return
	}

	switch tcb.phase {
	case PhaseSynSent:
		tcb.synRetries++
		d.sendSynRetry(tcb)
		// Jitter the retry delay by a TCB-local pseudo-random bit so that
		// thousands of SYNs sent in the same tick don't all retransmit on
		// the same later tick.
		jitter := uint64(internal.Prand16(uint16(tcb.timerIdx)) & 1)
		d.table.ArmTimer(tcb, now+uint64(tcb.synRetries)+jitter)
		return
	case PhaseEstablishedSend:
		d.table.Resend(tcb, now)
		return
	case PhaseEstablishedRecv:
		if tcb.appPhase == AppReceiveHello {
			d.onRecvTimeout(tcb)
		}
	case PhaseTimeWait:
		secs, usecs := d.clock.Now()
		d.table.Destroy(tcb, ErrClosed, secs, usecs)
		return
	}
	d.armSafetyNet(tcb)
}

// armSafetyNet rearms a TCB's timer with a conservative 2s default if the
// state transition above did not already schedule one. A TCB without a
// linked timer can never be reaped, so this is a deliberate backstop (see
// SPEC_FULL.md §4.F).
func (d *Driver) armSafetyNet(tcb *TCB) {
	if !tcb.active {
		return
	}
	idx := uint32(d.table.indexOf(tcb))
	if d.table.wheel.Linked(idx) {
		return
	}
	if d.table.log != nil {
		d.table.log.Log(nil, levelTrace, "safety-net timer armed", "id", tcb.id.String())
	}
	d.table.ArmTimer(tcb, d.clock.Tick()+2)
}

func (d *Driver) armTimeWait(tcb *TCB) {
	d.table.ArmTimer(tcb, d.clock.Tick()+2)
}

var levelTrace = slog.LevelDebug - 2

func (d *Driver) sendAck(tcb *TCB) {
	var out [1536]byte
	n, err := d.table.template.BuildSegment(out[:], tcb.tuple, tcb.seqLocal, tcb.ackRemote, FlagACK, tcb.ttl, nil)
	if err != nil {
		if d.table.log != nil {
			d.table.log.Warn("ack build failed", "err", err)
		}
		return
	}
	d.table.enqueueTx(append([]byte(nil), out[:n]...))
}

func (d *Driver) sendRst(tcb *TCB) {
	var out [1536]byte
	n, err := d.table.template.BuildSegment(out[:], tcb.tuple, tcb.seqLocal, tcb.ackRemote, FlagRST|FlagACK, tcb.ttl, nil)
	if err != nil {
		if d.table.log != nil {
			d.table.log.Warn("rst build failed", "err", err)
		}
		return
	}
	d.table.enqueueTx(append([]byte(nil), out[:n]...))
}

func (d *Driver) sendSynRetry(tcb *TCB) {
	var out [1536]byte
	n, err := d.table.template.BuildSegment(out[:], tcb.tuple, tcb.seqLocalFirst, 0, FlagSYN, tcb.ttl, nil)
	if err != nil {
		if d.table.log != nil {
			d.table.log.Warn("syn retry build failed", "err", err)
		}
		return
	}
	d.table.enqueueTx(append([]byte(nil), out[:n]...))
}
