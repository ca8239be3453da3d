package tcpengine

import (
	"time"

	"github.com/kestrelscan/tcpstack/seqnum"
)

// AppConfig holds the application-bridge-wide parameters: hello timeout and
// the reconnect policy for chained parser streams.
type AppConfig struct {
	HelloTimeout time.Duration
	// NextStream, if non-nil, returns the next parser to try on the same
	// port; it is consulted as soon as a connection completes its handshake
	// (see onConnected), enabling the reconnect behavior for a port with
	// multiple registered streams (e.g. try TLS, then plain HTTP).
	NextStream func(current Stream) (Stream, bool)
}

// netAPI adapts one TCB/Driver pair to the Stream.NetAPI surface.
type netAPI struct {
	d   *Driver
	tcb *TCB
}

func (n netAPI) Send(buf []byte, ownership Ownership, isFin bool) error {
	now := n.d.clock.Tick()
	secs, usecs := n.d.clock.Now()
	return n.d.table.Send(n.tcb, buf, ownership, isFin, now, secs, usecs)
}

func (n netAPI) Now() (secs int64, usecs int32) { return n.d.clock.Now() }

// onConnected fires when the SYN-ACK handshake completes: it schedules the
// hello timeout, moves the application phase to ReceiveHello, and — if a
// reconnect policy is configured — starts the next chained stream
// immediately rather than waiting for this one to finish, matching the
// "first CONNECTED triggers creation of a second TCB" scenario.
func (d *Driver) onConnected(tcb *TCB) {
	tcb.appPhase = AppReceiveHello
	d.table.ArmTimer(tcb, d.clock.Tick()+uint64(d.helloTimeoutSecs()))
	if d.cfg != nil && d.cfg.NextStream != nil {
		if next, ok := d.cfg.NextStream(tcb.stream); ok {
			d.reconnect(tcb, next)
		}
	}
}

func (d *Driver) helloTimeoutSecs() uint64 {
	if d.cfg == nil || d.cfg.HelloTimeout <= 0 {
		return 2
	}
	secs := uint64(d.cfg.HelloTimeout / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

// onRecvTimeout fires when no payload arrived before the hello timeout: the
// stream's hello (static buffer or dynamic transmitter) is sent.
func (d *Driver) onRecvTimeout(tcb *TCB) {
	if tcb.stream == nil {
		d.armSafetyNet(tcb)
		return
	}
	api := netAPI{d: d, tcb: tcb}
	if th, ok := tcb.stream.(HelloTransmitter); ok {
		if err := th.TransmitHello(api); err != nil && d.table.log != nil {
			d.table.log.Warn("hello transmit failed", "err", err)
		}
		return
	}
	if hb, ok := tcb.stream.(HelloBuffer); ok {
		hello := hb.Hello()
		if len(hello) > 0 {
			d.table.Send(tcb, hello, OwnershipStatic, false, d.clock.Tick(), 0, 0)
		}
	}
}

// onRecvPayload hands payload to the assigned parser and advances the
// application phase to ReceiveNext.
func (d *Driver) onRecvPayload(tcb *TCB, payload []byte) {
	if tcb.stream == nil {
		return
	}
	api := netAPI{d: d, tcb: tcb}
	_, out := tcb.stream.Parse(nil, payload, tcb.banner, api)
	tcb.banner = out
	tcb.appPhase = AppReceiveNext
}

// onSendSent fires once a queued send has been fully acked: the connection
// returns to ESTABLISHED_RECV/ReceiveNext and a fresh 10s idle timer is set.
func (d *Driver) onSendSent(tcb *TCB) {
	tcb.phase = demoteSendPhase(tcb.phase)
	tcb.appPhase = AppReceiveNext
	d.table.ArmTimer(tcb, d.clock.Tick()+10)
}

// onPeerClosed fires when the peer's FIN moves the connection to
// CLOSE_WAIT; the application bridge immediately queues its own FIN in
// response, transitioning to LAST_ACK via Table.Send's fin handling.
func (d *Driver) onPeerClosed(tcb *TCB) {
	d.table.Send(tcb, nil, OwnershipStatic, true, d.clock.Tick(), 0, 0)
}

// reconnect starts a new TCB on the next source port (wrapping into the
// next source IP per the configured ranges) using stream, mirroring the
// masscan reconnect behavior for chained probe templates.
func (d *Driver) reconnect(tcb *TCB, stream Stream) {
	if d.table.nextAddr == nil {
		return
	}
	nextTuple, ok := d.table.nextAddr.Next(tcb.tuple)
	if !ok {
		return
	}
	localAddr := nextTuple.Local.Bytes()
	remoteAddr := nextTuple.Remote.Bytes()
	isn := d.table.cookies.Make(localAddr, remoteAddr, nextTuple.LocalPort, nextTuple.RemotePort)

	newTCB, err := d.table.Create(nextTuple, seqnum.Value(isn), 0, tcb.ttl, stream, d.clock.Tick())
	if err != nil {
		if d.table.log != nil {
			d.table.log.Warn("reconnect create failed", "err", err)
		}
		return
	}
	d.sendSynRetry(newTCB)
	d.table.ArmTimer(newTCB, d.clock.Tick()+1)
}
