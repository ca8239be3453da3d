package tcpengine

import "github.com/kestrelscan/tcpstack/seqnum"

// Connect initiates an outbound connection: computes the SYN cookie for the
// tuple, creates its TCB in SYN_SENT, and transmits the initial SYN. The
// TCB exists from this call on, before any SYN-ACK arrives, and counts
// against the table's capacity; the cookie check in AcceptSynAck only
// decides whether an inbound SYN-ACK reaches that TCB.
func (d *Driver) Connect(tuple FourTuple, ttl uint8, stream Stream) (*TCB, error) {
	localAddr := tuple.Local.Bytes()
	remoteAddr := tuple.Remote.Bytes()
	isn := d.table.cookies.Make(localAddr, remoteAddr, tuple.LocalPort, tuple.RemotePort)

	tcb, err := d.table.Create(tuple, seqnum.Value(isn), 0, ttl, stream, d.clock.Tick())
	if err != nil {
		return nil, err
	}
	d.sendSynRetry(tcb)
	d.table.ArmTimer(tcb, d.clock.Tick()+1)
	return tcb, nil
}

// AcceptSynAck validates an inbound SYN-ACK's ack field against the cookie
// recomputed for its 4-tuple (with local/remote as seen from our side) and,
// if valid, looks up the pending TCB and drives HandleSynAck. Returns
// ErrBadCookie (and creates nothing) for a SYN-ACK that does not match any
// cookie we could have minted — this is the stateless rejection path: the
// table never grows as a side effect of unsolicited or spoofed SYN-ACKs.
func (d *Driver) AcceptSynAck(tuple FourTuple, ackField, peerISN seqnum.Value) error {
	localAddr := tuple.Local.Bytes()
	remoteAddr := tuple.Remote.Bytes()
	if !d.table.cookies.Validate(localAddr, remoteAddr, tuple.LocalPort, tuple.RemotePort, uint32(ackField)) {
		return ErrBadCookie
	}
	tcb := d.table.Lookup(tuple)
	if tcb == nil {
		return ErrNoTCB
	}
	d.HandleSynAck(tcb, peerISN)
	return nil
}
