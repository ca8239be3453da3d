package tcpengine

import (
	"github.com/kestrelscan/tcpstack/seqnum"
)

// pastFutureWindow bounds how far an ack/seq can differ from the expected
// value before it is treated as "too far in the past" or "too far in the
// future" rather than a legitimate partial ack or reorder.
const pastFutureWindow = 100_000

func (t *Table) allocSegment() (int32, bool) {
	if t.segFreeHead == nilSeg {
		return nilSeg, false
	}
	idx := t.segFreeHead
	t.segFreeHead = t.segments[idx].next
	return idx, true
}

func (t *Table) releaseSegment(idx int32) {
	seg := &t.segments[idx]
	switch seg.ownership {
	case OwnershipAdopted, OwnershipCopied:
		seg.buf = nil
	}
	*seg = Segment{next: t.segFreeHead}
	t.segFreeHead = idx
}

// Send queues buf (already split by the caller's MSS if needed, though Send
// itself performs the split) for transmission on tcb. If the new segment
// becomes the queue head it is transmitted immediately. A retransmit timer
// is always armed for now+1s, per the segment-queue design.
func (t *Table) Send(tcb *TCB, buf []byte, ownership Ownership, isFin bool, now uint64, secs int64, usecs int32) error {
	if t.hasFin(tcb) {
		if ownership != OwnershipStatic {
			// caller's buffer is orphaned; nothing references it so it is
			// simply dropped for the GC to reclaim.
		}
		return ErrQueueAfterFIN
	}

	mss := int(tcb.mss)
	if mss <= 0 {
		mss = 1400
	}

	offset := 0
	for offset < len(buf) || (len(buf) == 0 && isFin) {
		end := offset + mss
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[offset:end]
		segOwnership := ownership
		if offset > 0 {
			// only the first chunk can retain the caller's ownership tag
			// unmodified; subsequent chunks reference a sub-slice of the
			// same backing array, so treat them the same way.
			segOwnership = ownership
		}
		last := end == len(buf)
		err := t.enqueueOne(tcb, chunk, segOwnership, last && isFin)
		if err != nil {
			return err
		}
		offset = end
		if len(buf) == 0 {
			break
		}
	}

	t.ArmTimer(tcb, now+1)
	return nil
}

func (t *Table) hasFin(tcb *TCB) bool {
	if tcb.segTail == nilSeg {
		return false
	}
	return t.segments[tcb.segTail].fin
}

func (t *Table) enqueueOne(tcb *TCB, chunk []byte, ownership Ownership, fin bool) error {
	idx, ok := t.allocSegment()
	if !ok {
		return ErrTableFull
	}
	var seq seqnum.Value
	if tcb.segTail == nilSeg {
		seq = tcb.seqLocal
	} else {
		tail := &t.segments[tcb.segTail]
		seq = seqnum.Add(tail.seq, tail.Len())
		if tail.fin {
			seq = seqnum.Add(seq, 1)
		}
	}
	seg := &t.segments[idx]
	*seg = Segment{
		seq:       seq,
		buf:       chunk,
		ownership: ownership,
		fin:       fin,
		next:      nilSeg,
	}
	if tcb.segHead == nilSeg {
		tcb.segHead = idx
		tcb.segTail = idx
		if tcb.phase == PhaseEstablishedRecv {
			tcb.phase = PhaseEstablishedSend
		}
		t.transmitSegment(tcb, seg)
	} else {
		t.segments[tcb.segTail].next = idx
		tcb.segTail = idx
	}
	if fin {
		switch tcb.phase {
		case PhaseEstablishedSend, PhaseEstablishedRecv:
			tcb.phase = PhaseFinWait1
		case PhaseCloseWait:
			tcb.phase = PhaseLastAck
		}
	}
	return nil
}

// Resend retransmits the head segment, if any, and rearms the retransmit
// timer for now+2s.
func (t *Table) Resend(tcb *TCB, now uint64) {
	if tcb.segHead == nilSeg {
		return
	}
	seg := &t.segments[tcb.segHead]
	t.transmitSegment(tcb, seg)
	t.stats.Retransmits++
	t.ArmTimer(tcb, now+2)
}

func (t *Table) transmitSegment(tcb *TCB, seg *Segment) {
	flags := FlagACK
	if seg.fin && len(seg.buf) == 0 {
		flags |= FlagFIN
	} else {
		flags |= FlagPSH
	}
	var out [1536]byte
	n, err := t.template.BuildSegment(out[:], tcb.tuple, seg.seq, tcb.ackRemote, flags, tcb.ttl, seg.buf)
	if err != nil {
		if t.log != nil {
			t.log.Warn("template build failed", "err", err)
		}
		return
	}
	frame := append([]byte(nil), out[:n]...)
	t.enqueueTx(frame)
	t.stats.BytesSent += uint64(len(seg.buf))
}

// AckResult classifies the outcome of Acknowledge.
type AckResult uint8

const (
	AckAdvanced AckResult = iota
	AckDuplicate
	AckFuture
	AckPast
)

// Acknowledge retires segments fully covered by ack, per the 100,000-byte
// past/future discrimination window. A partial ack on the head segment
// rewrites it to the unacknowledged remainder, converting an Adopted buffer
// to Copied so the retained tail is never tied to a buffer the caller may
// reuse.
func (t *Table) Acknowledge(tcb *TCB, ack seqnum.Value) AckResult {
	if ack == tcb.seqLocal {
		return AckDuplicate
	}
	diffPast := seqnum.Sizeof(ack, tcb.seqLocal)
	if diffPast > 0 && diffPast < pastFutureWindow {
		// ack is behind seqLocal by a small amount: stale, not a duplicate
		// in the strict sense, but nothing to retire.
		return AckPast
	}
	diffFuture := seqnum.Sizeof(tcb.seqLocal, ack)
	if diffFuture > pastFutureWindow {
		return AckFuture
	}

	remaining := diffFuture
	for tcb.segHead != nilSeg && remaining > 0 {
		seg := &t.segments[tcb.segHead]
		segLen := seg.Len()
		total := segLen
		if seg.fin {
			total++
		}
		if seqnum.Size(remaining) < total {
			// partial ack within this segment: trim the head in place.
			acked := seqnum.Size(remaining)
			if seg.fin && acked == total-1 {
				// everything but the synthetic FIN octet acked; nothing to trim.
				break
			}
			newBuf := append([]byte(nil), seg.buf[acked:]...)
			seg.buf = newBuf
			seg.seq = seqnum.Add(seg.seq, acked)
			seg.ownership = OwnershipCopied
			tcb.seqLocal = seqnum.Add(tcb.seqLocal, acked)
			remaining = 0
			break
		}
		remaining -= seqnum.Size(total)
		tcb.seqLocal = seqnum.Add(tcb.seqLocal, total)
		next := seg.next
		fin := seg.fin
		t.releaseSegment(tcb.segHead)
		tcb.segHead = next
		if next == nilSeg {
			tcb.segTail = nilSeg
		}
		if fin {
			onFinAcked(tcb)
		}
	}
	if tcb.segHead == nilSeg {
		tcb.phase = demoteSendPhase(tcb.phase)
	}
	return AckAdvanced
}

func demoteSendPhase(p Phase) Phase {
	if p == PhaseEstablishedSend {
		return PhaseEstablishedRecv
	}
	return p
}

// onFinAcked applies the transition triggered by our own FIN being
// acknowledged. LAST_ACK has no successor state: the caller (the state
// machine driver) must Destroy the TCB once it observes phase unchanged at
// LAST_ACK with an empty segment queue, matching the spec's
// "LAST_ACK, ACK retires the FIN -> destroy" transition.
func onFinAcked(tcb *TCB) {
	switch tcb.phase {
	case PhaseFinWait1:
		tcb.phase = PhaseFinWait2
	case PhaseClosing:
		tcb.phase = PhaseTimeWait
	}
}
