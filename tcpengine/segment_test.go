package tcpengine

import (
	"testing"

	"github.com/kestrelscan/tcpstack/seqnum"
)

func TestSendSplitsByMSSAndTransmitsHead(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(1, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	tcb.mss = 4
	tcb.phase = PhaseEstablishedRecv

	if err := tbl.Send(tcb, []byte("helloworld"), OwnershipStatic, false, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	var count int
	for seg := tcb.segHead; seg != nilSeg; seg = tbl.segments[seg].next {
		count++
	}
	if count != 3 { // "hell", "owor", "ld"
		t.Fatalf("segment count = %d, want 3", count)
	}
	if tbl.segments[tcb.segHead].seq != 0 {
		t.Fatalf("head seq = %v, want 0", tbl.segments[tcb.segHead].seq)
	}
	if tcb.phase != PhaseEstablishedSend {
		t.Fatalf("phase = %v, want EstablishedSend", tcb.phase)
	}
}

func TestSendAfterFinIsRejected(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(2, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	tcb.phase = PhaseEstablishedRecv
	if err := tbl.Send(tcb, nil, OwnershipStatic, true, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Send(tcb, []byte("late"), OwnershipStatic, false, 0, 0, 0); err != ErrQueueAfterFIN {
		t.Fatalf("err = %v, want ErrQueueAfterFIN", err)
	}
}

func TestAcknowledgeFullyRetiresSegment(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(3, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	tcb.phase = PhaseEstablishedRecv
	if err := tbl.Send(tcb, []byte("abc"), OwnershipStatic, false, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	res := tbl.Acknowledge(tcb, 3)
	if res != AckAdvanced {
		t.Fatalf("res = %v, want AckAdvanced", res)
	}
	if tcb.segHead != nilSeg {
		t.Fatal("expected segment queue to be empty after full ack")
	}
	if tcb.phase != PhaseEstablishedRecv {
		t.Fatalf("phase = %v, want demoted to EstablishedRecv", tcb.phase)
	}
}

func TestAcknowledgePartialTrimsHeadInPlace(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(4, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	tcb.phase = PhaseEstablishedRecv
	if err := tbl.Send(tcb, []byte("abcdef"), OwnershipStatic, false, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	res := tbl.Acknowledge(tcb, 2)
	if res != AckAdvanced {
		t.Fatalf("res = %v, want AckAdvanced", res)
	}
	if tcb.segHead == nilSeg {
		t.Fatal("partial ack should not retire the segment")
	}
	seg := &tbl.segments[tcb.segHead]
	if string(seg.buf) != "cdef" {
		t.Fatalf("remaining buf = %q, want %q", seg.buf, "cdef")
	}
	if seg.ownership != OwnershipCopied {
		t.Fatalf("ownership = %v, want Copied after partial trim", seg.ownership)
	}
}

func TestAcknowledgeFarFutureIsRejected(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(5, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	res := tbl.Acknowledge(tcb, seqnum.Add(tcb.seqLocal, pastFutureWindow+1))
	if res != AckFuture {
		t.Fatalf("res = %v, want AckFuture", res)
	}
}
