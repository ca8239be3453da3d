package tcpengine

import (
	"testing"

	"github.com/kestrelscan/tcpstack/seqnum"
)

// markerTemplate records the flags/seq of every built frame as its first
// five bytes, so tests can confirm what actually reached the wire rather
// than just the state-machine transition.
type markerTemplate struct{}

func (markerTemplate) BuildSegment(out []byte, tuple FourTuple, seq, ack seqnum.Value, flags SegmentFlags, ttl uint8, payload []byte) (int, error) {
	out[0] = byte(flags)
	out[1] = byte(seq >> 24)
	out[2] = byte(seq >> 16)
	out[3] = byte(seq >> 8)
	out[4] = byte(seq)
	n := copy(out[5:], payload)
	return 5 + n, nil
}

func newMarkerTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(Options{Capacity: 16, Template: markerTemplate{}})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestConnectEnqueuesSynFrameOntoTxRing(t *testing.T) {
	tbl := newMarkerTable(t)
	drv := NewDriver(tbl, &fakeClock{}, &AppConfig{})
	tp := tuple(20, 80)
	if _, err := drv.Connect(tp, 64, nil); err != nil {
		t.Fatal(err)
	}
	frame, ok := tbl.DequeueTx()
	if !ok {
		t.Fatal("expected a queued SYN frame, ring was empty")
	}
	if SegmentFlags(frame[0]) != FlagSYN {
		t.Fatalf("flags = %v, want FlagSYN", SegmentFlags(frame[0]))
	}
	if _, ok := tbl.DequeueTx(); ok {
		t.Fatal("expected only one queued frame")
	}
}

func TestHandleSynAckEnqueuesAckFrame(t *testing.T) {
	tbl := newMarkerTable(t)
	drv := NewDriver(tbl, &fakeClock{}, &AppConfig{})
	tp := tuple(21, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	tbl.DequeueTx() // drain the SYN enqueued by Connect

	drv.HandleSynAck(tcb, 5000)
	frame, ok := tbl.DequeueTx()
	if !ok {
		t.Fatal("expected a queued ACK frame after SYN-ACK")
	}
	if SegmentFlags(frame[0]) != FlagACK {
		t.Fatalf("flags = %v, want FlagACK", SegmentFlags(frame[0]))
	}
}

func TestDeadlineTimeoutEnqueuesRstFrame(t *testing.T) {
	tbl := newMarkerTable(t)
	clk := &fakeClock{}
	drv := NewDriver(tbl, clk, &AppConfig{})
	tp := tuple(22, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	tbl.DequeueTx() // drain the SYN

	clk.tick = 31 // past the default 30s connection deadline
	drv.HandleTimeout(tcb)
	frame, ok := tbl.DequeueTx()
	if !ok {
		t.Fatal("expected a queued RST frame")
	}
	if SegmentFlags(frame[0])&(FlagRST|FlagACK) != FlagRST|FlagACK {
		t.Fatalf("flags = %v, want RST|ACK set", SegmentFlags(frame[0]))
	}
}

func TestSendEnqueuesDataFrameWithPayload(t *testing.T) {
	tbl := newMarkerTable(t)
	drv := NewDriver(tbl, &fakeClock{}, &AppConfig{})
	tp := tuple(23, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	drv.HandleSynAck(tcb, 5000)
	tbl.DequeueTx() // drain the SYN
	tbl.DequeueTx() // drain the ACK HandleSynAck sent

	if err := tbl.Send(tcb, []byte("hi"), OwnershipStatic, false, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	frame, ok := tbl.DequeueTx()
	if !ok {
		t.Fatal("expected a queued data frame")
	}
	if string(frame[5:]) != "hi" {
		t.Fatalf("payload = %q, want %q", frame[5:], "hi")
	}
}
