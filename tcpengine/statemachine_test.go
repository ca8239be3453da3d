package tcpengine

import (
	"testing"

	"github.com/kestrelscan/tcpstack/seqnum"
)

type fakeClock struct {
	tick uint64
}

func (c *fakeClock) Tick() uint64               { return c.tick }
func (c *fakeClock) Now() (int64, int32)        { return int64(c.tick), 0 }

func newTestDriver(t *testing.T) (*Driver, *Table, *fakeClock) {
	t.Helper()
	tbl := newTestTable(t)
	clk := &fakeClock{}
	drv := NewDriver(tbl, clk, &AppConfig{})
	return drv, tbl, clk
}

func TestConnectThenSynAckMovesToEstablishedRecv(t *testing.T) {
	drv, _, _ := newTestDriver(t)
	tp := tuple(10, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tcb.phase != PhaseSynSent {
		t.Fatalf("phase = %v, want SynSent", tcb.phase)
	}
	drv.HandleSynAck(tcb, 5000)
	if tcb.phase != PhaseEstablishedRecv {
		t.Fatalf("phase = %v, want EstablishedRecv", tcb.phase)
	}
	if tcb.appPhase != AppReceiveHello {
		t.Fatalf("appPhase = %v, want AppReceiveHello", tcb.appPhase)
	}
	if tcb.seqRemote != seqnum.Add(5000, 1) {
		t.Fatalf("seqRemote = %v, want 5001", tcb.seqRemote)
	}
}

func TestHandleRstDestroysUnconditionally(t *testing.T) {
	drv, tbl, _ := newTestDriver(t)
	tp := tuple(11, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	drv.HandleRst(tcb)
	if tbl.Lookup(tp) != nil {
		t.Fatal("expected TCB to be destroyed after RST")
	}
}

func TestHandleFinFromEstablishedRecvEntersCloseWaitThenLastAck(t *testing.T) {
	drv, tbl, _ := newTestDriver(t)
	tp := tuple(12, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	drv.HandleSynAck(tcb, 5000)
	finSeq := tcb.seqRemote
	drv.HandleFin(tcb, finSeq)
	// onPeerClosed synchronously queues our own FIN, which moves the
	// connection straight through CLOSE_WAIT into LAST_ACK.
	if tcb.phase != PhaseLastAck {
		t.Fatalf("phase = %v, want LastAck", tcb.phase)
	}
	if tbl.Lookup(tp) == nil {
		t.Fatal("TCB should still exist pending the final ACK")
	}
}

func TestHandleAckAtLastAckWithEmptyQueueDestroys(t *testing.T) {
	drv, tbl, _ := newTestDriver(t)
	tp := tuple(13, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	drv.HandleSynAck(tcb, 5000)
	drv.HandleFin(tcb, tcb.seqRemote) // -> CLOSE_WAIT, queues our FIN -> LAST_ACK
	if tcb.phase != PhaseLastAck {
		t.Fatalf("phase = %v, want LastAck", tcb.phase)
	}
	finAck := seqnum.Add(tcb.seqLocal, 1)
	drv.HandleAck(tcb, finAck)
	if tbl.Lookup(tp) != nil {
		t.Fatal("expected TCB destroyed once our FIN is acked in LAST_ACK")
	}
}

func TestHandleDataDeliversPayloadAndAdvancesSeq(t *testing.T) {
	drv, _, _ := newTestDriver(t)
	tp := tuple(14, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	drv.HandleSynAck(tcb, 5000)
	before := tcb.seqRemote
	drv.HandleData(tcb, before, []byte("banner"))
	if tcb.seqRemote != seqnum.Add(before, 6) {
		t.Fatalf("seqRemote = %v, want advanced by 6", tcb.seqRemote)
	}
}

func TestHandleTimeoutRetriesSynSent(t *testing.T) {
	drv, tbl, clk := newTestDriver(t)
	tp := tuple(15, 80)
	tcb, err := drv.Connect(tp, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	clk.tick = 1
	drv.HandleTimeout(tcb)
	if tcb.synRetries != 1 {
		t.Fatalf("synRetries = %d, want 1", tcb.synRetries)
	}
	if tbl.Lookup(tp) == nil {
		t.Fatal("TCB should still be pending after a single retry")
	}
}
