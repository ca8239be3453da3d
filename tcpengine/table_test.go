package tcpengine

import (
	"testing"

	"github.com/kestrelscan/tcpstack/seqnum"
	"github.com/rs/xid"
)

type nopTemplate struct{}

func (nopTemplate) BuildSegment(out []byte, tuple FourTuple, seq, ack seqnum.Value, flags SegmentFlags, ttl uint8, payload []byte) (int, error) {
	n := copy(out, payload)
	return n, nil
}

type reporterFunc func(id xid.ID, tuple FourTuple, ttl uint8, subproto string, banner []byte, secs int64, usecs int32)

func (f reporterFunc) Report(id xid.ID, tuple FourTuple, ttl uint8, subproto string, banner []byte, secs int64, usecs int32) {
	f(id, tuple, ttl, subproto, banner, secs, usecs)
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(Options{Capacity: 16, Template: nopTemplate{}})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func tuple(localPort, remotePort uint16) FourTuple {
	return FourTuple{
		Local:      AddrFromBytes([]byte{10, 0, 0, 1}),
		Remote:     AddrFromBytes([]byte{10, 0, 0, 2}),
		LocalPort:  localPort,
		RemotePort: remotePort,
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	tbl := newTestTable(t)
	tp := tuple(1234, 80)
	a, err := tbl.Create(tp, 100, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tbl.Create(tp, 999, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected second Create to return the same TCB")
	}
	if b.seqLocal != 100 {
		t.Fatalf("seqLocal mutated by idempotent Create: %v", b.seqLocal)
	}
}

func TestSymmetricHashFindsEitherDirection(t *testing.T) {
	a := AddrFromBytes([]byte{10, 0, 0, 1})
	b := AddrFromBytes([]byte{10, 0, 0, 2})
	h1 := symmetricHash(a, b, 1234, 80)
	h2 := symmetricHash(b, a, 80, 1234)
	if h1 != h2 {
		t.Fatalf("hash not symmetric: %d != %d", h1, h2)
	}
}

func TestDestroyReturnsSlotToFreelistAndReportsBanner(t *testing.T) {
	tbl := newTestTable(t)
	var reported bool
	tbl.reporter = reporterFunc(func(id xid.ID, tuple FourTuple, ttl uint8, subproto string, banner []byte, secs int64, usecs int32) {
		reported = true
		if string(banner) != "hi" {
			t.Fatalf("banner = %q, want hi", banner)
		}
	})
	tp := tuple(1111, 80)
	tcb, err := tbl.Create(tp, 0, 0, 64, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	tcb.banner = []byte("hi")
	before := tbl.stats.Active
	if err := tbl.Destroy(tcb, nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	if tbl.stats.Active != before-1 {
		t.Fatalf("active count = %d, want %d", tbl.stats.Active, before-1)
	}
	if !reported {
		t.Fatal("expected banner to be reported on destroy")
	}
	if tbl.Lookup(tp) != nil {
		t.Fatal("destroyed TCB should not be found by Lookup")
	}
	if err := tbl.Destroy(tcb, nil, 0, 0); err != ErrNoTCB {
		t.Fatalf("double-destroy err = %v, want ErrNoTCB", err)
	}
}

func TestCreateFailsWhenTableFull(t *testing.T) {
	tbl := newTestTable(t)
	capacity := len(tbl.arena)
	for i := 0; i < capacity; i++ {
		_, err := tbl.Create(tuple(uint16(i+1), 80), 0, 0, 64, nil, 0)
		if err != nil {
			t.Fatalf("unexpected error filling table at i=%d: %v", i, err)
		}
	}
	_, err := tbl.Create(tuple(uint16(capacity+1), 80), 0, 0, 64, nil, 0)
	if err != ErrTableFull {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
}
