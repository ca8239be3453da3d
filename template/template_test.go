package template

import (
	"testing"

	"github.com/kestrelscan/tcpstack/ethernet"
	"github.com/kestrelscan/tcpstack/tcpengine"
)

func TestBuildSegmentLayout(t *testing.T) {
	tpl := IPv4{
		LocalMAC:  [6]byte{1, 2, 3, 4, 5, 6},
		RemoteMAC: [6]byte{6, 5, 4, 3, 2, 1},
	}
	tuple := tcpengine.FourTuple{
		Local:      tcpengine.AddrFromBytes([]byte{192, 168, 1, 2}),
		Remote:     tcpengine.AddrFromBytes([]byte{192, 168, 1, 3}),
		LocalPort:  1234,
		RemotePort: 80,
	}
	buf := make([]byte, 128)
	n, err := tpl.BuildSegment(buf, tuple, 1000, 2000, tcpengine.FlagSYN, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 14+20+20 {
		t.Fatalf("n = %d, want 54", n)
	}
	efrm, err := ethernet.NewFrame(buf[:14])
	if err != nil {
		t.Fatal(err)
	}
	if efrm.EtherTypeOrSize() != ethernet.TypeIPv4 {
		t.Fatalf("ethertype = %v, want IPv4", efrm.EtherTypeOrSize())
	}
	tcpBuf := buf[34:54]
	flags := tcpBuf[13]
	if flags != 0x02 {
		t.Fatalf("flags byte = %#x, want SYN (0x02)", flags)
	}
}

func TestBuildSegmentShortBufferErrors(t *testing.T) {
	tpl := IPv4{}
	tuple := tcpengine.FourTuple{
		Local:  tcpengine.AddrFromBytes([]byte{1, 1, 1, 1}),
		Remote: tcpengine.AddrFromBytes([]byte{2, 2, 2, 2}),
	}
	_, err := tpl.BuildSegment(make([]byte, 10), tuple, 0, 0, tcpengine.FlagACK, 64, nil)
	if err == nil {
		t.Fatal("expected short buffer error")
	}
}
