package arp

import (
	"testing"
	"time"

	"github.com/kestrelscan/tcpstack/ethernet"
	"github.com/kestrelscan/tcpstack/rawsock"
)

// TestResolveAgainstPeerResponder drives Resolve against a Loopback pair
// where the peer side runs the async Handler responder, exercising the
// synchronous/asynchronous halves of Component A together.
func TestResolveAgainstPeerResponder(t *testing.T) {
	localMAC := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	localIP := [4]byte{192, 168, 1, 1}
	peerMAC := [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x02}
	peerIP := [4]byte{192, 168, 1, 2}

	a, b := rawsock.NewLoopbackPair(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var h Handler
		h.Reset(HandlerConfig{
			HardwareAddr: peerMAC[:],
			ProtocolAddr: peerIP[:],
			MaxQueries:   1,
			MaxPending:   4,
			HardwareType: 1,
			ProtocolType: ethernet.TypeIPv4,
		})
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			frame, _, _, err := b.RecvFrame()
			if err == rawsock.ErrNoFrame {
				time.Sleep(time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if err := h.Demux(frame, ethHdrLen); err != nil {
				continue
			}
			var out [64]byte
			n, err := h.Encapsulate(out[:], -1, ethHdrLen)
			if err == nil && n > 0 {
				efrm, _ := ethernet.NewFrame(out[:ethHdrLen])
				*efrm.SourceHardwareAddr() = peerMAC
				efrm.SetEtherType(ethernet.TypeARP)
				b.SendFrame(out[:ethHdrLen+n], true)
				return
			}
		}
	}()

	mac, err := Resolve(a, localMAC, localIP, peerIP)
	<-done
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mac != peerMAC {
		t.Fatalf("resolved MAC = %x, want %x", mac, peerMAC)
	}
}

func TestResolveTimesOutWithNoResponder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 10s timeout test in -short mode")
	}
	a, _ := rawsock.NewLoopbackPair(nil)
	localMAC := [6]byte{1, 2, 3, 4, 5, 6}
	_, err := Resolve(a, localMAC, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2})
	if err != errResolveTimeout {
		t.Fatalf("err = %v, want errResolveTimeout", err)
	}
}
