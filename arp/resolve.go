package arp

import (
	"bytes"
	"errors"
	"time"

	"github.com/kestrelscan/tcpstack"
	"github.com/kestrelscan/tcpstack/ethernet"
	"github.com/kestrelscan/tcpstack/rawsock"
)

// errResolveTimeout is returned once the retry budget (10 attempts, 1s
// apart) is exhausted with no matching reply.
var errResolveTimeout = errors.New("arp: resolve timed out")

const (
	resolveMaxAttempts = 10
	resolveInterval    = time.Second
	ethHdrLen          = tcpstack.SizeHeaderEthNoVLAN
)

// Resolve performs a synchronous, blocking ARP query for targetIP over
// adapter, using localMAC/localIP as our own addresses. It is used once at
// startup to find the gateway's hardware address; every other interaction
// with ARP happens asynchronously via Handler (see handler.go).
//
// Any frame that is not an ARP reply matching targetIP (with ourselves as
// the target) is ignored, including non-ARP traffic the adapter may also
// be delivering.
func Resolve(adapter rawsock.Adapter, localMAC [6]byte, localIP, targetIP [4]byte) ([6]byte, error) {
	var zero [6]byte
	req := make([]byte, ethHdrLen+sizeHeaderv4)
	buildRequest(req, localMAC, localIP, targetIP)

	deadline := time.Now()
	for attempt := 0; attempt < resolveMaxAttempts; attempt++ {
		if err := adapter.SendFrame(req, true); err != nil {
			return zero, err
		}
		deadline = deadline.Add(resolveInterval)
		for time.Now().Before(deadline) {
			frame, _, _, err := adapter.RecvFrame()
			if err == rawsock.ErrNoFrame {
				time.Sleep(time.Millisecond)
				continue
			}
			if err != nil {
				return zero, err
			}
			if mac, ok := matchReply(frame, localIP, targetIP); ok {
				return mac, nil
			}
		}
	}
	return zero, errResolveTimeout
}

func buildRequest(buf []byte, localMAC [6]byte, localIP, targetIP [4]byte) {
	efrm, _ := ethernet.NewFrame(buf[:ethHdrLen])
	broadcast := ethernet.BroadcastAddr()
	*efrm.DestinationHardwareAddr() = broadcast
	*efrm.SourceHardwareAddr() = localMAC
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, _ := NewFrame(buf[ethHdrLen:])
	afrm.SetHardware(1, 6) // Ethernet
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpRequest)
	shw, sproto := afrm.Sender4()
	*shw = localMAC
	*sproto = localIP
	thw, tproto := afrm.Target4()
	*thw = [6]byte{}
	*tproto = targetIP
}

func matchReply(frame []byte, localIP, targetIP [4]byte) ([6]byte, bool) {
	var zero [6]byte
	if len(frame) < ethHdrLen {
		return zero, false
	}
	efrm, err := ethernet.NewFrame(frame[:ethHdrLen])
	if err != nil || efrm.EtherTypeOrSize() != ethernet.TypeARP {
		return zero, false
	}
	if len(frame) < ethHdrLen+sizeHeaderv4 {
		return zero, false
	}
	afrm, err := NewFrame(frame[ethHdrLen:])
	if err != nil || afrm.Operation() != OpReply {
		return zero, false
	}
	_, targetProto := afrm.Target()
	if !bytes.Equal(targetProto, localIP[:]) {
		return zero, false // reply not addressed to us
	}
	senderHW, senderProto := afrm.Sender()
	if !bytes.Equal(senderProto, targetIP[:]) {
		return zero, false // not a reply from the IP we queried
	}
	var mac [6]byte
	copy(mac[:], senderHW)
	return mac, true
}
