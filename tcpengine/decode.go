package tcpengine

import (
	"encoding/binary"
	"errors"

	"github.com/kestrelscan/tcpstack"
	"github.com/kestrelscan/tcpstack/ethernet"
	"github.com/kestrelscan/tcpstack/ipv4"
	"github.com/kestrelscan/tcpstack/seqnum"
)

var errNotTCPv4 = errors.New("tcpengine: frame is not an IPv4/TCP segment")

// IncomingSegment is the decoded shape of a received TCP/IPv4 frame, enough
// for Driver to classify it into one of the reduced event set.
type IncomingSegment struct {
	Tuple   FourTuple
	Seq     seqnum.Value
	Ack     seqnum.Value
	SYN     bool
	ACK     bool
	FIN     bool
	RST     bool
	Payload []byte
}

// DecodeIPv4TCP parses an Ethernet/IPv4/TCP frame as received from a
// rawsock.Adapter, with tuple.Local/Remote assigned from the engine's point
// of view (Local = destination address/port of the incoming frame, i.e. our
// side; Remote = source). Non-TCP/non-IPv4 frames return errNotTCPv4.
func DecodeIPv4TCP(frame []byte) (IncomingSegment, error) {
	var out IncomingSegment
	const ethLen = 14
	if len(frame) < ethLen {
		return out, errNotTCPv4
	}
	efrm, err := ethernet.NewFrame(frame[:ethLen])
	if err != nil || efrm.EtherTypeOrSize() != ethernet.TypeIPv4 {
		return out, errNotTCPv4
	}
	ipBuf := frame[ethLen:]
	ifrm, err := ipv4.NewFrame(ipBuf)
	if err != nil {
		return out, errNotTCPv4
	}
	if ifrm.Protocol() != tcpstack.IPProtoTCP {
		return out, errNotTCPv4
	}
	hdrLen := ifrm.HeaderLength()
	total := int(ifrm.TotalLength())
	if total > len(ipBuf) || hdrLen+20 > total {
		return out, errNotTCPv4
	}
	tcpBuf := ipBuf[hdrLen:total]

	out.Tuple.Remote = AddrFromBytes(ifrm.SourceAddr()[:])
	out.Tuple.Local = AddrFromBytes(ifrm.DestinationAddr()[:])
	out.Tuple.RemotePort = binary.BigEndian.Uint16(tcpBuf[0:2])
	out.Tuple.LocalPort = binary.BigEndian.Uint16(tcpBuf[2:4])
	out.Seq = seqnum.Value(binary.BigEndian.Uint32(tcpBuf[4:8]))
	out.Ack = seqnum.Value(binary.BigEndian.Uint32(tcpBuf[8:12]))
	dataOffset := int(tcpBuf[12]>>4) * 4
	flags := tcpBuf[13]
	out.FIN = flags&0x01 != 0
	out.SYN = flags&0x02 != 0
	out.RST = flags&0x04 != 0
	out.ACK = flags&0x10 != 0
	if dataOffset < 20 || dataOffset > len(tcpBuf) {
		return out, errNotTCPv4
	}
	out.Payload = tcpBuf[dataOffset:]
	return out, nil
}
