package tcpstack

//go:generate stringer -type=EtherType,IPProto,ARPOp -linecomment -output wire_stringers.go .

type EtherType uint16

// IsSize returns true if the EtherType is actually the size of the payload
// and should NOT be interpreted as an EtherType.
func (et EtherType) IsSize() bool { return et <= 1500 }

// Ethernet type flags.
const (
	EtherTypeIPv4 EtherType = 0x0800 // IPv4
	EtherTypeARP  EtherType = 0x0806 // ARP
	EtherTypeIPv6 EtherType = 0x86DD // IPv6
	EtherTypeVLAN EtherType = 0x8100 // VLAN
	// minEthPayload is the minimum payload size for an Ethernet frame, assuming
	// that no 802.1Q VLAN tags are present.
	minEthPayload = 46
)

// IPToS represents the Traffic Class (a.k.a Type of Service).
type IPToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated Services field.
func (tos IPToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification field.
func (tos IPToS) ECN() uint8 { return uint8(tos & 0b11) }

// IPv4Flags holds fragmentation field data of an IPv4 header.
type IPv4Flags uint16

// DontFragment specifies whether the datagram can not be fragmented.
func (f IPv4Flags) DontFragment() bool { return f&0x4000 != 0 }

// MoreFragments is cleared for unfragmented packets and on the last fragment of a fragmented one.
func (f IPv4Flags) MoreFragments() bool { return f&0x2000 != 0 }

// FragmentOffset specifies the offset of a particular fragment, in units of 8 bytes.
func (f IPv4Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }

const (
	SizeHeaderIPv4      = 20
	SizeHeaderTCP       = 20
	SizeHeaderEthNoVLAN = 14
	SizeHeaderUDP       = 8
	SizeHeaderARPv4     = 28
	SizeHeaderIPv6      = 40
)

// IPProto represents the IP protocol number.
type IPProto uint8

// IP protocol numbers in use by this engine and its probe templates.
const (
	IPProtoICMP IPProto = 1  // ICMP
	IPProtoTCP  IPProto = 6  // TCP
	IPProtoUDP  IPProto = 17 // UDP
)

// String returns the canonical name of the protocol, or a numeric fallback.
func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "IPProto(" + uitoa(uint64(p)) + ")"
	}
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ARPOp represents the type of ARP packet, either request or reply.
type ARPOp uint8

const (
	ARPRequest ARPOp = 1 // request
	ARPReply   ARPOp = 2 // reply
)
