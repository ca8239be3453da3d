package tcpengine

// symmetricHash computes a bucket hash for a 4-tuple that is invariant under
// swapping local/remote: h(a,b) == h(b,a). This lets a single lookup find a
// TCB regardless of whether the caller is looking it up from the
// perspective of an outbound SYN (local=us) or an inbound reply
// (local=us still, but derived from the packet's destination fields).
//
// FNV-1a folded over the two endpoints combined with XOR (rather than
// concatenation) so ordering of the two endpoints never affects the digest.
func symmetricHash(a, b Addr, portA, portB uint16) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	mixAddr := func(addr Addr) uint32 {
		h := uint32(offset32)
		for _, c := range addr.Bytes() {
			h ^= uint32(c)
			h *= prime32
		}
		return h
	}
	mixPort := func(p uint16) uint32 {
		h := uint32(offset32)
		h ^= uint32(p & 0xff)
		h *= prime32
		h ^= uint32(p >> 8)
		h *= prime32
		return h
	}
	// XOR combination of independently-hashed endpoints is symmetric by
	// construction: mix(a)^mix(b) == mix(b)^mix(a).
	return (mixAddr(a) ^ mixAddr(b)) ^ (mixPort(portA) ^ mixPort(portB))
}
