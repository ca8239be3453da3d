package ipv6

// ToS represents the IPv6 Traffic Class field (top 6 bits Differentiated
// Services, bottom 2 bits Explicit Congestion Notification).
type ToS uint8

// DS returns the Differentiated Services portion of the Traffic Class.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN returns the Explicit Congestion Notification portion of the Traffic Class.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }
