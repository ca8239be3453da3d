// Package seqnum implements modular arithmetic over 32-bit TCP sequence
// numbers and window sizes, as used by RFC9293 section 3.4.
package seqnum

import "fmt"

// Value is a 32-bit TCP sequence or acknowledgment number. Arithmetic on
// Value wraps modulo 2^32; comparisons must go through LessThan/LessThanEq
// rather than Go's native operators.
type Value uint32

// Size is an unsigned span of sequence space, such as a window size or
// segment length.
type Size uint32

// Add returns v+delta, wrapping modulo 2^32.
func Add(v Value, delta Size) Value { return v + Value(delta) }

// Sizeof returns the number of octets between a (inclusive) and b (exclusive),
// i.e. b-a performed in sequence-space arithmetic.
func Sizeof(a, b Value) Size { return Size(b - a) }

// LessThan reports whether v comes strictly before w in sequence space,
// per RFC793's definition of "<" for sequence numbers: the comparison wraps
// around the 32-bit space using signed arithmetic on the difference.
func (v Value) LessThan(w Value) bool {
	return int32(v-w) < 0
}

// LessThanEq reports whether v comes at or before w in sequence space.
func (v Value) LessThanEq(w Value) bool {
	return v == w || v.LessThan(w)
}

// InWindow reports whether v falls in the half-open interval [start, start+size).
func (v Value) InWindow(start Value, size Size) bool {
	return Sizeof(start, v) < size
}

// UpdateForward advances v by delta, returning the new value. Used when
// extending the expected-next-sequence edge of a window by newly
// acknowledged or received octets.
func (v Value) UpdateForward(delta Size) Value { return Add(v, delta) }

func (v Value) String() string { return fmt.Sprintf("%d", uint32(v)) }

func (s Size) String() string { return fmt.Sprintf("%d", uint32(s)) }
