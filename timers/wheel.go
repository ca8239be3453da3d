// Package timers implements a flat timeout store keyed by a monotonic tick
// counter. It backs the TCP engine's per-connection retransmit, hello, and
// connection-deadline timeouts without requiring a timer goroutine: the
// engine polls RemoveExpired once per receive-loop iteration.
package timers

// Entry is a timer record held in the Wheel's own slice, one per owner
// index (a TCB arena slot). The zero Entry is unlinked.
type Entry struct {
	tick    uint64
	owner   uint32
	linked  bool
	prevIdx int32
	nextIdx int32
}

// Linked reports whether the entry is currently linked into a Wheel.
func (e *Entry) Linked() bool { return e.linked }

// Tick returns the tick at which the entry expires, if linked.
func (e *Entry) Tick() uint64 { return e.tick }

// Wheel is a doubly-linked list of timer entries ordered by insertion,
// scanned linearly on RemoveExpired. A flat scan is correct and fast enough
// here because the owner count is bounded by the connection table capacity
// (at most 2^24) and RemoveExpired is called once per loop iteration rather
// than once per timer.
//
// Entries are addressed by the integer index of their owner within the
// caller's arena (see the owner field on Entry), never by pointer: this
// sidesteps the cyclic TCB<->timer ownership the original design flags,
// since the Wheel never stores a reference back into the arena itself.
type Wheel struct {
	entries []Entry
	headIdx int32
	tailIdx int32
	count   int
}

const nilIdx = -1

// NewWheel allocates a Wheel with one Entry slot per owner index in
// [0, capacity). The caller is expected to size capacity to the connection
// table's TCB arena.
func NewWheel(capacity int) *Wheel {
	w := &Wheel{
		entries: make([]Entry, capacity),
		headIdx: nilIdx,
		tailIdx: nilIdx,
	}
	for i := range w.entries {
		w.entries[i].owner = uint32(i)
		w.entries[i].prevIdx = nilIdx
		w.entries[i].nextIdx = nilIdx
	}
	return w
}

// Add links the timer entry for owner idx to expire at tick. If the entry
// was already linked it is moved (unlinked, then relinked at the tail).
func (w *Wheel) Add(idx uint32, tick uint64) {
	w.Unlink(idx)
	e := &w.entries[idx]
	e.tick = tick
	e.linked = true
	e.prevIdx = w.tailIdx
	e.nextIdx = nilIdx
	if w.tailIdx != nilIdx {
		w.entries[w.tailIdx].nextIdx = int32(idx)
	} else {
		w.headIdx = int32(idx)
	}
	w.tailIdx = int32(idx)
	w.count++
}

// Unlink removes the timer entry for owner idx. Safe to call on an entry
// that is not currently linked.
func (w *Wheel) Unlink(idx uint32) {
	e := &w.entries[idx]
	if !e.linked {
		return
	}
	if e.prevIdx != nilIdx {
		w.entries[e.prevIdx].nextIdx = e.nextIdx
	} else {
		w.headIdx = e.nextIdx
	}
	if e.nextIdx != nilIdx {
		w.entries[e.nextIdx].prevIdx = e.prevIdx
	} else {
		w.tailIdx = e.prevIdx
	}
	e.linked = false
	e.prevIdx = nilIdx
	e.nextIdx = nilIdx
	w.count--
}

// RemoveExpired detaches and returns the owner index of one entry whose
// tick is <= now, or (0, false) if none are expired. The caller must re-Add
// the owner's timer if it remains active; an owner that is not re-added
// will not fire again.
func (w *Wheel) RemoveExpired(now uint64) (owner uint32, ok bool) {
	idx := w.headIdx
	for idx != nilIdx {
		e := &w.entries[idx]
		if e.tick <= now {
			owner = e.owner
			w.Unlink(owner)
			return owner, true
		}
		idx = e.nextIdx
	}
	return 0, false
}

// Len returns the number of currently linked timers.
func (w *Wheel) Len() int { return w.count }

// Linked reports whether owner idx currently has a timer linked.
func (w *Wheel) Linked(idx uint32) bool { return w.entries[idx].linked }
