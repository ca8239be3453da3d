package tcpengine

import (
	"log/slog"
	"time"

	"github.com/kestrelscan/tcpstack/seqnum"
	"github.com/kestrelscan/tcpstack/syncookie"
	"github.com/kestrelscan/tcpstack/timers"
	"github.com/rs/xid"
)

const (
	minCapacity = 1 << 10
	maxCapacity = 1 << 24
)

// Template builds outgoing TCP segments into caller-supplied buffers.
type Template interface {
	// BuildSegment fills out with an Ethernet/IP/TCP frame for the given
	// tuple and flags/payload, returning the number of bytes written.
	BuildSegment(out []byte, tuple FourTuple, seq, ack seqnum.Value, flags SegmentFlags, ttl uint8, payload []byte) (int, error)
}

// SegmentFlags mirrors the TCP control bits the template needs to set.
type SegmentFlags uint8

const (
	FlagSYN SegmentFlags = 1 << iota
	FlagACK
	FlagFIN
	FlagRST
	FlagPSH
)

// Reporter receives a finished banner for a connection at destruction time.
type Reporter interface {
	Report(id xid.ID, tuple FourTuple, ttl uint8, subproto string, banner []byte, secs int64, usecs int32)
}

// NextAddr advances to the next source (ip, port) to use for a reconnect
// attempt, implementing the configured IPv4/IPv6/port ranges.
type NextAddr interface {
	Next(prev FourTuple) (FourTuple, bool)
}

// Options configures a new Table.
type Options struct {
	Capacity         int
	Template         Template
	Reporter         Reporter
	NextAddr         NextAddr
	ConnTimeout      time.Duration
	HelloTimeout     time.Duration
	DefaultMSS       uint16
	Entropy          [16]byte
	Logger           *slog.Logger
	DefaultStream    func(port uint16) Stream
	// TxCapacity sizes the outbound frame ring (Table.DequeueTx); rounded up
	// to a power of two. Defaults to 1024.
	TxCapacity int
}

// Stats is a point-in-time snapshot of table activity, consumed by the
// metrics package's Prometheus collector.
type Stats struct {
	Active       int
	Created      uint64
	Destroyed    uint64
	Retransmits  uint64
	BytesSent    uint64
	BytesRecv    uint64
	BannersSent  uint64
	TxDropped    uint64
}

// Table is the connection table: a hash-bucketed arena of TCBs plus the
// timer wheel, segment arena, and collaborators shared by every TCB in it.
// Table is not safe for concurrent use: the design assumes a single receive
// thread owns it exclusively (see SPEC_FULL.md Concurrency & Resource Model).
type Table struct {
	arena    []TCB
	buckets  []int32
	mask     uint32
	freeHead int32

	segments    []Segment
	segFreeHead int32

	wheel *timers.Wheel

	cookies syncookie.Jar

	tx *TxRing

	template Template
	reporter Reporter
	nextAddr NextAddr

	connTimeout  time.Duration
	helloTimeout time.Duration
	defaultMSS   uint16
	defaultStream func(port uint16) Stream

	log *slog.Logger

	stats Stats
}

func NewTable(opts Options) (*Table, error) {
	cap := opts.Capacity
	if cap < minCapacity {
		cap = minCapacity
	}
	if cap > maxCapacity {
		cap = maxCapacity
	}
	// round up to next power of two
	pow := minCapacity
	for pow < cap {
		pow <<= 1
	}
	cap = pow
	if opts.Template == nil {
		return nil, ErrInvalidCapacity
	}

	t := &Table{
		arena:        make([]TCB, cap),
		buckets:      make([]int32, cap),
		mask:         uint32(cap - 1),
		freeHead:     0,
		segments:     make([]Segment, cap*2),
		segFreeHead:  0,
		wheel:        timers.NewWheel(cap),
		tx:           NewTxRing(orDefaultInt(opts.TxCapacity, 1024)),
		template:     opts.Template,
		reporter:     opts.Reporter,
		nextAddr:     opts.NextAddr,
		connTimeout:  orDefault(opts.ConnTimeout, 30*time.Second),
		helloTimeout: orDefault(opts.HelloTimeout, 2*time.Second),
		defaultMSS:   orDefaultU16(opts.DefaultMSS, 1400),
		defaultStream: opts.DefaultStream,
		log:          opts.Logger,
	}
	t.cookies.Reset(opts.Entropy)
	for i := range t.buckets {
		t.buckets[i] = nilIdx32
	}
	for i := range t.arena {
		t.arena[i].freeNext = int32(i + 1)
	}
	t.arena[len(t.arena)-1].freeNext = nilIdx32
	for i := range t.segments {
		t.segments[i].next = int32(i + 1)
	}
	t.segments[len(t.segments)-1].next = nilSeg
	if t.log == nil {
		t.log = slog.Default()
	}
	return t, nil
}

const nilIdx32 = -1

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultU16(v, def uint16) uint16 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (t *Table) bucketFor(tuple FourTuple) uint32 {
	h := symmetricHash(tuple.Local, tuple.Remote, tuple.LocalPort, tuple.RemotePort)
	return h & t.mask
}

// Lookup finds the TCB matching tuple, or nil.
func (t *Table) Lookup(tuple FourTuple) *TCB {
	b := t.bucketFor(tuple)
	idx := t.buckets[b]
	for idx != nilIdx32 {
		tcb := &t.arena[idx]
		if tcb.inUse && tupleEqual(tcb.tuple, tuple) {
			return tcb
		}
		idx = tcb.bucketNext
	}
	return nil
}

func tupleEqual(a, b FourTuple) bool {
	return a.LocalPort == b.LocalPort && a.RemotePort == b.RemotePort &&
		string(a.Local.Bytes()) == string(b.Local.Bytes()) &&
		string(a.Remote.Bytes()) == string(b.Remote.Bytes())
}

// Create returns the TCB for tuple, creating it if absent (idempotent: an
// existing match is returned unmodified).
func (t *Table) Create(tuple FourTuple, seqLocal, seqRemote seqnum.Value, ttl uint8, stream Stream, nowTick uint64) (*TCB, error) {
	if existing := t.Lookup(tuple); existing != nil {
		return existing, nil
	}
	if t.freeHead == nilIdx32 {
		return nil, ErrTableFull
	}
	idx := t.freeHead
	tcb := &t.arena[idx]
	t.freeHead = tcb.freeNext

	if stream == nil && t.defaultStream != nil {
		stream = t.defaultStream(tuple.RemotePort)
	}

	*tcb = TCB{
		id:             xid.New(),
		tuple:          tuple,
		ttl:            ttl,
		mss:            t.defaultMSS,
		seqLocal:       seqLocal,
		seqLocalFirst:  seqLocal,
		seqRemote:      seqRemote,
		seqRemoteFirst: seqRemote,
		ackRemote:      seqRemote,
		phase:          PhaseSynSent,
		appPhase:       AppConnect,
		active:         true,
		inUse:          true,
		segHead:        nilSeg,
		segTail:        nilSeg,
		stream:         stream,
		timerIdx:       uint32(idx),
		createdTick:    nowTick,
		freeNext:       nilIdx32,
	}

	b := t.bucketFor(tuple)
	tcb.bucketNext = t.buckets[b]
	t.buckets[b] = idx

	t.stats.Active++
	t.stats.Created++
	return tcb, nil
}

// Destroy removes tcb from the table: unlinks its timer, releases queued
// segment buffers per their ownership tag, flushes its banner to the
// reporter exactly once, and returns the arena slot to the freelist.
func (t *Table) Destroy(tcb *TCB, reason error, secs int64, usecs int32) error {
	idx := t.indexOf(tcb)
	b := t.bucketFor(tcb.tuple)
	prev := int32(nilIdx32)
	cur := t.buckets[b]
	found := false
	for cur != nilIdx32 {
		if cur == idx {
			found = true
			break
		}
		prev = cur
		cur = t.arena[cur].bucketNext
	}
	if !found {
		return ErrNoTCB
	}
	if prev == nilIdx32 {
		t.buckets[b] = tcb.bucketNext
	} else {
		t.arena[prev].bucketNext = tcb.bucketNext
	}

	t.wheel.Unlink(uint32(idx))

	// release queued segment buffers honoring ownership.
	seg := tcb.segHead
	for seg != nilSeg {
		next := t.segments[seg].next
		t.releaseSegment(int32(seg))
		seg = next
	}
	tcb.segHead, tcb.segTail = nilSeg, nilSeg

	if len(tcb.banner) > 0 && t.reporter != nil {
		t.reporter.Report(tcb.id, tcb.tuple, tcb.ttl, streamName(tcb.stream), tcb.banner, secs, usecs)
		t.stats.BannersSent++
	}
	if cl, ok := tcb.stream.(Cleanup); ok {
		cl.Cleanup()
	}

	if t.log != nil {
		t.log.Debug("tcb destroyed", "id", tcb.id.String(), "reason", reason, "local_port", tcb.tuple.LocalPort, "remote_port", tcb.tuple.RemotePort)
	}

	tcb.active = false
	tcb.inUse = false
	tcb.banner = nil
	tcb.freeNext = t.freeHead
	t.freeHead = idx

	t.stats.Active--
	t.stats.Destroyed++
	return nil
}

func streamName(s Stream) string {
	if s == nil {
		return ""
	}
	return s.Name()
}

func (t *Table) indexOf(tcb *TCB) int32 {
	return int32(tcb.timerIdx)
}

// Stats returns a snapshot of table activity for metrics reporting.
func (t *Table) Stats() Stats { return t.stats }

// ArmTimer (re)schedules tcb's single timer entry to fire at tick.
func (t *Table) ArmTimer(tcb *TCB, tick uint64) {
	t.wheel.Add(uint32(t.indexOf(tcb)), tick)
}

// Logger exposes the table's structured logger for collaborators.
func (t *Table) Logger() *slog.Logger { return t.log }

// enqueueTx hands a built frame to the outbound ring (Component H): the
// receive thread that drives the state machine never writes to the wire
// directly, it only fills buffers and pushes them here for the transmit
// thread to drain with DequeueTx. A full ring drops the frame; TCP's own
// retransmit timers recover the loss, same as a dropped packet on the wire.
func (t *Table) enqueueTx(frame []byte) {
	if !t.tx.TryPush(frame) {
		t.stats.TxDropped++
		if t.log != nil {
			t.log.Warn("tx ring full, frame dropped", "len", len(frame))
		}
	}
}

// DequeueTx pops the oldest queued outbound frame, for the transmit thread
// (e.g. cmd/scanconnect's pumpLoop) to hand to a rawsock.Adapter.
func (t *Table) DequeueTx() ([]byte, bool) {
	return t.tx.TryPop()
}

// ExpireOne pops one expired TCB (tick <= now) for the caller (the state
// machine driver) to feed a TIMEOUT event, or returns nil if none expired.
func (t *Table) ExpireOne(now uint64) *TCB {
	idx, ok := t.wheel.RemoveExpired(now)
	if !ok {
		return nil
	}
	return &t.arena[idx]
}
