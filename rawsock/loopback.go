package rawsock

import "sync"

// Loopback is an in-memory Adapter pair used by tests to exercise the
// engine without a real network device. Two
// Loopback values sharing the same pair of channels act as each end of a
// wire.
type Loopback struct {
	mu    sync.Mutex
	tx    chan frameTS
	rx    chan frameTS
	clock func() (int64, int32)
	closed bool
}

type frameTS struct {
	buf   []byte
	secs  int64
	usecs int32
}

// NewLoopbackPair returns two Adapters wired to each other: frames sent on
// a are received on b, and vice versa.
func NewLoopbackPair(clock func() (int64, int32)) (a, b *Loopback) {
	ab := make(chan frameTS, 256)
	ba := make(chan frameTS, 256)
	if clock == nil {
		clock = func() (int64, int32) { return 0, 0 }
	}
	a = &Loopback{tx: ab, rx: ba, clock: clock}
	b = &Loopback{tx: ba, rx: ab, clock: clock}
	return a, b
}

func (l *Loopback) SendFrame(buf []byte, flush bool) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrNoFrame
	}
	cp := append([]byte(nil), buf...)
	secs, usecs := l.clock()
	select {
	case l.tx <- frameTS{buf: cp, secs: secs, usecs: usecs}:
		return nil
	default:
		return ErrNoFrame // ring full: treat like a dropped frame on a saturated wire
	}
}

func (l *Loopback) RecvFrame() ([]byte, int64, int32, error) {
	select {
	case f := <-l.rx:
		return f.buf, f.secs, f.usecs, nil
	default:
		return nil, 0, 0, ErrNoFrame
	}
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
