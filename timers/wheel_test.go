package timers

import "testing"

func TestAddRemoveExpiredOrder(t *testing.T) {
	w := NewWheel(4)
	w.Add(0, 10)
	w.Add(1, 5)
	w.Add(2, 20)

	owner, ok := w.RemoveExpired(5)
	if !ok || owner != 1 {
		t.Fatalf("got (%d,%v) want (1,true)", owner, ok)
	}
	_, ok = w.RemoveExpired(5)
	if ok {
		t.Fatal("expected no further expirations at tick 5")
	}
	owner, ok = w.RemoveExpired(10)
	if !ok || owner != 0 {
		t.Fatalf("got (%d,%v) want (0,true)", owner, ok)
	}
}

func TestUnlinkIsIdempotent(t *testing.T) {
	w := NewWheel(2)
	w.Add(0, 100)
	w.Unlink(0)
	w.Unlink(0) // must not panic or corrupt state
	if w.Len() != 0 {
		t.Fatalf("len = %d want 0", w.Len())
	}
	if _, ok := w.RemoveExpired(1000); ok {
		t.Fatal("expected nothing linked")
	}
}

func TestAddMovesExistingEntry(t *testing.T) {
	w := NewWheel(2)
	w.Add(0, 10)
	w.Add(0, 50) // re-add before expiry must reschedule, not double-link
	if w.Len() != 1 {
		t.Fatalf("len = %d want 1", w.Len())
	}
	if _, ok := w.RemoveExpired(10); ok {
		t.Fatal("entry should not have expired at old tick")
	}
	owner, ok := w.RemoveExpired(50)
	if !ok || owner != 0 {
		t.Fatalf("got (%d,%v) want (0,true)", owner, ok)
	}
}

func TestExactlyOnceDelivery(t *testing.T) {
	w := NewWheel(1)
	w.Add(0, 1)
	owner, ok := w.RemoveExpired(100)
	if !ok || owner != 0 {
		t.Fatal("expected first expiry")
	}
	if _, ok := w.RemoveExpired(100); ok {
		t.Fatal("timer fired twice without being re-added")
	}
}
