package tcpengine

import "testing"

func TestTxRingTryPushTryPopFIFOOrder(t *testing.T) {
	r := NewTxRing(4)
	for _, b := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		if !r.TryPush(b) {
			t.Fatalf("TryPush(%q) failed on a non-full ring", b)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.TryPop()
		if !ok {
			t.Fatalf("TryPop: expected %q, ring reported empty", want)
		}
		if string(got) != want {
			t.Fatalf("TryPop = %q, want %q", got, want)
		}
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("expected empty ring after draining all pushes")
	}
}

func TestTxRingTryPushFailsWhenFull(t *testing.T) {
	r := NewTxRing(2) // rounds up internally but starts with capacity 2 worth of slots
	for i := 0; i < 2; i++ {
		if !r.TryPush([]byte{byte(i)}) {
			t.Fatalf("TryPush %d should have succeeded", i)
		}
	}
	if r.TryPush([]byte("overflow")) {
		t.Fatal("TryPush on a full ring should fail")
	}
}

func TestTxRingPushSucceedsImmediatelyWhenSlotFree(t *testing.T) {
	r := NewTxRing(2)
	if err := r.Push([]byte("x"), 1); err != nil {
		t.Fatalf("Push on a free ring: %v", err)
	}
	got, ok := r.TryPop()
	if !ok || string(got) != "x" {
		t.Fatalf("TryPop = %q, %v, want \"x\", true", got, ok)
	}
}

func TestTxRingPushReturnsErrNoBufferWhenFull(t *testing.T) {
	r := NewTxRing(1)
	if !r.TryPush([]byte("fill")) {
		t.Fatal("setup: TryPush should have filled the single slot")
	}
	if err := r.Push([]byte("x"), 3); err != ErrNoBuffer {
		t.Fatalf("Push on a full ring = %v, want ErrNoBuffer", err)
	}
}

func TestTxRingPopReturnsErrNoBufferWhenEmpty(t *testing.T) {
	r := NewTxRing(2)
	if _, err := r.Pop(3); err != ErrNoBuffer {
		t.Fatalf("Pop on an empty ring = %v, want ErrNoBuffer", err)
	}
}
