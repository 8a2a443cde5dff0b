package ring

import (
	"fmt"
	"testing"
	"time"

	"github.com/kstaniek/go-gd32can/can"
)

func msg(id uint32) can.Message {
	return can.Message{ID: id & can.MaxStdID, Len: 2, Data: [8]byte{byte(id), byte(id >> 8)}}
}

func TestFIFOOrder(t *testing.T) {
	b := New(16)
	for i := uint32(0); i < 10; i++ {
		if !b.Push(msg(i)) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := uint32(0); i < 10; i++ {
		m, ok := b.Peek()
		if !ok {
			t.Fatalf("peek %d failed", i)
		}
		if m.ID != i {
			t.Fatalf("peek %d: got id %#x, want %#x", i, m.ID, i)
		}
		if !b.Pop() {
			t.Fatalf("pop %d failed", i)
		}
	}
	if !b.Empty() {
		t.Fatal("buffer not empty after draining")
	}
}

func TestFullEmptyBoundary(t *testing.T) {
	const capacity = 8
	b := New(capacity)
	// One slot stays reserved: exactly capacity-1 pushes succeed.
	for i := 0; i < capacity-1; i++ {
		if !b.Push(msg(uint32(i))) {
			t.Fatalf("push %d failed before capacity", i)
		}
	}
	if !b.Full() {
		t.Fatal("buffer should be full after capacity-1 pushes")
	}
	if b.Push(msg(99)) {
		t.Fatal("push into full buffer succeeded")
	}
	if !b.Pop() {
		t.Fatal("pop from full buffer failed")
	}
	if b.Full() {
		t.Fatal("buffer still full after one pop")
	}
	if !b.Push(msg(100)) {
		t.Fatal("push after pop failed")
	}
}

func TestWrapAround(t *testing.T) {
	b := New(4)
	next := uint32(0)
	expect := uint32(0)
	// Push/pop far past the capacity so head and tail wrap repeatedly.
	for i := 0; i < 50; i++ {
		for b.Push(msg(next)) {
			next++
		}
		for j := 0; j < 2; j++ {
			m, ok := b.Peek()
			if !ok {
				break
			}
			if m.ID != expect {
				t.Fatalf("iteration %d: got id %d, want %d", i, m.ID, expect)
			}
			b.Pop()
			expect++
		}
	}
	for {
		m, ok := b.Peek()
		if !ok {
			break
		}
		if m.ID != expect {
			t.Fatalf("drain: got id %d, want %d", m.ID, expect)
		}
		b.Pop()
		expect++
	}
	if expect != next {
		t.Fatalf("consumed %d messages, produced %d", expect, next)
	}
}

func TestZeroCapacity(t *testing.T) {
	b := New(0)
	if b.Push(msg(1)) {
		t.Fatal("push into unallocated buffer succeeded")
	}
	if _, ok := b.Peek(); ok {
		t.Fatal("peek from unallocated buffer succeeded")
	}
	if b.Pop() {
		t.Fatal("pop from unallocated buffer succeeded")
	}
	if !b.Empty() || !b.Full() {
		t.Fatal("unallocated buffer must read as both empty and full")
	}
	if b.Len() != 0 || b.Free() != 0 || b.Cap() != 0 {
		t.Fatal("unallocated buffer must report zero sizes")
	}
}

func TestLenFree(t *testing.T) {
	b := New(8)
	if b.Free() != 7 {
		t.Fatalf("Free() = %d, want 7", b.Free())
	}
	for i := 0; i < 5; i++ {
		b.Push(msg(uint32(i)))
	}
	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}
	if b.Free() != 2 {
		t.Fatalf("Free() = %d, want 2", b.Free())
	}
	b.Pop()
	b.Pop()
	if b.Len() != 3 || b.Free() != 4 {
		t.Fatalf("after pops Len=%d Free=%d, want 3/4", b.Len(), b.Free())
	}
}

// Producer and consumer on separate goroutines must hand over every message
// exactly once and in order.
func TestConcurrentHandoff(t *testing.T) {
	const total = 100_000
	b := New(64)
	errCh := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		expect := uint32(0)
		for expect < total {
			m, ok := b.Peek()
			if !ok {
				continue
			}
			if m.ID != expect&can.MaxStdID {
				select {
				case errCh <- fmt.Errorf("handoff %d: got id %#x", expect, m.ID):
				default:
				}
				return
			}
			b.Pop()
			expect++
		}
	}()

	for i := uint32(0); i < total; {
		if b.Push(msg(i)) {
			i++
		}
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not finish")
	}
	select {
	case err := <-errCh:
		t.Fatal(err)
	default:
	}
}

func BenchmarkPushPop(b *testing.B) {
	buf := New(64)
	m := msg(0x123)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Push(m)
		buf.Pop()
	}
}
