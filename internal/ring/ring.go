package ring

import (
	"sync/atomic"

	"github.com/kstaniek/go-gd32can/can"
)

// Buffer is a fixed-capacity single-producer/single-consumer queue of CAN
// messages. One slot is always left unused so full and empty remain
// distinguishable without a shared counter: empty means head==tail, full
// means head+1==tail (mod capacity). The producer owns head, the consumer
// owns tail; each side only ever stores its own index, so atomic loads and
// stores are enough for cross-goroutine use.
//
// A zero-capacity Buffer is legal and models "no queue": every operation
// reports empty/full without touching storage.
type Buffer struct {
	buf  []can.Message
	size uint32
	head atomic.Uint32 // next write slot
	tail atomic.Uint32 // next read slot
}

// New allocates a buffer holding up to capacity-1 messages. capacity <= 0
// yields an unallocated buffer.
func New(capacity int) *Buffer {
	b := &Buffer{}
	if capacity > 0 {
		b.buf = make([]can.Message, capacity)
		b.size = uint32(capacity)
	}
	return b
}

// Cap returns the configured capacity, counting the reserved slot.
func (b *Buffer) Cap() int { return int(b.size) }

func (b *Buffer) Empty() bool { return b.head.Load() == b.tail.Load() }

func (b *Buffer) Full() bool {
	if b.size == 0 {
		return true
	}
	return (b.head.Load()+1)%b.size == b.tail.Load()
}

// Len returns the number of queued messages.
func (b *Buffer) Len() int {
	if b.size == 0 {
		return 0
	}
	h, t := b.head.Load(), b.tail.Load()
	if h >= t {
		return int(h - t)
	}
	return int(h + b.size - t)
}

// Free returns how many more messages can be pushed.
func (b *Buffer) Free() int {
	if b.size == 0 {
		return 0
	}
	return int(b.size) - 1 - b.Len()
}

// Push stores m and advances the producer index. It reports false when the
// buffer is full or unallocated. Producer side only.
func (b *Buffer) Push(m can.Message) bool {
	if b.size == 0 {
		return false
	}
	h := b.head.Load()
	next := (h + 1) % b.size
	if next == b.tail.Load() {
		return false
	}
	b.buf[h] = m
	b.head.Store(next)
	return true
}

// Peek returns the oldest message without consuming it. Consumer side only.
func (b *Buffer) Peek() (can.Message, bool) {
	if b.size == 0 {
		return can.Message{}, false
	}
	t := b.tail.Load()
	if t == b.head.Load() {
		return can.Message{}, false
	}
	return b.buf[t], true
}

// Pop discards the oldest message, reporting false on an empty buffer.
// Consumer side only.
func (b *Buffer) Pop() bool {
	if b.size == 0 {
		return false
	}
	t := b.tail.Load()
	if t == b.head.Load() {
		return false
	}
	b.tail.Store((t + 1) % b.size)
	return true
}
