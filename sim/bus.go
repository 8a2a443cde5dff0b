package sim

import (
	"sync"

	"github.com/kstaniek/go-gd32can/can"
)

type node interface {
	receive(m can.Message)
}

// Bus is an in-process CAN segment. Every frame a node transmits reaches
// all other attached nodes and every tap, synchronously on the
// transmitter's goroutine. A transmitter never hears its own frame.
type Bus struct {
	mu    sync.Mutex
	nodes []node
	taps  []func(can.Message)
}

func NewBus() *Bus {
	return &Bus{}
}

// Tap registers an observer for every frame crossing the bus, injected
// ones included. Taps run on the transmitter's goroutine and must not
// block.
func (b *Bus) Tap(fn func(can.Message)) {
	b.mu.Lock()
	b.taps = append(b.taps, fn)
	b.mu.Unlock()
}

// Inject puts a frame on the wire as if an unattached node transmitted
// it. Every attached node sees it.
func (b *Bus) Inject(m can.Message) {
	b.broadcast(nil, m)
}

func (b *Bus) attach(n node) {
	b.mu.Lock()
	b.nodes = append(b.nodes, n)
	b.mu.Unlock()
}

// broadcast delivers m to every node except src. The node and tap lists
// are snapshotted so delivery runs without the bus lock; nodes may
// transmit from inside receive.
func (b *Bus) broadcast(src node, m can.Message) {
	b.mu.Lock()
	nodes := append([]node(nil), b.nodes...)
	taps := append(([]func(can.Message))(nil), b.taps...)
	b.mu.Unlock()
	for _, t := range taps {
		t(m)
	}
	for _, n := range nodes {
		if n != src {
			n.receive(m)
		}
	}
}

// EchoPeer answers every data frame by transmitting it back, standing in
// for a responding device. Remote frames are swallowed. A bus should
// carry at most one echo peer; two would relay forever.
type EchoPeer struct {
	bus *Bus
}

func NewEchoPeer(bus *Bus) *EchoPeer {
	p := &EchoPeer{bus: bus}
	bus.attach(p)
	return p
}

func (p *EchoPeer) receive(m can.Message) {
	if m.RTR {
		return
	}
	p.bus.broadcast(p, m)
}
