// Package sim is a deterministic in-memory stand-in for the CAN cell: a
// Bus carrying frames between attached nodes and a Backend implementing
// the gd32 hardware surface with synchronous, level-style interrupt
// dispatch. Tests drive it directly; the bridge daemon runs a controller
// on it when no silicon is present.
package sim

import (
	"errors"
	"sync"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/gd32"
)

type filterSlot struct {
	mode   gd32.FilterMode
	scale  gd32.FilterScale
	id     uint32
	mask   uint32
	active bool
}

func (f filterSlot) match(m can.Message) bool {
	switch {
	case f.scale == gd32.FilterScale32 && f.mode == gd32.FilterModeMask:
		w := gd32.RxCompareWord32(m)
		return w&f.mask == f.id&f.mask
	case f.scale == gd32.FilterScale32:
		w := gd32.RxCompareWord32(m)
		return w == f.id || w == f.mask
	case f.mode == gd32.FilterModeMask:
		h := gd32.RxCompareWord16(m)
		return h&uint16(f.mask>>16) == uint16(f.id>>16)&uint16(f.mask>>16) ||
			h&uint16(f.mask) == uint16(f.id)&uint16(f.mask)
	default:
		h := gd32.RxCompareWord16(m)
		return h == uint16(f.id>>16) || h == uint16(f.id) ||
			h == uint16(f.mask>>16) || h == uint16(f.mask)
	}
}

type pinState struct {
	output bool
	high   bool
}

// Backend models one CAN cell. Transmissions reach the bus, bus frames run
// the filter banks and land in a depth-limited FIFO, and armed interrupt
// lines dispatch the bound handler synchronously whenever their condition
// holds. By default transmit mailboxes complete instantly; manual mode
// holds frames until CompleteTransmit, which lets tests model busy
// mailboxes.
type Backend struct {
	mu   sync.Mutex
	bus  *Bus
	caps gd32.Caps
	inst gd32.Instance
	auto bool

	handler     gd32.Handler
	inited      bool
	mode        gd32.WorkingMode
	cfg         gd32.InitConfig
	timing      gd32.BitTiming
	dispatching bool

	pending  []gd32.MailboxFrame // manual mode: frames awaiting completion
	held     int                 // mailboxes occupied by HoldMailboxes
	fifo     []gd32.MailboxFrame
	irq      [2]bool
	overruns uint64

	filters []filterSlot
	split   uint8

	errBits uint8
	pins    map[uint8]pinState
}

// BackendOption configures a Backend at construction.
type BackendOption func(*Backend)

// WithCaps substitutes the device capability set.
func WithCaps(caps gd32.Caps) BackendOption {
	return func(b *Backend) { b.caps = caps }
}

// WithInstance selects which unit this cell models, which decides the
// filter bank range it consults.
func WithInstance(inst gd32.Instance) BackendOption {
	return func(b *Backend) { b.inst = inst }
}

// WithManualTransmit holds transmitted frames in their mailboxes until
// CompleteTransmit is called.
func WithManualTransmit() BackendOption {
	return func(b *Backend) { b.auto = false }
}

// NewBackend attaches a fresh cell to bus. A nil bus leaves the cell
// isolated: transmissions complete into the void.
func NewBackend(bus *Bus, opts ...BackendOption) *Backend {
	b := &Backend{
		bus:  bus,
		caps: gd32.CapsGD32F30xCL(),
		auto: true,
		pins: make(map[uint8]pinState),
	}
	for _, o := range opts {
		o(b)
	}
	b.filters = make([]filterSlot, int(b.caps.MaxBank)+1)
	b.split = b.caps.DefaultCAN1Split
	if bus != nil {
		bus.attach(b)
	}
	return b
}

func (b *Backend) Bind(h gd32.Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

func (b *Backend) Init(cfg gd32.InitConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = true
	b.mode = gd32.ModeNormal
	b.cfg = cfg
	b.timing = cfg.Timing
	b.pending = nil
	b.held = 0
	b.fifo = nil
	b.overruns = 0
	b.filters = make([]filterSlot, int(b.caps.MaxBank)+1)
	b.split = b.caps.DefaultCAN1Split
	return nil
}

func (b *Backend) Deinit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = false
	b.irq = [2]bool{}
	b.pending = nil
	b.fifo = nil
	return nil
}

func (b *Backend) SetMode(m gd32.WorkingMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inited {
		return errors.New("sim: cell not initialized")
	}
	b.mode = m
	return nil
}

func (b *Backend) SetTiming(t gd32.BitTiming) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode != gd32.ModeInitialize {
		return errors.New("sim: timing write outside initialize mode")
	}
	b.timing = t
	return nil
}

// Timing returns the currently programmed bit timing.
func (b *Backend) Timing() gd32.BitTiming {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timing
}

func (b *Backend) freeSlots() int {
	return int(b.caps.Mailboxes) - b.held - len(b.pending)
}

func (b *Backend) Transmit(f gd32.MailboxFrame) bool {
	b.mu.Lock()
	if !b.inited || b.mode != gd32.ModeNormal || b.freeSlots() <= 0 {
		b.mu.Unlock()
		return false
	}
	if !b.auto {
		b.pending = append(b.pending, f)
		b.mu.Unlock()
		return true
	}
	bus := b.bus
	b.mu.Unlock()
	if bus != nil {
		bus.broadcast(b, gd32.DecodeMailbox(f))
	}
	return true
}

func (b *Backend) FreeMailboxes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freeSlots()
}

func (b *Backend) RxPending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fifo)
}

func (b *Backend) Receive() (gd32.MailboxFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fifo) == 0 {
		return gd32.MailboxFrame{}, false
	}
	f := b.fifo[0]
	b.fifo = b.fifo[1:]
	return f, true
}

func (b *Backend) SetIRQ(line gd32.IRQLine, enable bool) {
	b.mu.Lock()
	b.irq[line] = enable
	if enable {
		b.dispatch()
	}
	b.mu.Unlock()
}

func (b *Backend) ProgramFilter(bank uint8, mode gd32.FilterMode, scale gd32.FilterScale, idWord, maskWord uint32, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(bank) >= len(b.filters) {
		return
	}
	b.filters[bank] = filterSlot{mode: mode, scale: scale, id: idWord, mask: maskWord, active: active}
}

func (b *Backend) SetFilterActive(bank uint8, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(bank) >= len(b.filters) {
		return
	}
	b.filters[bank].active = active
}

func (b *Backend) SetSplitBank(bank uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.split = bank
}

func (b *Backend) ErrorBits() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errBits
}

// SetErrorBits injects raw error register bits for BusError tests.
func (b *Backend) SetErrorBits(bits uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errBits = bits
}

// HoldMailboxes marks n transmit mailboxes busy without frames in them,
// then redispatches in case slots were released.
func (b *Backend) HoldMailboxes(n int) {
	b.mu.Lock()
	b.held = n
	b.dispatch()
	b.mu.Unlock()
}

// CompleteTransmit finishes the oldest pending manual transmission: its
// frame reaches the bus and the freed mailbox redispatches the transmit
// line. It reports whether a transmission was pending.
func (b *Backend) CompleteTransmit() bool {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return false
	}
	f := b.pending[0]
	b.pending = b.pending[1:]
	bus := b.bus
	b.mu.Unlock()
	if bus != nil {
		bus.broadcast(b, gd32.DecodeMailbox(f))
	}
	b.mu.Lock()
	b.dispatch()
	b.mu.Unlock()
	return true
}

// IRQEnabled reports whether a line is armed.
func (b *Backend) IRQEnabled(line gd32.IRQLine) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.irq[line]
}

// Overruns counts frames dropped because the hardware FIFO was full.
func (b *Backend) Overruns() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overruns
}

// PinMode implements gd32.PinDriver.
func (b *Backend) PinMode(pin uint8, output bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pins[pin]
	p.output = output
	b.pins[pin] = p
}

// PinWrite implements gd32.PinDriver.
func (b *Backend) PinWrite(pin uint8, high bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pins[pin]
	p.high = high
	b.pins[pin] = p
}

// Pin returns a pin's recorded state.
func (b *Backend) Pin(pin uint8) (output, high bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pins[pin]
	return p.output, p.high
}

// bankRange returns the filter banks this cell consults. CAN0 and CAN1
// divide the shared range at the split register, whose reset value assigns
// the upper half to CAN1 no matter what drivers exist.
func (b *Backend) bankRange() (int, int) {
	switch b.inst {
	case gd32.CAN1:
		return int(b.split), int(b.caps.MaxBank)
	case gd32.CAN2:
		return 0, int(b.caps.CAN2MaxBank)
	default:
		return 0, int(b.split) - 1
	}
}

func (b *Backend) accepts(m can.Message) bool {
	lo, hi := b.bankRange()
	for i := lo; i <= hi && i < len(b.filters); i++ {
		if b.filters[i].active && b.filters[i].match(m) {
			return true
		}
	}
	return false
}

// receive runs a bus frame through this cell: mode gate, filter banks,
// FIFO, then interrupt dispatch.
func (b *Backend) receive(m can.Message) {
	b.mu.Lock()
	if !b.inited || b.mode == gd32.ModeInitialize {
		b.mu.Unlock()
		return
	}
	if b.mode == gd32.ModeSleep {
		if !b.cfg.AutoWakeUp {
			b.mu.Unlock()
			return
		}
		b.mode = gd32.ModeNormal
	}
	if !b.accepts(m) {
		b.mu.Unlock()
		return
	}
	if len(b.fifo) >= int(b.caps.FIFODepth) {
		if b.cfg.RxFIFOOverwrite {
			b.fifo = b.fifo[1:]
		} else {
			b.overruns++
			b.mu.Unlock()
			return
		}
	}
	b.fifo = append(b.fifo, gd32.EncodeMailbox(m))
	b.dispatch()
	b.mu.Unlock()
}

// dispatch invokes the handler while an armed line's condition holds,
// releasing the lock around each call. A handler call that changes nothing
// ends the loop: a real cell would storm there, a test should see it
// stop. Callers must hold b.mu; dispatch returns with it held.
func (b *Backend) dispatch() {
	if b.dispatching || b.handler == nil {
		return
	}
	b.dispatching = true
	for {
		rxReady := b.irq[gd32.IRQRxFIFOPending] && len(b.fifo) > 0
		txReady := b.irq[gd32.IRQTxMailboxEmpty] && b.freeSlots() > 0
		if !rxReady && !txReady {
			break
		}
		beforeFifo, beforeFree := len(b.fifo), b.freeSlots()
		beforeIRQ := b.irq
		h := b.handler
		b.mu.Unlock()
		if rxReady {
			h.OnRxFIFOPending()
		} else {
			h.OnTxMailboxEmpty()
		}
		b.mu.Lock()
		if len(b.fifo) == beforeFifo && b.freeSlots() == beforeFree && b.irq == beforeIRQ {
			break
		}
	}
	b.dispatching = false
}

var (
	_ gd32.Backend   = (*Backend)(nil)
	_ gd32.PinDriver = (*Backend)(nil)
)
