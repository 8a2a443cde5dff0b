package sim

import (
	"testing"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/gd32"
)

func initCfg() gd32.InitConfig {
	return gd32.InitConfig{
		Timing:         gd32.BitTiming{Prescaler: 1, Seg1: 13, Seg2: 2, SJW: 1},
		AutoRetransmit: true,
		AutoWakeUp:     true,
		TxFIFOOrder:    true,
	}
}

func newCell(t *testing.T, bus *Bus, opts ...BackendOption) *Backend {
	t.Helper()
	b := NewBackend(bus, opts...)
	if err := b.Init(initCfg()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b
}

// openBank programs one bank to accept everything.
func openBank(b *Backend, bank uint8) {
	b.ProgramFilter(bank, gd32.FilterModeMask, gd32.FilterScale32, 0, 0, true)
}

type countingHandler struct {
	b       *Backend
	rxCalls int
	txCalls int
	drain   bool
}

func (h *countingHandler) OnRxFIFOPending() {
	h.rxCalls++
	if h.drain {
		h.b.Receive()
	}
}

func (h *countingHandler) OnTxMailboxEmpty() { h.txCalls++ }

func TestTransmitReachesPeerNotSelf(t *testing.T) {
	bus := NewBus()
	a := newCell(t, bus)
	peer := newCell(t, bus)
	openBank(a, 0)
	openBank(peer, 0)

	msg := can.Message{ID: 0x321, Len: 2, Data: [8]byte{0xAA, 0xBB}}
	if !a.Transmit(gd32.EncodeMailbox(msg)) {
		t.Fatal("transmit refused")
	}
	if n := peer.RxPending(); n != 1 {
		t.Fatalf("peer pending = %d, want 1", n)
	}
	if n := a.RxPending(); n != 0 {
		t.Fatalf("transmitter heard itself: pending = %d", n)
	}
	f, ok := peer.Receive()
	if !ok {
		t.Fatal("receive failed")
	}
	if got := gd32.DecodeMailbox(f); got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestFilterSelectsFrames(t *testing.T) {
	bus := NewBus()
	cell := newCell(t, bus)
	cell.ProgramFilter(0, gd32.FilterModeMask, gd32.FilterScale32,
		0x100<<3|0x4, 0x1FFFFFFF<<3|0x4|0x2, true)

	bus.Inject(can.Message{ID: 0x100, Extended: true})
	if n := cell.RxPending(); n != 1 {
		t.Fatalf("matching frame filtered out: pending = %d", n)
	}
	bus.Inject(can.Message{ID: 0x101, Extended: true})
	bus.Inject(can.Message{ID: 0x100}) // standard, format bit differs
	bus.Inject(can.Message{ID: 0x100, Extended: true, RTR: true})
	if n := cell.RxPending(); n != 1 {
		t.Fatalf("non-matching frames accepted: pending = %d", n)
	}
}

func TestFIFOOverrunDropsNewest(t *testing.T) {
	bus := NewBus()
	cell := newCell(t, bus)
	openBank(cell, 0)
	for i := 0; i < 4; i++ {
		bus.Inject(can.Message{ID: uint32(i + 1)})
	}
	if n := cell.RxPending(); n != 3 {
		t.Fatalf("pending = %d, want FIFO depth 3", n)
	}
	if o := cell.Overruns(); o != 1 {
		t.Fatalf("overruns = %d, want 1", o)
	}
	f, _ := cell.Receive()
	if gd32.DecodeMailbox(f).ID != 1 {
		t.Fatal("oldest frame not first")
	}
}

func TestArmedLineDrainsFIFO(t *testing.T) {
	bus := NewBus()
	cell := newCell(t, bus)
	openBank(cell, 0)
	h := &countingHandler{b: cell, drain: true}
	cell.Bind(h)

	for i := 0; i < 3; i++ {
		bus.Inject(can.Message{ID: uint32(i + 1)})
	}
	if h.rxCalls != 0 {
		t.Fatalf("handler ran with line disarmed: %d calls", h.rxCalls)
	}
	cell.SetIRQ(gd32.IRQRxFIFOPending, true)
	if h.rxCalls != 3 {
		t.Fatalf("rx calls = %d, want 3", h.rxCalls)
	}
	if n := cell.RxPending(); n != 0 {
		t.Fatalf("pending = %d after drain", n)
	}
	// Armed and empty: further injections dispatch one call each.
	bus.Inject(can.Message{ID: 9})
	if h.rxCalls != 4 {
		t.Fatalf("rx calls = %d, want 4", h.rxCalls)
	}
}

func TestDispatchStopsWithoutProgress(t *testing.T) {
	bus := NewBus()
	cell := newCell(t, bus)
	openBank(cell, 0)
	h := &countingHandler{b: cell, drain: false}
	cell.Bind(h)

	bus.Inject(can.Message{ID: 1})
	cell.SetIRQ(gd32.IRQRxFIFOPending, true)
	if h.rxCalls != 1 {
		t.Fatalf("rx calls = %d, want exactly 1", h.rxCalls)
	}
}

func TestManualTransmitCompletesInOrder(t *testing.T) {
	bus := NewBus()
	a := newCell(t, bus, WithManualTransmit())
	peer := newCell(t, bus)
	openBank(peer, 0)

	for i := 0; i < 2; i++ {
		if !a.Transmit(gd32.EncodeMailbox(can.Message{ID: uint32(i + 1)})) {
			t.Fatalf("transmit %d refused", i)
		}
	}
	if n := a.FreeMailboxes(); n != 1 {
		t.Fatalf("free mailboxes = %d, want 1", n)
	}
	if n := peer.RxPending(); n != 0 {
		t.Fatalf("frame left before completion: pending = %d", n)
	}

	if !a.CompleteTransmit() {
		t.Fatal("nothing to complete")
	}
	f, _ := peer.Receive()
	if gd32.DecodeMailbox(f).ID != 1 {
		t.Fatal("mailboxes drained out of order")
	}
	a.CompleteTransmit()
	if a.CompleteTransmit() {
		t.Fatal("completed more than was pending")
	}
}

func TestHoldMailboxes(t *testing.T) {
	bus := NewBus()
	a := newCell(t, bus)
	a.HoldMailboxes(3)
	if a.Transmit(gd32.EncodeMailbox(can.Message{ID: 1})) {
		t.Fatal("transmit succeeded with all mailboxes held")
	}
	a.HoldMailboxes(0)
	if !a.Transmit(gd32.EncodeMailbox(can.Message{ID: 1})) {
		t.Fatal("transmit refused after release")
	}
}

func TestSplitBankRouting(t *testing.T) {
	bus := NewBus()
	can0 := newCell(t, bus)
	openBank(can0, 20) // above the default split, belongs to CAN1
	bus.Inject(can.Message{ID: 1})
	if n := can0.RxPending(); n != 0 {
		t.Fatalf("CAN0 matched a CAN1 bank: pending = %d", n)
	}
	openBank(can0, 13)
	bus.Inject(can.Message{ID: 1})
	if n := can0.RxPending(); n != 1 {
		t.Fatalf("CAN0 bank 13 inactive: pending = %d", n)
	}

	bus1 := NewBus()
	can1 := newCell(t, bus1, WithInstance(gd32.CAN1))
	openBank(can1, 0) // below the split, belongs to CAN0
	bus1.Inject(can.Message{ID: 1})
	if n := can1.RxPending(); n != 0 {
		t.Fatalf("CAN1 matched a CAN0 bank: pending = %d", n)
	}
	openBank(can1, 14)
	bus1.Inject(can.Message{ID: 1})
	if n := can1.RxPending(); n != 1 {
		t.Fatalf("CAN1 bank 14 inactive: pending = %d", n)
	}
	can1.SetSplitBank(10)
	can1.SetFilterActive(14, false)
	openBank(can1, 10)
	bus1.Inject(can.Message{ID: 2})
	if n := can1.RxPending(); n != 2 {
		t.Fatalf("CAN1 bank 10 inactive after split move: pending = %d", n)
	}
}

func TestEchoPeerReturnsDataFrames(t *testing.T) {
	bus := NewBus()
	NewEchoPeer(bus)
	a := newCell(t, bus)
	openBank(a, 0)

	msg := can.Message{ID: 0x17, Len: 1, Data: [8]byte{0x42}}
	a.Transmit(gd32.EncodeMailbox(msg))
	if n := a.RxPending(); n != 1 {
		t.Fatalf("echo missing: pending = %d", n)
	}
	f, _ := a.Receive()
	if got := gd32.DecodeMailbox(f); got != msg {
		t.Fatalf("echoed %+v, want %+v", got, msg)
	}

	a.Transmit(gd32.EncodeMailbox(can.Message{ID: 0x17, RTR: true}))
	if n := a.RxPending(); n != 0 {
		t.Fatalf("remote frame echoed: pending = %d", n)
	}
}

func TestSleepGatesReception(t *testing.T) {
	bus := NewBus()
	cell := newCell(t, bus)
	openBank(cell, 0)
	if err := cell.SetMode(gd32.ModeSleep); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	bus.Inject(can.Message{ID: 1})
	if n := cell.RxPending(); n != 1 {
		t.Fatalf("auto wake-up cell dropped frame: pending = %d", n)
	}

	cfg := initCfg()
	cfg.AutoWakeUp = false
	deaf := NewBackend(bus)
	if err := deaf.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	openBank(deaf, 0)
	if err := deaf.SetMode(gd32.ModeSleep); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	bus.Inject(can.Message{ID: 2})
	if n := deaf.RxPending(); n != 0 {
		t.Fatalf("sleeping cell accepted frame: pending = %d", n)
	}
}

func TestPinRecording(t *testing.T) {
	cell := newCell(t, nil)
	cell.PinWrite(5, true)
	cell.PinMode(5, true)
	output, high := cell.Pin(5)
	if !output || !high {
		t.Fatalf("pin 5 = output %v high %v", output, high)
	}
	cell.PinWrite(5, false)
	if _, high := cell.Pin(5); high {
		t.Fatal("pin 5 still high")
	}
}
