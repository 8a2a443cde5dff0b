// Package gd32 drives the CAN cells of GD32F30x series devices: bit timing
// search, shared filter bank management and interrupt-driven transmit and
// receive queues over a pluggable hardware backend.
package gd32

import (
	"fmt"
	"sync/atomic"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/ring"
)

// Default software queue capacities. Transmit defaults to direct mailbox
// writes only.
const (
	DefaultRxQueue = 64
	DefaultTxQueue = 0
)

// ErrorFlags reports bus error state: an error code in the low three bits
// and the escalation level above it.
type ErrorFlags uint8

const (
	ErrorNone         ErrorFlags = 0
	ErrorFill         ErrorFlags = 1
	ErrorFormat       ErrorFlags = 2
	ErrorAck          ErrorFlags = 3
	ErrorBitRecessive ErrorFlags = 4
	ErrorBitDominant  ErrorFlags = 5
	ErrorCRC          ErrorFlags = 6
	ErrorSoftware     ErrorFlags = 7

	ErrorWarning ErrorFlags = 1 << 3
	ErrorPassive ErrorFlags = 2 << 3
	ErrorBusOff  ErrorFlags = 3 << 3
)

// Code returns the last bus error code.
func (f ErrorFlags) Code() ErrorFlags { return f & 0x7 }

// Severity returns the escalation level bits.
func (f ErrorFlags) Severity() ErrorFlags { return f & (3 << 3) }

// FilterID names one identifier a list-mode filter matches exactly.
type FilterID struct {
	ID  uint32
	RTR bool
}

// StdMask is one 16-bit mask sub-filter.
type StdMask struct {
	ID    uint16
	Mask  uint16
	Match FilterMatch
}

// Controller owns one CAN unit. It pairs software rings with the three
// hardware transmit mailboxes and the receive FIFO, keeps the interrupt
// lines armed only while they have work, and manages this instance's slice
// of the shared filter banks.
//
// Methods are meant for a single application goroutine. The backend's
// dispatch context is the only other party, and it touches the rings solely
// through OnTxMailboxEmpty and OnRxFIFOPending.
type Controller struct {
	backend Backend
	caps    Caps
	inst    Instance
	reg     *Registry
	solver  TimingSolver

	rxCap, txCap int
	rx, tx       *ring.Buffer
	filters      filterBank

	initialized atomic.Bool
	rxIRQOn     atomic.Bool
	closed      bool
	sleepPin    int16
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithInstance selects the CAN unit. The default is CAN0.
func WithInstance(inst Instance) Option {
	return func(c *Controller) { c.inst = inst }
}

// WithCaps substitutes the device capability set. The default is
// CapsGD32F30xCL.
func WithCaps(caps Caps) Option {
	return func(c *Controller) { c.caps = caps }
}

// WithRegistry points the controller at a private ownership registry.
func WithRegistry(r *Registry) Option {
	return func(c *Controller) { c.reg = r }
}

// WithRxQueue sizes the receive ring. Zero disables software queuing, which
// limits reception to the hardware FIFO depth.
func WithRxQueue(n int) Option {
	return func(c *Controller) { c.rxCap = n }
}

// WithTxQueue sizes the transmit ring. Zero keeps transmission direct:
// writes fail once the hardware mailboxes are busy.
func WithTxQueue(n int) Option {
	return func(c *Controller) { c.txCap = n }
}

// WithTimingSolver substitutes the bit timing solver, usually to adjust its
// clock slack.
func WithTimingSolver(s TimingSolver) Option {
	return func(c *Controller) { c.solver = s }
}

// New claims a CAN unit and binds the controller to its backend. It fails
// with ErrInstanceOwned when another controller in this process holds the
// unit. Claiming CAN1 assigns it the default upper half of the filter
// banks, which narrows the range a CAN0 controller may program.
func New(backend Backend, opts ...Option) (*Controller, error) {
	c := &Controller{
		backend:  backend,
		caps:     CapsGD32F30xCL(),
		inst:     CAN0,
		reg:      defaultRegistry,
		rxCap:    DefaultRxQueue,
		txCap:    DefaultTxQueue,
		sleepPin: -1,
	}
	for _, o := range opts {
		o(c)
	}
	if uint8(c.inst) >= c.caps.Instances {
		return nil, ErrUnknownInstance
	}
	if !c.reg.Acquire(c.inst) {
		return nil, ErrInstanceOwned
	}
	c.rx = ring.New(c.rxCap)
	c.tx = ring.New(c.txCap)
	c.filters = filterBank{hw: backend, caps: c.caps, inst: c.inst, reg: c.reg}
	if c.inst == CAN1 {
		c.reg.SetCAN1Split(c.caps.DefaultCAN1Split)
		c.filters.first = int16(c.caps.DefaultCAN1Split)
	}
	backend.Bind(c)
	return c, nil
}

// Begin solves bit timing for rate, brings the cell up in normal mode with
// automatic retransmission and bus-off recovery, arms the interrupt lines
// and silences all owned filter banks. Reception starts once a filter is
// configured.
func (c *Controller) Begin(rate can.Bitrate) error {
	if c.closed {
		return ErrClosed
	}
	bt, err := c.solver.Solve(rate, c.caps.ClockHz)
	if err != nil {
		return err
	}
	cfg := InitConfig{
		Timing:             bt,
		AutoRetransmit:     true,
		AutoBusOffRecovery: true,
		AutoWakeUp:         true,
		TxFIFOOrder:        true,
	}
	if err := c.backend.Init(cfg); err != nil {
		return fmt.Errorf("backend init: %w", err)
	}
	c.initialized.Store(true)

	// The transmit line disarms itself through the handler as soon as it
	// fires with an empty ring.
	c.backend.SetIRQ(IRQTxMailboxEmpty, true)
	c.setIRQ(IRQRxFIFOPending, true)

	if c.inst == CAN1 {
		c.backend.SetSplitBank(c.caps.DefaultCAN1Split)
		c.reg.SetCAN1Split(c.caps.DefaultCAN1Split)
		c.filters.first = int16(c.caps.DefaultCAN1Split)
	}
	return c.filters.clearAll()
}

// Close puts an attached transceiver into standby, shuts the cell down and
// releases the unit for a later controller. A closed controller cannot be
// restarted.
func (c *Controller) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.initialized.Store(false)
	if c.sleepPin >= 0 {
		if pd, ok := c.backend.(PinDriver); ok {
			pd.PinWrite(uint8(c.sleepPin), true)
			pd.PinMode(uint8(c.sleepPin), false)
		}
	}
	c.backend.SetIRQ(IRQTxMailboxEmpty, false)
	c.setIRQ(IRQRxFIFOPending, false)
	err := c.backend.Deinit()
	c.reg.Release(c.inst)
	return err
}

// SetBitrate re-solves bit timing and reprograms it through initialize
// mode, returning the cell to normal mode even when the solve fails.
func (c *Controller) SetBitrate(rate can.Bitrate) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if err := c.backend.SetMode(ModeInitialize); err != nil {
		return err
	}
	bt, solveErr := c.solver.Solve(rate, c.caps.ClockHz)
	if solveErr == nil {
		if err := c.backend.SetTiming(bt); err != nil {
			solveErr = err
		}
	}
	if err := c.backend.SetMode(ModeNormal); err != nil {
		return err
	}
	return solveErr
}

// SetWorkingMode switches the cell between initialize, normal and sleep.
func (c *Controller) SetWorkingMode(m WorkingMode) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	return c.backend.SetMode(m)
}

// Write transmits m. With the transmit ring empty the message goes straight
// to a hardware mailbox; otherwise, or when all mailboxes are busy, it is
// queued and the transmit line armed. ErrTxQueueFull reports lost
// backpressure: the ring is full or was sized zero.
func (c *Controller) Write(m can.Message) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if c.tx.Empty() && c.backend.Transmit(EncodeMailbox(m)) {
		return nil
	}
	if !c.tx.Push(m) {
		return ErrTxQueueFull
	}
	c.backend.SetIRQ(IRQTxMailboxEmpty, true)
	return nil
}

// AvailableForWrite returns how many messages Write can currently accept:
// free ring slots plus free hardware mailboxes. The value is advisory; the
// handler may free slots concurrently.
func (c *Controller) AvailableForWrite() int {
	if !c.initialized.Load() {
		return 0
	}
	return c.tx.Free() + c.backend.FreeMailboxes()
}

// Available returns how many received messages are waiting in the ring and
// the hardware FIFO together.
func (c *Controller) Available() int {
	if !c.initialized.Load() {
		return 0
	}
	return c.rx.Len() + c.backend.RxPending()
}

// Read pops the oldest received message. It always re-arms the receive
// line afterwards, which restarts reception stalled by a full ring.
func (c *Controller) Read() (can.Message, error) {
	if !c.initialized.Load() {
		return can.Message{}, ErrNotInitialized
	}
	if c.rxIRQOn.Load() {
		c.setIRQ(IRQRxFIFOPending, false)
	}
	m, ok := c.rx.Peek()
	if ok {
		c.rx.Pop()
	}
	c.setIRQ(IRQRxFIFOPending, true)
	if !ok {
		return can.Message{}, ErrRxQueueEmpty
	}
	return m, nil
}

// Peek returns the oldest received message without popping it. The receive
// line is restored to the state it had on entry.
func (c *Controller) Peek() (can.Message, error) {
	if !c.initialized.Load() {
		return can.Message{}, ErrNotInitialized
	}
	wasOn := c.rxIRQOn.Load()
	if wasOn {
		c.setIRQ(IRQRxFIFOPending, false)
	}
	m, ok := c.rx.Peek()
	if wasOn {
		c.setIRQ(IRQRxFIFOPending, true)
	}
	if !ok {
		return can.Message{}, ErrRxQueueEmpty
	}
	return m, nil
}

// BusError samples the error register. The escalation level is folded in:
// any error state reports at least ErrorWarning, then ErrorPassive, then
// ErrorBusOff as the counters climb.
func (c *Controller) BusError() ErrorFlags {
	if !c.initialized.Load() {
		return ErrorNone
	}
	bits := c.backend.ErrorBits() & 0x7F
	if bits == 0 {
		return ErrorNone
	}
	f := ErrorFlags(bits >> 4)
	switch {
	case bits&0x4 != 0:
		f |= ErrorBusOff
	case bits&0x2 != 0:
		f |= ErrorPassive
	default:
		f |= ErrorWarning
	}
	return f
}

// AttachTransceiverSleepPin hands the controller a GPIO pin wired to the
// transceiver's standby input. The pin is driven high, standby, before
// being switched to output. Fails with ErrNoPinDriver when the backend has
// no GPIO capability.
func (c *Controller) AttachTransceiverSleepPin(pin uint8) error {
	if c.closed {
		return ErrClosed
	}
	pd, ok := c.backend.(PinDriver)
	if !ok {
		return ErrNoPinDriver
	}
	c.sleepPin = int16(pin)
	pd.PinWrite(pin, true)
	pd.PinMode(pin, true)
	return nil
}

// SetTransceiverMode drives the attached sleep pin: active pulls it low,
// standby releases it high.
func (c *Controller) SetTransceiverMode(active bool) error {
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	if c.sleepPin < 0 {
		return ErrNoSleepPin
	}
	c.backend.(PinDriver).PinWrite(uint8(c.sleepPin), !active)
	return nil
}

// setIRQ forwards to the backend and mirrors the receive line state, which
// Read and Peek consult to bracket ring access.
func (c *Controller) setIRQ(line IRQLine, on bool) {
	c.backend.SetIRQ(line, on)
	if line == IRQRxFIFOPending {
		c.rxIRQOn.Store(on)
	}
}

// OnTxMailboxEmpty moves queued messages into free mailboxes until the ring
// empties, then disarms the transmit line. With mailboxes full it leaves
// the line armed and waits for the next completion. Invoked by the bound
// backend; tests driving a manual backend may call it directly.
func (c *Controller) OnTxMailboxEmpty() {
	for {
		m, ok := c.tx.Peek()
		if !ok {
			break
		}
		if !c.backend.Transmit(EncodeMailbox(m)) {
			return
		}
		c.tx.Pop()
	}
	c.backend.SetIRQ(IRQTxMailboxEmpty, false)
}

// OnRxFIFOPending moves one hardware FIFO frame into the receive ring. A
// full ring instead disarms the receive line, leaving the frame in the
// FIFO; Read re-arms the line. Invoked by the bound backend.
func (c *Controller) OnRxFIFOPending() {
	if c.rx.Cap() == 0 {
		return
	}
	if c.rx.Full() {
		c.setIRQ(IRQRxFIFOPending, false)
		return
	}
	f, ok := c.backend.Receive()
	if !ok {
		return
	}
	c.rx.Push(DecodeMailbox(f))
}

func (c *Controller) filterGuard() error {
	if c.closed {
		return ErrClosed
	}
	if !c.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// SetExtFilter configures bank to pass exactly one extended identifier.
func (c *Controller) SetExtFilter(bank int, id uint32, match FilterMatch) error {
	return c.SetExtFilterMask(bank, id, can.MaxExtID, match)
}

// SetExtFilterMask configures bank as a 32-bit mask filter: identifier bits
// under the mask must match id.
func (c *Controller) SetExtFilterMask(bank int, id, mask uint32, match FilterMatch) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	if id > can.MaxExtID {
		return can.ErrInvalidID
	}
	idWord, maskWord := extMask32(id, mask, match)
	return c.filters.apply(bank, FilterModeMask, FilterScale32, idWord, maskWord, true)
}

// SetExtFilterList configures bank to pass two discrete extended
// identifiers.
func (c *Controller) SetExtFilterList(bank int, ids [2]FilterID) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	for _, f := range ids {
		if f.ID > can.MaxExtID {
			return can.ErrInvalidID
		}
	}
	return c.filters.apply(bank, FilterModeList, FilterScale32,
		extWord32(ids[0].ID, ids[0].RTR), extWord32(ids[1].ID, ids[1].RTR), true)
}

// SetStdFilter configures bank to pass exactly one standard identifier.
func (c *Controller) SetStdFilter(bank int, id uint16, match FilterMatch) error {
	return c.SetStdFilterMask(bank, id, uint16(can.MaxStdID), match)
}

// SetStdFilterMask configures bank as a 16-bit mask filter with one
// identifier and mask pair, mirrored into both sub-filters.
func (c *Controller) SetStdFilterMask(bank int, id, mask uint16, match FilterMatch) error {
	m := StdMask{ID: id, Mask: mask, Match: match}
	return c.SetStdFilterMaskPair(bank, m, m)
}

// SetStdFilterMaskPair configures bank with two independent 16-bit mask
// sub-filters; a frame passing either is accepted.
func (c *Controller) SetStdFilterMaskPair(bank int, a, b StdMask) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	if a.ID > uint16(can.MaxStdID) || b.ID > uint16(can.MaxStdID) {
		return can.ErrInvalidID
	}
	idA, maskA := stdMaskHalf(a.ID, a.Mask, a.Match)
	idB, maskB := stdMaskHalf(b.ID, b.Mask, b.Match)
	return c.filters.apply(bank, FilterModeMask, FilterScale16,
		packHalves(idA, idB), packHalves(maskA, maskB), true)
}

// SetStdFilterList configures bank to pass four discrete standard
// identifiers.
func (c *Controller) SetStdFilterList(bank int, ids [4]FilterID) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	for _, f := range ids {
		if f.ID > can.MaxStdID {
			return can.ErrInvalidID
		}
	}
	half := func(f FilterID) uint16 {
		m := MatchData
		if f.RTR {
			m = MatchRemote
		}
		return stdHalf(uint16(f.ID), m)
	}
	return c.filters.apply(bank, FilterModeList, FilterScale16,
		packHalves(half(ids[0]), half(ids[1])), packHalves(half(ids[2]), half(ids[3])), true)
}

// AllowAll opens this instance's first owned bank to every identifier of
// the selected format, data and remote frames alike.
func (c *Controller) AllowAll(match IDMatch) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	var idWord, maskWord uint32
	if match == MatchExtID {
		idWord = mbFF
	}
	if match != MatchAnyID {
		maskWord = mbFF
	}
	return c.filters.apply(int(c.filters.first), FilterModeMask, FilterScale32, idWord, maskWord, true)
}

// EnableFilter re-activates a previously configured bank.
func (c *Controller) EnableFilter(bank int) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	return c.filters.setActive(bank, true)
}

// DisableFilter deactivates a bank. Disabling an inactive bank succeeds and
// changes nothing.
func (c *Controller) DisableFilter(bank int) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	return c.filters.setActive(bank, false)
}

// ClearFilters silences every owned bank, dropping their configurations.
func (c *Controller) ClearFilters() error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	return c.filters.clearAll()
}

// SetCAN1SplitBank moves the CAN0/CAN1 filter bank split. Only the CAN1
// owner may move it; banks at and above the split belong to CAN1.
func (c *Controller) SetCAN1SplitBank(bank int) error {
	if err := c.filterGuard(); err != nil {
		return err
	}
	if c.inst != CAN1 {
		return ErrNotCAN1
	}
	if bank < 0 || bank > int(c.caps.MaxBank) {
		return ErrFilterRange
	}
	c.backend.SetSplitBank(uint8(bank))
	c.reg.SetCAN1Split(uint8(bank))
	c.filters.first = int16(bank)
	return nil
}

var _ Handler = (*Controller)(nil)
