package gd32

// WorkingMode selects the operating state of a CAN cell.
type WorkingMode uint8

const (
	ModeInitialize WorkingMode = iota
	ModeNormal
	ModeSleep
)

// IRQLine names the interrupt sources the driver arms and disarms.
type IRQLine uint8

const (
	IRQTxMailboxEmpty IRQLine = iota
	IRQRxFIFOPending
)

// FilterMode selects how a bank interprets its words.
type FilterMode uint8

const (
	FilterModeMask FilterMode = iota
	FilterModeList
)

// FilterScale selects a bank's identifier width.
type FilterScale uint8

const (
	FilterScale32 FilterScale = iota
	FilterScale16
)

// Handler receives interrupt dispatch from a backend. Controller
// implements it; backends invoke the methods from whatever execution
// context models interrupt level, one call at a time.
type Handler interface {
	// OnTxMailboxEmpty runs while the transmit-mailbox-empty line is
	// armed and at least one mailbox is free.
	OnTxMailboxEmpty()
	// OnRxFIFOPending runs while the receive line is armed and the
	// hardware FIFO holds at least one frame.
	OnRxFIFOPending()
}

// InitConfig carries everything a backend needs to bring a cell up into
// normal mode.
type InitConfig struct {
	Timing BitTiming

	AutoRetransmit     bool
	AutoBusOffRecovery bool
	AutoWakeUp         bool
	TxFIFOOrder        bool // drain transmit mailboxes in request order
	RxFIFOOverwrite    bool // on FIFO overrun overwrite oldest, else drop new
}

// Backend is the hardware surface the driver runs on. A register
// implementation binds these calls to one CAN cell; sim.Backend provides
// a deterministic stand-in for tests and bridging.
//
// All methods are called from the application goroutine. Handler
// callbacks are delivered on the backend's own dispatch context and are
// never concurrent with each other.
type Backend interface {
	// Bind sets the interrupt dispatch target. Called once, before Init.
	Bind(h Handler)

	Init(cfg InitConfig) error
	Deinit() error

	SetMode(m WorkingMode) error
	// SetTiming reprograms bit timing. The cell must be in initialize
	// mode.
	SetTiming(t BitTiming) error

	// Transmit places f into a free mailbox, reporting false when all
	// mailboxes are busy.
	Transmit(f MailboxFrame) bool
	FreeMailboxes() int

	// RxPending returns the number of frames waiting in the receive FIFO.
	RxPending() int
	// Receive pops the oldest FIFO frame and releases its slot, reporting
	// false when the FIFO is empty.
	Receive() (MailboxFrame, bool)

	SetIRQ(line IRQLine, enable bool)

	// ProgramFilter writes a bank's word pair and activation state. At
	// 16-bit scale each word carries two halfword entries, first entry in
	// the high half; in list mode maskWord holds further identifiers.
	ProgramFilter(bank uint8, mode FilterMode, scale FilterScale, idWord, maskWord uint32, active bool)
	// SetFilterActive flips a bank's activation bit inside a
	// filter-lock-disable bracket, leaving its words untouched.
	SetFilterActive(bank uint8, active bool)
	// SetSplitBank assigns banks below bank to CAN0 and the rest to CAN1.
	SetSplitBank(bank uint8)

	// ErrorBits returns the low error register bits: bit 0 warning,
	// bit 1 passive, bit 2 bus-off, bits 6:4 the last error code.
	ErrorBits() uint8
}

// PinDriver is an optional backend capability for driving a transceiver
// control pin. Backends without GPIO simply do not implement it.
type PinDriver interface {
	// PinMode switches a pin between output and high-impedance input.
	PinMode(pin uint8, output bool)
	PinWrite(pin uint8, high bool)
}
