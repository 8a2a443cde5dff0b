package gd32

// Instance names one CAN unit of the device.
type Instance uint8

const (
	CAN0 Instance = iota
	CAN1
	CAN2
)

func (i Instance) String() string {
	switch i {
	case CAN0:
		return "CAN0"
	case CAN1:
		return "CAN1"
	case CAN2:
		return "CAN2"
	}
	return "CAN?"
}

// Caps describes one device family: how many CAN units it carries, the
// transmit mailbox and receive FIFO geometry, the shared filter bank range
// and the peripheral clock feeding the cells. A Caps value travels with the
// Controller so that range checks and the timing solver need no further
// hardware knowledge.
type Caps struct {
	Instances uint8 // CAN units on the die

	Mailboxes uint8 // TX mailboxes per unit
	FIFODepth uint8 // RX FIFO slots per unit

	MaxBank          uint8 // highest shared filter bank index
	CAN2MaxBank      uint8 // highest bank CAN2 may program
	DefaultCAN1Split uint8 // reset value of the CAN0/CAN1 bank split

	ClockHz uint32 // APB1 clock driving the cells
}

// CapsGD32F30xCL describes the connectivity-line parts: three CAN units
// sharing banks 0..27, CAN2 limited to the lower half.
func CapsGD32F30xCL() Caps {
	return Caps{
		Instances:        3,
		Mailboxes:        3,
		FIFODepth:        3,
		MaxBank:          27,
		CAN2MaxBank:      14,
		DefaultCAN1Split: 14,
		ClockHz:          60_000_000,
	}
}

// CapsGD32F30x describes the single-unit parts with banks 0..13.
func CapsGD32F30x() Caps {
	return Caps{
		Instances:        1,
		Mailboxes:        3,
		FIFODepth:        3,
		MaxBank:          13,
		CAN2MaxBank:      13,
		DefaultCAN1Split: 14,
		ClockHz:          60_000_000,
	}
}
