package can

import "errors"

// Identifier limits for classic CAN.
const (
	MaxStdID uint32 = 0x7FF
	MaxExtID uint32 = 0x1FFFFFFF
	MaxLen   uint8  = 8
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Message is one classic CAN frame. Only the first Len bytes of Data are
// meaningful. It is a plain value: copying it copies the frame.
type Message struct {
	ID       uint32 // 11-bit (standard) or 29-bit (extended)
	Extended bool
	RTR      bool // remote transmission request, no payload on the wire
	Len      uint8
	Data     [8]byte
}

// Validate reports whether the message is a well-formed classic CAN frame.
func (m Message) Validate() error {
	if m.Len > MaxLen {
		return ErrInvalidLen
	}
	max := MaxStdID
	if m.Extended {
		max = MaxExtID
	}
	if m.ID > max {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the meaningful slice of Data. The slice aliases the
// message value it was called on.
func (m *Message) Payload() []byte {
	n := m.Len
	if n > MaxLen {
		n = MaxLen
	}
	return m.Data[:n]
}
