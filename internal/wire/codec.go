package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/metrics"
)

// Flag bits carried in the identifier word of the stream framing.
const (
	FlagExtended uint32 = 1 << 31
	FlagRemote   uint32 = 1 << 30
)

// Codec encodes/decodes the TCP stream framing. Stateless and safe for
// concurrent use. Each frame is a 4-byte big-endian identifier word
// (extended/remote flags in the top bits), one length byte (low 7 bits,
// at most 8), then the payload. Remote frames carry the length byte but
// no payload bytes.
type Codec struct{}

// ErrInvalidLength is returned when a frame length (DLC) is outside 0..8.
var ErrInvalidLength = errors.New("wire: invalid length")

// ErrTruncatedFrame is returned when the underlying reader ends mid-frame.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// IDWord packs a message identifier and its flags into the wire word.
func IDWord(m can.Message) uint32 {
	w := m.ID & can.MaxStdID
	if m.Extended {
		w = m.ID&can.MaxExtID | FlagExtended
	}
	if m.RTR {
		w |= FlagRemote
	}
	return w
}

// FromIDWord unpacks the wire word into identifier and flags. Stray
// identifier bits above the format's width are masked off, as raw CAN
// sockets do.
func FromIDWord(w uint32) can.Message {
	var m can.Message
	m.Extended = w&FlagExtended != 0
	m.RTR = w&FlagRemote != 0
	if m.Extended {
		m.ID = w & can.MaxExtID
	} else {
		m.ID = w & can.MaxStdID
	}
	return m
}

// Encode packs messages into a single stream packet.
func (c *Codec) Encode(msgs []can.Message) []byte {
	if len(msgs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	// Pre-size: worst case per frame = 4(id)+1(len)+8(data)
	buf.Grow(len(msgs) * (4 + 1 + 8))
	_, _ = c.EncodeTo(&buf, msgs)
	return buf.Bytes()
}

// EncodeTo writes the wire representation of msgs to w and returns bytes written.
func (c *Codec) EncodeTo(w io.Writer, msgs []can.Message) (int, error) {
	var total int
	for _, m := range msgs {
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], IDWord(m))
		n, err := w.Write(id[:])
		total += n
		if err != nil {
			return total, fmt.Errorf("wire encode id: %w", err)
		}
		ln := m.Len
		if ln > can.MaxLen {
			ln = can.MaxLen
		}
		if _, err := w.Write([]byte{ln}); err != nil { // length byte
			total++ // conservative increment
			return total, fmt.Errorf("wire encode len: %w", err)
		}
		if ln > 0 && !m.RTR {
			n, err = w.Write(m.Data[:ln])
			total += n
			if err != nil {
				return total, fmt.Errorf("wire encode data: %w", err)
			}
		}
	}
	return total, nil
}

// Decode reads exactly one frame from r.
// It returns io.EOF if called at a clean frame boundary and no more data is available.
func (c *Codec) Decode(r io.Reader) (can.Message, error) {
	var m can.Message
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return m, err
	}
	m = FromIDWord(binary.BigEndian.Uint32(idb[:]))
	// Read one length byte; treat 0 bytes read as EOF
	var lb [1]byte
	n, err := r.Read(lb[:])
	if err != nil {
		return m, err
	}
	if n == 0 {
		return m, io.EOF
	}
	ln := int(lb[0] & 0x7F) // high bit masked per protocol (future flags?)
	if ln > int(can.MaxLen) {
		metrics.IncMalformed()
		return m, fmt.Errorf("wire decode: %w (%d)", ErrInvalidLength, ln)
	}
	m.Len = uint8(ln)
	if ln > 0 && !m.RTR {
		if _, err := io.ReadFull(r, m.Data[:ln]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				metrics.IncMalformed()
				return m, fmt.Errorf("wire decode payload: %w", ErrTruncatedFrame)
			}
			metrics.IncMalformed()
			return m, fmt.Errorf("wire decode payload: %w", err)
		}
	}
	return m, nil
}

// DecodeN decodes up to max frames (if max>0) or until EOF (if max<=0) invoking onMsg for each.
// It returns the number of frames decoded and the terminal error (which can be io.EOF).
func (c *Codec) DecodeN(r io.Reader, max int, onMsg func(can.Message)) (int, error) {
	var n int
	for max <= 0 || n < max {
		m, err := c.Decode(r)
		if err != nil {
			return n, err
		}
		onMsg(m)
		n++
	}
	return n, nil
}
