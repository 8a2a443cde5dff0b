// Package slcan speaks the Lawicel/SLCAN ASCII protocol used by CANUSB and
// CANable style adapters over a serial CDC device.
package slcan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/metrics"
)

// ErrUnsupportedRate is returned when no Sn setup command exists for a bitrate.
var ErrUnsupportedRate = errors.New("slcan: unsupported bitrate")

// Adapter status byte reported in F command responses. Bit layout follows
// the SJA1000-derived CANUSB convention.
type Status uint8

const (
	StatusRxFull          Status = 1 << 0
	StatusTxFull          Status = 1 << 1
	StatusErrorWarning    Status = 1 << 2
	StatusOverrun         Status = 1 << 3
	StatusErrorPassive    Status = 1 << 5
	StatusArbitrationLost Status = 1 << 6
	StatusBusError        Status = 1 << 7
)

const (
	bell = 0x07 // adapter NAK for the last command

	// Longest well-formed line: 'T' + 8 id digits + dlc + 16 data digits,
	// plus an optional 4-digit timestamp some adapters append.
	maxLineLen = 30
)

const hexDigits = "0123456789ABCDEF"

// Codec encodes and decodes SLCAN lines. The zero value is ready to use;
// OnStatus, when set, receives decoded F status responses.
type Codec struct {
	OnStatus func(Status)
}

// Encode builds the ASCII transmit command for a message:
// t/T for standard/extended data frames, r/R for remote frames,
// hex identifier, DLC digit, hex payload, CR terminator.
func (Codec) Encode(m can.Message) []byte {
	buf := make([]byte, 0, maxLineLen)
	switch {
	case m.RTR && m.Extended:
		buf = append(buf, 'R')
	case m.RTR:
		buf = append(buf, 'r')
	case m.Extended:
		buf = append(buf, 'T')
	default:
		buf = append(buf, 't')
	}
	if m.Extended {
		buf = appendHexID(buf, m.ID&can.MaxExtID, 8)
	} else {
		buf = appendHexID(buf, m.ID&can.MaxStdID, 3)
	}
	ln := m.Len
	if ln > can.MaxLen {
		ln = can.MaxLen
	}
	buf = append(buf, '0'+ln)
	if !m.RTR {
		for _, b := range m.Data[:ln] {
			buf = append(buf, hexDigits[b>>4], hexDigits[b&0xF])
		}
	}
	return append(buf, '\r')
}

func appendHexID(buf []byte, id uint32, digits int) []byte {
	for i := digits - 1; i >= 0; i-- {
		buf = append(buf, hexDigits[(id>>(4*i))&0xF])
	}
	return buf
}

// SetupCommand returns the Sn bitrate command for rate.
func SetupCommand(rate can.Bitrate) ([]byte, error) {
	var n byte
	switch rate {
	case can.Rate10k:
		n = '0'
	case can.Rate20k:
		n = '1'
	case can.Rate50k:
		n = '2'
	case can.Rate100k:
		n = '3'
	case can.Rate125k:
		n = '4'
	case can.Rate250k:
		n = '5'
	case can.Rate500k:
		n = '6'
	case can.Rate800k:
		n = '7'
	case can.Rate1M:
		n = '8'
	default:
		return nil, fmt.Errorf("%w: %d bit/s", ErrUnsupportedRate, rate)
	}
	return []byte{'S', n, '\r'}, nil
}

// CompactBuffer reclaims consumed prefix capacity when the underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	// If buffer size < 1KB, skip.
	if len(data) < 1024 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// DecodeStream consumes complete CR-terminated lines from in and emits
// decoded frames via out. Partial lines stay buffered for the next call.
// Command acks (bare CR), bells and informational responses are consumed
// without emitting; undecodable lines count as malformed and are skipped
// so one glitch cannot wedge the stream.
func (c Codec) DecodeStream(in *bytes.Buffer, out func(can.Message)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		if len(data) == 0 {
			return nil
		}
		switch data[0] {
		case '\r', '\n':
			in.Next(1)
			continue
		case bell:
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		end := bytes.IndexByte(data, '\r')
		if end < 0 {
			// No terminator yet. Drop leading garbage once the buffer cannot
			// possibly hold a valid line anymore.
			if len(data) > maxLineLen {
				metrics.IncMalformed()
				in.Next(len(data) - maxLineLen)
			}
			return nil
		}
		line := data[:end]
		switch line[0] {
		case 't', 'T', 'r', 'R':
			m, err := decodeFrame(line)
			if err != nil {
				metrics.IncMalformed()
			} else {
				out(m)
				metrics.IncSlcanRx()
			}
		case 'F':
			st, err := ParseStatus(line)
			if err != nil {
				metrics.IncMalformed()
			} else if c.OnStatus != nil {
				c.OnStatus(st)
			}
		case 'V', 'v', 'N', 'z', 'Z':
			// version/serial replies and transmit acks, informational
		default:
			metrics.IncMalformed()
		}
		in.Next(end + 1)
	}
}

// decodeFrame parses one t/T/r/R line (without the CR). Trailing bytes after
// the payload (adapter timestamps) are ignored.
func decodeFrame(line []byte) (can.Message, error) {
	var m can.Message
	kind := line[0]
	m.Extended = kind == 'T' || kind == 'R'
	m.RTR = kind == 'r' || kind == 'R'
	idLen := 3
	if m.Extended {
		idLen = 8
	}
	if len(line) < 1+idLen+1 {
		return m, fmt.Errorf("slcan: short frame %q", line)
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return m, fmt.Errorf("slcan: bad identifier %q: %w", line[1:1+idLen], err)
	}
	m.ID = uint32(id)
	d := line[1+idLen]
	if d < '0' || d > '8' {
		return m, fmt.Errorf("slcan: bad length digit %q", d)
	}
	m.Len = d - '0'
	if !m.RTR && m.Len > 0 {
		body := line[1+idLen+1:]
		if len(body) < int(m.Len)*2 {
			return m, fmt.Errorf("slcan: truncated payload %q", line)
		}
		if _, err := hex.Decode(m.Data[:m.Len], body[:int(m.Len)*2]); err != nil {
			return m, fmt.Errorf("slcan: bad payload %q: %w", body, err)
		}
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// ParseStatus parses an Fxx status response line (without the CR).
func ParseStatus(line []byte) (Status, error) {
	if len(line) != 3 || line[0] != 'F' {
		return 0, fmt.Errorf("slcan: bad status line %q", line)
	}
	v, err := strconv.ParseUint(string(line[1:3]), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("slcan: bad status byte %q: %w", line[1:3], err)
	}
	return Status(v), nil
}
