package gd32

import "github.com/kstaniek/go-gd32can/can"

// Register word layouts of the transmit mailboxes, receive FIFO mailboxes
// and filter banks. The identifier word places a standard ID at bit 21 and
// an extended ID at bit 3, with the frame format and frame type flags below:
//
//	31              21            3   2   1   0
//	[ SFID[10:0]    | EFID[17:0]  | FF | FT | - ]
//
// Filter banks at 16-bit scale halve that to per-halfword fields:
//
//	15           5    4    3    2    0
//	[ SFID[10:0] | FT | FF | EFID[17:15] ]
const (
	mbStdShift = 21
	mbExtShift = 3
	mbFF       = 0x4 // frame format: set for extended identifiers
	mbFT       = 0x2 // frame type: set for remote frames

	mbDLCMask = 0xF

	fltStdShift = 5
	fltFT       = 1 << 4
	fltFF       = 1 << 3
)

// MailboxFrame holds the four register words of one transmit mailbox or
// receive FIFO slot.
type MailboxFrame struct {
	MI    uint32 // identifier word
	MP    uint32 // property word, DLC in the low nibble
	Data0 uint32 // payload bytes 0..3, byte 0 in bits 7:0
	Data1 uint32 // payload bytes 4..7
}

// EncodeMailbox packs a message into mailbox register words. Identifier
// bits beyond the format's width are masked off and the length is clamped
// to 8.
func EncodeMailbox(m can.Message) MailboxFrame {
	var f MailboxFrame
	if m.Extended {
		f.MI = (m.ID&can.MaxExtID)<<mbExtShift | mbFF
	} else {
		f.MI = (m.ID & can.MaxStdID) << mbStdShift
	}
	if m.RTR {
		f.MI |= mbFT
	}
	n := m.Len
	if n > can.MaxLen {
		n = can.MaxLen
	}
	f.MP = uint32(n) & mbDLCMask
	for i := uint8(0); i < n; i++ {
		if i < 4 {
			f.Data0 |= uint32(m.Data[i]) << (8 * i)
		} else {
			f.Data1 |= uint32(m.Data[i]) << (8 * (i - 4))
		}
	}
	return f
}

// DecodeMailbox unpacks receive FIFO register words into a message.
func DecodeMailbox(f MailboxFrame) can.Message {
	var m can.Message
	m.Extended = f.MI&mbFF != 0
	m.RTR = f.MI&mbFT != 0
	if m.Extended {
		m.ID = (f.MI >> mbExtShift) & can.MaxExtID
	} else {
		m.ID = (f.MI >> mbStdShift) & can.MaxStdID
	}
	n := uint8(f.MP & mbDLCMask)
	if n > can.MaxLen {
		n = can.MaxLen
	}
	m.Len = n
	for i := uint8(0); i < n; i++ {
		if i < 4 {
			m.Data[i] = byte(f.Data0 >> (8 * i))
		} else {
			m.Data[i] = byte(f.Data1 >> (8 * (i - 4)))
		}
	}
	return m
}

// RxCompareWord32 returns the word a 32-bit scale filter compares an
// incoming frame against. Standard identifiers occupy the top 11 bits of
// the 29-bit field.
func RxCompareWord32(m can.Message) uint32 {
	var w uint32
	if m.Extended {
		w = (m.ID&can.MaxExtID)<<mbExtShift | mbFF
	} else {
		w = (m.ID & can.MaxStdID) << (mbExtShift + 18)
	}
	if m.RTR {
		w |= mbFT
	}
	return w
}

// RxCompareWord16 returns the halfword a 16-bit scale filter compares an
// incoming frame against.
func RxCompareWord16(m can.Message) uint16 {
	var h uint16
	if m.Extended {
		h = uint16((m.ID&can.MaxExtID)>>18)<<fltStdShift | fltFF | uint16((m.ID>>15)&0x7)
	} else {
		h = uint16(m.ID&can.MaxStdID) << fltStdShift
	}
	if m.RTR {
		h |= fltFT
	}
	return h
}

// FilterMatch selects which frame types a filter admits.
type FilterMatch uint8

const (
	MatchData FilterMatch = iota
	MatchRemote
	MatchAny
)

// IDMatch selects which identifier formats an accept-all filter admits.
type IDMatch uint8

const (
	MatchStdID IDMatch = iota
	MatchExtID
	MatchAnyID
)

// extWord32 encodes one extended identifier for a 32-bit scale filter
// register.
func extWord32(id uint32, rtr bool) uint32 {
	w := (id&can.MaxExtID)<<mbExtShift | mbFF
	if rtr {
		w |= mbFT
	}
	return w
}

// extMask32 builds the id and mask words of a 32-bit mask filter. MatchAny
// leaves the frame type bit out of the mask so both data and remote frames
// pass.
func extMask32(id, mask uint32, match FilterMatch) (idWord, maskWord uint32) {
	idWord = (id & can.MaxExtID) << mbExtShift
	maskWord = (mask&can.MaxExtID)<<mbExtShift | mbFF
	if match != MatchAny {
		maskWord |= mbFT
		if match == MatchRemote {
			idWord |= mbFT
		}
	}
	idWord |= mbFF
	return idWord, maskWord
}

// stdHalf encodes one standard identifier into a filter halfword.
func stdHalf(id uint16, match FilterMatch) uint16 {
	h := (id & uint16(can.MaxStdID)) << fltStdShift
	if match == MatchRemote {
		h |= fltFT
	}
	return h
}

// stdMaskHalf builds the id and mask halfwords of one 16-bit mask
// sub-filter.
func stdMaskHalf(id, mask uint16, match FilterMatch) (idHalf, maskHalf uint16) {
	idHalf = stdHalf(id, match)
	maskHalf = (mask & uint16(can.MaxStdID)) << fltStdShift
	if match != MatchAny {
		maskHalf |= fltFT
	}
	return idHalf, maskHalf
}

// packHalves joins two filter halfwords into one register word, first
// entry in the high half.
func packHalves(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// Bit timing register word:
//
//	25  24   22  20   19  16         9      0
//	[ SJW[1:0] | BS2[2:0] | BS1[3:0] | ... | BAUDPSC[9:0] ]
//
// All fields hold their quanta count minus one.
const (
	btPscShift  = 0
	btSeg1Shift = 16
	btSeg2Shift = 20
	btSJWShift  = 24
)

// EncodeBitTiming packs solved timing into the bit timing register word.
// Register backends write this value while the cell is in initialize mode.
func EncodeBitTiming(t BitTiming) uint32 {
	return uint32(t.Prescaler-1)<<btPscShift |
		uint32(t.Seg1-1)<<btSeg1Shift |
		uint32(t.Seg2-1)<<btSeg2Shift |
		uint32(t.SJW-1)<<btSJWShift
}
