package gd32

import "github.com/kstaniek/go-gd32can/can"

// BitTiming is one solved bit segmentation. Seg1 and Seg2 count time
// quanta and exclude the fixed one-quantum synchronization segment.
type BitTiming struct {
	Prescaler uint16
	Seg1      uint8
	Seg2      uint8
	SJW       uint8
}

// Quanta returns the quanta per bit including the synchronization segment.
func (t BitTiming) Quanta() uint32 {
	return 1 + uint32(t.Seg1) + uint32(t.Seg2)
}

// Bitrate returns the bit rate this timing yields at the given clock.
func (t BitTiming) Bitrate(clockHz uint32) uint32 {
	return clockHz / (uint32(t.Prescaler) * t.Quanta())
}

// SamplePoint returns the sample position in millionths of the bit time.
func (t BitTiming) SamplePoint() uint32 {
	return (1 + uint32(t.Seg1)) * samplePointScale / t.Quanta()
}

const (
	samplePointScale         = 1_000_000
	targetSamplePoint uint32 = 875_000 // CiA recommendation

	baseQuanta     = 16
	quantaDownSpan = 8 // try 16..8 quanta per bit
	quantaUpSpan   = 2 // and 17..18

	maxSeg1Field = 0x0F // 4-bit register field
	maxSeg2      = 8    // 3-bit register field, quanta
	maxPrescaler = 0x400

	// DefaultClockSlackHz bounds how far the solver may pretend the
	// peripheral clock is slower to reach an integer quanta division.
	DefaultClockSlackHz = 1000
)

// TimingSolver searches prescaler and segment values for a bit rate. The
// zero value solves with DefaultClockSlackHz.
//
// The search walks quanta-per-bit counts outward from 16, preferring
// smaller counts, and accepts the first count that divides the clock at
// the requested rate. Rates that divide no count exactly, such as 83333
// or 33333, are retried with the clock lowered 1 Hz at a time up to the
// slack bound; the resulting rate error stays below the slack. Seg1 is
// then placed so the sample point lands as close to 87.5% as the quanta
// grid allows.
type TimingSolver struct {
	// ClockSlackHz overrides DefaultClockSlackHz when nonzero.
	ClockSlackHz uint32
}

// Solve computes bit timing for rate at the given peripheral clock.
func (s TimingSolver) Solve(rate can.Bitrate, clockHz uint32) (BitTiming, error) {
	if rate == 0 || rate > can.MaxRate {
		return BitTiming{}, ErrInvalidBitrate
	}
	slack := s.ClockSlackHz
	if slack == 0 {
		slack = DefaultClockSlackHz
	}

	clock := clockHz
	var quanta uint32
	for delta := uint32(0); ; delta++ {
		for off := uint32(0); off <= quantaDownSpan; off++ {
			down := clock%(uint32(rate)*(baseQuanta-off)) == 0
			up := off <= quantaUpSpan && clock%(uint32(rate)*(baseQuanta+off)) == 0
			switch {
			case down:
				quanta = baseQuanta - off
			case up:
				quanta = baseQuanta + off
			}
			if quanta != 0 {
				break
			}
		}
		if quanta != 0 {
			break
		}
		if delta == slack {
			return BitTiming{}, ErrNoTiming
		}
		clock--
	}

	presc := clock / (uint32(rate) * quanta)
	if presc == 0 || presc > maxPrescaler {
		return BitTiming{}, ErrNoTiming
	}

	// Seg1 in millionths of a quantum, sync segment already subtracted.
	// When rounding down leaves room in the register field, check whether
	// one more quantum lands closer to the target sample point.
	seg1M := targetSamplePoint*quanta - samplePointScale
	if seg1M/samplePointScale <= maxSeg1Field {
		spA := (samplePointScale + seg1M) / quanta
		spB := (2*samplePointScale + seg1M) / quanta
		if absDelta(spB, targetSamplePoint) < absDelta(spA, targetSamplePoint) {
			seg1M += samplePointScale
		}
	}
	seg1 := seg1M / samplePointScale
	seg2 := quanta - seg1 - 1
	if seg1 < 1 || seg1 > maxSeg1Field+1 || seg2 < 1 || seg2 > maxSeg2 {
		return BitTiming{}, ErrNoTiming
	}

	return BitTiming{
		Prescaler: uint16(presc),
		Seg1:      uint8(seg1),
		Seg2:      uint8(seg2),
		SJW:       1,
	}, nil
}

// SolveBitTiming solves with the default clock slack.
func SolveBitTiming(rate can.Bitrate, clockHz uint32) (BitTiming, error) {
	return TimingSolver{}.Solve(rate, clockHz)
}

func absDelta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
