package gd32

import (
	"errors"
	"testing"

	"github.com/kstaniek/go-gd32can/can"
)

func TestSolveExact500k(t *testing.T) {
	bt, err := SolveBitTiming(can.Rate500k, 8_000_000)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if bt.Prescaler != 1 || bt.Seg1 != 13 || bt.Seg2 != 2 || bt.SJW != 1 {
		t.Fatalf("got %+v, want prescaler 1, seg1 13, seg2 2, sjw 1", bt)
	}
	if q := bt.Quanta(); q != 16 {
		t.Fatalf("quanta = %d, want 16", q)
	}
	if sp := bt.SamplePoint(); sp != 875_000 {
		t.Fatalf("sample point = %d, want 875000", sp)
	}
	if r := bt.Bitrate(8_000_000); r != 500_000 {
		t.Fatalf("bitrate = %d, want 500000", r)
	}
}

func TestSolveTable(t *testing.T) {
	cases := []struct {
		name    string
		clock   uint32
		rate    can.Bitrate
		presc   uint16
		seg1    uint8
		seg2    uint8
	}{
		{"8MHz/1M", 8_000_000, can.Rate1M, 1, 6, 1},
		{"8MHz/250k", 8_000_000, can.Rate250k, 2, 13, 2},
		{"8MHz/125k", 8_000_000, can.Rate125k, 4, 13, 2},
		{"60MHz/1M", 60_000_000, can.Rate1M, 4, 12, 2},
		{"60MHz/500k", 60_000_000, can.Rate500k, 8, 12, 2},
		{"60MHz/250k", 60_000_000, can.Rate250k, 15, 13, 2},
		{"60MHz/125k", 60_000_000, can.Rate125k, 30, 13, 2},
		{"60MHz/50k", 60_000_000, can.Rate50k, 75, 13, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bt, err := SolveBitTiming(tc.rate, tc.clock)
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if bt.Prescaler != tc.presc || bt.Seg1 != tc.seg1 || bt.Seg2 != tc.seg2 {
				t.Fatalf("got %+v, want presc %d seg1 %d seg2 %d", bt, tc.presc, tc.seg1, tc.seg2)
			}
			if bt.Bitrate(tc.clock) != uint32(tc.rate) {
				t.Fatalf("bitrate = %d, want %d", bt.Bitrate(tc.clock), tc.rate)
			}
			// One quantum is the grid resolution around the 87.5% target.
			quantum := samplePointScale / bt.Quanta()
			if d := absDelta(bt.SamplePoint(), targetSamplePoint); d > quantum {
				t.Fatalf("sample point %d is %d off target, more than one quantum %d", bt.SamplePoint(), d, quantum)
			}
		})
	}
}

// Rates like 83333 divide no quanta count at 8 MHz; the solver reaches them
// by walking the clock down within the slack.
func TestSolvePerturbedRates(t *testing.T) {
	cases := []struct {
		rate    can.Bitrate
		presc   uint16
		maxDiff uint32
	}{
		{can.Rate83k3, 6, 1000},
		{can.Rate33k3, 15, 1000},
	}
	for _, tc := range cases {
		bt, err := SolveBitTiming(tc.rate, 8_000_000)
		if err != nil {
			t.Fatalf("rate %d: %v", tc.rate, err)
		}
		if bt.Prescaler != tc.presc || bt.Quanta() != 16 {
			t.Fatalf("rate %d: got %+v, want prescaler %d at 16 quanta", tc.rate, bt, tc.presc)
		}
		got := bt.Bitrate(8_000_000)
		if d := absDelta(got, uint32(tc.rate)); d > tc.maxDiff {
			t.Fatalf("rate %d: effective %d differs by %d", tc.rate, got, d)
		}
	}
}

func TestSolveSlackBound(t *testing.T) {
	// 83333 bit/s needs the clock walked down exactly 32 Hz.
	if _, err := (TimingSolver{ClockSlackHz: 31}).Solve(can.Rate83k3, 8_000_000); !errors.Is(err, ErrNoTiming) {
		t.Fatalf("slack 31: err = %v, want ErrNoTiming", err)
	}
	bt, err := (TimingSolver{ClockSlackHz: 32}).Solve(can.Rate83k3, 8_000_000)
	if err != nil {
		t.Fatalf("slack 32: %v", err)
	}
	if bt.Prescaler != 6 {
		t.Fatalf("slack 32: prescaler = %d, want 6", bt.Prescaler)
	}
}

func TestSolveRejectsRate(t *testing.T) {
	if _, err := SolveBitTiming(can.MaxRate+1, 8_000_000); !errors.Is(err, ErrInvalidBitrate) {
		t.Fatalf("above max: err = %v, want ErrInvalidBitrate", err)
	}
	if _, err := SolveBitTiming(0, 8_000_000); !errors.Is(err, ErrInvalidBitrate) {
		t.Fatalf("zero: err = %v, want ErrInvalidBitrate", err)
	}
}

func TestSolvePrescalerOverflow(t *testing.T) {
	// 100 bit/s at 8 MHz would need a prescaler of 5000.
	if _, err := SolveBitTiming(100, 8_000_000); !errors.Is(err, ErrNoTiming) {
		t.Fatalf("err = %v, want ErrNoTiming", err)
	}
}

func BenchmarkSolve(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := SolveBitTiming(can.Rate33k3, 8_000_000); err != nil {
			b.Fatal(err)
		}
	}
}
