package can

// Bitrate is a nominal CAN bus bit rate in bit/s.
type Bitrate uint32

// Rates supported by the GD32 bxCAN cell. The two "odd" rates (83.333 and
// 33.333 kbit/s) are common in automotive single-wire and comfort buses and
// are not exact submultiples of typical peripheral clocks.
const (
	Rate1M   Bitrate = 1_000_000
	Rate800k Bitrate = 800_000
	Rate750k Bitrate = 750_000
	Rate500k Bitrate = 500_000
	Rate250k Bitrate = 250_000
	Rate200k Bitrate = 200_000
	Rate150k Bitrate = 150_000
	Rate125k Bitrate = 125_000
	Rate100k Bitrate = 100_000
	Rate83k3 Bitrate = 83_333
	Rate75k  Bitrate = 75_000
	Rate62k5 Bitrate = 62_500
	Rate50k  Bitrate = 50_000
	Rate40k  Bitrate = 40_000
	Rate33k3 Bitrate = 33_333
	Rate25k  Bitrate = 25_000
	Rate20k  Bitrate = 20_000
	Rate15k  Bitrate = 15_000
	Rate10k  Bitrate = 10_000
	Rate5k   Bitrate = 5_000

	// MaxRate is the hardware ceiling.
	MaxRate = Rate1M
)
