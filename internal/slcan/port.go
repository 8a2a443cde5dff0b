package slcan

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/tarm/serial"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/logging"
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

var (
	cmdOpen  = []byte("O\r")
	cmdClose = []byte("C\r")
)

// interCommandDelay gives the adapter firmware time to act on a setup
// command before the next one arrives.
const interCommandDelay = 10 * time.Millisecond

// Setup drives the adapter init sequence: close a possibly open channel,
// program the bitrate, open the channel. The sequence retries as a whole;
// adapters fresh from a replug often swallow the first write.
func Setup(ctx context.Context, p Port, rate can.Bitrate) error {
	setup, err := SetupCommand(rate)
	if err != nil {
		return err
	}
	seq := [][]byte{cmdClose, setup, cmdOpen}
	return retry.Do(func() error {
		for _, cmd := range seq {
			if _, err := p.Write(cmd); err != nil {
				return fmt.Errorf("write %q: %w", cmd, err)
			}
			time.Sleep(interCommandDelay)
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.OnRetry(func(n uint, err error) {
			logging.L().Warn("slcan_setup_retry", "attempt", n, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

// Shutdown closes the CAN channel before the port goes away. Best effort.
func Shutdown(p Port) {
	_, _ = p.Write(cmdClose)
}
