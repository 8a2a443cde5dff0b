package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/hub"
	"github.com/kstaniek/go-gd32can/internal/metrics"
	"github.com/kstaniek/go-gd32can/internal/slcan"
)

// openSlcanPort is a hook for tests (overridden in unit tests).
var openSlcanPort = slcan.Open

// initSlcanBackend sets up the SLCAN adapter backend, launching the RX loop.
func initSlcanBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Message) error, func(), error) {
	p, err := openSlcanPort(cfg.slcanDev, cfg.slcanBaud, cfg.slcanReadTO)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open slcan: %w", err)
	}
	if err := slcan.Setup(ctx, p, can.Bitrate(cfg.bitrate)); err != nil {
		_ = p.Close()
		return nil, func() {}, fmt.Errorf("slcan setup: %w", err)
	}
	l.Info("slcan_open", "device", cfg.slcanDev, "baud", cfg.slcanBaud, "bitrate", cfg.bitrate)
	codec := slcan.Codec{OnStatus: func(s slcan.Status) {
		l.Warn("slcan_adapter_status", "status", fmt.Sprintf("0x%02X", uint8(s)))
	}}
	w := slcan.NewTXWriter(ctx, p, codec, txQueueSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("slcan_rx_end")
		buf := make([]byte, slcanReadBufSize)
		acc := bytes.NewBuffer(nil)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := p.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = codec.DecodeStream(acc, func(m can.Message) { h.Broadcast(m) })
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				backoff = rxBackoffMin
			}
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					return // device removed or fatal
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // ignore transient EOF
				}
				metrics.IncError(metrics.ErrSlcanRead)
				l.Warn("slcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
			}
		}
	}()
	cleanup := func() {
		slcan.Shutdown(p)
		_ = p.Close()
		w.Close()
	}
	return w.SendFrame, cleanup, nil
}
