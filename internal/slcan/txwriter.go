package slcan

import (
	"context"
	"errors"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/logging"
	"github.com/kstaniek/go-gd32can/internal/metrics"
	"github.com/kstaniek/go-gd32can/internal/transport"
)

var ErrTxOverflow = errors.New("slcan tx overflow")

// TXWriter funnels all adapter writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates an SLCAN TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, p Port, codec Codec, buf int) *TXWriter {
	send := func(m can.Message) error {
		_, err := p.Write(codec.Encode(m))
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSlcanWrite)
			logging.L().Error("slcan_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSlcanTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSlcanOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a message for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(m can.Message) error { return w.base.SendFrame(m) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
