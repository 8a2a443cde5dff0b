package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/gd32"
	"github.com/kstaniek/go-gd32can/internal/hub"
	"github.com/kstaniek/go-gd32can/internal/metrics"
	"github.com/kstaniek/go-gd32can/internal/slcan"
	"github.com/kstaniek/go-gd32can/internal/socketcan"
)

// isBackendOverflow classifies lost-backpressure errors from any backend:
// TX queue full on the controller, async writer buffer full on the adapters.
func isBackendOverflow(err error) bool {
	return errors.Is(err, gd32.ErrTxQueueFull) ||
		errors.Is(err, slcan.ErrTxOverflow) ||
		errors.Is(err, socketcan.ErrTxOverflow)
}

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			var count int
			if mfd, ok := s.Codec.(interface {
				DecodeN(io.Reader, int, func(can.Message)) (int, error)
			}); ok {
				var err error
				count, err = mfd.DecodeN(conn, 16, func(m can.Message) {
					if s.frameFilter != nil && !s.frameFilter(&m) {
						return
					}
					metrics.IncTCPRx()
					if err := s.Send(m); err != nil {
						if isBackendOverflow(err) {
							s.totalBackendOverflow.Add(1)
							logger.Debug("backend_overflow_drop", "can_id", fmt.Sprintf("0x%X", m.ID), "len", m.Len)
						} else {
							s.totalBackendErrors.Add(1)
							logger.Error("backend_tx_error", "error", err, "can_id", fmt.Sprintf("0x%X", m.ID))
						}
					}
				})
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
						return
					}
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						continue
					}
					wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
			} else {
				m, err := s.Codec.Decode(conn)
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
						return
					}
					if ne, ok := err.(net.Error); ok && ne.Timeout() {
						continue
					}
					wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
					metrics.IncError(mapErrToMetric(wrap))
					s.setError(wrap)
					return
				}
				if s.frameFilter == nil || s.frameFilter(&m) {
					metrics.IncTCPRx()
					if err := s.Send(m); err != nil {
						if isBackendOverflow(err) {
							s.totalBackendOverflow.Add(1)
							logger.Debug("backend_overflow_drop", "can_id", fmt.Sprintf("0x%X", m.ID), "len", m.Len)
						} else {
							wrap := fmt.Errorf("%w: %v", ErrBackendTx, err)
							s.setError(wrap)
							s.totalBackendErrors.Add(1)
							logger.Error("backend_tx_error", "error", wrap, "can_id", fmt.Sprintf("0x%X", m.ID))
						}
					}
				}
				count = 1
			}
			if count == 0 {
				time.Sleep(100 * time.Microsecond)
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
