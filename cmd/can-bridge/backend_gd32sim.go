package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/gd32"
	"github.com/kstaniek/go-gd32can/internal/hub"
	"github.com/kstaniek/go-gd32can/internal/metrics"
	"github.com/kstaniek/go-gd32can/internal/transport"
	"github.com/kstaniek/go-gd32can/sim"
)

// initGD32SimBackend runs a real gd32.Controller over an in-process
// simulated bus segment. Client frames go through the controller's full
// transmit path (rings, mailboxes, filters); bus traffic surfaces through
// its receive path into the hub. With --sim-echo an echo peer answers every
// data frame, giving TCP clients a live RX path without silicon.
func initGD32SimBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Message) error, func(), error) {
	bus := sim.NewBus()
	ctrl, err := gd32.New(sim.NewBackend(bus),
		gd32.WithRxQueue(gd32RxQueue),
		gd32.WithTxQueue(gd32TxQueue),
	)
	if err != nil {
		return nil, func() {}, fmt.Errorf("gd32 controller: %w", err)
	}
	if err := ctrl.Begin(can.Bitrate(cfg.bitrate)); err != nil {
		_ = ctrl.Close()
		return nil, func() {}, fmt.Errorf("gd32 begin: %w", err)
	}
	// Bridge semantics: pass the whole bus to the clients.
	if err := ctrl.AllowAll(gd32.MatchAnyID); err != nil {
		_ = ctrl.Close()
		return nil, func() {}, fmt.Errorf("gd32 filter: %w", err)
	}
	if cfg.simEcho {
		sim.NewEchoPeer(bus)
	}
	l.Info("gd32sim_up", "bitrate", cfg.bitrate, "echo", cfg.simEcho)

	// All writes funnel through one goroutine so the controller sees a
	// single application-side caller no matter how many TCP clients talk.
	tx := transport.NewAsyncTx(ctx, txQueueSize, ctrl.Write, transport.Hooks{
		OnError: func(err error) {
			if errors.Is(err, gd32.ErrTxQueueFull) {
				metrics.IncError(metrics.ErrGD32Over)
			} else {
				metrics.IncError(metrics.ErrGD32Write)
				l.Error("gd32_write_error", "error", err)
			}
		},
		OnAfter: func() { metrics.IncGD32Tx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrGD32Over)
			return gd32.ErrTxQueueFull
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Receive pump: drain the controller into the hub, idling briefly
		// while its ring is empty.
		for {
			m, err := ctrl.Read()
			switch {
			case err == nil:
				metrics.IncGD32Rx()
				h.Broadcast(m)
			case errors.Is(err, gd32.ErrRxQueueEmpty):
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(rxPollInterval):
				}
			case errors.Is(err, gd32.ErrNotInitialized):
				return nil // controller closed under us during shutdown
			default:
				metrics.IncError(metrics.ErrGD32Read)
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			default:
			}
		}
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.Wait(); err != nil {
			l.Error("gd32sim_rx_error", "error", err)
		}
		l.Info("gd32sim_rx_end")
	}()

	cleanup := func() {
		tx.Close()
		_ = ctrl.Close()
	}
	return tx.SendFrame, cleanup, nil
}
