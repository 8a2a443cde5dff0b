package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-gd32can/can"
	"github.com/kstaniek/go-gd32can/internal/hub"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// initBackend selects the backend, starts its RX loop and returns a frame sender and cleanup.
// It returns an error instead of exiting the process to allow graceful handling by the caller.
func initBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Message) error, func(), error) {
	switch cfg.backend {
	case "gd32sim":
		return initGD32SimBackend(ctx, cfg, h, l, wg)
	case "slcan":
		return initSlcanBackend(ctx, cfg, h, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, h, l, wg)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use gd32sim|slcan|socketcan)", cfg.backend)
	}
}
