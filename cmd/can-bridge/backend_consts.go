package main

import "time"

const (
	txQueueSize      = 1024 // capacity of the async TX writer buffer (slcan/socketcan)
	slcanReadBufSize = 4096 // per read() buffer for the SLCAN backend
	// largeBufferReclaimThreshold is the capacity above which the temporary
	// SLCAN RX accumulation buffer is discarded and reallocated once empty.
	// This prevents pathological growth (e.g., after bursts of noise / junk)
	// from permanently retaining large backing arrays. 16 KiB chosen as a
	// balance: comfortably larger than typical aggregated frame bursts yet
	// small enough to free memory if garbage accumulates.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond

	// gd32 controller queue sizes: the RX ring absorbs bus bursts between
	// pump polls; a modest TX ring lets client writes ride out busy
	// mailboxes instead of failing immediately.
	gd32RxQueue = 256
	gd32TxQueue = 64
	// rxPollInterval paces the gd32sim receive pump while its ring is empty.
	rxPollInterval = time.Millisecond
)
