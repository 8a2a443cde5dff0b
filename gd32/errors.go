package gd32

import "errors"

var (
	// ErrInstanceOwned means another Controller in this process already
	// holds the requested CAN unit.
	ErrInstanceOwned = errors.New("gd32: instance already owned")

	// ErrUnknownInstance means the capability set has no such unit.
	ErrUnknownInstance = errors.New("gd32: no such instance")

	// ErrNotInitialized is returned by data operations before Begin
	// succeeds or after Close.
	ErrNotInitialized = errors.New("gd32: controller not initialized")

	// ErrClosed means the controller released its unit and cannot be
	// restarted.
	ErrClosed = errors.New("gd32: controller closed")

	// ErrInvalidBitrate means the requested rate is zero or above the
	// 1 Mbit/s hardware ceiling.
	ErrInvalidBitrate = errors.New("gd32: bitrate out of range")

	// ErrNoTiming means the quanta search found no divisible configuration
	// within the clock slack, or the segments left their register fields.
	ErrNoTiming = errors.New("gd32: no bit timing found")

	// ErrTxQueueFull means the TX ring is full or was constructed with
	// zero capacity and the hardware mailboxes were busy.
	ErrTxQueueFull = errors.New("gd32: tx queue full")

	// ErrRxQueueEmpty means no received message is waiting.
	ErrRxQueueEmpty = errors.New("gd32: rx queue empty")

	// ErrFilterRange means the filter bank index lies outside the range
	// this instance owns.
	ErrFilterRange = errors.New("gd32: filter bank out of range")

	// ErrFilterUnset means enable was called on a bank that was never
	// configured.
	ErrFilterUnset = errors.New("gd32: filter bank never configured")

	// ErrNotCAN1 means the split point was set from a unit other than the
	// one that owns it.
	ErrNotCAN1 = errors.New("gd32: split bank is owned by the CAN1 unit")

	// ErrNoPinDriver means the backend exposes no GPIO capability.
	ErrNoPinDriver = errors.New("gd32: backend has no pin driver")

	// ErrNoSleepPin means no transceiver sleep pin has been attached.
	ErrNoSleepPin = errors.New("gd32: no transceiver sleep pin attached")
)
