package engine

import "errors"

var (
	// ErrNotTransfer rejects events whose name is anything but "Transfer".
	ErrNotTransfer = errors.New("engine: event is not a Transfer")

	// ErrRetryableNotFound marks a mint whose donation record does not exist
	// yet; the event is rescheduled once after a fixed delay.
	ErrRetryableNotFound = errors.New("engine: donation not found yet")

	// ErrUnresolvableMatch means no donation could be matched to a transfer.
	// The event is dropped: a blind retry would not make the record appear.
	ErrUnresolvableMatch = errors.New("engine: no donation matches transfer")

	// ErrMissingContext marks an absent reference entity (admin, delegate).
	// Processing continues best-effort.
	ErrMissingContext = errors.New("engine: missing reference entity")
)
