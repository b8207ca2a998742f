package domain

import "errors"

var (
	// ErrQueueFull is returned when the pending queue has reached its size limit.
	ErrQueueFull = errors.New("queue is full")

	// ErrUserQuotaExceeded is returned when a requester already has the maximum
	// number of tracks pending.
	ErrUserQuotaExceeded = errors.New("user queue quota exceeded")

	// ErrQueueEmpty is returned when the pending queue has no tracks.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrInvalidPosition is returned when a queue position is out of range.
	ErrInvalidPosition = errors.New("invalid position")
)
