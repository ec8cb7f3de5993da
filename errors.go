package lxpulseaudio

import "github.com/pkg/errors"

var (
	// ErrInvalidBlockSizes is returned when a block size policy violates its constraints.
	ErrInvalidBlockSizes = errors.New("invalid block sizes")
	// ErrNotLinked is returned for operations on a device that is not linked.
	ErrNotLinked = errors.New("device not linked")
	// ErrDestroyed is returned for operations on a destroyed device.
	ErrDestroyed = errors.New("device destroyed")
	// ErrMoveRejected is returned when a device refuses to move to another master.
	ErrMoveRejected = errors.New("move rejected")
	// ErrIncompatibleSpec is returned when two devices cannot exchange audio.
	ErrIncompatibleSpec = errors.New("incompatible sample spec")
	// ErrCoreClosed is returned once the control context has shut down.
	ErrCoreClosed = errors.New("core closed")
)
