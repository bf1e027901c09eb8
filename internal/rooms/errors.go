package rooms

import "errors"

var (
	// ErrRoomNotFound distinguishes "no-op by design" from a bug: routed
	// events that reference an unknown code surface this internally and the
	// router turns it into a silent no-op, never a protocol error.
	ErrRoomNotFound = errors.New("room not found")

	// ErrNotAnalyzing is returned when an emotion sample arrives outside an
	// open analysis window; the sample is dropped without error to the sender.
	ErrNotAnalyzing = errors.New("no analysis window open")
)
