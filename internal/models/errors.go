package models

import "errors"

// Error taxonomy shared by every package. Callers match with errors.Is;
// the wrapping message carries the detail.
var (
	// ErrConfiguration marks invalid geometry, scan or layout parameters.
	// Raised at construction; reconstruction is never attempted.
	ErrConfiguration = errors.New("configuration error")

	// ErrDimensionMismatch marks a delay table or frame buffer whose shape
	// disagrees with the configured element and record counts.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrFrameConflict marks a write into the active frame, or a frame
	// transition while the frame is still in use. Retryable.
	ErrFrameConflict = errors.New("frame conflict")

	// ErrBackendUnavailable marks a parallel execution backend that cannot
	// be initialised.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
