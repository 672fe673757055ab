package retrieval

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension fixed at build time.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNoIndex is returned by Load when no index file exists.
	ErrNoIndex = errors.New("no persisted index")

	// ErrCorruptIndex is returned by Load when the file fails verification.
	ErrCorruptIndex = errors.New("corrupt index file")

	// ErrIndexUnavailable is returned by the Retriever when no index is loaded.
	ErrIndexUnavailable = errors.New("semantic index unavailable")
)
