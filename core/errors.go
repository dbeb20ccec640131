package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine. Callers distinguish error
// classes with errors.Is; wrapped detail is added at the call site with
// fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound is returned by lookups when a key is not present.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by operations on a closed container.
	ErrClosed = errors.New("container is closed")
	// ErrCorrupted signals inconsistent on-disk structure (bad offsets,
	// section length mismatch, malformed block data).
	ErrCorrupted = errors.New("container data is corrupted")
	// ErrChecksumMismatch signals that a block's recovered payload does not
	// match its stored checksum. It is a corruption signal distinct from a
	// decompression failure.
	ErrChecksumMismatch = errors.New("block checksum mismatch")
	// ErrUnsupportedCodec signals an unknown compression or encryption kind
	// code in a block header.
	ErrUnsupportedCodec = errors.New("unsupported compression or encryption kind")
	// ErrOutOfOrderKey is returned immediately when a builder receives keys
	// that violate the configured collation order.
	ErrOutOfOrderKey = errors.New("keys must be added in collation order")
	// ErrPayloadTooLarge is returned when a single entry exceeds the
	// representable block range.
	ErrPayloadTooLarge = errors.New("entry payload exceeds representable block range")
	// ErrIncrementalAppend is returned by the flat builder when entries are
	// appended after serialization has started.
	ErrIncrementalAppend = errors.New("flat layout requires the complete entry set before building")
	// ErrLinkCycle is returned when resolving entry links walks a cycle.
	ErrLinkCycle = errors.New("cyclic entry link")
	// ErrInvalidAttribute is returned by builders for a metadata attribute
	// that cannot survive the line-oriented header encoding.
	ErrInvalidAttribute = errors.New("invalid metadata attribute")
)

// CorruptHeaderError reports an unusable container header. It wraps
// ErrCorrupted so callers can treat it as a corruption class error.
type CorruptHeaderError struct {
	Reason string
}

func (e *CorruptHeaderError) Error() string {
	return fmt.Sprintf("corrupt container header: %s", e.Reason)
}

func (e *CorruptHeaderError) Unwrap() error { return ErrCorrupted }

// IsCorruption reports whether err belongs to the corruption class: the
// specific block or section is unusable but the container may still serve
// unrelated blocks.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorrupted) || errors.Is(err, ErrChecksumMismatch)
}

// IsUsageError reports whether err is a caller programming error rather
// than a data or I/O problem.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrOutOfOrderKey) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrIncrementalAppend) ||
		errors.Is(err, ErrInvalidAttribute)
}
