// Package transport implements the three byte sources AlphaStream containers
// can be read from: HTTP range requests, memory-mapped local files, and
// in-memory buffers. All three satisfy the same Source contract so the
// format reader never needs to know which one it is talking to.
package transport

import (
	"context"
	"errors"
)

// Sentinel errors mapped to alphastream.ErrorCode at the Processor
// boundary. Internal code never constructs an ErrorCode directly.
var (
	ErrNotFound    = errors.New("transport: resource not found")
	ErrTimeout     = errors.New("transport: deadline exceeded")
	ErrOutOfBounds = errors.New("transport: offset beyond resource length")
	ErrCancelled   = errors.New("transport: operation cancelled")
	ErrTransport   = errors.New("transport: transport failure")
)

// Source is a uniform byte source. Implementations must be safe for
// concurrent Len/ReadRange calls; ordering between concurrent ReadRange
// calls is not implied.
type Source interface {
	// Len returns the total byte length of the resource. Implementations
	// may cache the result after the first successful call.
	Len(ctx context.Context) (uint64, error)

	// ReadRange returns between 1 and size bytes starting at offset. A
	// short read is permitted only when the requested range extends past
	// Len(); offsets entirely beyond Len() return ErrOutOfBounds.
	ReadRange(ctx context.Context, offset, size uint64) ([]byte, error)

	// Cancel best-effort cancels outstanding reads; in-flight calls
	// return ErrCancelled. Cancel does not close the source — further
	// calls after Cancel may still succeed.
	Cancel()

	// Close releases any resources (file handles, mappings, connections)
	// held by the source.
	Close() error
}
