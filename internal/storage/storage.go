// Package storage defines the remote blob store boundary consumed by
// the sync engine.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports an unknown or expired blob identifier, or a
// missing metadata record for a pull target.
var ErrNotFound = errors.New("blob not found")

// ErrUnavailable reports that the remote store rejected an operation
// or could not be reached.
var ErrUnavailable = errors.New("blob store unavailable")

// BlobStore is the capability interface over the remote store. Both
// calls are blocking network operations; callers bound them through
// ctx. The identifier is opaque and the core assumes neither
// content-addressing nor deduplication on the remote side.
type BlobStore interface {
	// Store uploads one blob and returns its identifier.
	Store(ctx context.Context, blob io.Reader) (string, error)
	// Retrieve streams back the blob for a previously returned id.
	Retrieve(ctx context.Context, id string) (io.ReadCloser, error)
}
