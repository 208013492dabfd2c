package interfaces

import "context"

// BlobStore is the write-addressed image blob sink. Keys are derived from
// content hashes, so overwrites are idempotent.
type BlobStore interface {
	// Put writes bytes under key with the given content type and returns
	// the canonical public URL for the object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}
