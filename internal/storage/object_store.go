// Package storage persists binary artifacts (synthesized podcast audio)
// and hands out read URLs for them.
package storage

import "context"

// ObjectStore is the object-storage capability the pipeline consumes.
type ObjectStore interface {
	// Put writes data at path and returns the stored object's read URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// ReadURL returns a URL a client can fetch the object from.
	ReadURL(ctx context.Context, path string) (string, error)

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)
}
