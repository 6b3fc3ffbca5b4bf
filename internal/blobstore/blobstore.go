// Package blobstore abstracts the object store that holds source images,
// the current annotation record and its archived predecessors.
//
// Two backends are provided: S3 (used by the Lambdas) and a local
// filesystem layout (used by the CLI). Both address objects by Location,
// a bucket/key pair; the filesystem backend maps buckets to directories.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Open when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Location identifies one object in the store.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location as bucket/key.
func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// Store is the set of object operations the pipeline needs.
// All methods are safe for concurrent use.
type Store interface {
	// Exists reports whether an object is present at loc.
	Exists(ctx context.Context, loc Location) (bool, error)

	// Open returns a reader for the object at loc. Returns ErrNotFound
	// (possibly wrapped) when the object does not exist.
	Open(ctx context.Context, loc Location) (io.ReadCloser, error)

	// Put writes data to loc, replacing any existing object.
	Put(ctx context.Context, loc Location, data []byte, contentType string) error

	// Copy duplicates the object at src to dst. The copy is complete when
	// Copy returns nil.
	Copy(ctx context.Context, src, dst Location) error

	// Delete removes the object at loc. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, loc Location) error
}

// ReadAll opens loc and reads it fully.
func ReadAll(ctx context.Context, s Store, loc Location) ([]byte, error) {
	rc, err := s.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return data, nil
}

// Handle is a dereferenceable pointer to one object, used as the content
// handle of a storage-change event.
type Handle struct {
	Store    Store
	Location Location
}

// Open opens the referenced object.
func (h Handle) Open(ctx context.Context) (io.ReadCloser, error) {
	if h.Store == nil {
		return nil, fmt.Errorf("handle for %s has no store", h.Location)
	}
	return h.Store.Open(ctx, h.Location)
}
