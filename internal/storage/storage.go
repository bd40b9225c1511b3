// Package storage holds the uploaded X-ray images and their saliency
// maps. Records reference objects by an opaque ref ("folder/name.ext")
// that works for both backends.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("object not found")

// ObjectStore is the image/saliency store.
type ObjectStore interface {
	// Save writes data and returns the ref to persist on the record.
	Save(ctx context.Context, folder, ext string, data []byte) (string, error)
	// Open returns the object bytes for a ref.
	Open(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Folders used by the analysis flow.
const (
	FolderOriginals = "originals"
	FolderSaliency  = "saliency_maps"
)
