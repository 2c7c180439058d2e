// Package storage keeps file content addressed by an opaque blob key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned for a key that has no stored blob.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidRange is returned when a range falls outside the blob.
	ErrInvalidRange = errors.New("invalid byte range")
)

// Store reads and writes immutable blobs.
//
// Put and Delete accept the metadata transaction. Stores that live in the
// same database as the catalog (Transactional returns true) write through
// it so blob and metadata commit together; other stores ignore it.
type Store interface {
	Put(ctx context.Context, tx *gorm.DB, key string, r io.Reader, size int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenRange returns bytes start..end inclusive.
	OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	Delete(ctx context.Context, tx *gorm.DB, key string) error
	Transactional() bool
}

// NewKey returns a fresh blob key, prefixed by upload date.
func NewKey() string {
	return fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString())
}

func checkRange(start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, end)
	}
	return nil
}
