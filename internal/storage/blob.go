// Package storage holds the blob store used to cache extracted course
// material between uploads.
package storage

import (
	"errors"
	"io"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidKey   = errors.New("invalid blob key")
)

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)       // ErrBlobNotFound when absent
}
