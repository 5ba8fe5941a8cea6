// Package hummock is the embeddable entry point for a single-node Hummock
// keyspace: it re-exports pkg/db's DB along with the Reader/Writer surface
// it satisfies, so callers only need to import this one package.
package hummock

import (
	"io"

	"hummock/pkg/useriter"
)

// ReadWriterCloser is the full surface a DB exposes.
type ReadWriterCloser interface {
	Reader
	Writer
	io.Closer
}

// Reader is the read-only surface of a DB.
type Reader interface {
	// Get gets the value for the given key. It returns ErrKeyNotFound if
	// the DB does not contain a live version of the key.
	//
	// The caller should not modify the contents of the returned slice, but
	// it is safe to modify the contents of the argument after Get returns.
	Get(key []byte) (value []byte, err error)

	// NewIterator returns a forward range scan bounded by keyRange.
	NewIterator(keyRange useriter.KeyRange) (useriter.Iterator, error)

	// NewReverseIterator returns a reverse range scan bounded by keyRange.
	NewReverseIterator(keyRange useriter.KeyRange) (useriter.Iterator, error)
}

// Writer is the mutating surface of a DB.
type Writer interface {
	// Set sets the value for the given key, overwriting any previous value
	// for that key if it exists, and inserting the key-value pair if it
	// does not.
	Set(key, value []byte) error

	// Delete deletes the value for the given key. It is a blind delete,
	// i.e. it does not return an error if the key does not exist.
	Delete(key []byte) error
}

var _ ReadWriterCloser = (*DB)(nil)
