package db

import "hummock/pkg/useriter"

// Reader is the read-only surface of a DB.
type Reader interface {
	Get(key []byte) (value []byte, err error)
	NewIterator(keyRange useriter.KeyRange) (useriter.Iterator, error)
	NewReverseIterator(keyRange useriter.KeyRange) (useriter.Iterator, error)
}

// Writer is the mutating surface of a DB.
type Writer interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}

var _ Reader = (*DB)(nil)
var _ Writer = (*DB)(nil)
