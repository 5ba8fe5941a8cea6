package hummock

import "hummock/pkg/db"

// DB is a single-node Hummock keyspace. See pkg/db for the implementation.
type DB = db.DB

// ErrKeyNotFound is returned by Get when no live version of a key exists.
var ErrKeyNotFound = db.ErrKeyNotFound

// Open opens the database rooted at directory, creating it if it does not
// already exist.
func Open(directory string, options ...Option) (*DB, error) {
	return db.Open(directory, options...)
}
