package hummock

import "hummock/pkg/db"

// Option configures a DB at Open time.
type Option = db.Option

// WithMemtableSize overrides the default memtable arena size, in bytes. The
// size is rounded up to the O_DIRECT block size by the memtable package.
func WithMemtableSize(size uint) Option {
	return db.WithMemtableSize(size)
}
