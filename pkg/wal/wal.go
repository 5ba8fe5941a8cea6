// Package wal implements the write-ahead log: the durability record of
// every write, appended before the write is applied to a memtable. A DB
// keeps one log file for its whole lifetime; flushing a memtable does not
// close, truncate or remove it, and nothing in this module replays it.
package wal

import (
	"os"

	"github.com/ncw/directio"
)

// WAL is an append-only, O_DIRECT-backed log file.
type WAL struct {
	logfile *os.File
}

// New opens (creating if necessary) the log file at path for append-only
// writes.
func New(path string) (*WAL, error) {
	logfile, err := directio.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o755)
	if err != nil {
		return nil, err
	}

	return &WAL{
		logfile: logfile,
	}, nil
}

// Write appends a record to the log. Records are not length-framed at this
// layer; callers are expected to write whole, self-describing buffers (see
// pkg/storage.Writer for block-aligned framing).
func (w *WAL) Write(p []byte) (int, error) {
	return w.logfile.Write(p)
}

// Flush fsyncs the log file, making prior writes durable.
func (w *WAL) Flush() error {
	return w.logfile.Sync()
}

// Close flushes and closes the log file.
func (w *WAL) Close() error {
	if err := w.Flush(); err != nil {
		_ = w.logfile.Close()
		return err
	}
	return w.logfile.Close()
}
