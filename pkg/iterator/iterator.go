// Package iterator defines the source-iterator contract consumed by the
// merged sorted iterator: a cursor over one SST's (or memtable's) internal
// key/value stream, in ascending or descending internal-key order.
//
// Block and table decoding live outside this package; the sstable package's
// table iterator and a memtable's skiplist cursor are the only per-source
// implementations in this module (the merge iterator satisfies the contract
// too), but anything satisfying SourceIterator can be merged.
package iterator

import (
	"context"
	"io"

	"hummock/internal/base"
)

// SourceIterator is a cursor over one sorted source's internal key/value
// pairs. Every absolute or relative positioning method is a suspension
// point: implementations backed by block storage may block fetching pages,
// and callers must be prepared for that.
//
// seek positions at the first element >= ik for a forward source, or the
// first element <= ik for a reverse source.
type SourceIterator interface {
	// IsValid reports whether the cursor is positioned at a record.
	IsValid() bool
	// Key returns the encoded internal key at the cursor. Valid only when
	// IsValid reports true.
	Key() []byte
	// Value returns the value at the cursor. Valid only when IsValid
	// reports true.
	Value() base.Value

	// Next advances the cursor by one record.
	Next(ctx context.Context) error
	// Seek positions the cursor at ik per the direction-specific contract
	// described above.
	Seek(ctx context.Context, ik []byte) error
	// Rewind positions the cursor at the first record in the source's
	// iteration order (the smallest internal key for a forward source, the
	// largest for a reverse one).
	Rewind(ctx context.Context) error

	// Error returns the first error encountered by a positioning call, if
	// any. Once non-nil, the cursor's position is undefined until a
	// subsequent Seek or Rewind succeeds.
	Error() error

	io.Closer
}
