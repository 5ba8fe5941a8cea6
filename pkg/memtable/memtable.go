// Package memtable implements the in-memory, write-buffering layer of the
// storage engine: an arena-backed skiplist keyed by internal key, flushed to
// an SST once full. Reads consume it as a plain source iterator, identical
// in contract to an on-disk SST's block iterator.
package memtable

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"hummock/internal/arch"
	"hummock/internal/arena"
	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/internal/skiplist"
	"hummock/pkg/iterator"
	"hummock/pkg/storage"
)

// Flush hands the memtable's contents to a writer running in a separate
// goroutine; flushed is signalled once the write completes.
type Flush func(m *MemTable, flushed *sync.WaitGroup)

var _ storage.Flusher = (*MemTable)(nil)

// MemTable is the mutable, in-memory write buffer: an arena-backed skiplist
// ordered by internal key, shared read-only once frozen for flushing.
type MemTable struct {
	// seqNum is the epoch at the time the memtable was created. Every write
	// landing in this memtable carries an epoch greater than or equal to it.
	seqNum   base.Epoch
	skiplist *skiplist.Skiplist

	// references tracks the number of readers or writers to the memtable. When
	// the number of references drops to zero, the memtable can be safely
	// retired. The current DB memtable will always be incremented by one when
	// it is active. Once the memtable has been flushed to disk, the reference
	// count will be decremented by one. Once flushed, no new references will be
	// added to the memtable, but this table will exist indefinitely until the
	// referencing readers complete.
	references arch.AtomicUint
	// flushing indicates that the memtable is full and is no longer accepting
	// writes.
	flushing atomic.Bool

	// flush is a function that provides reference to a storage writer and a
	// wait group to signal when the flush to disk is complete.
	flush Flush
}

// New constructs an empty memtable backed by an arena of size bytes, rounded
// up to the O_DIRECT block size so later flushes can write it with direct
// I/O.
func New(size uint, seqNum base.Epoch, flush Flush) *MemTable {
	if size < directio.BlockSize {
		size = directio.BlockSize
	} else if rem := size % directio.BlockSize; rem != 0 {
		size += directio.BlockSize - rem
	}

	m := &MemTable{
		seqNum:   seqNum,
		skiplist: skiplist.NewSkiplist(arena.NewArena(size), compare.DefaultCompare),
		flush:    flush,
	}

	// A newly created memtable is considered active and has a reference count
	// of 1. The reference count will be decremented when the memtable is
	// flushed to disk.
	m.references.Store(1)

	return m
}

// NewFromArena constructs a memtable reusing a, typically a retired
// memtable's arena being recycled after a Reset.
func NewFromArena(a *arena.Arena, seqNum base.Epoch, flush Flush) *MemTable {
	m := &MemTable{
		seqNum:   seqNum,
		skiplist: skiplist.NewSkiplist(a, compare.DefaultCompare),
		flush:    flush,
	}
	m.references.Store(1)
	return m
}

// Set inserts kv, triggering a flush and returning ErrMemtableFlushed if the
// arena is exhausted, or ErrRecordExists if an identical internal key was
// already written (the caller should bump the epoch and retry).
func (m *MemTable) Set(kv base.InternalKV) error {
	if m.flushing.Load() {
		return ErrMemtableFlushed
	}

	err := m.skiplist.Add(kv.Key, kv.Value)
	if err != nil {
		if errors.Is(err, skiplist.ErrArenaFull) {
			// Skiplist is full, flush to disk, caller should create a new
			// memory table and try again.
			if m.flushing.CompareAndSwap(false, true) {
				// Don't want to flush the same memtable twice.
				m.Flush()
			}
			return ErrMemtableFlushed
		}
		if errors.Is(err, skiplist.ErrRecordExists) {
			// Duplicate key, caller should increment the epoch and try
			// again.
			return ErrRecordExists
		}
		return err
	}
	return nil
}

// Flush is either called by the memtable when an insertion fails because it is
// full or by the DB for a preemptive flush.
func (m *MemTable) Flush() {
	var wg sync.WaitGroup
	wg.Add(1)

	// The flush function will run in a separate goroutine and signal the
	// wait group when the flush is complete.
	m.flush(m, &wg)

	// Wait for the flush to complete before decrementing the reference count.
	// This does not mean the memtable is no longer active, but that the
	// memtable has been flushed to disk. Active readers can still hold a
	// reference to the memtable.
	go func() {
		wg.Wait()
		m.references.Add(arch.UintToArchSize(^uint(0))) // -1, via two's-complement wraparound
	}()
}

// NewIter returns a source iterator over the memtable's committed entries in
// the given internal-key direction, suitable for composing under the merged
// sorted iterator alongside SST sources.
func (m *MemTable) NewIter(dir compare.Direction) iterator.SourceIterator {
	return m.skiplist.NewIter(dir)
}

// Size returns the byte size of the memtable including padding bytes in the
// arena.
func (m *MemTable) Size() uint {
	return m.skiplist.Size()
}

// AvailableBytes, UsedBytes, and TotalBytes satisfy storage.Flusher,
// letting a memtable awaiting flush report its arena occupancy the same
// way any other flushable reports capacity.
func (m *MemTable) AvailableBytes() uint {
	a := m.skiplist.Arena()
	return a.Cap() - a.Len()
}

func (m *MemTable) UsedBytes() uint {
	return m.skiplist.Arena().Len()
}

func (m *MemTable) TotalBytes() uint {
	return m.skiplist.Arena().Cap()
}

// Reset clears the skiplist and resets the arena to reuse the allocated
// memory. This is to be used by DB to retain one retired memtable for
// reuse during memtable rotation. This requires a new flush function to be
// provided for writing to a new file.
func (m *MemTable) Reset(seqNum base.Epoch, flush Flush) error {
	if m.references.Load() > 0 {
		return ErrMemtableActive
	}

	m.seqNum = seqNum
	m.flush = flush
	m.flushing.Store(false)
	a := m.skiplist.Arena()
	a.Reset()
	m.skiplist.Reset(a)
	m.references.Store(1)

	return nil
}

// IsActive returns false if the memtable has been flushed to disk and no
// longer has any reader references. At which point, the memtable can be
// safely reset or destroyed (GC).
func (m *MemTable) IsActive() bool {
	return m.references.Load() != 0
}
