// Package lsm composes the memtable and flushed SSTables into the Range/Seek
// API scans use: it fans each source out through the merged sorted
// iterator, then layers a user-key iterator (forward or reverse) on top.
package lsm

import (
	"fmt"
	"sync"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
	"hummock/pkg/memtable"
	"hummock/pkg/merge"
	"hummock/pkg/sstable"
	"hummock/pkg/useriter"
)

// LSM holds the set of sources — one mutable memtable plus zero or more
// immutable, flushed SSTables — that together make up one snapshot of the
// keyspace.
type LSM struct {
	mu        sync.RWMutex
	memtables []*memtable.MemTable // newest first; index 0 accepts writes
	sstables  []*sstable.SSTable   // newest first
}

// New constructs an LSM with a single active memtable.
func New(active *memtable.MemTable) *LSM {
	return &LSM{memtables: []*memtable.MemTable{active}}
}

// Active returns the current write-accepting memtable.
func (l *LSM) Active() *memtable.MemTable {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.memtables[0]
}

// RotateMemtable pushes the current active memtable into the immutable set
// and installs next as the new active memtable.
func (l *LSM) RotateMemtable(next *memtable.MemTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.memtables = append([]*memtable.MemTable{next}, l.memtables...)
}

// DropMemtable removes a flushed memtable from the immutable set once its
// SSTable has been durably written and registered.
func (l *LSM) DropMemtable(m *memtable.MemTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, candidate := range l.memtables {
		if candidate == m {
			l.memtables = append(l.memtables[:i], l.memtables[i+1:]...)
			return
		}
	}
}

// AddSSTable registers a newly flushed SSTable as a readable source, newest
// first.
func (l *LSM) AddSSTable(t *sstable.SSTable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sstables = append([]*sstable.SSTable{t}, l.sstables...)
}

// sources builds one source iterator per memtable and SSTable, in the
// requested internal-key direction, for composition under a merged sorted
// iterator. Every memtable (active and flushing) and every SSTable
// participates: visibility is decided later, by the user-key iterator's
// read_epoch filter, not by which source a version happens to live in.
func (l *LSM) sources(dir compare.Direction) ([]iterator.SourceIterator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	srcs := make([]iterator.SourceIterator, 0, len(l.memtables)+len(l.sstables))
	for _, m := range l.memtables {
		srcs = append(srcs, m.NewIter(dir))
	}
	for _, t := range l.sstables {
		it, err := t.NewIter(dir)
		if err != nil {
			return nil, fmt.Errorf("lsm: open sstable %d: %w", t.ID(), err)
		}
		srcs = append(srcs, it)
	}
	return srcs, nil
}

// NewIterator returns a forward (ascending user-key) scan over the current
// set of sources, snapshotting at readEpoch and bounded by keyRange. The
// iterator is not positioned until Rewind or Seek is called.
func (l *LSM) NewIterator(keyRange useriter.KeyRange, readEpoch base.Epoch) (useriter.Iterator, error) {
	srcs, err := l.sources(compare.Forward)
	if err != nil {
		return nil, err
	}
	merged := merge.New(srcs, compare.DefaultCompare, compare.Forward)
	return useriter.NewForward(merged, keyRange, readEpoch), nil
}

// NewReverseIterator returns a reverse (descending user-key) scan over the
// current set of sources, snapshotting at readEpoch and bounded by
// keyRange.
func (l *LSM) NewReverseIterator(keyRange useriter.KeyRange, readEpoch base.Epoch) (useriter.Iterator, error) {
	srcs, err := l.sources(compare.Backward)
	if err != nil {
		return nil, err
	}
	merged := merge.New(srcs, compare.DefaultCompare, compare.Backward)
	return useriter.NewReverse(merged, keyRange, readEpoch), nil
}
