package sstable

import (
	"context"
	"sort"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// tableIterator is an in-memory source iterator over a fully-loaded
// SSTable. Loading the whole table up front is the deliberate simplification
// this layer makes in place of a real block index and cache.
type tableIterator struct {
	keys [][]byte
	vals []base.Value
	dir  compare.Direction

	pos     int
	valid   bool
	release func()
}

var _ iterator.SourceIterator = (*tableIterator)(nil)

func newTableIterator(kvs []base.InternalKV, dir compare.Direction, release func()) *tableIterator {
	it := &tableIterator{dir: dir, release: release}
	it.keys = make([][]byte, len(kvs))
	it.vals = make([]base.Value, len(kvs))
	for i, kv := range kvs {
		it.keys[i] = kv.Key.Encode()
		it.vals[i] = kv.Value
	}
	return it
}

func (it *tableIterator) Rewind(context.Context) error {
	if len(it.keys) == 0 {
		it.valid = false
		return nil
	}
	if it.dir == compare.Backward {
		it.pos = len(it.keys) - 1
	} else {
		it.pos = 0
	}
	it.valid = true
	return nil
}

func (it *tableIterator) Seek(_ context.Context, ik []byte) error {
	if it.dir == compare.Backward {
		idx := sort.Search(len(it.keys), func(i int) bool {
			return compare.DefaultCompare(it.keys[i], ik) > 0
		})
		it.pos = idx - 1
		it.valid = it.pos >= 0
		return nil
	}
	idx := sort.Search(len(it.keys), func(i int) bool {
		return compare.DefaultCompare(it.keys[i], ik) >= 0
	})
	it.pos = idx
	it.valid = it.pos < len(it.keys)
	return nil
}

func (it *tableIterator) Next(context.Context) error {
	if it.dir == compare.Backward {
		it.pos--
	} else {
		it.pos++
	}
	it.valid = it.pos >= 0 && it.pos < len(it.keys)
	return nil
}

func (it *tableIterator) IsValid() bool    { return it.valid }
func (it *tableIterator) Key() []byte      { return it.keys[it.pos] }
func (it *tableIterator) Value() base.Value { return it.vals[it.pos] }
func (it *tableIterator) Error() error     { return nil }

func (it *tableIterator) Close() error {
	if it.release != nil {
		it.release()
	}
	return nil
}
