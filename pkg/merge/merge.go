// Package merge implements the k-way heap merge over N source iterators
// that the user-key iterators consume: a single globally sorted stream of
// internal key/value records, in ascending or descending internal-key
// order depending on the configured direction.
package merge

import (
	"container/heap"
	"context"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// Iterator is a k-way merge over a fixed set of source iterators. It
// exclusively owns the sources for its lifetime: Close closes all of them.
//
// Each Next advances the current top source by one and restores the heap
// invariant, an O(log N) operation. Errors from any source are surfaced
// immediately and leave the merge iterator's position undefined until the
// caller calls Seek or Rewind again.
type Iterator struct {
	sources []iterator.SourceIterator
	cmp     compare.Compare
	dir     compare.Direction

	h   sourceHeap
	err error
}

var _ iterator.SourceIterator = (*Iterator)(nil)

// New constructs a merged iterator over sources, comparing internal keys
// with cmp and visiting them in the given direction. The merged iterator is
// not positioned until Rewind or Seek is called.
func New(sources []iterator.SourceIterator, cmp compare.Compare, dir compare.Direction) *Iterator {
	return &Iterator{
		sources: sources,
		cmp:     cmp,
		dir:     dir,
	}
}

// sourceHeap is a binary heap of source indices, ordered by the current key
// of each indexed source. Ties (which should not occur, since epochs are
// unique per user key) are broken by source index for determinism.
type sourceHeap struct {
	idx []int
	it  *Iterator
}

func (h sourceHeap) Len() int { return len(h.idx) }

func (h sourceHeap) Less(i, j int) bool {
	si, sj := h.idx[i], h.idx[j]
	c := compare.Ordered(h.it.cmp, h.it.dir, h.it.sources[si].Key(), h.it.sources[sj].Key())
	if c != 0 {
		return c < 0
	}
	return si < sj
}

func (h sourceHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *sourceHeap) Push(x any) { h.idx = append(h.idx, x.(int)) }

func (h *sourceHeap) Pop() any {
	n := len(h.idx)
	x := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return x
}

func (m *Iterator) rebuild() {
	m.h.idx = m.h.idx[:0]
	m.h.it = m
	for i, s := range m.sources {
		if s.Error() != nil {
			m.err = s.Error()
			return
		}
		if s.IsValid() {
			m.h.idx = append(m.h.idx, i)
		}
	}
	heap.Init(&m.h)
}

// Rewind rewinds every source, then rebuilds the heap from the sources that
// became valid.
func (m *Iterator) Rewind(ctx context.Context) error {
	m.err = nil
	for _, s := range m.sources {
		if err := s.Rewind(ctx); err != nil {
			m.err = err
			return err
		}
	}
	m.rebuild()
	return m.err
}

// Seek seeks every source to ik (first >= ik for a forward merge, first <=
// ik for a reverse merge) and rebuilds the heap.
func (m *Iterator) Seek(ctx context.Context, ik []byte) error {
	m.err = nil
	for _, s := range m.sources {
		if err := s.Seek(ctx, ik); err != nil {
			m.err = err
			return err
		}
	}
	m.rebuild()
	return m.err
}

// Next advances the source currently at the top of the heap and restores
// the heap invariant, then exposes the new top.
func (m *Iterator) Next(ctx context.Context) error {
	if m.err != nil || len(m.h.idx) == 0 {
		return m.err
	}
	top := m.h.idx[0]
	if err := m.sources[top].Next(ctx); err != nil {
		m.err = err
		return err
	}
	if m.sources[top].IsValid() {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	return nil
}

// IsValid reports whether the merge has a current top element.
func (m *Iterator) IsValid() bool {
	return m.err == nil && len(m.h.idx) > 0
}

// Key returns the internal key of the current top element.
func (m *Iterator) Key() []byte {
	return m.sources[m.h.idx[0]].Key()
}

// Value returns the value of the current top element.
func (m *Iterator) Value() base.Value {
	return m.sources[m.h.idx[0]].Value()
}

// Error returns the first error encountered by any source.
func (m *Iterator) Error() error {
	return m.err
}

// Close closes every source, joining any errors encountered.
func (m *Iterator) Close() error {
	var errs []error
	for _, s := range m.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
