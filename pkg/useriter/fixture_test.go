package useriter

import (
	"bytes"
	"context"
	"sort"

	"hummock/internal/base"
	"hummock/pkg/iterator"
)

// record is a single entry used to build test sources: a version of a user
// key at a given epoch, carrying either a Put or Delete value.
type record struct {
	uk    string
	epoch base.Epoch
	val   base.Value
}

func put(uk string, epoch base.Epoch, val string) record {
	return record{uk: uk, epoch: epoch, val: base.PutValue([]byte(val))}
}

func del(uk string, epoch base.Epoch) record {
	return record{uk: uk, epoch: epoch, val: base.DeleteValue()}
}

// sliceSource is a minimal in-memory SourceIterator, standing in for an
// SST's block iterator in tests. Entries are held pre-encoded and sorted
// ascending by internal key; the forward/backward flag governs which end
// Rewind starts from and which way Next walks.
type sliceSource struct {
	keys [][]byte
	vals []base.Value
	back bool

	pos   int
	valid bool
}

var _ iterator.SourceIterator = (*sliceSource)(nil)

func newSliceSource(back bool, recs ...record) *sliceSource {
	s := &sliceSource{back: back}
	for _, r := range recs {
		s.keys = append(s.keys, base.EncodeKey([]byte(r.uk), r.epoch))
		s.vals = append(s.vals, r.val)
	}
	sort.Sort(s)
	return s
}

// sort.Interface, ascending by encoded internal key.
func (s *sliceSource) Len() int { return len(s.keys) }
func (s *sliceSource) Swap(i, j int) {
	s.keys[i], s.keys[j] = s.keys[j], s.keys[i]
	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
}
func (s *sliceSource) Less(i, j int) bool { return bytes.Compare(s.keys[i], s.keys[j]) < 0 }

func (s *sliceSource) Rewind(context.Context) error {
	if len(s.keys) == 0 {
		s.valid = false
		return nil
	}
	if s.back {
		s.pos = len(s.keys) - 1
	} else {
		s.pos = 0
	}
	s.valid = true
	return nil
}

func (s *sliceSource) Seek(_ context.Context, ik []byte) error {
	if s.back {
		// First index with key <= ik: search for the first key > ik, then
		// step back one.
		idx := sort.Search(len(s.keys), func(i int) bool { return bytes.Compare(s.keys[i], ik) > 0 })
		s.pos = idx - 1
		s.valid = s.pos >= 0
		return nil
	}
	idx := sort.Search(len(s.keys), func(i int) bool { return bytes.Compare(s.keys[i], ik) >= 0 })
	s.pos = idx
	s.valid = s.pos < len(s.keys)
	return nil
}

func (s *sliceSource) Next(context.Context) error {
	if s.back {
		s.pos--
	} else {
		s.pos++
	}
	s.valid = s.pos >= 0 && s.pos < len(s.keys)
	return nil
}

func (s *sliceSource) IsValid() bool { return s.valid }

func (s *sliceSource) Key() []byte { return s.keys[s.pos] }

func (s *sliceSource) Value() base.Value { return s.vals[s.pos] }

func (s *sliceSource) Error() error { return nil }

func (s *sliceSource) Close() error { return nil }

// drainReverse exhausts a Reverse iterator already positioned by Rewind or
// Seek, returning the sequence of (key, value) pairs it reports.
func drainReverse(ctx context.Context, it *Reverse) ([]string, []string) {
	var keys, vals []string
	for it.IsValid() {
		keys = append(keys, string(it.Key()))
		vals = append(vals, string(it.Value()))
		if err := it.Next(ctx); err != nil {
			panic(err)
		}
	}
	return keys, vals
}

func drainForward(ctx context.Context, it *Forward) ([]string, []string) {
	var keys, vals []string
	for it.IsValid() {
		keys = append(keys, string(it.Key()))
		vals = append(vals, string(it.Value()))
		if err := it.Next(ctx); err != nil {
			panic(err)
		}
	}
	return keys, vals
}
