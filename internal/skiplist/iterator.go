package skiplist

import (
	"context"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// Iterator is a source iterator over a Skiplist's internal-key order,
// walking forward or backward depending on dir. It implements
// iterator.SourceIterator and is the concrete cursor the merge layer
// consumes from an in-memory memtable.
type Iterator struct {
	list  *Skiplist
	dir   compare.Direction
	cur   *node
	valid bool
}

var _ iterator.SourceIterator = (*Iterator)(nil)

// Rewind positions at the first internal key (forward) or the last internal
// key (reverse).
func (it *Iterator) Rewind(context.Context) error {
	if it.dir == compare.Forward {
		it.cur = it.list.getNext(it.list.head, 0)
		it.valid = it.cur != it.list.tail
	} else {
		it.cur = it.list.getPrev(it.list.tail, 0)
		it.valid = it.cur != it.list.head
	}
	return nil
}

// Seek positions at the first internal key >= ik (forward) or the first
// internal key <= ik (reverse).
func (it *Iterator) Seek(_ context.Context, ik []byte) error {
	target := base.InternalKey{UserKey: base.UserKey(ik), Epoch: base.DecodeEpoch(ik)}
	prev, next, found := it.list.seek(target)

	if it.dir == compare.Forward {
		it.cur = next
		it.valid = it.cur != it.list.tail
		return nil
	}

	if found {
		it.cur = next
	} else {
		it.cur = prev
	}
	it.valid = it.cur != it.list.head
	return nil
}

// Next advances one position in the iterator's direction.
func (it *Iterator) Next(context.Context) error {
	if !it.valid {
		return nil
	}
	if it.dir == compare.Forward {
		it.cur = it.list.getNext(it.cur, 0)
		it.valid = it.cur != it.list.tail
	} else {
		it.cur = it.list.getPrev(it.cur, 0)
		it.valid = it.cur != it.list.head
	}
	return nil
}

func (it *Iterator) IsValid() bool { return it.valid }

// Key returns the encoded internal key of the current node. Callers must
// not retain the returned slice past the next iterator call.
func (it *Iterator) Key() []byte {
	return base.EncodeKey(it.cur.getKey(it.list.arena), it.cur.keyEpoch)
}

func (it *Iterator) Value() base.Value {
	return it.cur.value(it.list.arena)
}

func (it *Iterator) Error() error { return nil }

// Close is a no-op: the skiplist and its arena outlive any one iterator and
// are released by the memtable that owns them.
func (it *Iterator) Close() error { return nil }
