// Package skiplist implements the lock-free, arena-backed skiplist that
// backs the memtable: the one concrete, in-process "source iterator" that
// the merged sorted iterator and user-key iterators are exercised against.
// Insertion order is immaterial to readers — the skiplist's own internal-key
// ordering (user key ascending, epoch descending) is what every iterator
// built on top of it relies on.
package skiplist

import (
	"errors"
	"math"
	"unsafe"

	"hummock/internal/arch"
	"hummock/internal/arena"
	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/internal/fastrand"
	"hummock/pkg/iterator"
)

const (
	maxNodeSize   = uint(unsafe.Sizeof(node{}))
	linksSize     = uint(unsafe.Sizeof(links{}))
	maxHeight     = uint(20)
	pValue        = 1 / math.E
	nodeAlignment = uint(unsafe.Sizeof(arch.UintToArchSize(0)))
)

var probabilities [maxHeight]uint32

func init() {
	// Precompute the skiplist probabilities so that only a single random number
	// needs to be generated and so that the optimal pvalue can be used (inverse
	// of Euler's number).
	p := float64(1.0)
	for i := uint(0); i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

var (
	ErrArenaFull    = arena.ErrArenaFull
	ErrRecordExists = errors.New("record with this key already exists")
)

// Skiplist is a fast, concurrent skiplist implementation that supports forward
// and backward iteration. Keys and values are immutable once added to the skiplist
// and deletion is not supported. Instead, higher-level code is expected to add new
// entries that shadow existing entries and perform deletion via tombstones. It
// is up to the user to process these shadow entries and tombstones appropriately
// during retrieval.
type Skiplist struct {
	arena  *arena.Arena
	head   *node
	tail   *node
	height arch.AtomicUint // Current height. 1 <= height <= maxHeight. CAS.
	cmp    compare.Compare
}

type splice struct {
	prev *node
	next *node
}

func (s *splice) init(prev, next *node) {
	s.prev = prev
	s.next = next
}

type Inserter struct {
	spl    [maxHeight]splice
	height uint
}

func (ins *Inserter) Add(list *Skiplist, key base.InternalKey, value base.Value) error {
	return list.addInternal(key, value, ins)
}

// NewSkiplist constructs and initializes a new, empty skiplist. All nodes, keys,
// and values in the skiplist will be allocated from the given arena.
func NewSkiplist(arena *arena.Arena, cmp compare.Compare) *Skiplist {
	skl := &Skiplist{
		cmp: cmp,
	}
	skl.Reset(arena)
	return skl
}

// Reset the skiplist to empty and re-initialize.
func (s *Skiplist) Reset(a *arena.Arena) {
	if a == nil {
		*s = Skiplist{
			arena: nil,
			head:  nil,
			tail:  nil,
		}
		return
	}

	// Allocate head and tail nodes.
	head, err := newRawNode(a, maxHeight, 0, 0)
	if err != nil {
		panic("arenaSize is not large enough to hold the head node")
	}
	head.keyOffset = 0

	tail, err := newRawNode(a, maxHeight, 0, 0)
	if err != nil {
		panic("arenaSize is not large enough to hold the tail node")
	}
	tail.keyOffset = 0

	// Link all head/tail levels together.
	headOffset := a.GetPointerOffset(unsafe.Pointer(head))
	tailOffset := a.GetPointerOffset(unsafe.Pointer(tail))
	for i := uint(0); i < maxHeight; i++ {
		head.tower[i].nextOffset.Store(arch.UintToArchSize(tailOffset))
		tail.tower[i].prevOffset.Store(arch.UintToArchSize(headOffset))
	}

	*s = Skiplist{
		arena: a,
		head:  head,
		tail:  tail,
	}
	s.height.Store(1)
}

// Arena returns the arena backing this skiplist.
func (s *Skiplist) Arena() *arena.Arena {
	return s.arena
}

// Height returns the height of the highest tower within any of the nodes that
// have ever been allocated as part of this skiplist.
func (s *Skiplist) Height() uint {
	return uint(s.height.Load())
}

// Size returns the number of bytes that have been allocated from the arena.
func (s *Skiplist) Size() uint {
	return s.arena.Len()
}

// NewIter returns a source iterator over the skiplist in the given
// internal-key direction. Range bounds are not enforced here; that is the
// user-key iterator's job (see pkg/useriter) — this is the raw, unbounded
// cursor the spec calls the "source iterator".
func (s *Skiplist) NewIter(dir compare.Direction) iterator.SourceIterator {
	return &Iterator{list: s, dir: dir}
}

// seek descends the skiplist level by level and returns, at level 0, the
// last node strictly less than key (prev), the first node greater than or
// equal to key (next), and whether next is an exact internal-key match.
func (s *Skiplist) seek(key base.InternalKey) (prev, next *node, found bool) {
	prev = s.head
	for level := int(s.Height()) - 1; level >= 0; level-- {
		prev, next, found = s.findSpliceForLevel(key, level, prev)
	}
	if next == nil {
		next = s.tail
	}
	return
}

// Add adds a new key if it does not yet exist. If the key already exists, then
// Add returns ErrRecordExists. If there isn't enough room in the arena, then
// Add returns ErrArenaFull.
func (s *Skiplist) Add(key base.InternalKey, value base.Value) error {
	var ins Inserter
	return s.addInternal(key, value, &ins)
}

func (s *Skiplist) addInternal(key base.InternalKey, value base.Value, ins *Inserter) error {
	if s.findSplice(key, ins) {
		// Found a node with the same internal key.
		return ErrRecordExists
	}

	nd, height, err := s.newNode(key, value)
	if err != nil {
		return err
	}

	ndOffset := s.arena.GetPointerOffset(unsafe.Pointer(nd))

	// We always insert from the base level and up. After you add a node in base
	// level, we cannot create a node in the level above because it would have
	// discovered the node in the base level.
	var found bool
	var invalidateSplice bool
	for i := 0; i < int(height); i++ {
		prev := ins.spl[i].prev
		next := ins.spl[i].next

		if prev == nil {
			// New node increased the height of the skiplist, so assume that the
			// new level has not yet been populated.
			if next != nil {
				panic("next is expected to be nil, since prev is nil")
			}

			prev = s.head
			next = s.tail
		}

		// +----------------+     +------------+     +----------------+
		// |      prev      |     |     nd     |     |      next      |
		// | prevNextOffset |---->|            |     |                |
		// |                |<----| prevOffset |     |                |
		// |                |     | nextOffset |---->|                |
		// |                |     |            |<----| nextPrevOffset |
		// +----------------+     +------------+     +----------------+
		//
		// 1. Initialize prevOffset and nextOffset to point to prev and next.
		// 2. CAS prevNextOffset to repoint from next to nd.
		// 3. CAS nextPrevOffset to repoint from prev to nd.
		for {
			prevOffset := s.arena.GetPointerOffset(unsafe.Pointer(prev))
			nextOffset := s.arena.GetPointerOffset(unsafe.Pointer(next))
			nd.tower[i].init(prevOffset, nextOffset)

			// Check whether next has an updated link to prev. If it does not,
			// that can mean one of two things:
			//   1. The thread that added the next node hasn't yet had a chance
			//      to add the prev link (but will shortly).
			//   2. Another thread has added a new node between prev and next.
			nextPrevOffset := next.prevOffset(i)
			if nextPrevOffset != prevOffset {
				// Determine whether #1 or #2 is true by checking whether prev
				// is still pointing to next. As long as the atomic operations
				// have at least acquire/release semantics (no need for
				// sequential consistency), this works, as it is equivalent to
				// the "publication safety" pattern.
				prevNextOffset := prev.nextOffset(i)
				if prevNextOffset == nextOffset {
					// Ok, case #1 is true, so help the other thread along by
					// updating the next node's prev link.
					next.casPrevOffset(i, nextPrevOffset, prevOffset)
				}
			}

			if prev.casNextOffset(i, nextOffset, ndOffset) {
				// Managed to insert nd between prev and next, so update the next
				// node's prev link and go to the next level.
				next.casPrevOffset(i, prevOffset, ndOffset)
				break
			}

			// CAS failed. We need to recompute prev and next. It is unlikely to
			// be helpful to try to use a different level as we redo the search,
			// because it is unlikely that lots of nodes are inserted between prev
			// and next.
			prev, next, found = s.findSpliceForLevel(key, i, prev)
			if found {
				if i != 0 {
					panic("how can another thread have inserted a node at a non-base level?")
				}

				return ErrRecordExists
			}
			invalidateSplice = true
		}
	}

	// If we had to recompute the splice for a level, invalidate the entire
	// cached splice.
	if invalidateSplice {
		ins.height = 0
	} else {
		// The splice was valid. We inserted a node between spl[i].prev and
		// spl[i].next. Optimistically update spl[i].prev for use in a subsequent
		// call to add.
		for i := uint(0); i < height; i++ {
			ins.spl[i].prev = nd
		}
	}

	return nil
}

func (s *Skiplist) newNode(key base.InternalKey, value base.Value) (nd *node, height uint, err error) {
	height = s.randomHeight()
	nd, err = newNode(s.arena, height, key, value)
	if err != nil {
		return
	}

	// Try to increase s.height via CAS.
	listHeight := s.Height()
	for height > listHeight {
		if s.height.CompareAndSwap(
			arch.UintToArchSize(listHeight),
			arch.UintToArchSize(height),
		) {
			// Successfully increased skiplist.height.
			break
		}

		listHeight = s.Height()
	}

	return
}

func (s *Skiplist) randomHeight() uint {
	rnd := fastrand.Uint32()

	h := uint(1)
	for h < maxHeight && rnd <= probabilities[h] {
		h++
	}

	return h
}

func (s *Skiplist) findSplice(key base.InternalKey, ins *Inserter) (found bool) {
	listHeight := s.Height()
	var level int

	prev := s.head
	if ins.height < listHeight {
		// Our cached height is less than the list height, which means there were
		// inserts that increased the height of the list. Recompute the splice from
		// scratch.
		ins.height = listHeight
		level = int(ins.height)
	} else {
		// Our cached height is equal to the list height.
		for ; level < int(listHeight); level++ {
			spl := &ins.spl[level]
			if s.getNext(spl.prev, level) != spl.next {
				// One or more nodes have been inserted between the splice at this
				// level.
				continue
			}
			if spl.prev != s.head && !s.keyIsAfterNode(spl.prev, key) {
				// Key lies before splice.
				level = int(listHeight)
				break
			}
			if spl.next != s.tail && s.keyIsAfterNode(spl.next, key) {
				// Key lies after splice.
				level = int(listHeight)
				break
			}
			// The splice brackets the key!
			prev = spl.prev
			break
		}
	}

	for level = level - 1; level >= 0; level-- {
		var next *node
		prev, next, found = s.findSpliceForLevel(key, level, prev)
		if next == nil {
			next = s.tail
		}
		ins.spl[level].init(prev, next)
	}

	return
}

func (s *Skiplist) findSpliceForLevel(
	key base.InternalKey, level int, start *node,
) (prev, next *node, found bool) {
	prev = start

	for {
		// Assume prev.key < key.
		next = s.getNext(prev, level)
		if next == s.tail {
			// Tail node, so done.
			break
		}

		nextKey := next.getKey(s.arena)
		cmp := s.compareKeys(key, nextKey, next.keyEpoch)
		if cmp < 0 {
			// We are done for this level, since prev.key < key < next.key.
			break
		}
		if cmp == 0 {
			// Full internal-key equality.
			found = true
			break
		}

		// Keep moving right on this level.
		prev = next
	}

	return
}

func (s *Skiplist) keyIsAfterNode(nd *node, key base.InternalKey) bool {
	return s.compareKeys(key, nd.getKey(s.arena), nd.keyEpoch) > 0
}

// compareKeys orders key against (nextUserKey, nextEpoch) the same way two
// encoded internal keys would compare: by user key, then by epoch descending
// for equal user keys (so a larger epoch is "less", i.e. visited first in
// ascending order).
func (s *Skiplist) compareKeys(key base.InternalKey, nextUserKey []byte, nextEpoch base.Epoch) int {
	if c := s.cmp(key.UserKey, nextUserKey); c != 0 {
		return c
	}
	switch {
	case key.Epoch > nextEpoch:
		return -1
	case key.Epoch < nextEpoch:
		return 1
	default:
		return 0
	}
}

func (s *Skiplist) getNext(nd *node, h int) *node {
	offset := nd.tower[h].nextOffset.Load()
	return (*node)(s.arena.GetPointer(uint(offset)))
}

func (s *Skiplist) getPrev(nd *node, h int) *node {
	offset := nd.tower[h].prevOffset.Load()
	return (*node)(s.arena.GetPointer(uint(offset)))
}
