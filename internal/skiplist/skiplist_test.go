package skiplist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hummock/internal/arena"
	"hummock/internal/base"
	"hummock/internal/compare"
)

// TestNodeArenaEnd tests allocating a node at the boundary of an arena. In Go
// 1.14 when the race detector is running, Go will also perform some pointer
// alignment checks. It will detect alignment issues, for example #667 where a
// node's memory would straddle the arena boundary, with unused regions of the
// node struct dipping into unallocated memory. The test runs in every build;
// the alignment checks themselves happen only under the race detector.
func TestNodeArenaEnd(t *testing.T) {
	ikey := base.InternalKey{UserKey: []byte("a")}
	val := base.PutValue([]byte("b"))

	// Rather than hardcode an arena size at just the right size, try
	// allocating using successively larger arena sizes until we allocate
	// successfully. The prior attempt will have exercised the right code
	// path.
	for i := uint(1); i < 256; i++ {
		a := arena.NewArena(i)
		_, err := newNode(a, 1, ikey, val)
		if err == nil {
			// We reached an arena size big enough to allocate a node.
			// If there's an issue at the boundary, the race detector would
			// have found it by now.
			t.Log(i)
			break
		}
		require.Equal(t, ErrArenaFull, err)
	}
}

func TestSkiplistAddRejectsDuplicate(t *testing.T) {
	skl := NewSkiplist(arena.NewArena(64<<10), compare.DefaultCompare)

	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("b"), Epoch: 1}, base.PutValue([]byte("vb"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 1}, base.PutValue([]byte("va"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("c"), Epoch: 1}, base.PutValue([]byte("vc"))))

	require.ErrorIs(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 1}, base.PutValue([]byte("va2"))), ErrRecordExists)
}

func TestSkiplistForwardIterationOrder(t *testing.T) {
	ctx := context.Background()
	skl := NewSkiplist(arena.NewArena(64<<10), compare.DefaultCompare)
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 2}, base.PutValue([]byte("new"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 1}, base.PutValue([]byte("old"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("b"), Epoch: 1}, base.PutValue([]byte("vb"))))

	it := skl.NewIter(compare.Forward)
	require.NoError(t, it.Rewind(ctx))

	var got []string
	for it.IsValid() {
		got = append(got, string(base.UserKey(it.Key())))
		require.NoError(t, it.Next(ctx))
	}
	// Ascending user key, and within "a" the newer epoch (2) sorts first.
	require.Equal(t, []string{"a", "a", "b"}, got)

	it2 := skl.NewIter(compare.Forward)
	require.NoError(t, it2.Rewind(ctx))
	require.Equal(t, base.Epoch(2), base.DecodeEpoch(it2.Key()))
}

func TestSkiplistReverseIterationOrder(t *testing.T) {
	ctx := context.Background()
	skl := NewSkiplist(arena.NewArena(64<<10), compare.DefaultCompare)
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 1}, base.PutValue([]byte("va"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("b"), Epoch: 1}, base.PutValue([]byte("vb"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("c"), Epoch: 1}, base.PutValue([]byte("vc"))))

	it := skl.NewIter(compare.Backward)
	require.NoError(t, it.Rewind(ctx))

	var got []string
	for it.IsValid() {
		got = append(got, string(base.UserKey(it.Key())))
		require.NoError(t, it.Next(ctx))
	}
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func TestSkiplistSeek(t *testing.T) {
	ctx := context.Background()
	skl := NewSkiplist(arena.NewArena(64<<10), compare.DefaultCompare)
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("a"), Epoch: 1}, base.PutValue([]byte("va"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("c"), Epoch: 1}, base.PutValue([]byte("vc"))))
	require.NoError(t, skl.Add(base.InternalKey{UserKey: []byte("e"), Epoch: 1}, base.PutValue([]byte("ve"))))

	fwd := skl.NewIter(compare.Forward)
	require.NoError(t, fwd.Seek(ctx, base.MakeSearchKey([]byte("b")).Encode()))
	require.True(t, fwd.IsValid())
	require.Equal(t, "c", string(base.UserKey(fwd.Key())))

	rev := skl.NewIter(compare.Backward)
	require.NoError(t, rev.Seek(ctx, base.MakeReverseSentinelKey([]byte("d")).Encode()))
	require.True(t, rev.IsValid())
	require.Equal(t, "c", string(base.UserKey(rev.Key())))
}
