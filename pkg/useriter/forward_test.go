package useriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
	"hummock/pkg/merge"
)

func mergedForward(t *testing.T, sources ...*sliceSource) iterator.SourceIterator {
	t.Helper()
	srcs := make([]iterator.SourceIterator, len(sources))
	for i, s := range sources {
		srcs[i] = s
	}
	return merge.New(srcs, compare.DefaultCompare, compare.Forward)
}

func TestForwardSingleVersion(t *testing.T) {
	ctx := context.Background()
	s := newSliceSource(false, put("k1", 100, "v1"), put("k2", 100, "v2"), put("k3", 100, "v3"))
	it := NewForward(mergedForward(t, s), unbounded(), base.EpochMax)
	require.NoError(t, it.Rewind(ctx))

	keys, vals := drainForward(ctx, it)
	assert.Equal(t, []string{"k1", "k2", "k3"}, keys)
	assert.Equal(t, []string{"v1", "v2", "v3"}, vals)
}

func TestForwardTombstoneMasking(t *testing.T) {
	ctx := context.Background()
	s := newSliceSource(false, put("k", 100, "v0"), del("k", 200))
	it := NewForward(mergedForward(t, s), unbounded(), base.EpochMax)
	require.NoError(t, it.Rewind(ctx))
	assert.False(t, it.IsValid())
}

func TestForwardSnapshotVisibility(t *testing.T) {
	ctx := context.Background()
	s := newSliceSource(false, put("k", 100, "old"), put("k", 200, "new"))
	it := NewForward(mergedForward(t, s), unbounded(), base.Epoch(100))
	require.NoError(t, it.Rewind(ctx))
	require.True(t, it.IsValid())
	assert.Equal(t, "old", string(it.Value()))
}

func TestForwardRangeInclusive(t *testing.T) {
	ctx := context.Background()
	var recs []record
	mk := func(i int) string { return "k" + string(rune('0'+i)) }
	for i := 0; i <= 8; i++ {
		recs = append(recs, put(mk(i), 100, "v"+mk(i)))
	}
	recs = append(recs, del(mk(2), 200))
	recs = append(recs, del(mk(7), 200))
	s := newSliceSource(false, recs...)

	kr := KeyRange{
		Lower: Bound{Kind: Included, Key: []byte("k2")},
		Upper: Bound{Kind: Included, Key: []byte("k7")},
	}
	it := NewForward(mergedForward(t, s), kr, base.EpochMax)
	require.NoError(t, it.Rewind(ctx))
	keys, _ := drainForward(ctx, it)
	assert.Equal(t, []string{"k3", "k4", "k5", "k6"}, keys)
}

// Forward/reverse duality: scanning all keys forward and reversing the
// sequence equals scanning all keys backward, for the same snapshot and an
// unbounded range.
func TestForwardReverseDuality(t *testing.T) {
	ctx := context.Background()
	var recs []record
	mk := func(i int) string { return "k" + string(rune('0'+i)) }
	for i := 0; i <= 8; i++ {
		recs = append(recs, put(mk(i), 100, "v"+mk(i)))
	}
	recs = append(recs, del(mk(2), 200))

	fwd := NewForward(mergedForward(t, newSliceSource(false, recs...)), unbounded(), base.EpochMax)
	require.NoError(t, fwd.Rewind(ctx))
	fwdKeys, _ := drainForward(ctx, fwd)

	rev := NewReverse(mergedReverse(t, newSliceSource(true, recs...)), unbounded(), base.EpochMax)
	require.NoError(t, rev.Rewind(ctx))
	revKeys, _ := drainReverse(ctx, rev)

	reversed := make([]string, len(fwdKeys))
	for i, k := range fwdKeys {
		reversed[len(fwdKeys)-1-i] = k
	}
	assert.Equal(t, reversed, revKeys)
}
