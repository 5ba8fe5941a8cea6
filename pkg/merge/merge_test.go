package merge

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hummock/internal/base"
	"hummock/internal/compare"
	"hummock/pkg/iterator"
)

// fakeSource is a minimal in-memory SourceIterator fixture local to this
// package: sorted ascending by encoded internal key, walked forward or
// backward depending on back.
type fakeSource struct {
	keys [][]byte
	vals []base.Value
	back bool

	pos   int
	valid bool
	err   error
}

var _ iterator.SourceIterator = (*fakeSource)(nil)

func newFakeSource(back bool, pairs ...[2]string) *fakeSource {
	s := &fakeSource{back: back}
	for _, p := range pairs {
		uk, epochAndVal := p[0], p[1]
		s.keys = append(s.keys, base.EncodeKey([]byte(uk), base.Epoch(1)))
		s.vals = append(s.vals, base.PutValue([]byte(epochAndVal)))
	}
	sort.Sort(s)
	return s
}

func (s *fakeSource) Len() int      { return len(s.keys) }
func (s *fakeSource) Swap(i, j int) { s.keys[i], s.keys[j] = s.keys[j], s.keys[i]; s.vals[i], s.vals[j] = s.vals[j], s.vals[i] }
func (s *fakeSource) Less(i, j int) bool { return bytes.Compare(s.keys[i], s.keys[j]) < 0 }

func (s *fakeSource) Rewind(context.Context) error {
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

func (s *fakeSource) Seek(_ context.Context, ik []byte) error {
	if s.back {
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

func (s *fakeSource) Next(context.Context) error {
	if s.back {
		s.pos--
	} else {
		s.pos++
	}
	s.valid = s.pos >= 0 && s.pos < len(s.keys)
	return nil
}

func (s *fakeSource) IsValid() bool    { return s.valid }
func (s *fakeSource) Key() []byte      { return s.keys[s.pos] }
func (s *fakeSource) Value() base.Value { return s.vals[s.pos] }
func (s *fakeSource) Error() error     { return s.err }
func (s *fakeSource) Close() error     { return nil }

func userKeys(ctx context.Context, t *testing.T, m *Iterator) []string {
	t.Helper()
	var out []string
	for m.IsValid() {
		out = append(out, string(base.UserKey(m.Key())))
		require.NoError(t, m.Next(ctx))
	}
	return out
}

func TestMergeInterleavesForward(t *testing.T) {
	ctx := context.Background()
	s0 := newFakeSource(false, [2]string{"a", "va"}, [2]string{"c", "vc"}, [2]string{"e", "ve"})
	s1 := newFakeSource(false, [2]string{"b", "vb"}, [2]string{"d", "vd"})

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Forward)
	require.NoError(t, m.Rewind(ctx))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, userKeys(ctx, t, m))
}

func TestMergeInterleavesBackward(t *testing.T) {
	ctx := context.Background()
	s0 := newFakeSource(true, [2]string{"a", "va"}, [2]string{"c", "vc"}, [2]string{"e", "ve"})
	s1 := newFakeSource(true, [2]string{"b", "vb"}, [2]string{"d", "vd"})

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Backward)
	require.NoError(t, m.Rewind(ctx))
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, userKeys(ctx, t, m))
}

func TestMergeSeekLandsOnCorrectSource(t *testing.T) {
	ctx := context.Background()
	s0 := newFakeSource(false, [2]string{"a", "va"}, [2]string{"e", "ve"})
	s1 := newFakeSource(false, [2]string{"c", "vc"}, [2]string{"g", "vg"})

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Forward)
	ik := base.MakeSearchKey([]byte("d")).Encode()
	require.NoError(t, m.Seek(ctx, ik))
	assert.Equal(t, []string{"e", "g"}, userKeys(ctx, t, m))
}

func TestMergeEmptySourceSkipped(t *testing.T) {
	ctx := context.Background()
	s0 := newFakeSource(false)
	s1 := newFakeSource(false, [2]string{"a", "va"})

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Forward)
	require.NoError(t, m.Rewind(ctx))
	assert.Equal(t, []string{"a"}, userKeys(ctx, t, m))
}

func TestMergePropagatesSourceError(t *testing.T) {
	ctx := context.Background()
	s0 := newFakeSource(false, [2]string{"a", "va"})
	s0.err = errors.New("disk read failed")
	// s0 stays valid; rebuild checks Error() before IsValid, so the error
	// alone takes the error path.
	s1 := newFakeSource(false, [2]string{"b", "vb"})

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Forward)
	err := m.Rewind(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, m.Error(), s0.err)
	assert.False(t, m.IsValid())
}

func TestMergeCloseJoinsErrors(t *testing.T) {
	s0 := &closeErrSource{fakeSource: *newFakeSource(false, [2]string{"a", "va"}), closeErr: errors.New("close a failed")}
	s1 := &closeErrSource{fakeSource: *newFakeSource(false, [2]string{"b", "vb"}), closeErr: errors.New("close b failed")}

	m := New([]iterator.SourceIterator{s0, s1}, compare.DefaultCompare, compare.Forward)
	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a failed")
	assert.Contains(t, err.Error(), "close b failed")
}

type closeErrSource struct {
	fakeSource
	closeErr error
}

func (s *closeErrSource) Close() error { return s.closeErr }
