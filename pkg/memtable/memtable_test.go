package memtable

import (
	"context"
	"sync"
	"testing"

	"github.com/ncw/directio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hummock/internal/base"
	"hummock/internal/compare"
)

func noopFlush(*MemTable, *sync.WaitGroup) {}

func TestMemtableFlushesWhenFull(t *testing.T) {
	var err error
	m := New(directio.BlockSize, base.Epoch(1), noopFlush)

	for i := 0; i < 4096; i++ {
		kv := base.InternalKV{
			Key:   base.InternalKey{UserKey: []byte{byte(i >> 8), byte(i)}, Epoch: base.Epoch(i)},
			Value: base.PutValue([]byte{1, 0, 1, 0, 1, 0, 1}),
		}
		err = m.Set(kv)
		if err != nil {
			break
		}
	}

	assert.ErrorIs(t, err, ErrMemtableFlushed)
}

func TestMemtableDuplicateKeyRejected(t *testing.T) {
	m := New(directio.BlockSize, base.Epoch(1), noopFlush)
	kv := base.InternalKV{
		Key:   base.InternalKey{UserKey: []byte("k"), Epoch: 5},
		Value: base.PutValue([]byte("v")),
	}
	require.NoError(t, m.Set(kv))
	assert.ErrorIs(t, m.Set(kv), ErrRecordExists)
}

func TestMemtableIterReflectsWrites(t *testing.T) {
	ctx := context.Background()
	m := New(directio.BlockSize, base.Epoch(1), noopFlush)

	require.NoError(t, m.Set(base.InternalKV{Key: base.InternalKey{UserKey: []byte("b"), Epoch: 1}, Value: base.PutValue([]byte("vb"))}))
	require.NoError(t, m.Set(base.InternalKV{Key: base.InternalKey{UserKey: []byte("a"), Epoch: 1}, Value: base.PutValue([]byte("va"))}))

	it := m.NewIter(compare.Forward)
	require.NoError(t, it.Rewind(ctx))

	var got []string
	for it.IsValid() {
		got = append(got, string(base.UserKey(it.Key())))
		require.NoError(t, it.Next(ctx))
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
