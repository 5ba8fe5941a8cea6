// Package batchmanager orchestrates the execution of batches against the
// active memtable: keeping a record of latches maintained on specific keys
// and key ranges is a future concern, but ordering and atomicity of a
// batch's own writes is this package's job today.
package batchmanager

import (
	"errors"
	"fmt"
	"sync"

	"hummock/internal/base"
	"hummock/pkg/batch"
	"hummock/pkg/memtable"
)

// BatchManager serializes batch application against the active memtable so
// that every operation in a batch is written under the same epoch, making
// the whole batch atomic from the point of view of a reader's snapshot.
type BatchManager struct {
	mu       sync.Mutex
	memtable *memtable.MemTable
	epoch    base.Epoch
}

func New(memtable *memtable.MemTable, epoch base.Epoch) *BatchManager {
	return &BatchManager{memtable: memtable, epoch: epoch}
}

// SetMemtable installs a new active memtable, used after a rotation.
func (bm *BatchManager) SetMemtable(m *memtable.MemTable) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.memtable = m
}

// Execute applies every operation in b to the active memtable under a
// single, freshly allocated epoch.
func (bm *BatchManager) Execute(b *batch.Batch) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	bm.epoch++
	epoch := bm.epoch

	for _, op := range b.Ops() {
		var value base.Value
		switch op.Kind {
		case batch.KindSet:
			value = base.PutValue(op.Value)
		case batch.KindDelete:
			value = base.DeleteValue()
		default:
			return fmt.Errorf("batchmanager: unknown op kind %d", op.Kind)
		}

		kv := base.InternalKV{
			Key:   base.InternalKey{UserKey: op.UserKey, Epoch: epoch},
			Value: value,
		}
		if err := bm.memtable.Set(kv); err != nil {
			if errors.Is(err, memtable.ErrMemtableFlushed) {
				return err
			}
			return fmt.Errorf("batchmanager: apply op for key %q: %w", op.UserKey, err)
		}
	}
	return nil
}
