// Package batch groups a sequence of writes so they land in the memtable
// under a single epoch, giving them the same atomicity guarantee a
// transaction would: either every operation in the batch becomes visible to
// a snapshot or none of them do.
//
// Both RocksDB and Pebble batch every write, even a lone Set, and this
// module does the same rather than special-casing single-operation writes.
package batch

// Kind distinguishes a live write from a tombstone within a batch.
type Kind int

const (
	KindSet Kind = iota
	KindDelete
)

// Op is one write queued in a Batch.
type Op struct {
	Kind    Kind
	UserKey []byte
	Value   []byte
}

// Batch accumulates writes to be applied atomically under one epoch.
type Batch struct {
	ops []Op
}

// New returns an empty batch.
func New() *Batch {
	return &Batch{}
}

// Set queues a Put of value at userKey.
func (b *Batch) Set(userKey, value []byte) {
	b.ops = append(b.ops, Op{Kind: KindSet, UserKey: userKey, Value: value})
}

// Delete queues a tombstone at userKey.
func (b *Batch) Delete(userKey []byte) {
	b.ops = append(b.ops, Op{Kind: KindDelete, UserKey: userKey})
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the queued operations in submission order.
func (b *Batch) Ops() []Op {
	return b.ops
}
