package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchAccumulatesOps(t *testing.T) {
	b := New()
	b.Set([]byte("a"), []byte("va"))
	b.Delete([]byte("b"))

	ops := b.Ops()
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, KindSet, ops[0].Kind)
	assert.Equal(t, KindDelete, ops[1].Kind)
	assert.Equal(t, []byte("va"), ops[0].Value)
}
