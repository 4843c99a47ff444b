package mm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUCache_RefillThenTake(t *testing.T) {
	h := NewHybridAllocator(4096, 512)
	c := newCPUCache()

	added := c.refill(h)
	assert.Equal(t, c.refillBatch, added)

	f, ok := c.take()
	require.True(t, ok)
	assert.Less(t, f, uint64(4096))
}

func TestCPUCache_GiveEvictsHalfPastDoubleBatch(t *testing.T) {
	h := NewHybridAllocator(4096, 512)
	c := newCPUCache()

	// give() must only ever receive frames the caller legitimately owns,
	// so allocate each one from the node first.
	n := 2*c.refillBatch + 1
	frames := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		f, ok := h.allocateSmall(1)
		require.True(t, ok)
		frames[i] = f
	}
	freeBefore := h.free()

	for _, f := range frames {
		c.give(h, f)
	}
	assert.LessOrEqual(t, uint64(len(c.frames)), 2*c.refillBatch)
	assert.Greater(t, h.free(), freeBefore, "the last give() must have evicted some frames back to the node")
}

func TestCPUCache_TakeOnEmptyReportsMiss(t *testing.T) {
	c := newCPUCache()
	_, ok := c.take()
	assert.False(t, ok)
}
