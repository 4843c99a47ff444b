package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-os/veridiancore/internal/mm"
)

func TestSharedRegion_ReleaseFreesOnlyAtZeroRefcount(t *testing.T) {
	node := &mm.NumaNode{
		ID:        0,
		BaseFrame: 0,
		Alloc:     mm.NewHybridAllocator(64, mm.DefaultThreshold),
		Distances: map[int]int{0: 0},
		CPUs:      map[int]struct{}{0: {}},
	}
	alloc := mm.NewAllocator(mm.Config{}, []*mm.NumaNode{node})

	frames, err := alloc.Allocate(0, 4)
	require.NoError(t, err)

	r := newSharedRegion(1, frames, PermSend|PermReceive)
	r.addRef()

	assert.False(t, r.release(alloc), "two refs outstanding; first release must not free")
	assert.True(t, r.release(alloc), "last release must free the region's frames")

	again, err := alloc.Allocate(0, 64)
	require.NoError(t, err, "frames must have been returned to the allocator")
	assert.Equal(t, uint64(64), again.Count)
}

func TestSharedRegion_SizeMatchesFrameCount(t *testing.T) {
	r := newSharedRegion(1, mm.FrameRef{Count: 3}, PermReceive)
	assert.Equal(t, uint64(3*mm.PageSize), r.Size())
}
