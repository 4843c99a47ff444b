package ipc

import (
	"sync/atomic"

	"github.com/veridian-os/veridiancore/internal/mm"
)

// SharedRegion is a mapping of physical frames granted to one or more
// processes for zero-copy large-message transfer (spec.md §3/§4.3's
// large-message path). It owns the underlying FrameRef for its
// lifetime and returns it to the allocator once the last reference
// drops.
type SharedRegion struct {
	ID     RegionID
	Frames mm.FrameRef
	Perm   Perm

	refcount atomic.Int32
}

func newSharedRegion(id RegionID, frames mm.FrameRef, perm Perm) *SharedRegion {
	r := &SharedRegion{ID: id, Frames: frames, Perm: perm}
	r.refcount.Store(1)
	return r
}

// Bytes returns the region's backing span, or nil if the node the
// region's frames live on was configured without a Backing store.
func (r *SharedRegion) Bytes(alloc *mm.Allocator) []byte {
	return alloc.Bytes(r.Frames)
}

// Size returns the region's length in bytes.
func (r *SharedRegion) Size() uint64 {
	return r.Frames.Count * mm.PageSize
}

// addRef records a new mapping of this region (e.g. a second process
// receiving a large message that references it).
func (r *SharedRegion) addRef() {
	r.refcount.Add(1)
}

// release drops a reference, returning true if this was the last one
// and the region's frames have been freed back to the allocator.
func (r *SharedRegion) release(alloc *mm.Allocator) bool {
	if r.refcount.Add(-1) > 0 {
		return false
	}
	alloc.Deallocate(r.Frames)
	return true
}
