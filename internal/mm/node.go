package mm

import "sync"

// chunkFrames is the preferred size, in frames, of a bitmap-backed chunk
// carved out of the buddy allocator to back small (sub-threshold)
// requests. It matches the default hybrid threshold (512 frames = 2
// MiB) so a single chunk is exactly one buddy block at the threshold's
// order. A request larger than chunkFrames gets a chunk big enough to
// hold it, and a node with no free block of chunkFrames gets a chunk of
// its largest free block instead.
const chunkFrames = 512

type bitmapChunk struct {
	base uint64
	bm   *bitmapAllocator
}

type frameRange struct{ start, end uint64 }

// HybridAllocator is the per-NUMA-node allocator: one buddyAllocator owns
// the node's entire non-reserved frame range, and bitmap-backed chunks
// are carved from it on demand to serve sub-threshold requests cheaply,
// the way a slab allocator sits atop a page allocator. A chunk is
// retired back to the buddy pool once every frame within it is free
// again.
//
// This resolves an ambiguity spec.md leaves open: it describes "bitmap
// for small, buddy for large" as if they were independent pools over the
// same address range, which can't be made coherent without one of them
// being authoritative. Layering the bitmap on top of buddy-owned chunks
// keeps a single source of truth for "is this frame free" while still
// giving small allocations the O(1)-with-a-good-hint bitmap fast path.
//
// Reserved ranges (boot-time only, via Reserve) are simply excluded from
// every free list the buddy allocator is seeded with, so a reserved
// frame can never appear in an allocation: invariant #1 in spec.md §8.
type HybridAllocator struct {
	mu        sync.Mutex
	buddy     *buddyAllocator
	chunks    []*bitmapChunk
	orders    map[uint64]int // buddy-allocated base frame -> order, for dealloc
	threshold uint64
	numFrames uint64
	reserved  []frameRange
	sealed    bool
}

// NewHybridAllocator constructs a node-local allocator over numFrames
// frames starting at frame index zero (the caller translates to/from
// physical addresses relative to the node's base address). threshold is
// the frame count at or above which requests route to the buddy path
// directly.
func NewHybridAllocator(numFrames, threshold uint64) *HybridAllocator {
	return &HybridAllocator{
		buddy:     newBuddyAllocator(numFrames),
		orders:    make(map[uint64]int),
		threshold: threshold,
		numFrames: numFrames,
	}
}

// reserve withholds [start, end) from allocation. Must be called before
// any Allocate call, per spec.md §4.1 ("boot-time only").
func (h *HybridAllocator) reserve(start, end uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		panic("mm: reserve called after allocation has begun")
	}
	h.reserved = append(h.reserved, frameRange{start, end})
}

// ensureSeeded lazily decomposes the frame range minus every reserved
// sub-range into maximal power-of-two blocks and seeds the buddy free
// lists. Deferred until first use so Reserve can be called any number
// of times beforehand.
func (h *HybridAllocator) ensureSeeded() {
	if h.sealed {
		return
	}
	h.sealed = true

	free := h.freeRangesLocked()
	for _, r := range free {
		base := r.start
		remaining := r.end - r.start
		for remaining > 0 {
			order := MaxOrder
			for order > 0 && (1<<uint(order)) > remaining {
				order--
			}
			// also cap order so the block stays aligned to its own
			// size, matching classic buddy-allocator seeding.
			for order > 0 && base%(1<<uint(order)) != 0 {
				order--
			}
			h.buddy.seed(order, base)
			step := uint64(1) << uint(order)
			base += step
			remaining -= step
		}
	}
}

// freeRangesLocked computes [0,numFrames) minus the reserved ranges,
// sorted and merged.
func (h *HybridAllocator) freeRangesLocked() []frameRange {
	if len(h.reserved) == 0 {
		return []frameRange{{0, h.numFrames}}
	}
	marks := make([]bool, h.numFrames)
	for _, r := range h.reserved {
		s, e := r.start, r.end
		if e > h.numFrames {
			e = h.numFrames
		}
		for f := s; f < e; f++ {
			marks[f] = true
		}
	}
	var ranges []frameRange
	var start uint64
	inFree := false
	for f := uint64(0); f < h.numFrames; f++ {
		if !marks[f] {
			if !inFree {
				start = f
				inFree = true
			}
		} else if inFree {
			ranges = append(ranges, frameRange{start, f})
			inFree = false
		}
	}
	if inFree {
		ranges = append(ranges, frameRange{start, h.numFrames})
	}
	return ranges
}

// isReserved reports whether frame f falls within any reserved range;
// used by the top-level Allocator to validate invariant #1 in tests.
func (h *HybridAllocator) isReserved(f uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.reserved {
		if f >= r.start && f < r.end {
			return true
		}
	}
	return false
}

// allocateSmall serves a sub-threshold request from an existing or
// freshly-carved bitmap chunk.
func (h *HybridAllocator) allocateSmall(count uint64) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureSeeded()

	for _, c := range h.chunks {
		if f, ok := c.bm.allocate(count); ok {
			return c.base + f, true
		}
	}

	// no existing chunk has room; carve a fresh one from buddy.
	want := uint64(chunkFrames)
	if count > want {
		want = count
	}
	start, order, ok := h.buddy.allocate(want)
	if !ok {
		// no free block of a full chunk (a small or fragmented node):
		// carve the largest free block that can still hold count.
		lf := h.buddy.largestFreeBlock()
		if lf < count {
			return 0, false
		}
		if start, order, ok = h.buddy.allocate(lf); !ok {
			return 0, false
		}
	}
	size := uint64(1) << uint(order)
	c := &bitmapChunk{base: start, bm: newBitmapAllocator(size)}
	h.chunks = append(h.chunks, c)
	f, ok := c.bm.allocate(count)
	if !ok {
		// shouldn't happen: a fresh chunk is never smaller than count.
		return 0, false
	}
	return c.base + f, true
}

// allocateLarge serves a threshold-or-above request directly from buddy.
// It returns the full allocated run, which may be larger than requested
// (buddy blocks are powers of two); callers that need the exact count
// track it themselves and only use the prefix they asked for.
func (h *HybridAllocator) allocateLarge(count uint64) (start uint64, allocated uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureSeeded()
	s, order, ok := h.buddy.allocate(count)
	if !ok {
		return 0, 0, false
	}
	h.orders[s] = order
	return s, 1 << uint(order), true
}

// allocateAligned serves a request (of any size) that needs a specific
// frame alignment, always via the buddy path per spec.md §4.1.
func (h *HybridAllocator) allocateAligned(count, alignFrames uint64) (start uint64, allocated uint64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureSeeded()
	s, order, ok := h.buddy.allocateAligned(count, alignFrames)
	if !ok {
		return 0, 0, false
	}
	h.orders[s] = order
	return s, 1 << uint(order), true
}

// deallocate returns count frames starting at start. It figures out
// whether the range belongs to a bitmap chunk or a direct buddy
// allocation and routes accordingly, retiring a chunk back to buddy once
// it's entirely free.
func (h *HybridAllocator) deallocate(start, count uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, c := range h.chunks {
		chunkEnd := c.base + c.bm.numFrames
		if start >= c.base && start < chunkEnd {
			c.bm.deallocate(start-c.base, count)
			if c.bm.free() == c.bm.numFrames {
				h.chunks = append(h.chunks[:i:i], h.chunks[i+1:]...)
				order, ok := orderForSize(c.bm.numFrames)
				if !ok {
					panic("mm: internal: chunk size is not a power of two")
				}
				h.buddy.deallocate(c.base, order)
			}
			return
		}
	}

	order, ok := h.orders[start]
	if !ok {
		// double-free or corruption: neither a tracked chunk nor a
		// tracked buddy allocation claims this start frame.
		panic("mm: deallocate: unknown or already-freed frame range")
	}
	delete(h.orders, start)
	h.buddy.deallocate(start, order)
}

func orderForSize(size uint64) (int, bool) {
	if size == 0 || size&(size-1) != 0 {
		return 0, false
	}
	order := 0
	for size > 1 {
		size >>= 1
		order++
	}
	return order, true
}

func (h *HybridAllocator) free() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sealed {
		// buddy lists are seeded lazily; count what seeding will produce
		// without sealing, so Reserve stays available.
		view := &HybridAllocator{buddy: newBuddyAllocator(h.numFrames), numFrames: h.numFrames, reserved: h.reserved}
		view.ensureSeeded()
		return view.buddy.free()
	}
	total := h.buddy.free()
	for _, c := range h.chunks {
		total += c.bm.free()
	}
	return total
}

func (h *HybridAllocator) largestFreeBlock() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.sealed {
		view := &HybridAllocator{buddy: newBuddyAllocator(h.numFrames), numFrames: h.numFrames, reserved: h.reserved}
		view.ensureSeeded()
		return view.buddy.largestFreeBlock()
	}
	largest := h.buddy.largestFreeBlock()
	for _, c := range h.chunks {
		if f := c.bm.free(); f > largest {
			// a chunk's free bits aren't necessarily contiguous; this is
			// a conservative (upper-bound) estimate within the chunk,
			// consistent with largest_free_block being advisory.
			largest = f
		}
	}
	return largest
}

// NumaNode is a logical memory locality domain: its own HybridAllocator,
// a distance map to peer nodes, and the set of CPUs with affinity to it.
type NumaNode struct {
	ID        int
	BaseFrame uint64
	Alloc     *HybridAllocator
	Distances map[int]int // peer node id -> relative distance, lower is closer
	CPUs      map[int]struct{}
	// Backing is an optional simulated RAM region used only so
	// AllocateZeroed has somewhere real to write zeros in tests and the
	// demo boot glue; nil in any deployment where frames are real
	// memory-mapped pages written to by arch-specific code outside this
	// module's scope.
	Backing []byte
}
