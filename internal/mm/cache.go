package mm

import "sync"

// cpuCache is a small per-CPU slab of pre-allocated single frames,
// consulted before the node lock on the fast path (spec.md §5: "per-CPU
// cache of pre-allocated frames"). spec.md §9 leaves the eviction policy
// as an open question; the policy chosen here (and documented in
// DESIGN.md) is: refill by pulling refillBatch frames from the node
// allocator when empty, and return half the cache to the node pool once
// its size exceeds 2x refillBatch, keeping steady-state churn low while
// bounding how many frames a single idle CPU can hoard.
type cpuCache struct {
	mu          sync.Mutex
	frames      []uint64
	refillBatch uint64
}

const defaultRefillBatch = 16

func newCPUCache() *cpuCache {
	return &cpuCache{refillBatch: defaultRefillBatch}
}

// take returns a single cached frame, or false if the cache is empty
// (the caller falls back to the node allocator and may choose to
// refill).
func (c *cpuCache) take() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return 0, false
	}
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return f, true
}

// refill tops the cache up using node, returning how many frames were
// actually added.
func (c *cpuCache) refill(node *HybridAllocator) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var added uint64
	for added < c.refillBatch {
		f, ok := node.allocateSmall(1)
		if !ok {
			break
		}
		c.frames = append(c.frames, f)
		added++
	}
	return added
}

// give returns a single frame to the cache, evicting half the cache back
// to node if the cache has grown past 2x its refill batch.
func (c *cpuCache) give(node *HybridAllocator, f uint64) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	var evict []uint64
	if uint64(len(c.frames)) > 2*c.refillBatch {
		half := uint64(len(c.frames)) / 2
		evict = append(evict, c.frames[:half]...)
		c.frames = c.frames[half:]
	}
	c.mu.Unlock()

	for _, ef := range evict {
		node.deallocate(ef, 1)
	}
}
