package mm

import (
	"sort"
	"sync"

	"github.com/veridian-os/veridiancore/internal/logging"
)

// DefaultThreshold is the frame count at or above which requests route
// to the buddy path; spec.md §4.1 calls this out as "a configuration
// knob, not a constant" so test suites can exercise boundary behaviour,
// hence it lives on Config rather than as a bare const.
const DefaultThreshold = 512 // 2 MiB worth of 4 KiB frames

// Config configures a FrameAllocator at boot time, mirroring the
// teacher's functional-options-backed config structs (eventloop.Option /
// resolveOptions) but expressed as a plain struct since every field here
// is a simple boot-time scalar, not a chainable builder knob.
type Config struct {
	// Threshold is the hybrid bitmap/buddy cutover, in frames.
	Threshold uint64
	// Logger receives diagnostic and fatal-bug logging; a disabled
	// logger is used if nil.
	Logger *logging.Logger
}

// Allocator is the FrameAllocator: owns all physical RAM, handing out
// page-aligned frames to every other subsystem. See spec.md §4.1.
type Allocator struct {
	mu        sync.RWMutex
	nodes     []*NumaNode
	cpuToNode map[int]int
	caches    map[int]*cpuCache
	threshold uint64
	log       *logging.Logger
}

// NewAllocator constructs an Allocator over the given NUMA topology.
// Each node's frame range is assumed contiguous starting at its
// BaseFrame; nodes must not overlap. Reserved regions must be installed
// via Reserve before the first Allocate* call on the affected node.
func NewAllocator(cfg Config, nodes []*NumaNode) *Allocator {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Disabled()
	}
	a := &Allocator{
		nodes:     nodes,
		cpuToNode: make(map[int]int),
		caches:    make(map[int]*cpuCache),
		threshold: threshold,
		log:       logging.Sub(log, map[string]any{"subsystem": "mm"}),
	}
	for _, n := range nodes {
		for cpu := range n.CPUs {
			a.cpuToNode[cpu] = n.ID
			a.caches[cpu] = newCPUCache()
		}
	}
	return a
}

func (a *Allocator) nodeByID(id int) *NumaNode {
	for _, n := range a.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// orderedByDistance returns node ids reachable from `from`, nearest
// first, per spec.md §4.1's NUMA fallback policy.
func (a *Allocator) orderedByDistance(from int) []int {
	fromNode := a.nodeByID(from)
	ids := make([]int, 0, len(a.nodes))
	for _, n := range a.nodes {
		ids = append(ids, n.ID)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := 0, 0
		if fromNode != nil {
			di, dj = fromNode.Distances[ids[i]], fromNode.Distances[ids[j]]
		}
		if ids[i] == from {
			di = -1
		}
		if ids[j] == from {
			dj = -1
		}
		return di < dj
	})
	return ids
}

// Reserve withholds a contiguous global frame range from allocation.
// Boot-time only: it must be called, for every affected node, before
// that node serves its first Allocate*.
func (a *Allocator) Reserve(start, end uint64, kind RegionKind, description string) {
	for _, n := range a.nodes {
		nodeEnd := n.BaseFrame + n.Alloc.numFrames
		if start < nodeEnd && n.BaseFrame < end {
			lo, hi := start, end
			if lo < n.BaseFrame {
				lo = n.BaseFrame
			}
			if hi > nodeEnd {
				hi = nodeEnd
			}
			n.Alloc.reserve(lo-n.BaseFrame, hi-n.BaseFrame)
		}
	}
	_ = kind
	_ = description
}

// Allocate hands out count frames local to the calling CPU's node,
// falling back to increasingly distant nodes on local exhaustion.
func (a *Allocator) Allocate(cpu int, count uint64) (FrameRef, error) {
	if count == 0 {
		return FrameRef{}, ErrInvalidArgument
	}
	node := a.cpuToNode[cpu]
	for _, id := range a.orderedByDistance(node) {
		if ref, ok := a.allocateFromNode(cpu, id, count, false); ok {
			return ref, nil
		}
	}
	return FrameRef{}, ErrOutOfMemory
}

// AllocateNUMA allocates from exactly the given node, failing rather
// than falling back if that node is exhausted (spec.md §4.1).
func (a *Allocator) AllocateNUMA(cpu int, count uint64, node int) (FrameRef, error) {
	if count == 0 {
		return FrameRef{}, ErrInvalidArgument
	}
	if a.nodeByID(node) == nil {
		return FrameRef{}, ErrUnknownNode
	}
	if ref, ok := a.allocateFromNode(cpu, node, count, false); ok {
		return ref, nil
	}
	return FrameRef{}, ErrOutOfMemory
}

// AllocateContiguous allocates count frames aligned to `align` frames.
// Alignment requirements larger than an order's natural alignment force
// the buddy path even below the hybrid threshold (spec.md §4.1).
func (a *Allocator) AllocateContiguous(cpu int, count, align uint64) (FrameRef, error) {
	if count == 0 {
		return FrameRef{}, ErrInvalidArgument
	}
	node := a.cpuToNode[cpu]
	anyNodeHadRoom := false
	for _, id := range a.orderedByDistance(node) {
		n := a.nodeByID(id)
		if n.Alloc.free() >= count {
			anyNodeHadRoom = true
		}
		start, allocated, ok := n.Alloc.allocateAligned(count, align)
		if ok {
			return FrameRef{Base: FrameAddr((n.BaseFrame + start) * PageSize), Count: clampCount(allocated, count)}, nil
		}
	}
	if anyNodeHadRoom {
		return FrameRef{}, ErrFragmented
	}
	return FrameRef{}, ErrOutOfMemory
}

// AllocateZeroed allocates count frames and guarantees they read as
// zero, regardless of whether the underlying frames were previously
// freed-and-dirty (spec.md §4.1). The reference allocator has no real
// physical backing store to scrub; in this simulation, zeroing is
// modeled against NumaNode.Backing when the caller has wired one up
// (see the demo in cmd/veridiancore), and is a documented no-op
// otherwise since there's no memory to write to.
func (a *Allocator) AllocateZeroed(cpu int, count uint64) (FrameRef, error) {
	ref, err := a.Allocate(cpu, count)
	if err != nil {
		return FrameRef{}, err
	}
	a.zero(ref)
	return ref, nil
}

func (a *Allocator) zero(ref FrameRef) {
	n := a.nodeForAddr(ref.Base)
	if n == nil || n.Backing == nil {
		return
	}
	localStart := ref.Base.Frame() - n.BaseFrame
	off := localStart * PageSize
	length := ref.Count * PageSize
	if off+length > uint64(len(n.Backing)) {
		length = uint64(len(n.Backing)) - off
	}
	clear(n.Backing[off : off+length])
}

// Bytes returns the backing storage for ref, or nil if the owning node
// has no Backing store configured. Callers (notably internal/ipc's
// zero-copy large-message path) must treat a nil result as "no
// simulated memory available" rather than an error.
func (a *Allocator) Bytes(ref FrameRef) []byte {
	n := a.nodeForAddr(ref.Base)
	if n == nil || n.Backing == nil {
		return nil
	}
	localStart := ref.Base.Frame() - n.BaseFrame
	off := localStart * PageSize
	length := ref.Count * PageSize
	if off+length > uint64(len(n.Backing)) {
		length = uint64(len(n.Backing)) - off
	}
	return n.Backing[off : off+length]
}

func (a *Allocator) nodeForAddr(base FrameAddr) *NumaNode {
	f := base.Frame()
	for _, n := range a.nodes {
		if f >= n.BaseFrame && f < n.BaseFrame+n.Alloc.numFrames {
			return n
		}
	}
	return nil
}

// allocateFromNode routes a request below/above threshold to the
// bitmap/buddy path, consulting the per-CPU cache first for single-frame
// requests.
func (a *Allocator) allocateFromNode(cpu, nodeID int, count uint64, _ bool) (FrameRef, bool) {
	n := a.nodeByID(nodeID)
	if n == nil {
		return FrameRef{}, false
	}

	if count == 1 {
		// a CPU's cache holds only frames of its own node.
		if c, ok := a.caches[cpu]; ok && a.cpuToNode[cpu] == nodeID {
			if f, hit := c.take(); hit {
				return FrameRef{Base: FrameAddr((n.BaseFrame + f) * PageSize), Count: 1}, true
			}
			c.refill(n.Alloc)
			if f, hit := c.take(); hit {
				return FrameRef{Base: FrameAddr((n.BaseFrame + f) * PageSize), Count: 1}, true
			}
		}
	}

	if count < a.threshold {
		if f, ok := n.Alloc.allocateSmall(count); ok {
			return FrameRef{Base: FrameAddr((n.BaseFrame + f) * PageSize), Count: count}, true
		}
		return FrameRef{}, false
	}

	start, allocated, ok := n.Alloc.allocateLarge(count)
	if !ok {
		return FrameRef{}, false
	}
	return FrameRef{Base: FrameAddr((n.BaseFrame + start) * PageSize), Count: clampCount(allocated, count)}, true
}

func clampCount(allocated, requested uint64) uint64 {
	// buddy blocks round up to a power of two; callers are entitled to
	// exactly what they asked for, the remainder stays allocated to
	// them too (it's still their frame run to free as one unit) but is
	// reported at the requested size so accounting matches what the
	// caller believes they own. Dealloc always uses the full run.
	if allocated < requested {
		return allocated
	}
	return requested
}

// Deallocate returns a previously-allocated run to its owning node. The
// caller asserts ownership; a double-free is detected when the frame
// range isn't tracked as allocated and is treated as a fatal bug per
// spec.md §4.1/§7.
func (a *Allocator) Deallocate(ref FrameRef) {
	n := a.nodeForAddr(ref.Base)
	if n == nil {
		logging.Fatal(a.log, "deallocate: frame range not owned by any node", map[string]any{
			"base": uint64(ref.Base), "count": ref.Count,
		})
		return
	}
	local := ref.Base.Frame() - n.BaseFrame

	// cache a single returned frame in the per-CPU cache of a CPU on the
	// owning node (the first one found); beyond single frames, go
	// straight to the node allocator.
	if ref.Count == 1 {
		for cpu, nodeID := range a.cpuToNode {
			if nodeID == n.ID {
				if c, ok := a.caches[cpu]; ok {
					c.give(n.Alloc, local)
					return
				}
				break
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Fatal(a.log, "deallocate: corruption detected", map[string]any{
				"base": uint64(ref.Base), "count": ref.Count, "panic": r,
			})
		}
	}()
	n.Alloc.deallocate(local, ref.Count)
}

// FreeFrames sums free frames across every NUMA node.
func (a *Allocator) FreeFrames() uint64 {
	var total uint64
	for _, n := range a.nodes {
		total += n.Alloc.free()
	}
	for _, c := range a.caches {
		c.mu.Lock()
		total += uint64(len(c.frames))
		c.mu.Unlock()
	}
	return total
}

// TotalFrames sums every node's frame count.
func (a *Allocator) TotalFrames() uint64 {
	var total uint64
	for _, n := range a.nodes {
		total += n.Alloc.numFrames
	}
	return total
}

// LargestFreeBlock returns the largest contiguous free block across all
// nodes.
func (a *Allocator) LargestFreeBlock() uint64 {
	var largest uint64
	for _, n := range a.nodes {
		if f := n.Alloc.largestFreeBlock(); f > largest {
			largest = f
		}
	}
	return largest
}
