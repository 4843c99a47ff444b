// Package mm implements VeridianOS's FrameAllocator: a hybrid bitmap+buddy
// physical-frame allocator with NUMA-local pools and reserved-region
// tracking.
//
// The hybrid split (bitmap below a configurable threshold, buddy at or
// above it) mirrors the Go runtime's own split between small-object size
// classes and large-span allocation (see mcentral/mheap in the reference
// runtime sources), adapted here to whole 4 KiB frames instead of
// sub-page objects.
package mm

import "fmt"

// PageSize is the fixed frame size, 4 KiB, matching every supported
// architecture's base page size.
const PageSize = 4096

// FrameAddr is a physical address, always a multiple of PageSize for any
// value that identifies a PhysicalFrame.
type FrameAddr uint64

// Frame returns the frame index (FrameAddr / PageSize).
func (a FrameAddr) Frame() uint64 { return uint64(a) / PageSize }

// FrameRef identifies a contiguous run of frames returned by the
// allocator: Base is the physical address of the first frame, Count is
// the number of frames in the run.
type FrameRef struct {
	Base  FrameAddr
	Count uint64
}

// End returns the address one byte past the last frame in the run.
func (f FrameRef) End() FrameAddr { return f.Base + FrameAddr(f.Count*PageSize) }

func (f FrameRef) String() string {
	return fmt.Sprintf("FrameRef{base=%#x count=%d}", uint64(f.Base), f.Count)
}

// RegionKind classifies a ReservedRegion, per spec.md §3.
type RegionKind uint8

const (
	RegionBIOS RegionKind = iota
	RegionKernel
	RegionACPI
	RegionMMIO
	RegionBootAlloc
)

func (k RegionKind) String() string {
	switch k {
	case RegionBIOS:
		return "BIOS"
	case RegionKernel:
		return "Kernel"
	case RegionACPI:
		return "ACPI"
	case RegionMMIO:
		return "MMIO"
	case RegionBootAlloc:
		return "BootAlloc"
	default:
		return "Unknown"
	}
}

// ReservedRegion is a contiguous physical range withheld from allocation.
// Reserved regions are disjoint and no allocated frame may overlap one;
// Allocator.Reserve enforces this at boot time.
type ReservedRegion struct {
	StartFrame  uint64
	EndFrame    uint64 // exclusive
	Kind        RegionKind
	Description string
}

func (r ReservedRegion) overlaps(start, end uint64) bool {
	return start < r.EndFrame && r.StartFrame < end
}

// contains reports whether the single frame index f falls within the
// region.
func (r ReservedRegion) contains(f uint64) bool {
	return f >= r.StartFrame && f < r.EndFrame
}
