package mm

import "errors"

// Recoverable error sentinels, returned to callers per spec.md §4.1 /
// §7. Compared with errors.Is, following the teacher's sentinel-error
// style (eventloop.ErrLoopAlreadyRunning and friends).
var (
	// ErrOutOfMemory is returned when the allocator cannot satisfy a
	// request; it is always recoverable.
	ErrOutOfMemory = errors.New("mm: out of memory")

	// ErrFragmented is returned by AllocateContiguous when enough total
	// free frames exist but no single free block satisfies the
	// alignment/contiguity requirement.
	ErrFragmented = errors.New("mm: fragmented: no contiguous block satisfies request")

	// ErrInvalidArgument is returned for zero-length requests and other
	// malformed arguments; never a sentinel value.
	ErrInvalidArgument = errors.New("mm: invalid argument")

	// ErrUnknownNode is returned by AllocateNUMA when the requested node
	// id doesn't exist.
	ErrUnknownNode = errors.New("mm: unknown numa node")
)
