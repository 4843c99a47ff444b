// Package kernel is the boot glue: it sequences internal/mm,
// internal/sched, and internal/ipc into a single Core, exposes the
// syscall-boundary Errno taxonomy of spec.md §7, and decodes boot-time
// configuration.
package kernel

import (
	"errors"

	"github.com/veridian-os/veridiancore/internal/ipc"
	"github.com/veridian-os/veridiancore/internal/mm"
)

// Errno is the closed sum type returned across the syscall boundary,
// per spec.md §7's error taxonomy. It is always negative at that
// boundary (OK is zero); internally, subsystems still return typed Go
// errors, and ToErrno classifies them into this set.
type Errno int

const (
	OK Errno = iota
	EOutOfMemory
	EInvalidCapability
	EQueueFull
	ENoMessage
	ERateLimited
	EInvalidArgument
	EPermissionDenied
	ETimeout
	EUnknown // any error that doesn't map to a named taxonomy entry; never produced by this module's own subsystems, kept for forward compatibility with callers outside the core
)

func (e Errno) String() string {
	switch e {
	case OK:
		return "OK"
	case EOutOfMemory:
		return "OutOfMemory"
	case EInvalidCapability:
		return "InvalidCapability"
	case EQueueFull:
		return "QueueFull"
	case ENoMessage:
		return "NoMessage"
	case ERateLimited:
		return "RateLimited"
	case EInvalidArgument:
		return "InvalidArgument"
	case EPermissionDenied:
		return "PermissionDenied"
	case ETimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Syscall returns the negative conceptual syscall result for e (0 for
// OK), matching spec.md §6's "0 or negative error code" ABI.
func (e Errno) Syscall() int {
	return -int(e)
}

// ToErrno classifies err, which must be nil or a sentinel from
// internal/mm or internal/ipc, into the syscall-boundary taxonomy.
// Unrecognised non-nil errors map to EUnknown rather than panicking:
// Errno is the recoverable half of error handling, not the place bug
// detection happens (see Fatal in internal/logging for that).
func ToErrno(err error) Errno {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, mm.ErrOutOfMemory), errors.Is(err, ipc.ErrOutOfMemory):
		return EOutOfMemory
	case errors.Is(err, ipc.ErrInvalidCapability), errors.Is(err, ipc.ErrInvalidRegion), errors.Is(err, ipc.ErrConflict):
		return EInvalidCapability
	case errors.Is(err, ipc.ErrQueueFull):
		return EQueueFull
	case errors.Is(err, ipc.ErrNoMessage):
		return ENoMessage
	case errors.Is(err, ipc.ErrRateLimited):
		return ERateLimited
	case errors.Is(err, mm.ErrInvalidArgument), errors.Is(err, ipc.ErrInvalidArgument), errors.Is(err, mm.ErrFragmented), errors.Is(err, mm.ErrUnknownNode):
		return EInvalidArgument
	case errors.Is(err, ipc.ErrPermissionDenied):
		return EPermissionDenied
	case errors.Is(err, ipc.ErrTimeout):
		return ETimeout
	default:
		return EUnknown
	}
}
