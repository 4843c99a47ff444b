package ipc

import "errors"

// Recoverable error sentinels returned to callers, per spec.md §4.3/§7.
var (
	ErrInvalidCapability = errors.New("ipc: invalid capability")
	ErrQueueFull         = errors.New("ipc: endpoint queue full")
	ErrNoMessage         = errors.New("ipc: no message available")
	ErrRateLimited       = errors.New("ipc: rate limited")
	ErrInvalidArgument   = errors.New("ipc: invalid argument")
	ErrPermissionDenied  = errors.New("ipc: permission denied")
	ErrTimeout           = errors.New("ipc: receive timeout")
	ErrInvalidRegion     = errors.New("ipc: invalid shared region")
	ErrConflict          = errors.New("ipc: mapping conflict")
	ErrOutOfMemory       = errors.New("ipc: allocator out of memory")
)
