package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-os/veridiancore/internal/ipc"
	"github.com/veridian-os/veridiancore/internal/mm"
)

func TestToErrno_MapsEverySentinel(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Errno
	}{
		{"nil", nil, OK},
		{"mm out of memory", mm.ErrOutOfMemory, EOutOfMemory},
		{"ipc out of memory", ipc.ErrOutOfMemory, EOutOfMemory},
		{"invalid capability", ipc.ErrInvalidCapability, EInvalidCapability},
		{"invalid region", ipc.ErrInvalidRegion, EInvalidCapability},
		{"conflict", ipc.ErrConflict, EInvalidCapability},
		{"queue full", ipc.ErrQueueFull, EQueueFull},
		{"no message", ipc.ErrNoMessage, ENoMessage},
		{"rate limited", ipc.ErrRateLimited, ERateLimited},
		{"mm invalid argument", mm.ErrInvalidArgument, EInvalidArgument},
		{"ipc invalid argument", ipc.ErrInvalidArgument, EInvalidArgument},
		{"fragmented", mm.ErrFragmented, EInvalidArgument},
		{"unknown node", mm.ErrUnknownNode, EInvalidArgument},
		{"permission denied", ipc.ErrPermissionDenied, EPermissionDenied},
		{"timeout", ipc.ErrTimeout, ETimeout},
		{"unrecognised", errors.New("boom"), EUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ToErrno(tc.err))
		})
	}
}

func TestToErrno_WrapsThroughErrorsIs(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ipc.ErrTimeout)
	require.Equal(t, ETimeout, ToErrno(wrapped))
}

func TestErrno_SyscallIsZeroOrNegative(t *testing.T) {
	assert.Equal(t, 0, OK.Syscall())
	assert.Equal(t, -int(ETimeout), ETimeout.Syscall())
	assert.Negative(t, ETimeout.Syscall())
}

func TestErrno_StringNamesEveryValue(t *testing.T) {
	for e := OK; e <= EUnknown; e++ {
		assert.NotEmpty(t, e.String())
	}
	assert.Equal(t, "Unknown", Errno(999).String())
}
