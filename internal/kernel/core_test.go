package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veridian-os/veridiancore/internal/ipc"
	"github.com/veridian-os/veridiancore/internal/mm"
	"github.com/veridian-os/veridiancore/internal/sched"
)

func singleNodeTopology(frames uint64) []*mm.NumaNode {
	return []*mm.NumaNode{{
		ID:        0,
		BaseFrame: 0,
		Alloc:     mm.NewHybridAllocator(frames, mm.DefaultThreshold),
		Distances: map[int]int{0: 0},
		CPUs:      map[int]struct{}{0: {}},
		Backing:   make([]byte, frames*mm.PageSize),
	}}
}

func TestBoot_WiresAllocatorSchedulerAndEngine(t *testing.T) {
	c := Boot(singleNodeTopology(4096), 1)
	require.NotNil(t, c.Alloc)
	require.NotNil(t, c.Sched)
	require.NotNil(t, c.Ipc)
	require.Equal(t, uint64(4096), c.Alloc.FreeFrames())
}

func TestCore_NewProcessIDIsMonotonicAndNeverZero(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	a := c.NewProcessID()
	b := c.NewProcessID()
	require.NotZero(t, a)
	require.Greater(t, b, a)
}

func TestCore_SyscallRoundTripSmallMessage(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	pidA, pidB := c.NewProcessID(), c.NewProcessID()

	endA, endB, errno := c.SysIPCChannelCreate(pidA, pidB, 4)
	require.Equal(t, OK, errno)

	require.Equal(t, OK, c.SysIPCSend(pidA, endA.Send, []byte("ping")))

	msg, errno := c.SysIPCRecv(0, endB.Receive, true)
	require.Equal(t, OK, errno)
	require.Equal(t, []byte("ping"), msg.Inline)
}

func TestCore_SyscallSendWrongPermissionMapsToPermissionDenied(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	pidA, pidB := c.NewProcessID(), c.NewProcessID()
	endA, _, _ := c.SysIPCChannelCreate(pidA, pidB, 4)

	errno := c.SysIPCSend(pidA, endA.Receive, []byte("x"))
	require.Equal(t, EPermissionDenied, errno)
}

func TestCore_SyscallRecvNoMessageMapsToENoMessage(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	pidA, pidB := c.NewProcessID(), c.NewProcessID()
	_, endB, _ := c.SysIPCChannelCreate(pidA, pidB, 4)

	_, errno := c.SysIPCRecv(0, endB.Receive, true)
	require.Equal(t, ENoMessage, errno)
}

func TestCore_SyscallRevokeThenSendFails(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	pidA, pidB := c.NewProcessID(), c.NewProcessID()
	endA, endB, _ := c.SysIPCChannelCreate(pidA, pidB, 4)

	require.Equal(t, OK, c.SysIPCCapRevoke(endB.Receive))
	require.Equal(t, EInvalidCapability, c.SysIPCSend(pidA, endA.Send, []byte("x")))
}

func TestCore_SyscallMapSharedThenOutOfMemory(t *testing.T) {
	c := Boot(singleNodeTopology(4), 1)
	_, errno := c.SysMemMapShared(0, 2, ipc.PermSend|ipc.PermReceive)
	require.Equal(t, OK, errno)

	_, errno = c.SysMemMapShared(0, 100, ipc.PermSend|ipc.PermReceive)
	require.Equal(t, EOutOfMemory, errno)
}

func TestCore_RunDispatchesAndTimerTickAdvancesIpcClock(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wait := c.Run(ctx)

	pidA, pidB := c.NewProcessID(), c.NewProcessID()
	_, endB, _ := c.SysIPCChannelCreate(pidA, pidB, 4)

	task := sched.NewTask(sched.TaskID{ProcessID: pidB, ThreadID: 1}, "receiver", sched.Normal, 0, sched.CPUSetOf(0))
	require.NoError(t, c.Sched.ScheduleThread(task))
	require.Eventually(t, func() bool {
		return c.Sched.Current(0) == task
	}, time.Second, time.Millisecond)

	result := make(chan Errno, 1)
	go func() {
		_, errno := c.SysIPCRecvTimeout(0, endB.Receive, 3)
		result <- errno
	}()

	require.Eventually(t, func() bool {
		stats, err := c.Ipc.Stats(endB.Receive)
		return err == nil && stats.Waiters == 1
	}, time.Second, time.Millisecond)

	for tick := uint64(1); tick <= 3; tick++ {
		c.TimerTick(tick)
	}

	select {
	case errno := <-result:
		require.Equal(t, ETimeout, errno)
	case <-time.After(time.Second):
		t.Fatal("ReceiveTimeout syscall never resolved")
	}

	cancel()
	require.ErrorIs(t, wait(), context.Canceled)
}

func TestCore_ExitProcessWakesBlockedReceiverWithInvalidCapability(t *testing.T) {
	c := Boot(singleNodeTopology(16), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Sched.Run(ctx, 0)

	pidA, pidB := c.NewProcessID(), c.NewProcessID()
	_, endB, _ := c.SysIPCChannelCreate(pidA, pidB, 4)

	task := sched.NewTask(sched.TaskID{ProcessID: pidB, ThreadID: 1}, "receiver", sched.Normal, 0, sched.CPUSetOf(0))
	require.NoError(t, c.Sched.ScheduleThread(task))
	require.Eventually(t, func() bool {
		return c.Sched.Current(0) == task
	}, time.Second, time.Millisecond)

	result := make(chan Errno, 1)
	go func() {
		_, errno := c.SysIPCRecv(0, endB.Receive, false)
		result <- errno
	}()

	require.Eventually(t, func() bool {
		stats, err := c.Ipc.Stats(endB.Receive)
		return err == nil && stats.Waiters == 1
	}, time.Second, time.Millisecond)

	c.ExitProcess(pidB)

	select {
	case errno := <-result:
		require.Equal(t, EInvalidCapability, errno)
	case <-time.After(time.Second):
		t.Fatal("blocked receiver never woke on ExitProcess")
	}
}
