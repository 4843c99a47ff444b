package kernel

import (
	"context"
	"sync/atomic"

	"github.com/veridian-os/veridiancore/internal/ipc"
	"github.com/veridian-os/veridiancore/internal/logging"
	"github.com/veridian-os/veridiancore/internal/mm"
	"github.com/veridian-os/veridiancore/internal/sched"
)

// Core wires the three singletons together and is the boot
// collaborator's only handle on the running kernel. Lifecycle per
// spec.md §9: constructed once during boot in the fixed order mm ->
// sched -> ipc, never torn down.
type Core struct {
	opts  *coreOptions
	log   *logging.Logger
	Alloc *mm.Allocator
	Sched *sched.Scheduler
	Ipc   *ipc.Engine

	nextPID atomic.Uint32
}

// Boot constructs a Core over topology (the NUMA nodes the boot
// collaborator discovered) and numCPUs (the online CPU count), calling
// mm.NewAllocator, sched.NewScheduler, and ipc.NewEngine in that order,
// per spec.md §6's "ipc::init(), mm::init(), and sched::init() ...
// called in that order" note (read alongside §9's "initialised by
// explicit init() during boot in the order mm -> sched -> ipc" — this
// module follows §9, the more specific of the two).
func Boot(topology []*mm.NumaNode, numCPUs int, opts ...Option) *Core {
	cfg := resolveOptions(opts)
	log := cfg.logger

	alloc := mm.NewAllocator(mm.Config{Threshold: cfg.threshold, Logger: log}, topology)
	scheduler := sched.NewScheduler(numCPUs, log)
	engine := ipc.NewEngine(ipc.Config{
		DefaultQueueCapacity: cfg.defaultQueueCapacity,
		Logger:               log,
	}, scheduler, alloc)

	return &Core{
		opts:  cfg,
		log:   log,
		Alloc: alloc,
		Sched: scheduler,
		Ipc:   engine,
	}
}

// NewProcessID hands out process ids for the demo boot glue; a real
// kernel's process table is out of this module's scope (spec.md §2),
// so this is just a monotonic counter starting at 1 (0 is reserved for
// kernel-owned idle tasks, matching sched.NewScheduler's idle task
// ids).
func (c *Core) NewProcessID() uint32 {
	return c.nextPID.Add(1)
}

// Run starts the scheduler's per-CPU dispatch loops, one goroutine per
// CPU, returning a function that blocks until all of them have
// returned (normally only once ctx is cancelled — see
// sched.Scheduler.Run).
func (c *Core) Run(ctx context.Context) func() error {
	errs := make(chan error, c.Sched.NumCPUs())
	for cpu := 0; cpu < c.Sched.NumCPUs(); cpu++ {
		cpu := cpu
		go func() {
			errs <- c.Sched.Run(ctx, cpu)
		}()
	}
	return func() error {
		var first error
		for i := 0; i < c.Sched.NumCPUs(); i++ {
			if err := <-errs; err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// TimerTick drives spec.md §6's "the core's only requirement is that
// scheduler::timer_tick() is invoked from its handler" for every CPU,
// and additionally advances the IPC engine's timeout clock so armed
// ReceiveTimeout deadlines fire alongside ordinary preemption. A real
// boot collaborator calls this once per 100 Hz IRQ; the demo glue
// calls it from a time.Ticker instead of a real PIT/SBI timer.
func (c *Core) TimerTick(tick uint64) {
	for cpu := 0; cpu < c.Sched.NumCPUs(); cpu++ {
		c.Sched.TimerTick(cpu)
	}
	c.Ipc.AdvanceClock(tick)
}

// Syscall surface: thin wrappers translating internal/ipc's typed Go
// errors into the Errno taxonomy at the boundary spec.md §6 describes,
// named after the conceptual syscall numbers in its ABI table.

func (c *Core) SysIPCChannelCreate(ownerA, ownerB uint32, capacity int) (ipc.ChannelEnd, ipc.ChannelEnd, Errno) {
	endA, endB := c.Ipc.CreateChannel(ownerA, ownerB, capacity)
	return endA, endB, OK
}

func (c *Core) SysIPCSend(senderPID uint32, cap ipc.Capability, payload []byte) Errno {
	return ToErrno(c.Ipc.Send(senderPID, cap, payload))
}

func (c *Core) SysIPCRecv(cpu int, cap ipc.Capability, nonblock bool) (ipc.Message, Errno) {
	msg, err := c.Ipc.Receive(cpu, cap, !nonblock)
	return msg, ToErrno(err)
}

func (c *Core) SysIPCRecvTimeout(cpu int, cap ipc.Capability, deadlineTicks uint64) (ipc.Message, Errno) {
	msg, err := c.Ipc.ReceiveTimeout(cpu, cap, deadlineTicks)
	return msg, ToErrno(err)
}

func (c *Core) SysIPCCapRevoke(cap ipc.Capability) Errno {
	return ToErrno(c.Ipc.Revoke(cap))
}

func (c *Core) SysSchedYield(cpu int) Errno {
	c.Sched.YieldCPU(cpu)
	return OK
}

func (c *Core) SysMemMapShared(cpu int, count uint64, perm ipc.Perm) (ipc.RegionID, Errno) {
	region, err := c.Ipc.MapSharedRegion(cpu, count, perm)
	return region, ToErrno(err)
}

// ExitProcess tears down a dying process's endpoints via
// ipc.Engine.CleanupProcess: their generations bump (invalidating
// outstanding capabilities) and tasks blocked on them wake with an
// error. Shared regions are not touched: they are not tracked per
// process, so their reference counts are left as they are.
func (c *Core) ExitProcess(pid uint32) {
	c.Ipc.CleanupProcess(pid)
}
