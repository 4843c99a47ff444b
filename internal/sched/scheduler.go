// Package sched implements VeridianOS's per-CPU task scheduler: round
// robin within five strict-priority classes, timer-driven preemption,
// and the block/wake primitives the IPC engine rides on.
//
// The dispatch loop is modeled on the teacher's event loop (eventloop.Loop.Run):
// wait for something to happen, react, repeat. Here "something happens"
// means a timer tick, a yield, a block, a wake, or an exit — each of
// which is driven by an external caller (the timer IRQ handler, a
// syscall handler, or another task on another CPU) rather than the loop
// polling for readiness itself, since there is no I/O to poll for in a
// CPU scheduler.
package sched

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"

	"github.com/veridian-os/veridiancore/internal/logging"
)

// WakeResult is wake()'s outcome, per spec.md §4.2.
type WakeResult int

const (
	Woken WakeResult = iota
	AlreadyRunnable
)

// Scheduler owns every CPU's run queues and the global task registry
// needed to resolve wake(task_id) to a concrete Task (spec.md §9: "model
// cyclic references as IDs plus a central registry").
type Scheduler struct {
	mu    sync.Mutex
	cpus  []*cpuState
	tasks map[TaskID]*Task
	load  []*LoadTracker
	ready []chan struct{}
	log   *logging.Logger

	hashSeed maphash.Seed

	currentTick uint64
	timers      *timerWheel
}

// NewScheduler is the core's sched::init(): constructs per-CPU state
// and an idle task per CPU, called once at boot after mm::init() and
// before ipc::init() (spec.md §6 fixes this order).
func NewScheduler(numCPUs int, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Disabled()
	}
	s := &Scheduler{
		tasks:    make(map[TaskID]*Task),
		log:      logging.Sub(log, map[string]any{"subsystem": "sched"}),
		hashSeed: maphash.MakeSeed(),
		timers:   newTimerWheel(),
	}
	for i := 0; i < numCPUs; i++ {
		s.ready = append(s.ready, make(chan struct{}, 1))
		idle := &Task{
			ID:       TaskID{ProcessID: 0, ThreadID: uint32(i)},
			Name:     fmt.Sprintf("idle/%d", i),
			state:    newTaskFastState(StateRunning),
			Class:    Idle,
			Affinity: CPUSetOf(i),
			cpu:      i,
		}
		s.cpus = append(s.cpus, newCPUState(i, idle))
		s.load = append(s.load, &LoadTracker{})
		s.tasks[idle.ID] = idle
	}
	return s
}

func (s *Scheduler) NumCPUs() int { return len(s.cpus) }

// affinityCPUs lists the CPU ids a task may run on, in ascending order.
func affinityCPUs(set CPUSet, numCPUs int) []int {
	var cpus []int
	for c := 0; c < numCPUs; c++ {
		if set.Has(c) {
			cpus = append(cpus, c)
		}
	}
	return cpus
}

// ScheduleThread enqueues a Ready task, honouring cpu_affinity: it
// hashes the task id modulo the number of affine CPUs to pick the
// target run queue (spec.md §4.2). A task never migrates afterward in
// this core version.
func (s *Scheduler) ScheduleThread(t *Task) error {
	if t.Affinity == 0 {
		return ErrEmptyAffinity
	}
	cpus := affinityCPUs(t.Affinity, len(s.cpus))
	if len(cpus) == 0 {
		return ErrEmptyAffinity
	}

	var hh maphash.Hash
	hh.SetSeed(s.hashSeed)
	fmt.Fprintf(&hh, "%d:%d", t.ID.ProcessID, t.ID.ThreadID)
	target := cpus[hh.Sum64()%uint64(len(cpus))]
	t.cpu = target

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.cpus[target].enqueue(t)
	s.mu.Unlock()

	s.wakeupCPU(target)
	return nil
}

func (s *Scheduler) wakeupCPU(cpu int) {
	select {
	case s.ready[cpu] <- struct{}{}:
	default:
		// a wakeup is already pending for this CPU; Run's next pass
		// will notice the new ready work regardless.
	}
}

// dispatch picks the next task to run on cpu and installs it as
// current, recording load. Caller must hold s.mu.
func (s *Scheduler) dispatchLocked(cpu int) *Task {
	c := s.cpus[cpu]
	next := c.pickNext()
	if next != c.idle {
		next.state.TryTransition(StateReady, StateRunning)
		next.quantumRemaining = DefaultQuantumTicks
	} else {
		next.state.Store(StateRunning)
	}
	next.cpu = cpu
	c.current = next
	s.load[cpu].Observe(next != c.idle, c.readyDepth())
	return next
}

func (c *cpuState) readyDepth() int {
	n := 0
	for _, q := range c.queues {
		n += q.Len()
	}
	return n
}

// Current returns the task currently recorded as Running on cpu.
func (s *Scheduler) Current(cpu int) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpus[cpu].current
}

// YieldCPU voluntarily relinquishes the calling task's remaining
// quantum (spec.md §4.2): Running -> Ready, tail of its class queue.
func (s *Scheduler) YieldCPU(cpu int) {
	s.mu.Lock()
	c := s.cpus[cpu]
	cur := c.current
	if cur != c.idle && cur.state.TryTransition(StateRunning, StateReady) {
		c.enqueue(cur)
	}
	s.dispatchLocked(cpu)
	s.mu.Unlock()
}

// Block transitions the current task Running -> one of the blocked
// states, records what it's blocked on, and dispatches the next task.
// reason must be StateBlocked, StateReceiveBlocked, or StateSendBlocked.
func (s *Scheduler) Block(cpu int, reason TaskState, blockedOn uint64) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpus[cpu]
	cur := c.current
	if cur != c.idle {
		cur.state.TryTransition(StateRunning, reason)
		cur.BlockedOn = blockedOn
		cur.Wait = WaitDescriptor{Outcome: OutcomePending}
	}
	return s.dispatchLocked(cpu)
}

// Wake moves a Blocked task to Ready and enqueues it on its assigned
// CPU. Waking an unknown task id is, per spec.md §4.2, "a bug (panic in
// debug, ignored in release)"; this package always returns
// ErrUnknownTask and leaves the panic-vs-ignore choice to the caller.
func (s *Scheduler) Wake(id TaskID, outcome WaitOutcome, payload []byte) (WakeResult, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return AlreadyRunnable, ErrUnknownTask
	}
	if !t.state.TransitionAnyBlocked(StateReady) {
		s.mu.Unlock()
		return AlreadyRunnable, nil
	}
	t.Wait = WaitDescriptor{Outcome: outcome, Payload: payload}
	t.BlockedOn = 0
	s.cpus[t.cpu].enqueue(t)
	s.mu.Unlock()

	s.wakeupCPU(t.cpu)
	return Woken, nil
}

// TimerTick is called from the timer IRQ handler at 100 Hz (spec.md
// §4.2/§6). It accounts time against the current task's quantum and, if
// exhausted, preempts it to the tail of its class queue before
// dispatching the next task.
func (s *Scheduler) TimerTick(cpu int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpus[cpu]
	cur := c.current
	if cur == c.idle {
		s.load[cpu].Observe(false, c.readyDepth())
		return
	}

	cur.quantumRemaining--
	if cur.quantumRemaining > 0 {
		s.load[cpu].Observe(true, c.readyDepth())
		return
	}

	if cur.state.TryTransition(StateRunning, StateReady) {
		c.enqueue(cur)
	}
	s.dispatchLocked(cpu)
}

// ArmTimeout schedules id to be woken with OutcomeTimeout after
// afterTicks more calls to AdvanceClock, per spec.md §6's RECV
// TIMEOUT flag. It returns the absolute deadline so the caller (e.g.
// internal/ipc's ReceiveTimeout) can correlate a later timeout wake
// with this specific arm call.
func (s *Scheduler) ArmTimeout(id TaskID, afterTicks uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := s.currentTick + afterTicks
	s.timers.arm(deadline, id)
	return deadline
}

// CancelTimeout disarms a previously ArmTimeout'd deadline for id, if
// still outstanding. Safe to call even when id never had one armed.
func (s *Scheduler) CancelTimeout(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers.cancel(id)
}

// AdvanceClock moves the scheduler's timeout clock to now and wakes
// every task whose ArmTimeout deadline has passed, with
// OutcomeTimeout. It returns the ids woken so a caller layering its
// own per-task resume signal on top of Wake (as internal/ipc's
// Engine does) can clean up its own bookkeeping for them.
func (s *Scheduler) AdvanceClock(now uint64) []TaskID {
	s.mu.Lock()
	s.currentTick = now
	due := s.timers.due(now)
	s.mu.Unlock()

	for _, id := range due {
		_, _ = s.Wake(id, OutcomeTimeout, nil)
	}
	return due
}

// ExitCurrent ends the current task's life: Running -> Zombie. Its
// task-table entry stays until Reap removes it; ExitCurrent itself
// frees nothing.
func (s *Scheduler) ExitCurrent(cpu int, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cpus[cpu]
	cur := c.current
	if cur == c.idle {
		return
	}
	cur.state.Store(StateZombie)
	cur.exitCode = code
	s.dispatchLocked(cpu)
}

// Reap removes a Zombie task from the task registry once its parent has
// collected its exit status, freeing the TaskID for... nothing: per
// spec.md §3/§4.2, task ids are not reused within this core's scope.
func (s *Scheduler) Reap(id TaskID) (exitCode int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, exists := s.tasks[id]
	if !exists || t.state.Load() != StateZombie {
		return 0, false
	}
	delete(s.tasks, id)
	return t.exitCode, true
}

// LoadSnapshot returns cpu's advisory load; see LoadTracker.
func (s *Scheduler) LoadSnapshot(cpu int) Snapshot {
	return s.load[cpu].Snapshot()
}

// Run is a CPU's entry point into the scheduler main loop (spec.md
// §4.2's run() -> !). It dispatches forever, sleeping between dispatch
// decisions until Wake or ScheduleThread signals that cpu has new work
// to consider (TimerTick, Block, YieldCPU and ExitCurrent dispatch
// directly and send no signal) — there is nothing to poll for between
// those signals, unlike an I/O event loop.
// It returns only when ctx is cancelled, which stands in for "CPU taken
// offline", out of scope per spec.md §2's non-goals.
func (s *Scheduler) Run(ctx context.Context, cpu int) error {
	s.mu.Lock()
	s.dispatchLocked(cpu)
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ready[cpu]:
			s.mu.Lock()
			c := s.cpus[cpu]
			if c.current == c.idle && c.hasReadyWork() {
				s.dispatchLocked(cpu)
			}
			s.mu.Unlock()
		}
	}
}
