package sched

// cpuState is the per-CPU scheduler slab: run queues, the currently
// running task, and that CPU's idle task. Spec.md §9's "per-CPU state"
// design note calls for "an array indexed by CPU id; each CPU touches
// only its own slot on the fast path" — Scheduler.cpus is that array,
// and every method here assumes the caller already holds (or is) the
// owning CPU, matching the teacher's "per-CPU run queues: mutated only
// by the owning CPU" shared-resource policy (spec.md §5).
type cpuState struct {
	id      int
	queues  [numClasses]*taskRing
	current *Task
	idle    *Task
}

func newCPUState(id int, idle *Task) *cpuState {
	c := &cpuState{id: id, current: idle, idle: idle}
	for i := range c.queues {
		c.queues[i] = newTaskRing()
	}
	return c
}

// enqueue places t at the tail of its class's queue on this CPU.
func (c *cpuState) enqueue(t *Task) {
	c.queues[t.Class].PushBack(t)
}

// pickNext scans classes in strict priority order (spec.md §4.2:
// "RealTime > Interactive > Normal > Batch > Idle") and pops the head
// of the first non-empty queue. Falls back to this CPU's idle task,
// which never itself lives in a queue, when every class is empty.
func (c *cpuState) pickNext() *Task {
	for class := RealTime; class <= Idle; class++ {
		if t, ok := c.queues[class].PopFront(); ok {
			return t
		}
	}
	return c.idle
}

func (c *cpuState) hasReadyWork() bool {
	for _, q := range c.queues {
		if !q.Empty() {
			return true
		}
	}
	return false
}
