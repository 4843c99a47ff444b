package sched

// TaskID identifies a schedulable unit of execution: one per user
// thread, plus one per-CPU idle task. Spec.md §3 models this as
// (process_id, thread_id); flattened to a single comparable value here
// since every lookup in this package is by the pair taken together.
type TaskID struct {
	ProcessID uint32
	ThreadID  uint32
}

// CPUSet is a bitset of CPU ids a task may run on, per spec.md §3's
// cpu_affinity field. A plain uint64 caps the core at 64 logical CPUs,
// matching every other per-CPU array in this package (NumaNode.CPUs in
// internal/mm uses a map instead only because node membership, unlike
// affinity, is rarely tested bit-by-bit in a hot path).
type CPUSet uint64

func CPUSetOf(cpus ...int) CPUSet {
	var s CPUSet
	for _, c := range cpus {
		s |= 1 << uint(c)
	}
	return s
}

func (s CPUSet) Has(cpu int) bool { return s&(1<<uint(cpu)) != 0 }

func (s CPUSet) Count() int {
	n := 0
	for s != 0 {
		n += int(s & 1)
		s >>= 1
	}
	return n
}

// WaitOutcome is written into a blocked task's WaitDescriptor by
// whichever event unblocks it, per spec.md §9's "coroutine-style
// blocking" note: the resumed task reads this on its next scheduling
// instead of the waker reaching into its stack directly.
type WaitOutcome int

const (
	OutcomePending WaitOutcome = iota
	OutcomeDelivered
	OutcomeInvalidCap
	OutcomeTimeout
	OutcomeProcessKilled
)

// WaitDescriptor carries the result of whatever a task was blocked on.
type WaitDescriptor struct {
	Outcome WaitOutcome
	Payload []byte
}

// Task is a schedulable unit of execution (spec.md §3).
type Task struct {
	ID    TaskID
	Name  string
	state *taskFastState

	Priority uint8 // 0-255, informational within a class's round robin
	Class    Class
	Affinity CPUSet

	// SavedContext is the arch-specific register file; opaque to this
	// package, which only ever copies it on context switch.
	SavedContext []byte
	// KernelStackFrame is the physical frame backing this task's kernel
	// stack, owned by internal/mm for the task's lifetime.
	KernelStackFrame uint64

	// BlockedOn names the endpoint this task is waiting on, set by
	// block() and cleared by wake(); zero when not blocked.
	BlockedOn uint64
	Wait      WaitDescriptor

	quantumRemaining int
	cpu              int // the CPU this task is assigned to / running on

	exitCode int
}

// NewTask constructs a Ready task pinned to the CPU set given by
// affinity. Per spec.md §4.2 ("a task whose affinity is empty is
// rejected at creation, not at schedule time"), an empty affinity
// panics rather than returning an error: this is a caller bug, not a
// runtime condition.
func NewTask(id TaskID, name string, class Class, priority uint8, affinity CPUSet) *Task {
	if affinity == 0 {
		panic("sched: NewTask: affinity must not be empty")
	}
	return &Task{
		ID:       id,
		Name:     name,
		state:    newTaskFastState(StateReady),
		Priority: priority,
		Class:    class,
		Affinity: affinity,
	}
}

func (t *Task) State() TaskState { return t.state.Load() }

func (t *Task) String() string {
	return t.Name
}
