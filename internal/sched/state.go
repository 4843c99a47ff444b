package sched

import "sync/atomic"

// TaskState is a Task's position in its lifecycle, per spec.md §3/§4.2:
//
//	Ready (initial) -> Running -> Ready            (quantum exhausted / yield)
//	Running -> Blocked / ReceiveBlocked / SendBlocked  (block())
//	Blocked* -> Ready                               (wake())
//	Running -> Zombie                               (exit_current())
//
// Values are small contiguous ints with zero reserved for StateInvalid,
// so a zero-valued Task (e.g. from a bug that skips construction) is
// visibly invalid rather than silently Ready.
type TaskState uint64

const (
	StateInvalid        TaskState = 0
	StateReady          TaskState = 1
	StateRunning        TaskState = 2
	StateBlocked        TaskState = 3
	StateReceiveBlocked  TaskState = 4
	StateSendBlocked     TaskState = 5
	StateZombie          TaskState = 6
)

func (s TaskState) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateReceiveBlocked:
		return "ReceiveBlocked"
	case StateSendBlocked:
		return "SendBlocked"
	case StateZombie:
		return "Zombie"
	default:
		return "Invalid"
	}
}

func (s TaskState) isBlocked() bool {
	return s == StateBlocked || s == StateReceiveBlocked || s == StateSendBlocked
}

// taskFastState is a lock-free state cell, directly modeled on the
// teacher's FastState: pure atomic CAS, no validation on the hot path,
// cache-line padded so adjacent tasks' state cells don't false-share.
type taskFastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newTaskFastState(initial TaskState) *taskFastState {
	s := &taskFastState{}
	s.v.Store(uint64(initial))
	return s
}

func (s *taskFastState) Load() TaskState { return TaskState(s.v.Load()) }

func (s *taskFastState) Store(state TaskState) { s.v.Store(uint64(state)) }

func (s *taskFastState) TryTransition(from, to TaskState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// TransitionAnyBlocked moves the task from whichever blocked variant it
// is currently in to `to`, since block() records which of the three
// blocked sub-states applies but wake() only needs "currently blocked".
func (s *taskFastState) TransitionAnyBlocked(to TaskState) bool {
	for _, from := range []TaskState{StateBlocked, StateReceiveBlocked, StateSendBlocked} {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}
