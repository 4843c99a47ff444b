package ipc

import (
	"sync"
	"sync/atomic"

	"github.com/veridian-os/veridiancore/internal/sched"
)

// RegionID identifies a SharedRegion.
type RegionID uint32

// Endpoint is a rendezvous point for IPC (spec.md §3): only its owner
// process may receive; any holder of a SEND capability may send.
//
// The generation counter is a pointer rather than a plain field because
// spec.md §3 states a Channel's two endpoints "share a generation
// counter" — revoking either endpoint's capability invalidates both
// directions of the channel at once.
type Endpoint struct {
	ID         EndpointID
	Owner      uint32 // owning process id
	generation *atomic.Uint32

	mu      sync.Mutex
	ring    *messageRing
	waiters []receiveWaiter // FIFO of tasks blocked in receive(), per spec.md §4.3
}

// receiveWaiter pairs a blocked task's scheduler id (so wake() can
// update the scheduler's own run-queue bookkeeping) with a channel the
// blocked goroutine is actually waiting on. The scheduler package only
// models state transitions; it has no mechanism of its own to resume a
// specific Go call stack, so the IPC engine signals done itself once
// it has called sched.Scheduler.Wake and stamped the task's
// WaitDescriptor. done is buffered so signalDone is safe to call more
// than once (a delivery and a timeout can race for the same waiter);
// only the first send is ever observed by the blocked receiver.
type receiveWaiter struct {
	id   sched.TaskID
	done chan struct{}
}

// signalDone wakes whoever is waiting on done, tolerating a second
// caller losing the race (see receiveWaiter's doc comment).
func signalDone(done chan struct{}) {
	select {
	case done <- struct{}{}:
	default:
	}
}

func newEndpoint(id EndpointID, owner uint32, capacity int, gen *atomic.Uint32) *Endpoint {
	return &Endpoint{
		ID:         id,
		Owner:      owner,
		generation: gen,
		ring:       newMessageRing(capacity),
	}
}

// Generation reads the endpoint's current revocation generation.
// Spec.md §5 requires this be "immediately visible to all CPUs" via
// atomics, which atomic.Uint32.Load already guarantees.
func (e *Endpoint) Generation() Generation {
	return Generation(uint16(e.generation.Load()))
}

// bumpGeneration is revoke()'s core: incrementing invalidates every
// outstanding capability minted under the old value in O(1), without
// tracking who holds them (spec.md §4.3).
func (e *Endpoint) bumpGeneration() {
	e.generation.Add(1)
}

// Pending returns the endpoint's current queued-message count.
func (e *Endpoint) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.Len()
}

// Capacity returns the endpoint's declared ring capacity.
func (e *Endpoint) Capacity() int {
	return e.ring.capacity
}

// WaiterCount returns how many tasks are currently blocked in receive()
// on this endpoint; observability only (see DESIGN.md's endpoint
// statistics supplement).
func (e *Endpoint) WaiterCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waiters)
}

func (e *Endpoint) addWaiter(id sched.TaskID) chan struct{} {
	done := make(chan struct{}, 1)
	e.waiters = append(e.waiters, receiveWaiter{id: id, done: done})
	return done
}

// popWaiter removes and returns the longest-waiting receiver, if any.
func (e *Endpoint) popWaiter() (receiveWaiter, bool) {
	if len(e.waiters) == 0 {
		return receiveWaiter{}, false
	}
	w := e.waiters[0]
	e.waiters = e.waiters[1:]
	return w, true
}

// removeWaiter removes the waiter for id, if still present, without
// signaling it — used when a timeout fires before a message arrived,
// so the expired waiter doesn't linger to receive a later message
// meant for whoever blocks next.
func (e *Endpoint) removeWaiter(id sched.TaskID) {
	for i, w := range e.waiters {
		if w.id == id {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// drainWaiters removes and returns every waiting receiver, used by
// cleanup_process and revoke() to wake everyone with an error outcome.
func (e *Endpoint) drainWaiters() []receiveWaiter {
	w := e.waiters
	e.waiters = nil
	return w
}
