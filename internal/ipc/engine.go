package ipc

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veridian-os/veridiancore/internal/logging"
	"github.com/veridian-os/veridiancore/internal/mm"
	"github.com/veridian-os/veridiancore/internal/sched"
)

// Config tunes an Engine at construction time.
type Config struct {
	// DefaultQueueCapacity is the message-ring capacity given to an
	// endpoint when the caller doesn't request a specific one.
	DefaultQueueCapacity int
	// Rates overrides the sender rate limiter's sliding windows; nil
	// uses defaultRates().
	Rates  map[time.Duration]int
	Logger *logging.Logger
}

// Engine is VeridianOS's IpcEngine: it wires capability-mediated
// message delivery to a Scheduler (for blocking receive/send) and an
// Allocator (for the zero-copy large-message path), per spec.md §3/§4.3.
type Engine struct {
	reg        *registry
	limiter    *senderLimiter
	sched      *sched.Scheduler
	alloc      *mm.Allocator
	defaultCap int
	log        *logging.Logger

	regionsMu  sync.Mutex
	regions    map[RegionID]*SharedRegion
	nextRegion uint32

	timeoutsMu sync.Mutex
	timeouts   map[sched.TaskID]pendingTimeout
}

// pendingTimeout is the bookkeeping ReceiveTimeout needs to find its
// way back to the right endpoint and done channel once
// Scheduler.AdvanceClock reports the deadline as due.
type pendingTimeout struct {
	ep   *Endpoint
	done chan struct{}
}

// NewEngine constructs an Engine bound to a scheduler and allocator.
// Both must already be initialized; spec.md §6's boot sequence brings
// up FrameAllocator and Scheduler before IpcEngine for exactly this
// reason.
func NewEngine(cfg Config, scheduler *sched.Scheduler, alloc *mm.Allocator) *Engine {
	cap := cfg.DefaultQueueCapacity
	if cap <= 0 {
		cap = 32
	}
	return &Engine{
		reg:        newRegistry(),
		limiter:    newSenderLimiter(cfg.Rates),
		sched:      scheduler,
		alloc:      alloc,
		defaultCap: cap,
		log:        cfg.Logger,
		regions:    make(map[RegionID]*SharedRegion),
		timeouts:   make(map[sched.TaskID]pendingTimeout),
	}
}

// CreateEndpoint allocates a standalone receive endpoint owned by pid,
// returning its id and a receive capability for it.
func (e *Engine) CreateEndpoint(pid uint32, capacity int) (EndpointID, Capability) {
	if capacity <= 0 {
		capacity = e.defaultCap
	}
	ep := e.reg.create(pid, capacity, &atomic.Uint32{})
	return ep.ID, NewCapability(ep.ID, ep.Generation(), PermReceive|PermGrant|PermRevoke)
}

// CreateChannel opens a bidirectional channel between two processes,
// per spec.md §4.1's open_channel.
func (e *Engine) CreateChannel(pidA, pidB uint32, capacity int) (endA, endB ChannelEnd) {
	if capacity <= 0 {
		capacity = e.defaultCap
	}
	_, endA, endB = e.reg.createChannel(pidA, pidB, capacity)
	return endA, endB
}

// Send delivers payload to the endpoint cap authorizes sending to.
// Messages at or below the inline threshold take the register-copy
// fast path: if a receiver is already blocked waiting, delivery
// bypasses the ring entirely (spec.md §4.3's "direct handoff"); other-
// wise the message queues. Larger payloads must be pre-staged into a
// SharedRegion via MapSharedRegion and sent as a region descriptor.
func (e *Engine) Send(senderPID uint32, cap Capability, payload []byte) error {
	if !e.limiter.allow(senderPID) {
		return ErrRateLimited
	}
	ep, err := e.reg.resolve(cap, PermSend)
	if err != nil {
		return err
	}
	msg, err := newSmallMessage(payload)
	if err != nil {
		return err
	}
	return e.deliver(ep, msg)
}

// SendRegion delivers a zero-copy descriptor referencing a previously
// mapped SharedRegion, per spec.md §4.3's large-message path.
func (e *Engine) SendRegion(senderPID uint32, cap Capability, region RegionID, offset, length uint64) error {
	if !e.limiter.allow(senderPID) {
		return ErrRateLimited
	}
	ep, err := e.reg.resolve(cap, PermSend)
	if err != nil {
		return err
	}
	e.regionsMu.Lock()
	r, ok := e.regions[region]
	if ok {
		r.addRef()
	}
	e.regionsMu.Unlock()
	if !ok {
		return ErrInvalidRegion
	}
	if offset+length > r.Size() {
		r.release(e.alloc)
		return ErrInvalidArgument
	}
	return e.deliver(ep, Message{Kind: LargeMessage, RegionID: region, Offset: offset, Length: length})
}

// deliver is Send/SendRegion's shared tail: hand the message straight
// to a waiting receiver if one exists, otherwise enqueue it.
func (e *Engine) deliver(ep *Endpoint, msg Message) error {
	ep.mu.Lock()
	if waiter, ok := ep.popWaiter(); ok {
		ep.mu.Unlock()
		payload := encodeWaitPayload(msg)
		_, err := e.sched.Wake(waiter.id, sched.OutcomeDelivered, payload)
		e.cancelTimeoutFor(waiter.id)
		signalDone(waiter.done)
		return err
	}
	ok := ep.ring.PushBack(msg)
	ep.mu.Unlock()
	if !ok {
		return ErrQueueFull
	}
	return nil
}

// Receive drains the next message from the endpoint cap authorizes
// receiving from. If none is queued and block is true, the calling
// CPU's current task blocks (sched.StateReceiveBlocked) until one
// arrives, the endpoint is revoked, or the owning process is torn
// down; cpu identifies the CPU the caller is running on, required by
// Scheduler.Block.
func (e *Engine) Receive(cpu int, cap Capability, block bool) (Message, error) {
	ep, err := e.reg.resolve(cap, PermReceive)
	if err != nil {
		return Message{}, err
	}

	ep.mu.Lock()
	if m, ok := ep.ring.PopFront(); ok {
		ep.mu.Unlock()
		return m, nil
	}
	if !block {
		ep.mu.Unlock()
		return Message{}, ErrNoMessage
	}
	cur := e.sched.Current(cpu)
	done := ep.addWaiter(cur.ID)
	ep.mu.Unlock()

	e.sched.Block(cpu, sched.StateReceiveBlocked, uint64(ep.ID))

	// Block() only flips this task's scheduler state and dispatches
	// whatever runs next on cpu; it does not suspend this goroutine.
	// The actual suspension is done, signaled by whichever of
	// deliver/Revoke/CleanupProcess wakes cur.ID next, after which
	// cur.Wait holds the outcome written by that waker.
	<-done

	wait := cur.Wait
	switch wait.Outcome {
	case sched.OutcomeDelivered:
		return decodeWaitPayload(wait.Payload), nil
	case sched.OutcomeInvalidCap:
		return Message{}, ErrInvalidCapability
	case sched.OutcomeProcessKilled:
		return Message{}, ErrConflict
	default:
		return Message{}, ErrTimeout
	}
}

// ReceiveTimeout behaves like Receive(cpu, cap, true) but gives up
// with ErrTimeout if no message arrives within afterTicks scheduler
// ticks, per spec.md §6's RECV TIMEOUT flag. Advancing the clock
// (internal/kernel's timer IRQ glue calls AdvanceClock) is what
// actually fires the timeout; nothing here polls a wall clock.
func (e *Engine) ReceiveTimeout(cpu int, cap Capability, afterTicks uint64) (Message, error) {
	ep, err := e.reg.resolve(cap, PermReceive)
	if err != nil {
		return Message{}, err
	}

	ep.mu.Lock()
	if m, ok := ep.ring.PopFront(); ok {
		ep.mu.Unlock()
		return m, nil
	}
	cur := e.sched.Current(cpu)
	done := ep.addWaiter(cur.ID)
	ep.mu.Unlock()

	e.timeoutsMu.Lock()
	e.timeouts[cur.ID] = pendingTimeout{ep: ep, done: done}
	e.timeoutsMu.Unlock()
	e.sched.ArmTimeout(cur.ID, afterTicks)

	e.sched.Block(cpu, sched.StateReceiveBlocked, uint64(ep.ID))
	<-done

	e.timeoutsMu.Lock()
	delete(e.timeouts, cur.ID)
	e.timeoutsMu.Unlock()

	wait := cur.Wait
	switch wait.Outcome {
	case sched.OutcomeDelivered:
		return decodeWaitPayload(wait.Payload), nil
	case sched.OutcomeInvalidCap:
		return Message{}, ErrInvalidCapability
	case sched.OutcomeProcessKilled:
		return Message{}, ErrConflict
	default:
		return Message{}, ErrTimeout
	}
}

// AdvanceClock drives every armed ReceiveTimeout deadline forward,
// waking expired waiters with ErrTimeout. internal/kernel's timer IRQ
// glue calls this once per tick alongside Scheduler.TimerTick.
func (e *Engine) AdvanceClock(now uint64) {
	for _, id := range e.sched.AdvanceClock(now) {
		e.timeoutsMu.Lock()
		pt, ok := e.timeouts[id]
		delete(e.timeouts, id)
		e.timeoutsMu.Unlock()
		if !ok {
			continue // not a ReceiveTimeout waiter; Wake already handled it
		}
		pt.ep.mu.Lock()
		pt.ep.removeWaiter(id)
		pt.ep.mu.Unlock()
		signalDone(pt.done)
	}
}

// MapSharedRegion allocates count frames and registers them as a
// SharedRegion available for zero-copy send, per spec.md §4.3.
func (e *Engine) MapSharedRegion(cpu int, count uint64, perm Perm) (RegionID, error) {
	frames, err := e.alloc.Allocate(cpu, count)
	if err != nil {
		return 0, ErrOutOfMemory
	}
	e.regionsMu.Lock()
	id := RegionID(e.nextRegion + 1)
	e.nextRegion++
	e.regions[id] = newSharedRegion(id, frames, perm)
	e.regionsMu.Unlock()
	return id, nil
}

// UnmapSharedRegion drops the caller's reference to region, freeing
// its frames back to the allocator once the last reference is gone.
func (e *Engine) UnmapSharedRegion(region RegionID) {
	e.regionsMu.Lock()
	r, ok := e.regions[region]
	if !ok {
		e.regionsMu.Unlock()
		return
	}
	if r.release(e.alloc) {
		delete(e.regions, region)
	}
	e.regionsMu.Unlock()
}

// RegionBytes exposes a mapped region's backing bytes for a receiver
// that decoded a LargeMessage descriptor out of Receive.
func (e *Engine) RegionBytes(region RegionID) ([]byte, error) {
	e.regionsMu.Lock()
	r, ok := e.regions[region]
	e.regionsMu.Unlock()
	if !ok {
		return nil, ErrInvalidRegion
	}
	return r.Bytes(e.alloc), nil
}

// EndpointStats is a point-in-time observability snapshot of one
// endpoint, mirroring eventloop's metrics.go approach of a cheap
// counter rather than a full percentile tracker (microkernel metrics
// infrastructure proper is out of scope; the counts themselves are
// ambient).
type EndpointStats struct {
	Pending  int
	Capacity int
	Waiters  int
}

// Stats resolves cap against the registry (any permission bit
// authorizes introspection) and reports its endpoint's current queue
// depth and waiter count.
func (e *Engine) Stats(cap Capability) (EndpointStats, error) {
	ep, err := e.reg.resolve(cap, 0)
	if err != nil {
		return EndpointStats{}, err
	}
	return EndpointStats{
		Pending:  ep.Pending(),
		Capacity: ep.Capacity(),
		Waiters:  ep.WaiterCount(),
	}, nil
}

// Revoke bumps an endpoint's generation, invalidating every capability
// minted against it, and wakes any blocked receivers with
// OutcomeInvalidCap (spec.md §4.3).
func (e *Engine) Revoke(cap Capability) error {
	ep, err := e.reg.resolve(cap, PermRevoke)
	if err != nil {
		return err
	}
	ep.bumpGeneration()
	ep.mu.Lock()
	waiters := ep.drainWaiters()
	ep.mu.Unlock()
	for _, w := range waiters {
		_, _ = e.sched.Wake(w.id, sched.OutcomeInvalidCap, nil)
		e.cancelTimeoutFor(w.id)
		signalDone(w.done)
	}
	return nil
}

// CleanupProcess tears down every endpoint owned by pid: it bumps
// each one's generation (invalidating outstanding capabilities held
// by other processes) and wakes its blocked receivers with
// OutcomeProcessKilled, then removes the endpoint from the registry.
// Per spec.md §4.3, this runs as part of process exit.
func (e *Engine) CleanupProcess(pid uint32) {
	e.reg.forEachOwnedBy(pid, func(ep *Endpoint) {
		ep.bumpGeneration()
		ep.mu.Lock()
		waiters := ep.drainWaiters()
		ep.mu.Unlock()
		for _, w := range waiters {
			_, _ = e.sched.Wake(w.id, sched.OutcomeProcessKilled, nil)
			e.cancelTimeoutFor(w.id)
			signalDone(w.done)
		}
		e.reg.remove(ep.ID)
	})
}

// cancelTimeoutFor disarms id's scheduler-level timeout (if any) and
// drops its engine-level bookkeeping, so a ReceiveTimeout waiter woken
// by delivery, revocation, or process cleanup doesn't also fire a
// stale timeout later.
func (e *Engine) cancelTimeoutFor(id sched.TaskID) {
	e.timeoutsMu.Lock()
	_, ok := e.timeouts[id]
	delete(e.timeouts, id)
	e.timeoutsMu.Unlock()
	if ok {
		e.sched.CancelTimeout(id)
	}
}

// encodeWaitPayload/decodeWaitPayload round-trip a Message through the
// []byte payload slot in sched.WaitDescriptor, since the scheduler
// package is domain-agnostic and knows nothing of ipc.Message.
func encodeWaitPayload(m Message) []byte {
	if m.Kind == SmallMessage {
		buf := make([]byte, 1+len(m.Inline))
		buf[0] = byte(SmallMessage)
		copy(buf[1:], m.Inline)
		return buf
	}
	buf := make([]byte, 1+4+8+8)
	buf[0] = byte(LargeMessage)
	binary.LittleEndian.PutUint32(buf[1:], uint32(m.RegionID))
	binary.LittleEndian.PutUint64(buf[5:], m.Offset)
	binary.LittleEndian.PutUint64(buf[13:], m.Length)
	return buf
}

func decodeWaitPayload(buf []byte) Message {
	if len(buf) == 0 {
		return Message{}
	}
	switch MessageKind(buf[0]) {
	case SmallMessage:
		inline := make([]byte, len(buf)-1)
		copy(inline, buf[1:])
		return Message{Kind: SmallMessage, Inline: inline}
	default:
		return Message{
			Kind:     LargeMessage,
			RegionID: RegionID(binary.LittleEndian.Uint32(buf[1:])),
			Offset:   binary.LittleEndian.Uint64(buf[5:]),
			Length:   binary.LittleEndian.Uint64(buf[13:]),
		}
	}
}
