package ipc

import (
	"sync"
	"sync/atomic"
)

// registryShards is the fixed shard count for the endpoint registry.
// Spec.md §5 calls for sharded lookup so that unrelated endpoints never
// contend on the same lock; 64 keeps per-shard maps small without the
// shard count itself becoming a scalability knob to tune.
const registryShards = 64

// registry is VeridianOS's endpoint table: a sharded map+RWMutex,
// shaped after the teacher's eventloop.registry but deliberately
// without its weak-pointer/ring-buffer-scavenging machinery. That
// machinery exists there because JS promises are GC'd out from under
// the registry; kernel endpoints have no such lifecycle; they live
// until CleanupProcess explicitly removes them. What's worth keeping
// is the map+lock shape and O(1) lookup, now split across shards keyed
// by endpoint id so independent endpoints don't contend.
type registry struct {
	nextID atomic.Uint32
	shards [registryShards]registryShard
}

type registryShard struct {
	mu   sync.RWMutex
	data map[EndpointID]*Endpoint
}

func newRegistry() *registry {
	r := &registry{}
	r.nextID.Store(1) // 0 is never issued, so it can serve as a null marker
	for i := range r.shards {
		r.shards[i].data = make(map[EndpointID]*Endpoint)
	}
	return r
}

func (r *registry) shardFor(id EndpointID) *registryShard {
	return &r.shards[uint32(id)%registryShards]
}

// create allocates a fresh endpoint id and registers owner's new
// endpoint, backed by a generation counter shared with gen (pass a
// fresh *atomic.Uint32 for a standalone endpoint, or the peer
// endpoint's counter when constructing a Channel).
func (r *registry) create(owner uint32, capacity int, gen *atomic.Uint32) *Endpoint {
	id := EndpointID(r.nextID.Add(1) - 1)
	ep := newEndpoint(id, owner, capacity, gen)
	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.data[id] = ep
	sh.mu.Unlock()
	return ep
}

// lookup returns the endpoint for id, or nil if it was never created
// or has since been removed. This never blocks on generation checks;
// callers validate the capability's generation against the returned
// endpoint themselves (internal/ipc/capability.go), since the
// generation counter is read lock-free via atomics.
func (r *registry) lookup(id EndpointID) *Endpoint {
	sh := r.shardFor(id)
	sh.mu.RLock()
	ep := sh.data[id]
	sh.mu.RUnlock()
	return ep
}

// remove permanently deletes an endpoint from the registry, used by
// CleanupProcess when a process exits.
func (r *registry) remove(id EndpointID) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	delete(sh.data, id)
	sh.mu.Unlock()
}

// forEachOwnedBy calls fn for every endpoint owned by pid, across all
// shards. Used only by CleanupProcess, which runs once per process
// exit and can afford the full scan.
func (r *registry) forEachOwnedBy(pid uint32, fn func(*Endpoint)) {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		owned := make([]*Endpoint, 0)
		for _, ep := range sh.data {
			if ep.Owner == pid {
				owned = append(owned, ep)
			}
		}
		sh.mu.RUnlock()
		for _, ep := range owned {
			fn(ep)
		}
	}
}
