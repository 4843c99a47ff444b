package ipc

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndLookup(t *testing.T) {
	r := newRegistry()
	ep := r.create(1, 8, &atomic.Uint32{})
	require.NotNil(t, r.lookup(ep.ID))
	assert.Same(t, ep, r.lookup(ep.ID))
}

func TestRegistry_LookupUnknownReturnsNil(t *testing.T) {
	r := newRegistry()
	assert.Nil(t, r.lookup(EndpointID(999)))
}

func TestRegistry_RemoveDeletesEndpoint(t *testing.T) {
	r := newRegistry()
	ep := r.create(1, 8, &atomic.Uint32{})
	r.remove(ep.ID)
	assert.Nil(t, r.lookup(ep.ID))
}

func TestRegistry_IDsAreNeverReused(t *testing.T) {
	r := newRegistry()
	a := r.create(1, 8, &atomic.Uint32{})
	r.remove(a.ID)
	b := r.create(1, 8, &atomic.Uint32{})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRegistry_ForEachOwnedByFiltersCorrectly(t *testing.T) {
	r := newRegistry()
	a := r.create(1, 8, &atomic.Uint32{})
	_ = r.create(2, 8, &atomic.Uint32{})
	b := r.create(1, 8, &atomic.Uint32{})

	var seen []EndpointID
	r.forEachOwnedBy(1, func(ep *Endpoint) { seen = append(seen, ep.ID) })

	assert.ElementsMatch(t, []EndpointID{a.ID, b.ID}, seen)
}

func TestRegistry_ResolveRejectsStaleGeneration(t *testing.T) {
	r := newRegistry()
	ep := r.create(1, 8, &atomic.Uint32{})
	cap := NewCapability(ep.ID, ep.Generation(), PermReceive)
	ep.bumpGeneration()

	_, err := r.resolve(cap, PermReceive)
	assert.ErrorIs(t, err, ErrInvalidCapability)
}

func TestRegistry_ResolveRejectsMissingPermission(t *testing.T) {
	r := newRegistry()
	ep := r.create(1, 8, &atomic.Uint32{})
	cap := NewCapability(ep.ID, ep.Generation(), PermReceive)

	_, err := r.resolve(cap, PermSend)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
