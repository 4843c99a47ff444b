package ipc

import "sync/atomic"

// Channel is a bidirectional pair of endpoints (spec.md §3): Local is
// side A's mailbox, which B sends into and A receives from, and Remote
// is side B's mailbox, the other way round. The two
// endpoints share one generation counter, so a single Revoke call
// invalidates capabilities to both directions at once.
type Channel struct {
	Local  *Endpoint
	Remote *Endpoint
}

// ChannelEnd is the pair of capabilities handed to one side of a
// Channel: Send authorizes posting into the peer's mailbox, Receive
// authorizes draining the caller's own.
type ChannelEnd struct {
	Send    Capability
	Receive Capability
}

// createChannel registers both of a channel's endpoints (one mailbox
// per owner) and mints each side's send+receive capability pair, per
// spec.md §4.1's open_channel syscall. A's mailbox is Local; sending
// into it is how B reaches A, so B's Send capability targets Local
// while A's Receive capability does too (and symmetrically for B).
func (r *registry) createChannel(ownerA, ownerB uint32, capacity int) (ch *Channel, endA, endB ChannelEnd) {
	gen := &atomic.Uint32{}
	a := r.create(ownerA, capacity, gen)
	b := r.create(ownerB, capacity, gen)

	endA = ChannelEnd{
		Send:    NewCapability(b.ID, b.Generation(), PermSend),
		Receive: NewCapability(a.ID, a.Generation(), PermReceive|PermRevoke),
	}
	endB = ChannelEnd{
		Send:    NewCapability(a.ID, a.Generation(), PermSend),
		Receive: NewCapability(b.ID, b.Generation(), PermReceive|PermRevoke),
	}

	return &Channel{Local: a, Remote: b}, endA, endB
}
