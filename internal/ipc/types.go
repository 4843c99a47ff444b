// Package ipc implements VeridianOS's IpcEngine: capability-mediated
// message delivery between processes, with a register-copy fast path
// for small messages and a zero-copy shared-region path for large ones.
package ipc

import (
	"fmt"
)

// EndpointID uniquely identifies an endpoint for its lifetime; never
// reused (spec.md §3).
type EndpointID uint32

// Generation is an endpoint's revocation counter: every capability
// referring to the endpoint embeds the generation it was minted under,
// and a capability is valid only while its generation matches the
// endpoint's current one (spec.md §3/§4.3).
type Generation uint16

// Perm is a bitmask of operations a Capability authorizes.
type Perm uint16

const (
	PermSend Perm = 1 << iota
	PermReceive
	PermGrant
	PermRevoke

	PermAll = PermSend | PermReceive | PermGrant | PermRevoke
)

func (p Perm) Has(want Perm) bool { return p&want == want }

func (p Perm) String() string {
	s := ""
	for _, f := range []struct {
		bit  Perm
		name string
	}{{PermSend, "SEND"}, {PermReceive, "RECEIVE"}, {PermGrant, "GRANT"}, {PermRevoke, "REVOKE"}} {
		if p.Has(f.bit) {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// Capability is an unforgeable 64-bit token: bits 0-31 endpoint id,
// bits 32-47 generation, bits 48-63 permission flags (spec.md §3).
type Capability uint64

func NewCapability(id EndpointID, gen Generation, perms Perm) Capability {
	return Capability(uint64(id) | uint64(gen)<<32 | uint64(perms)<<48)
}

func (c Capability) EndpointID() EndpointID { return EndpointID(uint32(c)) }
func (c Capability) Generation() Generation { return Generation(uint16(c >> 32)) }
func (c Capability) Perms() Perm            { return Perm(uint16(c >> 48)) }

func (c Capability) String() string {
	return fmt.Sprintf("Capability{ep=%d gen=%d perms=%s}", c.EndpointID(), c.Generation(), c.Perms())
}

// maxSmallMessage is the inline payload threshold; at or below this
// size a message takes the register-copy fast path (spec.md §4.3).
const maxSmallMessage = 64

// MessageKind distinguishes a Message's payload representation.
type MessageKind int

const (
	SmallMessage MessageKind = iota
	LargeMessage
)

// Message is spec.md §3's tagged union: either up to 64 bytes inline,
// or a (region, offset, length) descriptor into a SharedRegion.
type Message struct {
	Kind MessageKind

	// Inline holds the payload when Kind == SmallMessage.
	Inline []byte

	// RegionID, Offset, Length describe the payload when Kind ==
	// LargeMessage.
	RegionID RegionID
	Offset   uint64
	Length   uint64
}

func newSmallMessage(payload []byte) (Message, error) {
	if len(payload) > maxSmallMessage {
		return Message{}, ErrInvalidArgument
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return Message{Kind: SmallMessage, Inline: buf}, nil
}
