package kernel

import (
	"github.com/veridian-os/veridiancore/internal/logging"
	"github.com/veridian-os/veridiancore/internal/sched"
)

// DiagnosticDump is the structured snapshot spec.md §7 requires before
// a fatal halt ("the kernel logs a diagnostic") without shaping what
// goes in it. This defines the shape: task states, per-node free
// counts, and endpoint ring depths, everything a human staring at the
// log needs to reconstruct what the core was doing when it detected
// corruption.
type DiagnosticDump struct {
	Reason       string           `json:"reason"`
	Tasks        []TaskSnapshot   `json:"tasks"`
	Nodes        []NodeSnapshot   `json:"nodes"`
	Endpoints    []EndpointSample `json:"endpoints,omitempty"`
	OffendingCPU int              `json:"offending_cpu"`
}

// TaskSnapshot captures one task's scheduling state at dump time.
type TaskSnapshot struct {
	ID    sched.TaskID    `json:"id"`
	Name  string          `json:"name"`
	State sched.TaskState `json:"state"`
	CPU   int             `json:"cpu"`
}

// NodeSnapshot captures one NUMA node's allocator occupancy.
type NodeSnapshot struct {
	NodeID      int    `json:"node_id"`
	FreeFrames  uint64 `json:"free_frames"`
	TotalFrames uint64 `json:"total_frames"`
}

// EndpointSample captures one endpoint's queue depth; the full
// endpoint set isn't walked (the registry is sharded specifically so
// no single lock protects it all at once), so callers supply whichever
// endpoints are relevant to the detected fault.
type EndpointSample struct {
	Pending  int `json:"pending"`
	Capacity int `json:"capacity"`
	Waiters  int `json:"waiters"`
}

// Dump logs d at Crit level via internal/logging and then panics,
// matching Fatal's "diagnostic dump before halt" contract. It never
// returns.
func (d DiagnosticDump) Dump(log *logging.Logger) {
	logging.Fatal(log, "kernel: fatal corruption detected", map[string]any{
		"reason":        d.Reason,
		"offending_cpu": d.OffendingCPU,
		"tasks":         d.Tasks,
		"nodes":         d.Nodes,
		"endpoints":     d.Endpoints,
	})
}
