package kernel

import (
	"fmt"
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/veridian-os/veridiancore/internal/mm"
)

// BootConfig is the "small configuration struct from the boot
// collaborator" spec.md §6 describes, decoded from a TOML document
// supplied at boot. Zero values mean "let DiscoverMemory/DiscoverCPUs
// decide."
type BootConfig struct {
	Threshold    uint64               `toml:"threshold"`
	QuantumTicks uint64               `toml:"quantum_ticks"`
	TimerHz      int                  `toml:"timer_hz"`
	Nodes        []BootConfigNumaNode `toml:"node"`
}

// BootConfigNumaNode describes one NUMA node's physical-memory map
// entry, mirroring spec.md §6's "physical-memory map with ranges
// marked usable or reserved" and "NUMA topology (or a single node if
// unknown)".
type BootConfigNumaNode struct {
	ID         int            `toml:"id"`
	FrameCount uint64         `toml:"frame_count"`
	Distances  map[string]int `toml:"distances"`
}

// LoadBootConfig decodes a BootConfig from a TOML document, following
// the teacher's use of github.com/BurntSushi/toml for its own
// configuration needs.
func LoadBootConfig(path string) (BootConfig, error) {
	var cfg BootConfig
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}

// DecodeBootConfig decodes a BootConfig from a string of TOML text, for
// callers (tests, embedded configs) that don't have it on disk.
func DecodeBootConfig(data string) (BootConfig, error) {
	var cfg BootConfig
	_, err := toml.Decode(data, &cfg)
	return cfg, err
}

// DiscoverMemory reports the host's total physical memory in bytes via
// github.com/pbnjay/memory, used only by the demo boot glue
// (cmd/veridiancore) to size a single-node topology when no BootConfig
// supplies an explicit frame count — a real kernel gets this from the
// bootloader's memory map instead, per spec.md §6.
func DiscoverMemory() uint64 {
	return memory.TotalMemory()
}

// FramesFromBytes converts a byte count to a whole number of
// mm.PageSize frames, rounding down so the result never claims more
// memory than is actually present.
func FramesFromBytes(bytes uint64) uint64 {
	return bytes / mm.PageSize
}

// DiscoverCPUs reports the number of CPUs the scheduler should size its
// per-CPU arrays for. It calls go.uber.org/automaxprocs/maxprocs.Set so
// that, inside a cgroup-limited container, the demo boot glue respects
// the same CPU quota GOMAXPROCS would, then reports
// runtime.GOMAXPROCS(0) (at least 1), whether or not Set succeeded.
// The returned undo func restores the prior GOMAXPROCS
// and should be deferred by the caller.
func DiscoverCPUs(log func(string, ...any)) (numCPUs int, undo func(), err error) {
	if log == nil {
		log = func(string, ...any) {}
	}
	undo, err = maxprocs.Set(maxprocs.Logger(log))
	if err != nil {
		undo = func() {}
	}
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n, undo, err
}

// DiscoverCPUsFromEnv is a thin convenience wrapper used by the demo
// entry point: it logs via os.Stderr-equivalent formatting rather than
// requiring a caller to thread a logger through.
func DiscoverCPUsFromEnv() (numCPUs int, undo func(), err error) {
	return DiscoverCPUs(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "automaxprocs: "+format+"\n", args...)
	})
}
