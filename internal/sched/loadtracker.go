package sched

import "sync"

// loadEMAAlpha matches the teacher's QueueMetrics exponential moving
// average smoothing factor (metrics.go's UpdateIngress/UpdateInternal),
// reused here for the same reason: a fast-reacting but not noisy
// picture of recent load, with a warm-start to the first observation so
// the first few ticks aren't biased toward zero.
const loadEMAAlpha = 0.1

// LoadTracker is advisory-only per spec.md §2's non-goals ("SMP
// migration/load-balancing beyond advisory load tracking"): nothing in
// this package reads LoadTracker to make a scheduling decision, it only
// recomputes readyDepth and busyTicks/totalTicks for MM or ipc diagnostics and future
// tooling to read.
type LoadTracker struct {
	mu sync.Mutex

	readyDepth    int
	readyDepthMax int
	readyAvg      float64
	readyAvgInit  bool

	busyTicks int64
	totalTicks int64
}

// Observe records one timer_tick's outcome: whether the CPU ran
// something other than its idle task, and how many tasks are currently
// sitting in ready queues.
func (lt *LoadTracker) Observe(busy bool, readyDepth int) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.totalTicks++
	if busy {
		lt.busyTicks++
	}

	lt.readyDepth = readyDepth
	if readyDepth > lt.readyDepthMax {
		lt.readyDepthMax = readyDepth
	}
	if !lt.readyAvgInit {
		lt.readyAvg = float64(readyDepth)
		lt.readyAvgInit = true
	} else {
		lt.readyAvg = (1-loadEMAAlpha)*lt.readyAvg + loadEMAAlpha*float64(readyDepth)
	}
}

// Snapshot is a point-in-time, advisory read of a CPU's load.
type Snapshot struct {
	ReadyDepth    int
	ReadyDepthMax int
	ReadyDepthAvg float64
	// Utilization is busyTicks/totalTicks in [0,1], or 0 before the
	// first tick.
	Utilization float64
}

func (lt *LoadTracker) Snapshot() Snapshot {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	var util float64
	if lt.totalTicks > 0 {
		util = float64(lt.busyTicks) / float64(lt.totalTicks)
	}
	return Snapshot{
		ReadyDepth:    lt.readyDepth,
		ReadyDepthMax: lt.readyDepthMax,
		ReadyDepthAvg: lt.readyAvg,
		Utilization:  util,
	}
}
