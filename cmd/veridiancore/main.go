// Command veridiancore boots a single-process simulation of the core:
// one NUMA node sized off the host's real memory, one scheduler per
// discovered CPU, and one IPC channel carrying one demo message
// through the fast path. It stands in for the boot
// collaborator spec.md §6 describes as external to the core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/veridian-os/veridiancore/internal/kernel"
	"github.com/veridian-os/veridiancore/internal/logging"
	"github.com/veridian-os/veridiancore/internal/mm"
)

// demoFrames caps how much of the host's real memory the simulation
// claims, so running this on a developer laptop doesn't try to back a
// many-gigabyte NumaNode.Backing slice.
const demoFrames = 1 << 16 // 256 MiB worth of 4 KiB frames

func main() {
	var bootConfigPath string
	flag.StringVar(&bootConfigPath, "boot-config", "", "path to a TOML BootConfig (optional)")
	flag.Parse()

	log := logging.New(os.Stdout, logiface.LevelInformational)

	numCPUs, undoMaxProcs, err := kernel.DiscoverCPUsFromEnv()
	if err != nil {
		log.Warning().Field("error", err.Error()).Log("automaxprocs: falling back to the current GOMAXPROCS")
	}
	defer undoMaxProcs()

	frames := uint64(demoFrames)
	if hostFrames := kernel.FramesFromBytes(kernel.DiscoverMemory()); hostFrames < frames {
		frames = hostFrames
	}

	timerHz := 100
	var opts []kernel.Option
	if bootConfigPath != "" {
		cfg, err := kernel.LoadBootConfig(bootConfigPath)
		if err != nil {
			log.Crit().Field("error", err.Error()).Field("path", bootConfigPath).Log("failed to load boot config")
			os.Exit(1)
		}
		if cfg.Threshold != 0 {
			opts = append(opts, kernel.WithThreshold(cfg.Threshold))
		}
		if cfg.QuantumTicks != 0 {
			opts = append(opts, kernel.WithQuantumTicks(cfg.QuantumTicks))
		}
		if cfg.TimerHz != 0 {
			timerHz = cfg.TimerHz
			opts = append(opts, kernel.WithTimerHz(cfg.TimerHz))
		}
		if len(cfg.Nodes) > 0 && cfg.Nodes[0].FrameCount != 0 {
			frames = cfg.Nodes[0].FrameCount
		}
	}
	opts = append(opts, kernel.WithLogger(log))

	topology := []*mm.NumaNode{{
		ID:        0,
		BaseFrame: 0,
		Alloc:     mm.NewHybridAllocator(frames, mm.DefaultThreshold),
		Distances: map[int]int{0: 0},
		CPUs:      cpuSet(numCPUs),
		Backing:   make([]byte, frames*mm.PageSize),
	}}

	core := kernel.Boot(topology, numCPUs, opts...)
	log.Info().
		Field("frames", frames).
		Field("cpus", numCPUs).
		Log("core booted")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	wait := runPinned(ctx, core, log)

	runDemoWorkload(core, log)

	ticker := time.NewTicker(time.Second / time.Duration(timerHz))
	defer ticker.Stop()
	var tick uint64
	for {
		select {
		case <-ctx.Done():
			if err := wait(); err != nil && err != context.Canceled {
				log.Warning().Field("error", err.Error()).Log("scheduler loop exited with error")
			}
			fmt.Println("veridiancore: shut down")
			return
		case <-ticker.C:
			tick++
			core.TimerTick(tick)
		}
	}
}

// runPinned starts one scheduler dispatch goroutine per CPU, each
// locked to its own OS thread and pinned to the matching logical CPU
// before entering Scheduler.Run, so the simulation's per-CPU run
// queues map onto real CPU affinity rather than just a label — unlike
// kernel.Core.Run, which doesn't lock/pin, since internal/kernel has
// no dependency on golang.org/x/sys/unix.
func runPinned(ctx context.Context, core *kernel.Core, log *logging.Logger) func() error {
	errs := make(chan error, core.Sched.NumCPUs())
	for cpu := 0; cpu < core.Sched.NumCPUs(); cpu++ {
		cpu := cpu
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := pinCurrentThread(cpu); err != nil {
				log.Warning().Field("cpu", cpu).Field("error", err.Error()).Log("failed to pin OS thread to cpu")
			}
			errs <- core.Sched.Run(ctx, cpu)
		}()
	}
	return func() error {
		var first error
		for i := 0; i < core.Sched.NumCPUs(); i++ {
			if err := <-errs; err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// runDemoWorkload exercises S2 from spec.md §8 end to end through the
// syscall-shaped surface: create a channel, send a small message,
// receive it back.
func runDemoWorkload(core *kernel.Core, log *logging.Logger) {
	pidA := core.NewProcessID()
	pidB := core.NewProcessID()

	endA, endB, errno := core.SysIPCChannelCreate(pidA, pidB, 8)
	if errno != kernel.OK {
		log.Crit().Field("errno", errno.String()).Log("channel_create failed")
		return
	}

	payload := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}
	if errno := core.SysIPCSend(pidA, endA.Send, payload); errno != kernel.OK {
		log.Crit().Field("errno", errno.String()).Log("send failed")
		return
	}

	msg, errno := core.SysIPCRecv(0, endB.Receive, true)
	if errno != kernel.OK {
		log.Crit().Field("errno", errno.String()).Log("receive failed")
		return
	}
	log.Info().
		Field("kind", msg.Kind).
		Field("bytes", len(msg.Inline)).
		Log("demo message round trip complete")
}

func cpuSet(numCPUs int) map[int]struct{} {
	m := make(map[int]struct{}, numCPUs)
	for i := 0; i < numCPUs; i++ {
		m[i] = struct{}{}
	}
	return m
}

