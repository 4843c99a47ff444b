package kernel

import (
	"github.com/veridian-os/veridiancore/internal/logging"
	"github.com/veridian-os/veridiancore/internal/mm"
)

// coreOptions holds build-time configuration for a Core, following the
// teacher's loopOptions/LoopOption pattern (see eventloop.Option).
type coreOptions struct {
	threshold            uint64
	quantumTicks         uint64
	timerHz              int
	defaultQueueCapacity int
	logger               *logging.Logger
}

// Option configures a Core at construction time.
type Option interface {
	applyCore(*coreOptions)
}

type optionFunc func(*coreOptions)

func (f optionFunc) applyCore(o *coreOptions) { f(o) }

// WithThreshold overrides the FrameAllocator's bitmap/buddy cutover,
// in frames. Default mm.DefaultThreshold.
func WithThreshold(frames uint64) Option {
	return optionFunc(func(o *coreOptions) { o.threshold = frames })
}

// WithQuantumTicks records a quantum, in timer ticks. Default matches
// sched.DefaultQuantumTicks. Boot does not pass the value on: the
// scheduler gives every dispatched task sched.DefaultQuantumTicks
// whatever this option is set to.
func WithQuantumTicks(ticks uint64) Option {
	return optionFunc(func(o *coreOptions) { o.quantumTicks = ticks })
}

// WithTimerHz overrides the assumed timer IRQ frequency used only for
// documentation/diagnostics purposes; the scheduler itself is tick-
// counted, not wall-clock-driven (spec.md §6). Default 100.
func WithTimerHz(hz int) Option {
	return optionFunc(func(o *coreOptions) { o.timerHz = hz })
}

// WithDefaultQueueCapacity overrides the message-ring capacity given to
// endpoints created without an explicit capacity.
func WithDefaultQueueCapacity(capacity int) Option {
	return optionFunc(func(o *coreOptions) { o.defaultQueueCapacity = capacity })
}

// WithLogger attaches a root logger; a disabled logger is used if
// never set.
func WithLogger(l *logging.Logger) Option {
	return optionFunc(func(o *coreOptions) { o.logger = l })
}

func resolveOptions(opts []Option) *coreOptions {
	cfg := &coreOptions{
		threshold:            mm.DefaultThreshold,
		quantumTicks:         1,
		timerHz:              100,
		defaultQueueCapacity: 32,
		logger:               logging.Disabled(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyCore(cfg)
	}
	return cfg
}
