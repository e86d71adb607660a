// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

// FaultPolicy selects what happens when a thread's entry function (or
// termination handler) panics with something other than the kernel's
// own kill signal (§7: an unhandled assert or memory fault).
type FaultPolicy int

const (
	// TerminateOnFault converts the fault into ordinary termination: the
	// thread reaches Stopped with the recovered value as its termination
	// argument, exactly as if it had been killed. This is the policy
	// assumed throughout this package unless configured otherwise.
	TerminateOnFault FaultPolicy = iota
	// HangOnFault blocks the faulting goroutine forever instead of
	// unwinding it, for targets where a faulted thread must stay
	// observable (e.g. under a debugger) rather than silently vanish.
	HangOnFault
)

// Config is the kernel's immutable configuration, built with [New] and
// [Builder.Build]: priority count, tick calibration, and the optional
// collaborators threaded through to [ContextSwitcher], [TickSource], and
// fault handling.
type Config struct {
	priorityCount        int
	cyclesPerTick        uint64
	cyclesPerMicrosecond uint64
	maxTickInterval      uint64
	fpContextSwitching   bool
	stackMonitoring      bool
	keepTickRunning      bool
	faultPolicy          FaultPolicy
	tracef               func(format string, args ...any)
}

// Builder assembles a [Config] with a fluent API, in the style the rest
// of the hybscloud concurrency stack uses for its option types.
type Builder struct {
	cfg Config
}

// New starts a Builder. priorityCount is the number of distinct
// priority levels, numbered 0 (highest) through priorityCount-1
// (lowest); cyclesPerTick is validated and stored in the Config, but the
// kernel core does not otherwise read it: [Kernel.DelayMicroseconds] is
// calibrated by [Builder.CyclesPerMicrosecond], and tick counts come
// straight from the [TickSource]. Panics if priorityCount < 1 or
// cyclesPerTick == 0.
func New(priorityCount int, cyclesPerTick uint64) *Builder {
	if priorityCount < 1 {
		panic("rtcore: priorityCount must be >= 1")
	}
	if cyclesPerTick == 0 {
		panic("rtcore: cyclesPerTick must be > 0")
	}
	return &Builder{cfg: Config{
		priorityCount:        priorityCount,
		cyclesPerTick:        cyclesPerTick,
		cyclesPerMicrosecond: 1,
		maxTickInterval:      1 << 20,
		faultPolicy:          TerminateOnFault,
	}}
}

// CyclesPerMicrosecond calibrates [Kernel.DelayMicroseconds] independently
// of the tick interval. Defaults to 1.
func (b *Builder) CyclesPerMicrosecond(cycles uint64) *Builder {
	if cycles == 0 {
		cycles = 1
	}
	b.cfg.cyclesPerMicrosecond = cycles
	return b
}

// MaxTickInterval bounds how many ticks' worth of time the kernel will
// ask a tickless [TickSource] to sleep for in one go, even when the
// timeout queue is empty. Defaults to 1<<20.
func (b *Builder) MaxTickInterval(ticks uint64) *Builder {
	if ticks == 0 {
		ticks = 1
	}
	b.cfg.maxTickInterval = ticks
	return b
}

// FPContextSwitching marks that threads use floating-point state. The
// flag is recorded in the Config only: the kernel core never touches FP
// registers, does not read the flag, and does not pass it to the
// [ContextSwitcher].
func (b *Builder) FPContextSwitching() *Builder {
	b.cfg.fpContextSwitching = true
	return b
}

// StackMonitoring marks that stack-usage monitoring is wanted. The flag
// is recorded in the Config only: the kernel core does not read it and
// calls no stack-monitoring hook on the [ContextSwitcher].
func (b *Builder) StackMonitoring() *Builder {
	b.cfg.stackMonitoring = true
	return b
}

// KeepTickRunning disables tickless idle: the tick source is asked to
// keep firing at its nominal interval even while the timeout queue is
// empty, instead of being reprogrammed for a longer sleep.
func (b *Builder) KeepTickRunning() *Builder {
	b.cfg.keepTickRunning = true
	return b
}

// WithFaultPolicy sets the hang-vs-terminate behavior for unhandled
// faults (panics other than the kernel's own kill signal).
func (b *Builder) WithFaultPolicy(p FaultPolicy) *Builder {
	b.cfg.faultPolicy = p
	return b
}

// Tracef installs the formatted trace sink consulted only on assert and
// fault paths. Defaults to a no-op.
func (b *Builder) Tracef(fn func(format string, args ...any)) *Builder {
	b.cfg.tracef = fn
	return b
}

// Build finalizes the configuration.
func (b *Builder) Build() Config {
	if b.cfg.tracef == nil {
		b.cfg.tracef = func(string, ...any) {}
	}
	return b.cfg
}
