// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

// This file declares the collaborator interfaces the kernel core
// consumes instead of reaching around to real hardware: a pendable
// context-switch trap, a tick source, an interrupt controller, a
// software-interrupt trigger for BSP-level tests, a trace sink, and a
// unique-ID generator. The core never implements these itself; [Environment]
// bundles them, and [NewSimulation] supplies a goroutine/time-backed
// default for standalone operation and tests. A production embedder
// wires its own implementations against real silicon.

// ContextSwitcher is notified around scheduler-driven context switches.
// RequestSwitch asks for a scheduler entry to run at the next
// opportunity — the analog of pending the supervisor-call trap from
// ISR context, where a direct call into the scheduler would be unsafe.
// Switched is an optional post-switch hook used for stack-usage
// monitoring or lazy FP context save/restore bookkeeping; it is safe to
// no-op.
type ContextSwitcher interface {
	RequestSwitch()
	Switched(prev, next *Thread)
}

// TickSource drives the kernel's periodic and tickless-idle scheduling.
// Start registers the callback to invoke once per nominal tick
// interval; Reprogram changes how many nominal intervals must elapse
// before the next callback, implementing both round-robin time-slicing
// (a small finite interval) and tickless idle (the configured maximum
// interval, or the time until the next timeout-queue deadline).
type TickSource interface {
	Start(fn func())
	Reprogram(intervals uint64)
}

// InterruptController models the processor's interrupt mask and
// priority-threshold register. The kernel core does not call these
// itself — ISR-safe primitive operations are modeled as ordinary Go
// calls serialized by [Kernel]'s own lock — but exposes them so
// embedders and BSP-level tests can assert masking discipline around
// their own interrupt handlers.
type InterruptController interface {
	Mask()
	Unmask()
	SetPriority(level int)
}

// SoftwareInterrupt triggers a software interrupt, for BSP conformance
// tests that need to exercise an ISR-context code path without waiting
// for real hardware.
type SoftwareInterrupt interface {
	Trigger()
}

// Tracer is the formatted print/trace facility consulted only on
// assert and fault paths.
type Tracer interface {
	Tracef(format string, args ...any)
}

// UniqueIDGenerator hands out process-wide unique small integers, used
// as thread-local-storage keys.
type UniqueIDGenerator interface {
	NextUniqueID() uint32
}

// Environment bundles every collaborator [NewKernel] requires. [NewSimulation]
// returns a single value satisfying all six for standalone use; a
// production embedder typically implements Environment directly against
// its BSP.
type Environment interface {
	TickSource
	ContextSwitcher
	InterruptController
	SoftwareInterrupt
	Tracer
	UniqueIDGenerator
}
