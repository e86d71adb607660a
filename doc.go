// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtcore is a single-core, preemptive, priority-based real-time
// kernel core, simulated on top of goroutines.
//
// The core schedules logical [Thread] values across priority levels,
// runs exactly one of them at a time, and provides the synchronization
// and timing primitives a small RTOS kernel offers its application
// code: recursive mutexes with priority inheritance, counting
// semaphores, event-flag signals, bounded message queues, software
// timers, and a first-fit heap with an optional slab pool on top.
//
// # Concurrency model
//
// Application code never runs on more than one goroutine at a time.
// Each [Thread] owns a goroutine that blocks on a private resume gate
// whenever it is not the thread the scheduler has chosen to run;
// [Kernel] holds a single lock that stands in for "interrupts
// disabled" in the systems this package models, serializing every
// scheduling decision exactly as a real kernel's critical section
// does. Collaborators supplied through [ContextSwitcher], [TickSource],
// and [InterruptController] let an embedder drive the simulation from
// real hardware timers and interrupts; [NewSimulation] wires up a
// goroutine/time-backed default for standalone use and tests.
//
// # Quick start
//
//	k := rtcore.NewKernel(rtcore.New(4, 1000).Build(), rtcore.NewSimulation())
//	k.InitAndRun("worker", 1, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
//	    for !t.IsStopRequested() {
//	        // ...
//	        k.Yield()
//	    }
//	    return nil
//	}, nil)
//	k.Start()
//
// # Priority and preemption
//
// Priorities are small integers in [0, N), 0 highest. A thread runs
// until it blocks, yields, is preempted by a higher-priority thread
// becoming runnable, or is killed. Because this package has no way to
// interrupt a goroutine mid-instruction, preemption of a thread that is
// not currently parked at one of its own blocking calls is deferred to
// its next voluntary suspension point; see the package's design notes
// for why this is the only faithful rendering of "preemptive" available
// without real hardware.
//
// # Errors
//
// Non-blocking and timed operations report expected outcomes — would
// block, timed out — as ordinary errors classified by [IsWouldBlock],
// [IsTimeout], and [IsNonFailure]. Fatal conditions (an unhandled
// assert, a killed thread, an unrecovered fault) never surface as
// errors: they terminate the thread and are visible through
// [Thread.State] and [Thread.ReturnValue].
package rtcore
