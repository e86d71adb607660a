// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"code.hybscloud.com/atomix"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// State is the lifecycle state of a [Thread].
type State int

const (
	// Uninitialized is the state of a Thread after NewThread and before
	// its first Run.
	Uninitialized State = iota
	// Runnable means the thread is linked into a priority ready queue.
	Runnable
	// Running means the thread is the one currently executing.
	Running
	// Blocked means the thread is linked into a primitive's waiter list,
	// and, if it has a finite timeout, also into the timeout queue.
	Blocked
	// Stopped is the terminal state: the entry function returned,
	// asserted, faulted, or the thread was killed.
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// EntryFunc is a thread's body. arg is the value passed to NewThread or
// InitAndRun. The return value becomes the thread's exit value, fetched
// by [Kernel.WaitForThreadStop].
type EntryFunc func(k *Kernel, t *Thread, arg any) any

// TerminationFunc runs when a thread is killed or faults, in place of
// the entry function having returned normally. It receives the
// termination argument and produces the thread's exit value. The
// default termination handler is a no-op that returns the termination
// argument unchanged.
type TerminationFunc func(k *Kernel, t *Thread, termArg any) any

func defaultTerminationHandler(_ *Kernel, _ *Thread, termArg any) any {
	return termArg
}

type tlsEntry struct {
	node ilist.Node
	key  uint32
	val  any
	free func(any)
}

// timeoutEntry links a Thread (blocked with a finite timeout) or a
// [Timer] into the kernel's single sorted timeout queue (§3.4). node
// must stay this struct's first field: [ilist.Owner] recovers the
// entry, and hence its owner, purely from the linked node.
type timeoutEntry struct {
	node     ilist.Node
	wakeTick uint64
	// expire runs with k.mu held when this entry's deadline arrives; it
	// is bound once, at construction, to close over the owning Thread
	// or Timer.
	expire func(k *Kernel)
}

func timeoutEntryOf(n *ilist.Node) *timeoutEntry {
	return ilist.Owner[timeoutEntry](n)
}

// Thread is an independently schedulable flow of control. The zero value
// is not usable; construct with [Kernel.NewThread].
//
// schedLink is the single link a Thread uses for scheduler membership:
// it is on at most one per-priority ready queue while Runnable or
// Running, or on at most one waiter list while Blocked — never both,
// since those states are mutually exclusive. A Blocked thread with a
// finite timeout additionally occupies its own timeout entry at the
// same time. Effective priority is always at least as urgent as nominal
// priority, i.e. numerically <= it, since 0 is the highest (§3).
type Thread struct {
	schedLink ilist.Node // first field: ready-queue XOR waiter-list membership
	timeout   timeoutEntry
	tls       ilist.List // list of *tlsEntry values set for this thread

	kernel *Kernel
	name   string

	nominalPriority   int
	effectivePriority int

	state State

	entry   EntryFunc
	arg     any
	termFn  TerminationFunc
	termArg any
	retval  any

	blockedOn  any // the Mutex/Semaphore/Signal this thread waits on
	hasTimeout bool
	timedOut   bool

	// waitMask is the bitmask this thread is waiting for when blockedOn
	// is a *Signal: raise wakes it once the signal's value intersects
	// this mask (§4.5.2). signalValue carries the consumed value back
	// to the waiter once woken.
	waitMask    uint32
	signalValue uint32

	stopRequested atomix.Bool

	// heldMutexes is the set of mutexes this thread currently owns,
	// consulted when recomputing effective priority on unlock (§4.5.5).
	heldMutexes []*Mutex

	// resume is the baton: the scheduler sends to it exactly when this
	// thread transitions to Running; the thread's goroutine blocks
	// receiving from it whenever it is not Running. Buffered with
	// capacity 1 so a wakeup racing with the thread observing its own
	// block never stalls the waker.
	resume chan struct{}
	// done is closed once the thread reaches Stopped. [Kernel.WaitForThreadStop]
	// snapshots this field under k.mu before selecting on it, so it is
	// safe to call from any goroutine even if the thread is later
	// restarted and given a fresh done channel.
	done chan struct{}

	refCount atomix.Int32
	dynamic  bool // true if descriptor+stack were heap-allocated by NewThread

	// killed is set by Kill before waking the thread; the thread's park
	// point (including the one in its goroutine wrapper before first
	// run) checks it and panics with killSignal to unwind straight to
	// the wrapper's recover, which dispatches the termination handler.
	killed bool
}

// Name returns the thread's diagnostic name.
func (t *Thread) Name() string { return t.name }

// Priority returns the thread's current nominal priority.
func (t *Thread) Priority() int { return t.nominalPriority }

// EffectivePriority returns the thread's current effective priority,
// which may be more urgent (numerically lower) than its nominal priority
// while it owns a mutex with higher-priority waiters (§4.5.5).
func (t *Thread) EffectivePriority() int { return t.effectivePriority }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return t.state }

// Done returns a channel closed once the thread reaches [Stopped],
// for embedders that want to select on thread completion alongside
// other channels rather than calling the blocking
// [Kernel.WaitForThreadStop].
func (t *Thread) Done() <-chan struct{} { return t.done }

// IsStopRequested reports whether another thread has called
// [Kernel.RequestStop] on this thread. Threads are expected to poll this
// cooperatively inside long-running loops.
func (t *Thread) IsStopRequested() bool {
	return t.stopRequested.LoadAcquire()
}

// ReturnValue returns the value the thread's entry function (or
// termination handler) produced. Only meaningful once State() ==
// Stopped; returns nil beforehand.
func (t *Thread) ReturnValue() any {
	return t.retval
}

// incRef increments the dynamic-thread reference count.
func (t *Thread) incRef() {
	if t.dynamic {
		t.refCount.AddAcqRel(1)
	}
}

// DecRef releases one reference to a dynamically allocated thread.
// When the count reaches zero the descriptor is eligible for collection
// by the Go garbage collector; rtcore does not itself free the backing
// memory beyond dropping references, since thread descriptors here are
// ordinary heap objects rather than slab-allocated C structs.
func (t *Thread) DecRef() {
	if !t.dynamic {
		return
	}
	t.refCount.AddAcqRel(-1)
}

// GetUniqueID returns a process-wide unique small integer, suitable as a
// thread-local-storage key. Monotonically increasing, never reused;
// delegates to the configured [UniqueIDGenerator].
func (k *Kernel) GetUniqueID() uint32 {
	return k.env.NextUniqueID()
}

// SetTLS stores val under key on thread t. If a destructor free is
// provided, it runs (on whichever goroutine tears the thread down) once
// the thread reaches Stopped and its slot is cleared.
func (k *Kernel) SetTLS(t *Thread, key uint32, val any, free func(any)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range t.tlsSlice() {
		if e.key == key {
			if e.free != nil {
				e.free(e.val)
			}
			e.val, e.free = val, free
			return
		}
	}
	e := &tlsEntry{key: key, val: val, free: free}
	t.tls.PushBack(&e.node)
}

// GetTLS retrieves the value stored under key on thread t, or nil if
// none was set.
func (k *Kernel) GetTLS(t *Thread, key uint32) any {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, e := range t.tlsSlice() {
		if e.key == key {
			return e.val
		}
	}
	return nil
}

func (t *Thread) tlsSlice() []*tlsEntry {
	var out []*tlsEntry
	ilist.Range(&t.tls, func(n *ilist.Node) {
		out = append(out, tlsEntryOf(n))
	})
	return out
}

func tlsEntryOf(n *ilist.Node) *tlsEntry {
	return ilist.Owner[tlsEntry](n)
}

// threadOfSchedLink recovers the Thread owning n, which must be that
// Thread's schedLink (its first field).
func threadOfSchedLink(n *ilist.Node) *Thread {
	return ilist.Owner[Thread](n)
}
