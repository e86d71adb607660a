// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"sync"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// Kernel owns every priority ready queue, the timeout queue, and the
// single critical-section lock that stands in for "interrupts
// disabled" across the scheduler and every primitive in this package.
// The zero value is not usable; construct with [NewKernel].
type Kernel struct {
	mu  sync.Mutex
	cfg Config
	env Environment

	ready    []ilist.List
	timeoutQ ilist.List

	tick atomix.Uint64

	current *Thread
	idle    *Thread

	armedIntervals uint64
	stopCh         chan struct{}
	stopped        bool

	hooks tickHooks
}

// NewKernel constructs a Kernel from cfg and its collaborating
// environment. The kernel makes its first scheduling decision when a
// thread is first made runnable with [Kernel.Run] or [Kernel.InitAndRun];
// ticks are delivered only once [Kernel.Start] has started the tick
// source.
func NewKernel(cfg Config, env Environment) *Kernel {
	k := &Kernel{
		cfg: cfg,
		env: env,
	}
	k.ready = make([]ilist.List, cfg.priorityCount)
	for i := range k.ready {
		k.ready[i].Init()
	}
	k.timeoutQ.Init()
	k.hooks.init()
	k.stopCh = make(chan struct{})

	k.idle = &Thread{
		kernel:           k,
		name:             "idle",
		nominalPriority:  cfg.priorityCount - 1,
		effectivePriority: cfg.priorityCount - 1,
		state:            Runnable,
	}
	k.idle.tls.Init()
	k.ready[k.idle.nominalPriority].PushBack(&k.idle.schedLink)
	k.current = k.idle

	return k
}

// killSignal is panicked by a thread's own park point once it observes
// itself marked killed, unwinding straight to the recover in its
// goroutine wrapper. It carries no data; the termination argument
// travels separately on Thread.termArg.
type killSignal struct{}

// NewThread allocates and initializes a new thread descriptor with its
// stack size (retained only for API parity: Go manages goroutine stacks
// itself), priority, entry function, and argument. The thread is left
// Uninitialized and has no goroutine yet; [Kernel.Run] (or
// [Kernel.InitAndRun]) makes it Runnable and starts its goroutine. name
// is a diagnostic label. Panics if priority is outside [0, N).
func (k *Kernel) NewThread(name string, priority int, stackSize int, entry EntryFunc, arg any) *Thread {
	if priority < 0 || priority >= k.cfg.priorityCount {
		panic("rtcore: priority out of range")
	}
	t := &Thread{
		kernel:            k,
		name:              name,
		nominalPriority:   priority,
		effectivePriority: priority,
		state:             Uninitialized,
		entry:             entry,
		arg:               arg,
		termFn:            defaultTerminationHandler,
		resume:            make(chan struct{}, 1),
		done:              make(chan struct{}),
		dynamic:           true,
	}
	t.timeout.expire = func(kk *Kernel) { kk.expireThreadWaitLocked(t) }
	t.tls.Init()
	t.incRef()
	return t
}

// Run starts the thread at its current priority: Uninitialized and
// Stopped threads move to Runnable and are linked onto their ready
// queue, and a fresh goroutine is started for them. Panics if t is in
// any other state: re-running a live thread is a caller error.
func (k *Kernel) Run(t *Thread) {
	k.mu.Lock()
	first := t.state == Uninitialized || t.state == Stopped
	if !first {
		k.mu.Unlock()
		panic("rtcore: Run on a thread that is neither uninitialized nor stopped")
	}
	if t.state == Stopped {
		t.done = make(chan struct{})
	}
	t.state = Runnable
	t.effectivePriority = t.nominalPriority
	k.readyPushLocked(t)
	if first {
		go k.runThreadGoroutine(t)
	}
	k.scheduleLocked()
	k.mu.Unlock()
}

// InitAndRun is the combined form of constructing and running a thread.
func (k *Kernel) InitAndRun(name string, priority int, stackSize int, entry EntryFunc, arg any) *Thread {
	t := k.NewThread(name, priority, stackSize, entry, arg)
	k.Run(t)
	return t
}

// Start begins the tick source and blocks the calling goroutine until
// [Kernel.Stop] is called. Threads already made Runnable via Run or
// InitAndRun before Start execute concurrently with this call; Start
// itself represents the processor idling whenever no thread is
// current.
func (k *Kernel) Start() {
	k.env.Start(k.onTick)
	<-k.stopCh
}

// Stop requests the top-level Start call to return. It does not
// terminate any thread.
func (k *Kernel) Stop() {
	k.mu.Lock()
	if !k.stopped {
		k.stopped = true
		close(k.stopCh)
		k.broadcastSchedulerExitLocked()
	}
	k.mu.Unlock()
}

// runThreadGoroutine is the body every dynamically created thread's
// goroutine runs. It blocks until the scheduler first hands it the
// resume baton, then calls the entry function, converting a normal
// return, a kill, or any other recovered panic into termination
// uniformly (§7).
func (k *Kernel) runThreadGoroutine(t *Thread) {
	<-t.resume
	var result any
	var termArg any
	isKillOrFault := false

	k.mu.Lock()
	killedBeforeRun := t.killed
	t.killed = false
	k.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				isKillOrFault = true
				if _, ok := r.(killSignal); ok {
					k.mu.Lock()
					termArg = t.termArg
					k.mu.Unlock()
				} else {
					if k.cfg.faultPolicy == HangOnFault {
						k.cfg.tracef("rtcore: thread %q faulted: %v", t.name, r)
						k.env.Tracef("rtcore: thread %q faulted: %v", t.name, r)
						select {}
					}
					termArg = r
				}
			}
		}()
		if killedBeforeRun {
			panic(killSignal{})
		}
		result = t.entry(k, t, t.arg)
	}()

	if isKillOrFault {
		result = t.termFn(k, t, termArg)
	}
	k.finishThread(t, result)
}

// Yield is an explicit suspension point (§5): the calling thread gives
// up its remaining time slice. It stays linked on its priority's ready
// queue — pickNextLocked already rotated it to the tail the moment it
// was chosen to run — so Yield only needs to hand control back to the
// scheduler.
func (k *Kernel) Yield() {
	k.mu.Lock()
	t := k.current
	t.state = Runnable
	k.park(t)
	k.mu.Unlock()
}

// park must be called by t's own goroutine with k.mu held and t.state
// already transitioned out of Running. It hands control to the
// scheduler, releases k.mu, and blocks until t is scheduled again,
// re-acquiring k.mu before returning — mu is held on return, exactly
// like every other *Locked helper, so callers chain directly off it.
// If t was killed while parked, park instead unlocks and panics with
// killSignal so the goroutine wrapper's recover can dispatch the
// termination handler.
func (k *Kernel) park(t *Thread) {
	k.scheduleLocked()
	k.mu.Unlock()
	<-t.resume
	k.mu.Lock()
	if t.killed {
		t.killed = false
		k.mu.Unlock()
		panic(killSignal{})
	}
}

// scheduleLocked performs one scheduler entry (§4.6 steps 2-8) and must
// be called with k.mu held; it returns with k.mu still held.
//
// If the previously current thread is still in the Running state, this
// call originated asynchronously (a tick interrupt, or another thread's
// post/raise/send observing a genuinely busy thread) while that thread's
// own goroutine is still executing non-suspended application code.
// There is no portable way to preempt it mid-instruction, so only the
// bookkeeping steps (timeout expiry, ready-queue selection, interval
// reprogramming) run; the actual handoff is deferred to that thread's
// own next voluntary suspension point, which calls scheduleLocked again
// with itself no longer Running (§9(c)).
func (k *Kernel) scheduleLocked() {
	k.expireTimeoutsLocked()
	prev := k.current
	k.programNextIntervalLocked()

	if prev != nil && prev != k.idle && prev.state == Running {
		// On real hardware this is where a pend-SV-style trap would be
		// requested so the actual handoff runs once the interrupted
		// context unwinds to a safe point; in this simulation the
		// handoff instead happens at prev's own next voluntary
		// suspension point, but the request is still issued so an
		// embedder's ContextSwitcher sees every deferred entry.
		k.env.RequestSwitch()
		return
	}

	// Only rotate and pop the chosen ready queue once a real handoff is
	// actually going to happen — not on every deferred/gated entry —
	// so a thread that stays busy across several ticks doesn't cycle
	// other same-priority threads through the front position without
	// any of them actually getting to run.
	next := k.pickNextLocked()
	k.current = next
	next.state = Running
	k.env.Switched(prev, next)
	if next != k.idle {
		next.resume <- struct{}{}
	}
}

// pickNextLocked selects the highest-priority non-empty ready queue,
// rotating its head to the tail for round-robin, per §4.6 step 5. The
// idle thread, always present at the lowest priority, guarantees a
// candidate always exists.
func (k *Kernel) pickNextLocked() *Thread {
	for pri := 0; pri < len(k.ready); pri++ {
		if k.ready[pri].IsEmpty() {
			continue
		}
		n := k.ready[pri].Front()
		k.ready[pri].Rotate()
		return threadOfSchedLink(n)
	}
	return k.idle
}

// higherPriorityReadyLocked reports whether some thread ready to run is
// strictly more urgent (a lower priority number) than priority.
func (k *Kernel) higherPriorityReadyLocked(priority int) bool {
	for pri := 0; pri < priority && pri < len(k.ready); pri++ {
		if !k.ready[pri].IsEmpty() {
			return true
		}
	}
	return false
}

// maybePreemptLocked implements the non-ISR half of §5's ordering
// guarantee: when a synchronous primitive call (Post, Raise, Send, a
// mutex Unlock, ...) makes a higher-priority thread runnable, the
// calling thread is preempted before that call returns to user code,
// rather than waiting for its next unrelated suspension point. The
// calling thread itself performs the handoff and parks, exactly as any
// other voluntary suspension does; it is simply resumed once the
// scheduler gets back around to it. When the idle thread is current, the
// caller is not a kernel thread and there is nothing to park: the woken
// thread is simply handed the CPU by a scheduler entry.
func (k *Kernel) maybePreemptLocked() {
	self := k.current
	if self == nil {
		return
	}
	if !k.higherPriorityReadyLocked(self.effectivePriority) {
		return
	}
	if self == k.idle {
		k.scheduleLocked()
		return
	}
	self.state = Runnable
	k.park(self)
}

// readyPushLocked links t onto its effective priority's ready queue.
func (k *Kernel) readyPushLocked(t *Thread) {
	k.ready[t.effectivePriority].PushBack(&t.schedLink)
}

// expireTimeoutsLocked drains every timeout-queue entry whose deadline
// has arrived, in ascending wakeTick order, invoking each entry's bound
// expire callback (§4.6 step 3).
func (k *Kernel) expireTimeoutsLocked() {
	now := k.tick.LoadAcquire()
	for {
		n := k.timeoutQ.Front()
		if n == nil {
			return
		}
		e := timeoutEntryOf(n)
		if e.wakeTick > now {
			return
		}
		n.Remove()
		e.expire(k)
	}
}

// expireThreadWaitLocked is bound as the timeout entry's expire
// callback for a thread blocked with a finite timeout: it removes the
// thread from whatever waiter list it is on, marks it timed out, and
// makes it runnable again.
func (k *Kernel) expireThreadWaitLocked(t *Thread) {
	if t.state != Blocked {
		return
	}
	t.schedLink.Remove()
	t.timedOut = true
	t.blockedOn = nil
	t.state = Runnable
	k.readyPushLocked(t)
}

// armTimeoutLocked inserts t's timeout entry into the sorted timeout
// queue for a deadline ticks in the future, and marks t as having a
// finite timeout pending.
func (k *Kernel) armTimeoutLocked(t *Thread, ticks uint64) {
	t.hasTimeout = true
	t.timedOut = false
	t.timeout.wakeTick = k.tick.LoadAcquire() + ticks
	k.insertTimeoutEntryLocked(&t.timeout)
}

// insertTimeoutEntryLocked links e into the sorted timeout queue by
// ascending wakeTick, shared by thread timeouts and armed [Timer]
// values alike (§4.6 "timers are linked into a single list").
func (k *Kernel) insertTimeoutEntryLocked(e *timeoutEntry) {
	k.timeoutQ.InsertSorted(&e.node, func(candidate, existing *ilist.Node) bool {
		return timeoutEntryOf(candidate).wakeTick < timeoutEntryOf(existing).wakeTick
	})
}

// disarmTimeoutLocked removes t's timeout entry if it is still linked
// (a primitive woke t up before its deadline arrived).
func (k *Kernel) disarmTimeoutLocked(t *Thread) {
	if t.hasTimeout {
		t.timeout.node.Remove()
		t.hasTimeout = false
	}
}

// onTick is the TickSource callback (§4.4, §4.6): it advances the
// monotonic tick accumulator by the number of nominal intervals that
// elapsed since it was last armed, then performs a scheduler entry.
func (k *Kernel) onTick() {
	k.mu.Lock()
	elapsed := k.armedIntervals
	if elapsed == 0 {
		elapsed = 1
	}
	k.tick.AddAcqRel(elapsed)
	k.runTickHooksLocked()
	k.scheduleLocked()
	k.mu.Unlock()
}

// programNextIntervalLocked implements §4.6 steps 6-7: request a short,
// finite interval when more than one thread is runnable at the chosen
// priority (round-robin slicing), else the interval until the timeout
// queue's head deadline, else the configured maximum (tickless idle).
func (k *Kernel) programNextIntervalLocked() {
	interval := k.cfg.maxTickInterval
	if !k.cfg.keepTickRunning {
		if pri := k.runnablePriorityWithMultipleLocked(); pri >= 0 {
			interval = 1
		} else if n := k.timeoutQ.Front(); n != nil {
			now := k.tick.LoadAcquire()
			wake := timeoutEntryOf(n).wakeTick
			if wake <= now {
				interval = 1
			} else if d := wake - now; d < interval {
				interval = d
			}
		}
	} else {
		interval = 1
	}
	if interval == 0 {
		interval = 1
	}
	if interval != k.armedIntervals {
		k.armedIntervals = interval
		k.env.Reprogram(interval)
	}
}

// runnablePriorityWithMultipleLocked returns the highest non-empty
// priority level if it holds more than one runnable thread, or -1
// otherwise; lower levels are not examined.
func (k *Kernel) runnablePriorityWithMultipleLocked() int {
	for pri := 0; pri < len(k.ready); pri++ {
		l := &k.ready[pri]
		if l.IsEmpty() {
			continue
		}
		front := l.Front()
		if !l.IsLast(front) {
			return pri
		}
		return -1
	}
	return -1
}

// CurrentTick returns the kernel's monotonic tick accumulator.
func (k *Kernel) CurrentTick() uint64 {
	return k.tick.LoadAcquire()
}

// RequestStop sets t's cooperative stop flag, observed via
// [Thread.IsStopRequested]. It does not itself wake or terminate t.
func (k *Kernel) RequestStop(t *Thread) {
	t.stopRequested.StoreRelease(true)
}

// ChangePriority updates t's nominal priority and recomputes its
// effective priority, re-sorting it on whichever ready or waiter queue
// it currently occupies so ordering invariants hold.
func (k *Kernel) ChangePriority(t *Thread, priority int) {
	if priority < 0 || priority >= k.cfg.priorityCount {
		panic("rtcore: priority out of range")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	t.nominalPriority = priority
	t.effectivePriority = t.recomputeEffectivePriorityLocked()
	k.resortThreadLocked(t)
	if t == k.current {
		k.scheduleLocked()
	}
}

// resortThreadLocked re-links t at its current effectivePriority on
// whichever ready or waiter queue it occupies. Used whenever a
// thread's effective priority changes: explicit [Kernel.ChangePriority]
// and priority-inheritance propagation alike.
func (k *Kernel) resortThreadLocked(t *Thread) {
	switch t.state {
	case Runnable, Running:
		if t.schedLink.IsLinked() {
			t.schedLink.Remove()
			k.readyPushLocked(t)
		}
	case Blocked:
		if waiters, less := t.blockedOnWaiterList(); waiters != nil {
			t.schedLink.Remove()
			waiters.InsertSorted(&t.schedLink, less)
		}
	}
}

// Kill forcibly terminates t. If t is the calling thread, control does
// not return: it unwinds via panic(killSignal{}) straight to the
// goroutine wrapper's recover, which dispatches the termination
// handler. If t is blocked or runnable, it is marked killed, forcibly
// removed from whatever it was waiting on (releasing any mutexes it
// held), and woken through the ordinary scheduled handoff so its own
// park point performs the same unwind once it actually runs.
func (k *Kernel) Kill(t *Thread, termArg any) {
	k.mu.Lock()
	if t.state == Stopped {
		k.mu.Unlock()
		return
	}
	t.termArg = termArg
	if t == k.current {
		k.mu.Unlock()
		panic(killSignal{})
	}

	t.killed = true
	switch t.state {
	case Blocked:
		k.disarmTimeoutLocked(t)
		t.schedLink.Remove()
		k.forceReleaseMutexesLocked(t)
		t.blockedOn = nil
		t.state = Runnable
		k.readyPushLocked(t)
	case Runnable:
		// already on a ready queue; wake will deliver the kill the
		// next time it is scheduled in.
	}
	k.mu.Unlock()
}

// finishThread transitions t to Stopped, records its return value,
// releases any mutexes it still held (defensive: a well-behaved
// termination handler already released them), runs any TLS destructors
// registered via [Kernel.SetTLS] (§4.6 "optional destructor called when
// the thread ends"), wakes every goroutine parked in
// [Kernel.WaitForThreadStop] on t, and drops the reference NewThread
// took out on its behalf.
func (k *Kernel) finishThread(t *Thread, result any) {
	k.mu.Lock()
	t.retval = result
	t.state = Stopped
	t.schedLink.Remove()
	k.forceReleaseMutexesLocked(t)
	ilist.Range(&t.tls, func(n *ilist.Node) {
		e := tlsEntryOf(n)
		if e.free != nil {
			e.free(e.val)
		}
	})
	t.tls.Init()
	close(t.done)
	k.scheduleLocked()
	k.mu.Unlock()
	t.DecRef()
}

// WaitForThreadStop blocks the calling goroutine until target reaches
// Stopped, returning its exit value. With timeoutTicks > 0, returns
// (nil, [ErrTimeout]) if target has not stopped within that many ticks;
// timeoutTicks == 0 waits forever.
//
// Unlike every other blocking entry point in this package,
// WaitForThreadStop is meant to be called from outside the simulation
// entirely — an embedder's own driver goroutine joining a thread, or a
// test — rather than from a kernel thread's own entry function: it
// never relinquishes the simulated CPU, so a kernel thread blocking
// here would simply stall its own goroutine without ever yielding,
// starving every other thread at or below its priority. A kernel
// thread that wants to wait on another thread's completion should have
// the target post a [Semaphore] or raise a [Signal] just before
// returning instead.
func (k *Kernel) WaitForThreadStop(target *Thread, timeoutTicks uint64) (any, error) {
	k.mu.Lock()
	if target.state == Stopped {
		v := target.retval
		k.mu.Unlock()
		return v, nil
	}
	done := target.done
	if timeoutTicks == 0 {
		k.mu.Unlock()
		<-done
		return target.retval, nil
	}

	timedOut := make(chan struct{})
	entry := &timeoutEntry{
		wakeTick: k.tick.LoadAcquire() + timeoutTicks,
		expire:   func(*Kernel) { close(timedOut) },
	}
	k.insertTimeoutEntryLocked(entry)
	k.mu.Unlock()

	select {
	case <-done:
		k.mu.Lock()
		entry.node.Remove()
		k.mu.Unlock()
		return target.retval, nil
	case <-timedOut:
		return nil, ErrTimeout
	}
}

// wakeFromWaiterListLocked removes waiter from whatever list it is
// linked on (waiter list and/or timeout queue) and makes it runnable,
// used uniformly by every primitive's post/raise/send path.
func (k *Kernel) wakeFromWaiterListLocked(waiter *Thread) {
	if waiter.state != Blocked {
		return
	}
	waiter.schedLink.Remove()
	k.disarmTimeoutLocked(waiter)
	waiter.blockedOn = nil
	waiter.state = Runnable
	k.readyPushLocked(waiter)
}

// blockedOnWaiterList reports the intrusive list t.schedLink currently
// occupies while Blocked, and the ordering predicate to use when
// re-inserting it after a priority change, so [Kernel.ChangePriority]
// can re-sort any primitive's waiter list. A thread never blocks
// directly on a [MessageQueue]: Send/Receive park it on one of the
// queue's two backing [Semaphore] values, which is what shows up here.
// [Kernel.WaitForThreadStop] is not a case here: it parks the calling
// goroutine on a plain channel rather than a scheduler waiter list,
// since it is meant to be called from outside the simulation entirely.
func (t *Thread) blockedOnWaiterList() (*ilist.List, func(candidate, existing *ilist.Node) bool) {
	switch b := t.blockedOn.(type) {
	case *Mutex:
		return &b.waiters, byEffectivePriority
	case *Semaphore:
		return &b.waiters, byEffectivePriority
	case *Signal:
		return &b.waiters, byEffectivePriority
	default:
		return nil, nil
	}
}
