// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

// TimerFunc is a software timer's callback. It runs in ISR context
// (§4.7): synchronously, on whatever goroutine drove the tick that
// expired the timer, with the kernel lock transiently released around
// the call so the callback may use non-blocking primitive calls (most
// commonly [Kernel.TrySendFromISR]) without deadlocking against itself. The
// returned bool is purely informational — true if the callback
// delivered its event, false if it chose not to (e.g. a full queue);
// the kernel does not interpret it, any backpressure policy is the
// callback's own responsibility.
type TimerFunc func(timer *Timer, cookie uintptr) bool

// Timer is a one-shot software timer (§4.7): a callback, a user cookie,
// and a link into the kernel's single sorted timeout queue, shared with
// thread timeouts.
//
// The zero value is not usable; construct with [Kernel.NewTimer].
type Timer struct {
	kernel   *Kernel
	timeout  timeoutEntry
	callback TimerFunc
	cookie   uintptr
}

// NewTimer constructs an unarmed Timer bound to callback.
func (k *Kernel) NewTimer(callback TimerFunc) *Timer {
	t := &Timer{kernel: k, callback: callback}
	t.timeout.expire = func(kk *Kernel) { kk.fireTimerLocked(t) }
	return t
}

// SetTimer arms (or re-arms) t to fire ticks from now, with cookie
// stashed for delivery to the callback. If t was already armed, its
// previous deadline is discarded.
func (k *Kernel) SetTimer(t *Timer, ticks uint64, cookie uintptr) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.timeout.node.IsLinked() {
		t.timeout.node.Remove()
	}
	t.cookie = cookie
	t.timeout.wakeTick = k.tick.LoadAcquire() + ticks
	k.insertTimeoutEntryLocked(&t.timeout)
}

// CancelTimer removes t from the timeout queue if it is currently
// armed. A no-op otherwise.
func (k *Kernel) CancelTimer(t *Timer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t.timeout.node.IsLinked() {
		t.timeout.node.Remove()
	}
}

// fireTimerLocked is t's bound timeout-entry expire callback, invoked
// by expireTimeoutsLocked with k.mu held and t already unlinked from
// the timeout queue. It releases k.mu for the duration of the user
// callback and re-acquires it before returning, matching every other
// *Locked helper's contract.
func (k *Kernel) fireTimerLocked(t *Timer) {
	cb, cookie := t.callback, t.cookie
	k.mu.Unlock()
	cb(t, cookie)
	k.mu.Lock()
}

// NewQueuePoster returns a [TimerFunc] that, on expiry, posts cookie to
// q with a non-blocking send — the documented helper idiom for
// delivering a timer event through a queue (§4.7) made concrete as
// reusable code. Uses [Kernel.TrySendFromISR] since the callback runs
// in ISR context (§4.7, [TimerFunc]).
func NewQueuePoster(k *Kernel, q *MessageQueue) TimerFunc {
	return func(_ *Timer, cookie uintptr) bool {
		return k.TrySendFromISR(q, cookie) == nil
	}
}
