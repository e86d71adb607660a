// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"code.hybscloud.com/atomix"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// Semaphore is a counting semaphore (§4.5.1): Wait decrements the
// value, blocking while it is zero; Post increments it and wakes the
// highest-priority waiter, if any. From an ISR context (the tick
// source's own goroutine, or a [Timer] callback) use
// [Kernel.PostFromISR], not Post.
//
// The zero value is not usable; construct with [Kernel.NewSemaphore].
type Semaphore struct {
	kernel  *Kernel
	value   atomix.Int64
	waiters ilist.List
}

// NewSemaphore constructs a Semaphore with the given initial value.
func (k *Kernel) NewSemaphore(initial int64) *Semaphore {
	s := &Semaphore{kernel: k}
	s.value.StoreRelease(initial)
	s.waiters.Init()
	return s
}

// Value returns the semaphore's current count. A read-only diagnostic
// accessor; it does not itself affect scheduling and is therefore
// ISR-safe.
func (s *Semaphore) Value() int64 {
	return s.value.LoadAcquire()
}

// Wait blocks until the semaphore's value is positive, then decrements
// it. An explicit suspension point (§5).
func (k *Kernel) Wait(s *Semaphore) {
	k.mu.Lock()
	if s.value.LoadAcquire() > 0 {
		s.value.AddAcqRel(-1)
		k.mu.Unlock()
		return
	}
	t := k.current
	t.state = Blocked
	t.blockedOn = s
	t.schedLink.Remove()
	s.waiters.InsertSorted(&t.schedLink, byEffectivePriority)
	k.park(t)
	k.mu.Unlock()
}

// WaitOrTimeout is the timed form of Wait. Returns nil on success, or
// [ErrTimeout] if timeoutTicks elapse first. timeoutTicks == 0 is
// equivalent to Wait.
func (k *Kernel) WaitOrTimeout(s *Semaphore, timeoutTicks uint64) error {
	if timeoutTicks == 0 {
		k.Wait(s)
		return nil
	}
	k.mu.Lock()
	if s.value.LoadAcquire() > 0 {
		s.value.AddAcqRel(-1)
		k.mu.Unlock()
		return nil
	}
	t := k.current
	t.state = Blocked
	t.blockedOn = s
	t.schedLink.Remove()
	s.waiters.InsertSorted(&t.schedLink, byEffectivePriority)
	k.armTimeoutLocked(t, timeoutTicks)
	k.park(t)
	defer k.mu.Unlock()
	if t.timedOut {
		t.timedOut = false
		return ErrTimeout
	}
	return nil
}

// TryWait attempts to decrement s without blocking. Returns nil on
// success, [ErrWouldBlock] if the value was already zero.
func (k *Kernel) TryWait(s *Semaphore) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s.value.LoadAcquire() > 0 {
		s.value.AddAcqRel(-1)
		return nil
	}
	return ErrWouldBlock
}

// Post increments s's value, or — if a thread is already waiting —
// hands the unit directly to the highest-priority waiter instead of
// incrementing and immediately redecrementing. If this wakes a
// higher-priority thread, the calling thread is preempted before Post
// returns (§5). Post must be called from a kernel thread's own
// goroutine — use [Kernel.PostFromISR] from an ISR or any other
// foreign goroutine instead.
func (k *Kernel) Post(s *Semaphore) {
	k.mu.Lock()
	k.postLocked(s)
	k.maybePreemptLocked()
	k.mu.Unlock()
}

// PostFromISR is the ISR-context form of Post: it wakes a waiter just
// the same, but never synchronously preempts, since there is no
// calling kernel thread to park. Per §5, an ISR-origin wakeup instead
// takes effect at the next scheduler entry (the next tick, or whatever
// thread next calls back into the kernel).
func (k *Kernel) PostFromISR(s *Semaphore) {
	k.mu.Lock()
	k.postLocked(s)
	k.mu.Unlock()
}

func (k *Kernel) postLocked(s *Semaphore) {
	if n := s.waiters.Front(); n != nil {
		w := threadOfSchedLink(n)
		k.wakeFromWaiterListLocked(w)
		return
	}
	s.value.AddAcqRel(1)
}
