// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"code.hybscloud.com/atomix"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// Signal is a 32-bit ganged bitmask with a waiter list (§4.5.2): Raise
// ORs bits into the value and wakes (at most) one waiter whose wait
// mask currently intersects it; Wait and its timeout/poll variants
// consume and return the value in one atomic step, resetting it to
// zero. Used to multiplex many distinct events onto a single blocking
// point, and as the backing mechanism behind [MultiQueue] channel
// flags (§4.5.4).
//
// The zero value is not usable; construct with [Kernel.NewSignal].
type Signal struct {
	kernel  *Kernel
	value   atomix.Uint32
	waiters ilist.List
}

// NewSignal constructs a Signal with all bits clear.
func (k *Kernel) NewSignal() *Signal {
	s := &Signal{kernel: k}
	s.waiters.Init()
	return s
}

// Peek returns the signal's currently-set bits without consuming them.
// A read-only diagnostic accessor; it does not affect scheduling and is
// therefore ISR-safe.
func (s *Signal) Peek() uint32 {
	return s.value.LoadAcquire()
}

// WaitSignal blocks until the signal's value intersects mask, then returns
// the full value that was set at that moment and resets it to zero.
// An explicit suspension point (§5).
func (k *Kernel) WaitSignal(s *Signal, mask uint32) uint32 {
	k.mu.Lock()
	if v := s.value.LoadAcquire(); v&mask != 0 {
		s.value.StoreRelease(0)
		k.mu.Unlock()
		return v
	}
	t := k.current
	t.state = Blocked
	t.blockedOn = s
	t.waitMask = mask
	t.schedLink.Remove()
	s.waiters.InsertSorted(&t.schedLink, byEffectivePriority)
	k.park(t)
	defer k.mu.Unlock()
	return t.signalValue
}

// WaitSignalOrTimeout is the timed form of WaitSignal. Returns the
// consumed value and nil on success, or 0 and [ErrTimeout] if
// timeoutTicks elapse first. timeoutTicks == 0 is equivalent to
// WaitSignal.
func (k *Kernel) WaitSignalOrTimeout(s *Signal, mask uint32, timeoutTicks uint64) (uint32, error) {
	if timeoutTicks == 0 {
		return k.WaitSignal(s, mask), nil
	}
	k.mu.Lock()
	if v := s.value.LoadAcquire(); v&mask != 0 {
		s.value.StoreRelease(0)
		k.mu.Unlock()
		return v, nil
	}
	t := k.current
	t.state = Blocked
	t.blockedOn = s
	t.waitMask = mask
	t.schedLink.Remove()
	s.waiters.InsertSorted(&t.schedLink, byEffectivePriority)
	k.armTimeoutLocked(t, timeoutTicks)
	k.park(t)
	defer k.mu.Unlock()
	if t.timedOut {
		t.timedOut = false
		return 0, ErrTimeout
	}
	return t.signalValue, nil
}

// TryWaitSignal returns the signal's value and resets it to zero if it
// currently intersects mask, without blocking. Returns 0 and
// [ErrWouldBlock] otherwise.
func (k *Kernel) TryWaitSignal(s *Signal, mask uint32) (uint32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if v := s.value.LoadAcquire(); v&mask != 0 {
		s.value.StoreRelease(0)
		return v, nil
	}
	return 0, ErrWouldBlock
}

// RaiseSignal ORs flags into s's value and wakes the highest-priority
// waiter whose wait mask intersects the new value, if any, preempting
// the caller before returning if that wakes a higher-priority thread
// (§5). RaiseSignal must be called from a kernel thread's own
// goroutine — use [Kernel.RaiseSignalFromISR] from an ISR or any other
// foreign goroutine instead.
func (k *Kernel) RaiseSignal(s *Signal, flags uint32) {
	k.mu.Lock()
	k.raiseSignalLocked(s, flags)
	k.maybePreemptLocked()
	k.mu.Unlock()
}

// RaiseSignalFromISR is the ISR-context form of RaiseSignal: it wakes a
// waiter just the same, but never synchronously preempts, since there
// is no calling kernel thread to park. The wakeup takes effect at the
// next scheduler entry instead (§5).
func (k *Kernel) RaiseSignalFromISR(s *Signal, flags uint32) {
	k.mu.Lock()
	k.raiseSignalLocked(s, flags)
	k.mu.Unlock()
}

func (k *Kernel) raiseSignalLocked(s *Signal, flags uint32) {
	v := s.value.LoadAcquire() | flags
	s.value.StoreRelease(v)

	for n := s.waiters.Front(); n != nil; {
		w := threadOfSchedLink(n)
		last := s.waiters.IsLast(n)
		if v&w.waitMask != 0 {
			s.value.StoreRelease(0)
			w.signalValue = v
			k.wakeFromWaiterListLocked(w)
			return
		}
		if last {
			return
		}
		n = n.Next()
	}
}
