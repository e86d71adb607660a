// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import "code.hybscloud.com/rtcore/internal/ilist"

// Mutex is a recursive lock with priority inheritance (§4.5.5): a
// thread blocked on a Mutex raises its owner's effective priority to
// its own whenever that would be an increase, transitively through any
// chain of blocked-on-mutex relationships, and the owner's priority is
// fully restored the moment its recursive depth returns to zero.
//
// The zero value is not usable; construct with [Kernel.NewMutex].
type Mutex struct {
	kernel  *Kernel
	owner   *Thread
	depth   int
	waiters ilist.List
}

// NewMutex constructs an unlocked Mutex.
func (k *Kernel) NewMutex() *Mutex {
	m := &Mutex{kernel: k}
	m.waiters.Init()
	return m
}

func byEffectivePriority(candidate, existing *ilist.Node) bool {
	return threadOfSchedLink(candidate).effectivePriority < threadOfSchedLink(existing).effectivePriority
}

// headWaiterEffectivePriority returns the effective priority of the
// thread at the head of m's waiter queue, and whether one exists.
func (m *Mutex) headWaiterEffectivePriority() (int, bool) {
	n := m.waiters.Front()
	if n == nil {
		return 0, false
	}
	return threadOfSchedLink(n).effectivePriority, true
}

// recomputeEffectivePriorityLocked returns what t's effective priority
// should be given its nominal priority and the head waiter, if any, of
// every mutex it currently holds: the minimum (most urgent) of its own
// nominal priority and each held mutex's head waiter priority.
func (t *Thread) recomputeEffectivePriorityLocked() int {
	eff := t.nominalPriority
	for _, m := range t.heldMutexes {
		if p, ok := m.headWaiterEffectivePriority(); ok && p < eff {
			eff = p
		}
	}
	return eff
}

// Lock acquires m, blocking if it is held by another thread. Re-entrant:
// if the calling thread already owns m, Lock increments the recursion
// depth and returns immediately.
func (k *Kernel) Lock(m *Mutex) {
	k.mu.Lock()
	t := k.current
	if m.owner == t {
		m.depth++
		k.mu.Unlock()
		return
	}
	if m.owner == nil {
		m.owner = t
		m.depth = 1
		t.heldMutexes = append(t.heldMutexes, m)
		k.mu.Unlock()
		return
	}

	t.state = Blocked
	t.blockedOn = m
	t.schedLink.Remove()
	m.waiters.InsertSorted(&t.schedLink, byEffectivePriority)
	k.propagateInheritanceLocked(m.owner, t.effectivePriority)
	k.park(t)
	k.mu.Unlock()
}

// TryLock attempts to acquire m without blocking. Returns nil on
// success (including re-entrant acquisition); [ErrWouldBlock] if
// another thread owns m.
func (k *Kernel) TryLock(m *Mutex) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.current
	if m.owner == t {
		m.depth++
		return nil
	}
	if m.owner == nil {
		m.owner = t
		m.depth = 1
		t.heldMutexes = append(t.heldMutexes, m)
		return nil
	}
	return ErrWouldBlock
}

// Unlock releases one level of recursion on m. Once the depth reaches
// zero, ownership passes to the head of m's waiter queue (if any), and
// the caller's own effective priority is restored to the maximum
// (highest urgency) of its nominal priority and every mutex it still
// holds. Panics if the calling thread does not own m: this is a caller
// bug, not a runtime condition (§4.5.5 "assert caller is owner").
func (k *Kernel) Unlock(m *Mutex) {
	k.mu.Lock()
	t := k.current
	if m.owner != t {
		k.mu.Unlock()
		panic("rtcore: Unlock called by non-owner")
	}
	m.depth--
	if m.depth > 0 {
		k.mu.Unlock()
		return
	}
	k.releaseLocked(m, t)
	k.maybePreemptLocked()
	k.mu.Unlock()
}

// Restore is the safety form used by termination handlers: if the
// calling thread owns m, it forcibly collapses the recursion depth to
// one and unlocks, regardless of how many nested Lock calls were
// outstanding. A no-op if the calling thread does not own m.
func (k *Kernel) Restore(m *Mutex) {
	k.mu.Lock()
	t := k.current
	if m.owner != t {
		k.mu.Unlock()
		return
	}
	m.depth = 1
	k.releaseLocked(m, t)
	k.maybePreemptLocked()
	k.mu.Unlock()
}

// releaseLocked performs the common tail of Unlock and Restore once
// depth has reached zero: drop ownership, remove m from the releasing
// thread's held set, restore its effective priority, and wake the new
// owner.
func (k *Kernel) releaseLocked(m *Mutex, t *Thread) {
	m.owner = nil
	for i, held := range t.heldMutexes {
		if held == m {
			t.heldMutexes = append(t.heldMutexes[:i], t.heldMutexes[i+1:]...)
			break
		}
	}
	oldEff := t.effectivePriority
	t.effectivePriority = t.recomputeEffectivePriorityLocked()
	if t.effectivePriority != oldEff {
		k.resortThreadLocked(t)
	}

	n := m.waiters.Front()
	if n == nil {
		return
	}
	n.Remove()
	next := threadOfSchedLink(n)
	m.owner = next
	m.depth = 1
	next.heldMutexes = append(next.heldMutexes, m)
	k.disarmTimeoutLocked(next)
	next.blockedOn = nil
	next.state = Runnable
	k.readyPushLocked(next)
}

// forceReleaseMutexesLocked unconditionally releases every mutex t
// still holds, used when t is killed or faults without running (or
// finishing) a termination handler that calls Restore itself.
func (k *Kernel) forceReleaseMutexesLocked(t *Thread) {
	held := t.heldMutexes
	t.heldMutexes = nil
	for _, m := range held {
		if m.owner != t {
			continue
		}
		m.depth = 0
		m.owner = nil
		n := m.waiters.Front()
		if n == nil {
			continue
		}
		n.Remove()
		next := threadOfSchedLink(n)
		m.owner = next
		m.depth = 1
		next.heldMutexes = append(next.heldMutexes, m)
		k.disarmTimeoutLocked(next)
		next.blockedOn = nil
		next.state = Runnable
		k.readyPushLocked(next)
	}
}

// propagateInheritanceLocked raises owner's effective priority to
// waiterPriority if that is an increase (a lower numeric value), and
// walks transitively up any chain of blocked-on-mutex relationships:
// if owner is itself blocked on another mutex, its own owner is
// considered next, exactly as §9(a) directs. No priority-ceiling
// protocol is layered on top.
func (k *Kernel) propagateInheritanceLocked(owner *Thread, waiterPriority int) {
	cur := owner
	for cur != nil {
		if waiterPriority >= cur.effectivePriority {
			return
		}
		cur.effectivePriority = waiterPriority
		k.resortThreadLocked(cur)
		if cur.state != Blocked {
			return
		}
		next, ok := cur.blockedOn.(*Mutex)
		if !ok || next.owner == nil {
			return
		}
		cur = next.owner
	}
}
