// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import "code.hybscloud.com/rtcore/internal/ilist"

// hookEntry registers a client callback on one of the kernel's event
// hooks, using the same intrusive list primitive as every other
// registration/queue in this package (§3.1 supplement).
type hookEntry struct {
	node ilist.Node
	fn   func()
}

func hookEntryOf(n *ilist.Node) *hookEntry {
	return ilist.Owner[hookEntry](n)
}

// tickHooks holds the two event-hook registration lists a kernel
// supports: TICK, fired on every scheduler entry driven by the tick
// source, and SCHEDULER_EXIT, fired once when [Kernel.Stop] is called.
type tickHooks struct {
	tick ilist.List
	exit ilist.List
}

func (h *tickHooks) init() {
	h.tick.Init()
	h.exit.Init()
}

// OnTick registers fn to run, with k.mu held, on every TICK event
// (§3.4). The returned cancel function deregisters it; it is safe to
// call at most once.
func (k *Kernel) OnTick(fn func()) (cancel func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := &hookEntry{fn: fn}
	k.hooks.tick.PushBack(&e.node)
	return func() {
		k.mu.Lock()
		e.node.Remove()
		k.mu.Unlock()
	}
}

// OnSchedulerExit registers fn to run once, with k.mu held, when
// [Kernel.Stop] is called.
func (k *Kernel) OnSchedulerExit(fn func()) (cancel func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e := &hookEntry{fn: fn}
	k.hooks.exit.PushBack(&e.node)
	return func() {
		k.mu.Lock()
		e.node.Remove()
		k.mu.Unlock()
	}
}

// runTickHooksLocked invokes every registered TICK hook, called from
// onTick with k.mu held.
func (k *Kernel) runTickHooksLocked() {
	ilist.Range(&k.hooks.tick, func(n *ilist.Node) {
		hookEntryOf(n).fn()
	})
}

// broadcastSchedulerExitLocked invokes every registered SCHEDULER_EXIT
// hook, called from Stop with k.mu held.
func (k *Kernel) broadcastSchedulerExitLocked() {
	ilist.Range(&k.hooks.exit, func(n *ilist.Node) {
		hookEntryOf(n).fn()
	})
}
