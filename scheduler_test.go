// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore_test

import (
	"testing"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/rtcore"
)

func newTestKernel(priorities int) (*rtcore.Kernel, *manualClock) {
	clock := newManualClock()
	cfg := rtcore.New(priorities, 1000).KeepTickRunning().Build()
	k := rtcore.NewKernel(cfg, clock)
	return k, clock
}

// TestThreadLifecycle exercises InitAndRun and WaitForThreadStop: a
// single thread runs once, returns a value, and the caller observes it.
func TestThreadLifecycle(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	th := k.InitAndRun("worker", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		return arg.(int) * 2
	}, 21)

	v, err := k.WaitForThreadStop(th, 0)
	if err != nil {
		t.Fatalf("WaitForThreadStop: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("got %v, want 42", v)
	}
	if th.State() != rtcore.Stopped {
		t.Fatalf("state = %v, want Stopped", th.State())
	}
}

// TestPriorityStarvation is scenario 1 (§8): a higher-priority thread
// that never yields starves every lower-priority thread completely.
func TestPriorityStarvation(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	var counter [3]atomix.Int64
	spawn := func(priority int) *rtcore.Thread {
		return k.InitAndRun("busy", priority, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
			idx := arg.(int)
			for !t.IsStopRequested() {
				counter[idx].Add(1)
			}
			return nil
		}, priority-1)
	}

	threads := [3]*rtcore.Thread{spawn(1), spawn(2), spawn(3)}
	clock.Ticks(50)

	for _, th := range threads {
		k.RequestStop(th)
	}
	backoff := iox.Backoff{}
	for _, th := range threads {
		for th.State() != rtcore.Stopped {
			backoff.Wait()
			clock.Tick()
		}
		backoff.Reset()
	}

	if counter[0].Load() == 0 {
		t.Fatalf("highest-priority thread never ran")
	}
	if counter[1].Load() != 0 {
		t.Fatalf("priority-2 thread ran %d times, want 0 (starved by priority 1)", counter[1].Load())
	}
	if counter[2].Load() != 0 {
		t.Fatalf("priority-3 thread ran %d times, want 0 (starved by priority 1)", counter[2].Load())
	}
}

// TestYieldRoundRobin exercises the Yield suspension point among
// threads of equal priority: each gets a turn in round-robin order
// rather than one starving the others, since Yield is an explicit
// suspension point the scheduler can always act on immediately.
func TestYieldRoundRobin(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	const rounds = 20
	var counter [3]atomix.Int64
	var threads [3]*rtcore.Thread
	for i := 0; i < 3; i++ {
		idx := i
		threads[i] = k.InitAndRun("looper", 1, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
			for counter[idx].Load() < rounds && !t.IsStopRequested() {
				counter[idx].Add(1)
				k.Yield()
			}
			return nil
		}, nil)
	}

	backoff := iox.Backoff{}
	done := func() bool {
		for _, th := range threads {
			if th.State() != rtcore.Stopped {
				return false
			}
		}
		return true
	}
	for !done() {
		backoff.Wait()
		clock.Tick()
	}

	for i, th := range threads {
		if _, err := k.WaitForThreadStop(th, 0); err != nil {
			t.Fatalf("thread %d: WaitForThreadStop: %v", i, err)
		}
		if counter[i].Load() != rounds {
			t.Fatalf("thread %d ran %d rounds, want %d", i, counter[i].Load(), rounds)
		}
	}
}

// TestChangePriorityMidRun is scenario 2 (§8): swapping the priorities
// of two busy threads hands the CPU over to whichever one now has the
// more urgent priority.
func TestChangePriorityMidRun(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	var counter [2]atomix.Int64
	spawn := func(priority, idx int) *rtcore.Thread {
		return k.InitAndRun("busy", priority, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
			for !t.IsStopRequested() {
				counter[idx].Add(1)
				k.Yield()
			}
			return nil
		}, nil)
	}

	a := spawn(1, 0)
	b := spawn(2, 1)
	clock.Ticks(20)

	before0, before1 := counter[0].Load(), counter[1].Load()
	if before0 == 0 || before1 != 0 {
		t.Fatalf("before swap: counter[0]=%d counter[1]=%d, want >0 and ==0", before0, before1)
	}

	k.ChangePriority(a, 2)
	k.ChangePriority(b, 1)
	clock.Ticks(20)

	k.RequestStop(a)
	k.RequestStop(b)
	backoff := iox.Backoff{}
	for a.State() != rtcore.Stopped || b.State() != rtcore.Stopped {
		backoff.Wait()
		clock.Tick()
	}

	if counter[1].Load() == before1 {
		t.Fatalf("thread b never ran after becoming highest priority")
	}
}
