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

// delayTicks blocks the calling thread for exactly ticks ticks by
// waiting with a timeout on a semaphore nobody ever posts — the
// idiomatic way a cooperative thread models "sleep" in this kernel,
// since there is no dedicated delay primitive distinct from a timed
// wait (§4.5.1).
func delayTicks(k *rtcore.Kernel, never *rtcore.Semaphore, ticks uint64) {
	_ = k.WaitOrTimeout(never, ticks)
}

// TestUniformTimerScenario is scenario 3 (§8): three threads at
// priorities 1, 3, 3 each delay-block for D ticks in a loop. After T
// ticks, each counter equals T/D: every thread makes identical
// progress since none of them ever contends for the CPU with a
// perpetually runnable peer.
func TestUniformTimerScenario(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	const D = 50
	const T = 5000
	never := k.NewSemaphore(0)

	var counters [3]atomix.Int64
	priorities := [3]int{1, 3, 3}
	threads := make([]*rtcore.Thread, 3)
	for i := 0; i < 3; i++ {
		idx := i
		threads[i] = k.InitAndRun("delayer", priorities[i], 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
			for !t.IsStopRequested() {
				delayTicks(k, never, D)
				counters[idx].Add(1)
			}
			return nil
		}, nil)
	}

	clock.Ticks(T)

	for _, th := range threads {
		k.RequestStop(th)
	}
	backoff := iox.Backoff{}
	for _, th := range threads {
		for th.State() != rtcore.Stopped {
			backoff.Wait()
			clock.Tick()
		}
	}

	want := int64(T / D)
	for i, c := range counters {
		got := c.Load()
		if got < want || got > want+1 {
			t.Fatalf("counter[%d] = %d, want in [%d, %d]", i, got, want, want+1)
		}
	}
}

// TestHarmonicTimerScenario is scenario 4 (§8): three threads
// delay-blocking for D, D/2, and D/4 ticks respectively. After T
// ticks, their counters are T/D, 2*T/D, and 4*T/D.
func TestHarmonicTimerScenario(t *testing.T) {
	k, clock := newTestKernel(4)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	const D = 64
	const T = 5000
	never := k.NewSemaphore(0)

	delays := [3]uint64{D, D / 2, D / 4}
	var counters [3]atomix.Int64
	threads := make([]*rtcore.Thread, 3)
	for i := 0; i < 3; i++ {
		idx := i
		threads[i] = k.InitAndRun("harmonic", 1, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
			for !t.IsStopRequested() {
				delayTicks(k, never, delays[idx])
				counters[idx].Add(1)
			}
			return nil
		}, nil)
	}

	clock.Ticks(T)

	for _, th := range threads {
		k.RequestStop(th)
	}
	backoff := iox.Backoff{}
	for _, th := range threads {
		for th.State() != rtcore.Stopped {
			backoff.Wait()
			clock.Tick()
		}
	}

	wants := [3]int64{T / D, 2 * T / D, 4 * T / D}
	for i, c := range counters {
		got := c.Load()
		want := wants[i]
		if got < want || got > want+1 {
			t.Fatalf("counter[%d] = %d, want in [%d, %d]", i, got, want, want+1)
		}
	}
}
