// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore_test

import (
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/rtcore"
)

func TestSignalTryWaitAndRaise(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	s := k.NewSignal()
	if _, err := k.TryWaitSignal(s, 0x1); !rtcore.IsWouldBlock(err) {
		t.Fatalf("TryWaitSignal on clear signal: got %v, want ErrWouldBlock", err)
	}
	k.RaiseSignal(s, 0x5)
	if s.Peek() != 0x5 {
		t.Fatalf("Peek() = %#x, want 0x5", s.Peek())
	}
	v, err := k.TryWaitSignal(s, 0x1)
	if err != nil {
		t.Fatalf("TryWaitSignal: %v", err)
	}
	if v != 0x5 {
		t.Fatalf("consumed value = %#x, want 0x5", v)
	}
	if s.Peek() != 0 {
		t.Fatalf("Peek() after consume = %#x, want 0", s.Peek())
	}
}

func TestSignalWaitBlocksUntilMaskIntersects(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	s := k.NewSignal()
	resultCh := make(chan uint32, 1)
	th := k.InitAndRun("waiter", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		resultCh <- k.WaitSignal(s, 0x2)
		return nil
	}, nil)

	backoff := iox.Backoff{}
	for th.State() != rtcore.Blocked {
		backoff.Wait()
	}

	// A flag the waiter does not want must not wake it.
	k.RaiseSignal(s, 0x1)
	select {
	case <-resultCh:
		t.Fatalf("waiter woke on a non-matching flag")
	default:
	}

	k.RaiseSignal(s, 0x2)
	v := <-resultCh
	if v&0x2 == 0 {
		t.Fatalf("consumed value %#x does not include the awaited bit", v)
	}
	if _, err := k.WaitForThreadStop(th, 0); err != nil {
		t.Fatalf("WaitForThreadStop: %v", err)
	}
}

func TestSignalWaitSignalOrTimeout(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	s := k.NewSignal()
	type result struct {
		v   uint32
		err error
	}
	resultCh := make(chan result, 1)
	th := k.InitAndRun("waiter", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		v, err := k.WaitSignalOrTimeout(s, 0x1, 10)
		resultCh <- result{v, err}
		return nil
	}, nil)

	backoff := iox.Backoff{}
	for th.State() != rtcore.Blocked {
		backoff.Wait()
	}
	clock.Ticks(20)

	r := <-resultCh
	if !rtcore.IsTimeout(r.err) {
		t.Fatalf("WaitSignalOrTimeout: got %v, want ErrTimeout", r.err)
	}
	if r.v != 0 {
		t.Fatalf("timed-out value = %#x, want 0", r.v)
	}
}
