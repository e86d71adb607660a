// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore_test

import (
	"testing"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/rtcore"
)

func TestMessageQueueTrySendTryReceive(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	q := k.NewMessageQueue(2)
	if err := k.TrySend(q, 1); err != nil {
		t.Fatalf("TrySend 1: %v", err)
	}
	if err := k.TrySend(q, 2); err != nil {
		t.Fatalf("TrySend 2: %v", err)
	}
	if err := k.TrySend(q, 3); !rtcore.IsWouldBlock(err) {
		t.Fatalf("TrySend on full queue: got %v, want ErrWouldBlock", err)
	}

	if v, err := k.TryReceive(q); err != nil || v != 1 {
		t.Fatalf("TryReceive 1: got (%v, %v), want (1, nil)", v, err)
	}
	if v, err := k.TryReceive(q); err != nil || v != 2 {
		t.Fatalf("TryReceive 2: got (%v, %v), want (2, nil)", v, err)
	}
	if _, err := k.TryReceive(q); !rtcore.IsWouldBlock(err) {
		t.Fatalf("TryReceive on empty queue: got %v, want ErrWouldBlock", err)
	}
}

func TestMessageQueueSendReceiveBlocking(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	q := k.NewMessageQueue(1)
	resultCh := make(chan uintptr, 1)
	th := k.InitAndRun("receiver", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		resultCh <- k.Receive(q)
		return nil
	}, nil)

	backoff := iox.Backoff{}
	for th.State() != rtcore.Blocked {
		backoff.Wait()
	}
	k.Send(q, 42)

	v := <-resultCh
	if v != 42 {
		t.Fatalf("Receive() = %d, want 42", v)
	}
	if _, err := k.WaitForThreadStop(th, 0); err != nil {
		t.Fatalf("WaitForThreadStop: %v", err)
	}
}

func TestMessageQueueSendOrTimeoutOnFullQueue(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	q := k.NewMessageQueue(1)
	if err := k.TrySend(q, 7); err != nil {
		t.Fatalf("TrySend: %v", err)
	}

	resultCh := make(chan error, 1)
	th := k.InitAndRun("sender", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		resultCh <- k.SendOrTimeout(q, 99, 10)
		return nil
	}, nil)

	backoff := iox.Backoff{}
	for th.State() != rtcore.Blocked {
		backoff.Wait()
	}
	clock.Ticks(20)

	if err := <-resultCh; !rtcore.IsTimeout(err) {
		t.Fatalf("SendOrTimeout: got %v, want ErrTimeout", err)
	}
}

func TestMultiQueueWaitOnMulti(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	m := k.NewMultiQueue()
	qa := k.NewMessageQueue(2)
	qb := k.NewMessageQueue(2)
	chA := k.Bind(m, qa)
	chB := k.Bind(m, qb)
	if chA != 0 || chB != 1 {
		t.Fatalf("channel indices = %d, %d, want 0, 1", chA, chB)
	}

	resultCh := make(chan uint, 1)
	th := k.InitAndRun("multi-waiter", 0, 4096, func(k *rtcore.Kernel, t *rtcore.Thread, arg any) any {
		resultCh <- k.WaitOnMulti(m)
		return nil
	}, nil)

	backoff := iox.Backoff{}
	for th.State() != rtcore.Blocked {
		backoff.Wait()
	}
	if err := k.TrySend(qb, 5); err != nil {
		t.Fatalf("TrySend on qb: %v", err)
	}

	ch := <-resultCh
	if ch != chB {
		t.Fatalf("WaitOnMulti() = %d, want %d (qb's channel)", ch, chB)
	}
	if v, err := k.TryReceive(qb); err != nil || v != 5 {
		t.Fatalf("TryReceive on qb: got (%v, %v), want (5, nil)", v, err)
	}
	if _, err := k.WaitForThreadStop(th, 0); err != nil {
		t.Fatalf("WaitForThreadStop: %v", err)
	}
}

func TestMultiQueueClearChannelFlag(t *testing.T) {
	k, clock := newTestKernel(2)
	go k.Start()
	clock.WaitStarted()
	defer k.Stop()

	m := k.NewMultiQueue()
	q := k.NewMessageQueue(2)
	k.Bind(m, q)

	if err := k.TrySend(q, 1); err != nil {
		t.Fatalf("TrySend: %v", err)
	}
	ch, err := k.WaitOnMultiOrTimeout(m, 0)
	if err != nil {
		t.Fatalf("WaitOnMultiOrTimeout: %v", err)
	}
	if ch != 0 {
		t.Fatalf("channel = %d, want 0", ch)
	}
	k.ClearChannelFlag(m, 1<<ch)
}
