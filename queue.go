// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

// MessageQueue is a bounded ring of machine words guarded by two
// counting semaphores (§4.5.3): "free" counts empty slots, "occupied"
// counts filled ones. Send waits on free, writes at the tail under the
// kernel lock, advances the tail modulo the ring length, then posts
// occupied. Receive is the mirror image on the head. When the queue is
// registered on a [MultiQueue]'s backing Signal, a successful Send also
// raises that channel's bit so a single thread can block on many
// queues at once (§4.5.4).
//
// The zero value is not usable; construct with [Kernel.NewMessageQueue].
type MessageQueue struct {
	kernel *Kernel
	ring   []uintptr
	head   int
	tail   int

	free     *Semaphore
	occupied *Semaphore

	signal  *Signal
	channel uint
	bound   bool
}

// NewMessageQueue constructs a MessageQueue with room for capacity
// words. Panics if capacity is not positive.
func (k *Kernel) NewMessageQueue(capacity int) *MessageQueue {
	if capacity <= 0 {
		panic("rtcore: message queue capacity must be positive")
	}
	return &MessageQueue{
		kernel:   k,
		ring:     make([]uintptr, capacity),
		free:     k.NewSemaphore(int64(capacity)),
		occupied: k.NewSemaphore(0),
	}
}

// Send blocks until a slot is free, then enqueues word. An explicit
// suspension point (§5).
func (k *Kernel) Send(q *MessageQueue, word uintptr) {
	k.Wait(q.free)
	k.enqueueLocked(q, word, true)
}

// SendOrTimeout is the timed form of Send. Returns nil on success, or
// [ErrTimeout] if timeoutTicks elapse with the queue still full.
// timeoutTicks == 0 is equivalent to Send.
func (k *Kernel) SendOrTimeout(q *MessageQueue, word uintptr, timeoutTicks uint64) error {
	if err := k.WaitOrTimeout(q.free, timeoutTicks); err != nil {
		return err
	}
	k.enqueueLocked(q, word, true)
	return nil
}

// TrySend enqueues word without blocking. Returns [ErrWouldBlock] if
// the queue is full. Must be called from a kernel thread's own
// goroutine — use [Kernel.TrySendFromISR] from an ISR or any other
// foreign goroutine instead (a [Timer] callback, for instance; see
// [NewQueuePoster]).
func (k *Kernel) TrySend(q *MessageQueue, word uintptr) error {
	if err := k.TryWait(q.free); err != nil {
		return err
	}
	k.enqueueLocked(q, word, true)
	return nil
}

// TrySendFromISR is the ISR-context form of TrySend: it never
// synchronously preempts the caller, since there is no calling kernel
// thread to park (§5).
func (k *Kernel) TrySendFromISR(q *MessageQueue, word uintptr) error {
	if err := k.TryWait(q.free); err != nil {
		return err
	}
	k.enqueueLocked(q, word, false)
	return nil
}

func (k *Kernel) enqueueLocked(q *MessageQueue, word uintptr, preempt bool) {
	k.mu.Lock()
	q.ring[q.tail] = word
	q.tail = (q.tail + 1) % len(q.ring)
	bound, sig, ch := q.bound, q.signal, q.channel
	k.mu.Unlock()

	if preempt {
		k.Post(q.occupied)
		if bound {
			k.RaiseSignal(sig, 1<<ch)
		}
		return
	}
	k.PostFromISR(q.occupied)
	if bound {
		k.RaiseSignalFromISR(sig, 1<<ch)
	}
}

// Receive blocks until a word is available, then dequeues and returns
// it. An explicit suspension point (§5).
func (k *Kernel) Receive(q *MessageQueue) uintptr {
	k.Wait(q.occupied)
	return k.dequeueLocked(q)
}

// ReceiveOrTimeout is the timed form of Receive. Returns the dequeued
// word and nil on success, or 0 and [ErrTimeout] if timeoutTicks elapse
// with the queue still empty. timeoutTicks == 0 is equivalent to
// Receive.
func (k *Kernel) ReceiveOrTimeout(q *MessageQueue, timeoutTicks uint64) (uintptr, error) {
	if err := k.WaitOrTimeout(q.occupied, timeoutTicks); err != nil {
		return 0, err
	}
	return k.dequeueLocked(q), nil
}

// TryReceive dequeues a word without blocking. Returns 0 and
// [ErrWouldBlock] if the queue is empty.
func (k *Kernel) TryReceive(q *MessageQueue) (uintptr, error) {
	if err := k.TryWait(q.occupied); err != nil {
		return 0, err
	}
	return k.dequeueLocked(q), nil
}

func (k *Kernel) dequeueLocked(q *MessageQueue) uintptr {
	k.mu.Lock()
	word := q.ring[q.head]
	q.head = (q.head + 1) % len(q.ring)
	k.mu.Unlock()

	k.Post(q.free)
	return word
}
