// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

// MultiQueue lets one thread block on several [MessageQueue] values at
// once (§4.5.4): each bound queue is assigned a channel index, and a
// successful Send on any of them raises that channel's bit on the
// MultiQueue's backing [Signal]. WaitOnMulti then blocks on the signal
// and returns whichever channel became ready.
//
// The zero value is not usable; construct with [Kernel.NewMultiQueue].
type MultiQueue struct {
	kernel *Kernel
	signal *Signal
	count  uint
}

// NewMultiQueue constructs a MultiQueue able to bind up to 32 channels
// (one per bit of the backing Signal).
func (k *Kernel) NewMultiQueue() *MultiQueue {
	return &MultiQueue{kernel: k, signal: k.NewSignal()}
}

// Bind registers q on m at the next available channel index and
// returns it. Panics if m already has 32 channels bound, or if q is
// already bound to some MultiQueue.
func (k *Kernel) Bind(m *MultiQueue, q *MessageQueue) uint {
	k.mu.Lock()
	defer k.mu.Unlock()
	if m.count >= 32 {
		panic("rtcore: multi-queue already has 32 channels bound")
	}
	if q.bound {
		panic("rtcore: message queue already bound to a multi-queue")
	}
	ch := m.count
	m.count++
	q.signal = m.signal
	q.channel = ch
	q.bound = true
	return ch
}

// WaitOnMulti blocks until any queue bound to m has a message waiting,
// then returns that channel's index. The channel's bit is consumed
// along with whatever other channel bits happened to be set at that
// moment (§4.5.2's reset-to-zero semantics), and only the lowest set
// channel is returned; callers that care about more than one ready
// channel per wakeup should drain every bound queue with non-blocking
// receives rather than assuming a single ready channel per wakeup.
func (k *Kernel) WaitOnMulti(m *MultiQueue) uint {
	mask := channelMask(m.count)
	v := k.WaitSignal(m.signal, mask)
	return lowestSetChannel(v)
}

// WaitOnMultiOrTimeout is the timed form of WaitOnMulti.
func (k *Kernel) WaitOnMultiOrTimeout(m *MultiQueue, timeoutTicks uint64) (uint, error) {
	mask := channelMask(m.count)
	v, err := k.WaitSignalOrTimeout(m.signal, mask, timeoutTicks)
	if err != nil {
		return 0, err
	}
	return lowestSetChannel(v), nil
}

// ClearChannelFlag tells m the caller has observed channel and any
// other bits it no longer needs reported; flags not cleared here remain
// set for the next WaitOnMulti to report immediately. Callers that
// drained every ready channel after a wakeup do not need to call this:
// WaitSignal already reset the whole value to zero on consumption.
func (k *Kernel) ClearChannelFlag(m *MultiQueue, flags uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v := m.signal.value.LoadAcquire()
	m.signal.value.StoreRelease(v &^ flags)
}

func channelMask(count uint) uint32 {
	if count >= 32 {
		return ^uint32(0)
	}
	return (uint32(1) << count) - 1
}

func lowestSetChannel(v uint32) uint {
	for ch := uint(0); ch < 32; ch++ {
		if v&(1<<ch) != 0 {
			return ch
		}
	}
	return 0
}
