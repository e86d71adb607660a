// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore_test

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/rtcore"
)

// manualClock is a test-only [rtcore.Environment] whose TickSource is
// driven by explicit calls to Tick rather than real wall-clock time,
// so scenario tests can advance the kernel deterministically.
type manualClock struct {
	mu      sync.Mutex
	fn      func()
	seq     atomix.Uint32
	started chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{started: make(chan struct{})}
}

func (c *manualClock) Start(fn func()) {
	c.mu.Lock()
	c.fn = fn
	c.mu.Unlock()
	close(c.started)
}

// WaitStarted blocks until Start has registered its callback.
func (c *manualClock) WaitStarted() { <-c.started }

func (c *manualClock) Reprogram(uint64) {}

func (c *manualClock) RequestSwitch() {}

func (c *manualClock) Switched(prev, next *rtcore.Thread) {}

func (c *manualClock) Mask() {}

func (c *manualClock) Unmask() {}

func (c *manualClock) SetPriority(int) {}

func (c *manualClock) Trigger() {
	c.mu.Lock()
	fn := c.fn
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Tick performs one nominal tick.
func (c *manualClock) Tick() { c.Trigger() }

// Ticks performs n nominal ticks in sequence.
func (c *manualClock) Ticks(n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

func (c *manualClock) Tracef(string, ...any) {}

func (c *manualClock) NextUniqueID() uint32 {
	return c.seq.Add(1)
}

var _ rtcore.Environment = (*manualClock)(nil)
