// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"log"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
)

// Simulation is the default, goroutine/time-backed [Environment] for
// standalone operation and tests, in the absence of real hardware.
// Tick notifications are delivered by a single [time.Timer] scaled by a
// configurable nominal tick duration; masking the simulated interrupt
// controller defers delivery until unmasked rather than dropping it,
// matching how a real masked timer interrupt stays pending.
type Simulation struct {
	nominal time.Duration

	mu      sync.Mutex
	fn      func()
	timer   *time.Timer
	masked  bool
	pending bool

	nextID atomix.Uint32
}

// NewSimulation returns a Simulation with a 1ms nominal tick interval.
func NewSimulation() *Simulation {
	return NewSimulationWithInterval(time.Millisecond)
}

// NewSimulationWithInterval returns a Simulation whose nominal tick
// interval is d. Tests that want ticks to elapse quickly pass a small
// d (e.g. time.Microsecond); embedders modeling a specific hardware
// tick rate pass the matching wall-clock duration.
func NewSimulationWithInterval(d time.Duration) *Simulation {
	if d <= 0 {
		d = time.Millisecond
	}
	return &Simulation{nominal: d}
}

// Start implements [TickSource].
func (s *Simulation) Start(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.arm(1)
}

// Reprogram implements [TickSource].
func (s *Simulation) Reprogram(intervals uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm(intervals)
}

// arm must be called with s.mu held.
func (s *Simulation) arm(intervals uint64) {
	if intervals == 0 {
		intervals = 1
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.nominal*time.Duration(intervals), s.fire)
}

func (s *Simulation) fire() {
	s.mu.Lock()
	if s.masked {
		s.pending = true
		s.mu.Unlock()
		return
	}
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// RequestSwitch implements [ContextSwitcher] as a no-op: a deferred
// handoff already happens at the running thread's own next voluntary
// suspension point, so there is nothing to pend.
func (s *Simulation) RequestSwitch() {}

// Switched implements [ContextSwitcher] as a no-op.
func (s *Simulation) Switched(prev, next *Thread) {}

// Mask implements [InterruptController]: simulated tick delivery is
// deferred, not dropped, until the matching Unmask.
func (s *Simulation) Mask() {
	s.mu.Lock()
	s.masked = true
	s.mu.Unlock()
}

// Unmask implements [InterruptController], delivering any tick that
// fired while masked.
func (s *Simulation) Unmask() {
	s.mu.Lock()
	s.masked = false
	fire := s.pending
	s.pending = false
	fn := s.fn
	s.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

// SetPriority implements [InterruptController] as a no-op: the
// simulation has no notion of nested interrupt priority levels.
func (s *Simulation) SetPriority(level int) {}

// Trigger implements [SoftwareInterrupt] by invoking the tick callback
// immediately, as if an external interrupt had forced a scheduler
// entry outside the normal tick cadence.
func (s *Simulation) Trigger() {
	s.mu.Lock()
	fn := s.fn
	masked := s.masked
	if masked {
		s.pending = true
	}
	s.mu.Unlock()
	if !masked && fn != nil {
		fn()
	}
}

// Tracef implements [Tracer] by writing to the standard logger.
func (s *Simulation) Tracef(format string, args ...any) {
	log.Printf(format, args...)
}

// NextUniqueID implements [UniqueIDGenerator].
func (s *Simulation) NextUniqueID() uint32 {
	return uint32(s.nextID.AddAcqRel(1) - 1)
}
