// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import "code.hybscloud.com/spin"

// DelayMicroseconds busy-waits for approximately us microseconds,
// calibrated against the kernel's configured cycles-per-microsecond
// (§4.4). Unlike every other blocking call in this package, it does not
// suspend the calling thread or touch the ready queue or timeout queue
// at all: it is a tight spin loop, safe to call from ISR context, and
// independent of the tick source exactly as §4.4 requires.
func (k *Kernel) DelayMicroseconds(us uint64) {
	cycles := us * k.cfg.cyclesPerMicrosecond
	sw := spin.Wait{}
	for i := uint64(0); i < cycles; i++ {
		sw.Once()
	}
}
