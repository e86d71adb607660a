// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package rtcore

// RaceEnabled is true when the race detector is active. Tests that poke
// at scheduler-internal state from outside the normal resume-channel
// handoff can consult it to skip themselves under -race; no test in
// this module reads it.
const RaceEnabled = true
