// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates a non-blocking operation found its resource
// unavailable: TryLock found the mutex owned, TryWait found the
// semaphore at zero, a non-blocking Queue Send found no free slot.
//
// ErrWouldBlock is a control flow signal, not a failure: the caller
// should retry, back off, or fall back to a blocking variant rather than
// treat it as an error condition.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency,
// exactly as the rest of the hybscloud concurrency stack does.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrTimeout indicates a blocking-with-timeout variant (WaitOrTimeout,
// WaitSignalOrTimeout, SendOrTimeout, ReceiveOrTimeout,
// WaitOnMultiOrTimeout, WaitForThreadStop with a deadline) expired
// before the operation could complete. Distinct from both success and
// [ErrWouldBlock] per §7 of the kernel's error taxonomy. [Kernel.Lock]
// has no timed form.
var ErrTimeout = errors.New("rtcore: operation timed out")

// ErrInvalidParam indicates the request was rejected at the API
// boundary: a heap region smaller than its alignment, an alignment that
// is not a power of two of at least 8, a non-positive allocation size,
// a Realloc of a handle that is not currently allocated, invalid slab
// pool dimensions, and similar caller errors. Never returned for
// resource exhaustion or timing; see [ErrExhausted] and [ErrTimeout].
// Thread-management caller errors (a priority outside [0, N) passed to
// [Kernel.NewThread] or [Kernel.ChangePriority], or [Kernel.Run] on a
// thread that is neither uninitialized nor stopped) panic instead of
// returning this error.
var ErrInvalidParam = errors.New("rtcore: invalid parameter")

// ErrExhausted indicates the heap or a slab pool could not satisfy an
// allocation request. Returned, together with a zero handle, by
// [Heap.Alloc], [Heap.Realloc], and [SlabPool.Alloc]. [SlabPool.AddSlabs]
// does not return it: it reports a shortfall through its count of slabs
// actually added.
var ErrExhausted = errors.New("rtcore: allocator exhausted")

// IsWouldBlock reports whether err indicates a non-blocking operation
// would have blocked. Delegates to [iox.IsWouldBlock] for wrapped error
// support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsTimeout reports whether err is (or wraps) [ErrTimeout].
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsInvalidParam reports whether err is (or wraps) [ErrInvalidParam].
func IsInvalidParam(err error) bool {
	return errors.Is(err, ErrInvalidParam)
}

// IsExhausted reports whether err is (or wraps) [ErrExhausted].
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// IsSemantic reports whether err is a control flow signal rather than a
// failure: true for [ErrWouldBlock] and [ErrTimeout]. Delegates the
// ErrWouldBlock case to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err) || errors.Is(err, ErrTimeout)
}

// IsNonFailure reports whether err represents an expected, non-failure
// condition: nil, [ErrWouldBlock], or [ErrTimeout]. Delegates the first
// two cases to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err) || errors.Is(err, ErrTimeout)
}
