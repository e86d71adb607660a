// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"sync"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// blockHeader describes one physical block of a [Heap]'s region: its
// byte offset, usable size, allocated/free state, and its neighbors in
// physical address order for O(1) coalescing on free (§4.2). freeNode
// is this header's single list link: on the heap's free list iff the
// block is free, unlinked otherwise.
type blockHeader struct {
	freeNode  ilist.Node
	offset    int
	size      int
	allocated bool
	prev      *blockHeader
	next      *blockHeader
}

func blockOf(n *ilist.Node) *blockHeader {
	return ilist.Owner[blockHeader](n)
}

// HeapStats reports a [Heap]'s current utilization, a diagnostic
// accessor needed to make exhaustion observable in tests without
// walking the heap's internal free list directly.
type HeapStats struct {
	RegionSize int
	Used       int
	Free       int
	Blocks     int
	FreeBlocks int
}

// Heap is a first-fit free-list allocator with coalescing over a
// contiguous byte region (§4.2). Every public operation serializes on
// its own mutex, deliberately separate from the kernel's scheduling
// lock: allocation is not itself a scheduling event.
//
// The zero value is not usable; construct with [NewHeap].
type Heap struct {
	mu     sync.Mutex
	region []byte
	align  int
	first  *blockHeader
	free   ilist.List
	blocks map[int]*blockHeader
}

// NewHeap takes ownership of region, establishing one large free block.
// align must be a power of two no smaller than 8 (word size on a 64-bit
// host standing in for the target's native word); allocations are
// rounded up to a multiple of it.
func NewHeap(region []byte, align int) (*Heap, error) {
	if align < 8 || align&(align-1) != 0 {
		return nil, ErrInvalidParam
	}
	if len(region) < align {
		return nil, ErrInvalidParam
	}
	h := &Heap{region: region, align: align, blocks: make(map[int]*blockHeader)}
	h.free.Init()
	b := &blockHeader{offset: 0, size: len(region)}
	h.first = b
	h.blocks[0] = b
	h.free.PushBack(&b.freeNode)
	return h, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Alloc returns a handle to at least size usable bytes aligned to the
// heap's alignment, or [ErrExhausted] if no free block is large enough.
// Never blocks.
func (h *Heap) Alloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, ErrInvalidParam
	}
	size = alignUp(size, h.align)

	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.firstFitLocked(size)
	if b == nil {
		return 0, ErrExhausted
	}
	b.freeNode.Remove()

	if remainder := b.size - size; remainder >= h.align {
		nb := &blockHeader{
			offset: b.offset + size,
			size:   remainder,
			prev:   b,
			next:   b.next,
		}
		if b.next != nil {
			b.next.prev = nb
		}
		b.next = nb
		b.size = size
		h.blocks[nb.offset] = nb
		h.free.PushBack(&nb.freeNode)
	}
	b.allocated = true
	return uintptr(b.offset + 1), nil
}

func (h *Heap) firstFitLocked(size int) *blockHeader {
	n := h.free.Front()
	for n != nil {
		b := blockOf(n)
		if b.size >= size {
			return b
		}
		if h.free.IsLast(n) {
			return nil
		}
		n = n.Next()
	}
	return nil
}

// Realloc resizes the allocation at ptr. ptr == 0 behaves as Alloc;
// size == 0 behaves as Free and returns 0. Otherwise the first
// min(old, new) bytes of the returned block equal ptr's prior contents;
// an adjacent free block is consumed in place before falling back to
// allocate-copy-free.
func (h *Heap) Realloc(ptr uintptr, size int) (uintptr, error) {
	if ptr == 0 {
		return h.Alloc(size)
	}
	if size == 0 {
		h.Free(ptr)
		return 0, nil
	}
	size = alignUp(size, h.align)

	h.mu.Lock()
	offset := int(ptr - 1)
	b, ok := h.blocks[offset]
	if !ok || !b.allocated {
		h.mu.Unlock()
		return 0, ErrInvalidParam
	}
	if b.size >= size {
		h.mu.Unlock()
		return ptr, nil
	}
	if n := b.next; n != nil && !n.allocated && b.size+n.size >= size {
		n.freeNode.Remove()
		b.size += n.size
		b.next = n.next
		if n.next != nil {
			n.next.prev = b
		}
		delete(h.blocks, n.offset)
		if remainder := b.size - size; remainder >= h.align {
			nb := &blockHeader{offset: b.offset + size, size: remainder, prev: b, next: b.next}
			if b.next != nil {
				b.next.prev = nb
			}
			b.next = nb
			b.size = size
			h.blocks[nb.offset] = nb
			h.free.PushBack(&nb.freeNode)
		}
		h.mu.Unlock()
		return ptr, nil
	}
	old := b.size
	h.mu.Unlock()

	np, err := h.Alloc(size)
	if err != nil {
		return 0, err
	}
	copy(h.Bytes(np, size), h.Bytes(ptr, old))
	h.Free(ptr)
	return np, nil
}

// Free returns the block at ptr to the heap, coalescing with the
// physically adjacent block on either side if free. Freeing 0 is a
// no-op; freeing the same handle twice, or one not produced by this
// heap, is undefined (per §4.2) and in this implementation simply
// ignored rather than acted on.
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	offset := int(ptr - 1)
	b, ok := h.blocks[offset]
	if !ok || !b.allocated {
		return
	}
	b.allocated = false

	if n := b.next; n != nil && !n.allocated {
		n.freeNode.Remove()
		b.size += n.size
		b.next = n.next
		if n.next != nil {
			n.next.prev = b
		}
		delete(h.blocks, n.offset)
	}
	if p := b.prev; p != nil && !p.allocated {
		p.freeNode.Remove()
		p.size += b.size
		p.next = b.next
		if b.next != nil {
			b.next.prev = p
		}
		delete(h.blocks, b.offset)
		b = p
	}
	h.free.PushBack(&b.freeNode)
}

// Bytes returns a slice view of size usable bytes starting at ptr, for
// reading or writing payload data. ptr must currently be allocated.
func (h *Heap) Bytes(ptr uintptr, size int) []byte {
	offset := int(ptr - 1)
	return h.region[offset : offset+size]
}

// Stats reports the heap's current utilization.
func (h *Heap) Stats() HeapStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st HeapStats
	st.RegionSize = len(h.region)
	for b := h.first; b != nil; b = b.next {
		st.Blocks++
		if b.allocated {
			st.Used += b.size
		} else {
			st.Free += b.size
			st.FreeBlocks++
		}
	}
	return st
}
