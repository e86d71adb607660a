// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtcore

import (
	"sync"

	"code.hybscloud.com/rtcore/internal/ilist"
)

// slabBlockNode is one fixed-size block's free-list link. A slab's
// blocks are all the same size; the block's bytes live in the heap at
// ptr, while this descriptor lives outside the heap region. node is the
// first field so [ilist.Owner] recovers the descriptor from the free
// list, and slab points back to the owning slab.
type slabBlockNode struct {
	node ilist.Node
	ptr  uintptr
	slab *slabRecord
}

func slabBlockOf(n *ilist.Node) *slabBlockNode {
	return ilist.Owner[slabBlockNode](n)
}

// slabRecord tracks one heap allocation backing slabCount blocks, and
// how many of those blocks are currently allocated out of the pool —
// needed so FreeUnallocatedSlabs knows which slabs it may reclaim.
type slabRecord struct {
	base      uintptr
	blocks    []*slabBlockNode
	allocated int
}

// SlabPool is a heap-backed pool of fixed-size, fixed-alignment blocks
// (§4.3). Blocks come from pool-owned slabs allocated from heap; free
// blocks live on a single intrusive free-list shared across every slab
// the pool owns.
//
// The zero value is not usable; construct with [NewSlabPool].
type SlabPool struct {
	mu        sync.Mutex
	heap      *Heap
	slabCount int
	blockSize int
	align     int

	free  ilist.List
	slabs []*slabRecord
}

// NewSlabPool constructs an empty SlabPool drawing from heap. Each slab
// subsequently added holds slabCount blocks of blockSize bytes, each
// aligned to align (which must itself not exceed heap's own alignment
// guarantee).
func NewSlabPool(heap *Heap, slabCount, blockSize, align int) (*SlabPool, error) {
	if slabCount <= 0 || blockSize <= 0 || align <= 0 || align&(align-1) != 0 {
		return nil, ErrInvalidParam
	}
	p := &SlabPool{heap: heap, slabCount: slabCount, blockSize: blockSize, align: align}
	p.free.Init()
	return p, nil
}

// AddSlabs allocates up to n new slabs from the backing heap, returning
// the number actually added (fewer than n if the heap could not
// satisfy every request).
func (p *SlabPool) AddSlabs(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	blockStride := alignUp(p.blockSize, p.align)
	for i := 0; i < n; i++ {
		base, err := p.heap.Alloc(blockStride * p.slabCount)
		if err != nil {
			break
		}
		rec := &slabRecord{base: base}
		rec.blocks = make([]*slabBlockNode, p.slabCount)
		for j := 0; j < p.slabCount; j++ {
			bn := &slabBlockNode{ptr: base + uintptr(j*blockStride), slab: rec}
			rec.blocks[j] = bn
			p.free.PushBack(&bn.node)
		}
		p.slabs = append(p.slabs, rec)
		added++
	}
	return added
}

// Alloc returns a block from the pool, or [ErrExhausted] if every slab
// is full. Never itself allocates from the heap; call AddSlabs first.
func (p *SlabPool) Alloc() (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.free.Front()
	if n == nil {
		return 0, ErrExhausted
	}
	n.Remove()
	bn := slabBlockOf(n)
	bn.slab.allocated++
	return bn.ptr, nil
}

// Free returns block to the pool. block must have come from Alloc on
// this pool; passing any other value is undefined.
func (p *SlabPool) Free(block uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.slabs {
		for _, bn := range rec.blocks {
			if bn.ptr == block {
				rec.allocated--
				p.free.PushBack(&bn.node)
				return
			}
		}
	}
}

// FreeUnallocatedSlabs reclaims up to n slabs back to the backing heap,
// returning the number actually reclaimed. Only a slab whose blocks are
// all currently free is eligible.
func (p *SlabPool) FreeUnallocatedSlabs(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	reclaimed := 0
	kept := p.slabs[:0]
	for _, rec := range p.slabs {
		if reclaimed < n && rec.allocated == 0 {
			for _, bn := range rec.blocks {
				bn.node.Remove()
			}
			p.heap.Free(rec.base)
			reclaimed++
			continue
		}
		kept = append(kept, rec)
	}
	p.slabs = kept
	return reclaimed
}
