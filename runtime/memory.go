package runtime

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
)

const (
	pageSize   = 1 << 16
	blockAlign = 8
)

// allocator hands out guest memory above the heap base. Block sizes are
// tracked on the host so the guest frees by address alone.
type allocator struct {
	next uint32
	live map[uint32]uint32   // address -> block size
	free map[uint32][]uint32 // block size -> free addresses
}

func newAllocator(heapBase uint32) *allocator {
	return &allocator{
		next: types.AlignUp(max(heapBase, blockAlign), blockAlign),
		live: make(map[uint32]uint32),
		free: make(map[uint32][]uint32),
	}
}

func (a *allocator) alloc(mem api.Memory, size, align uint32) (uint32, error) {
	block := types.AlignUp(max(size, 1), blockAlign)
	if align <= blockAlign {
		if list := a.free[block]; len(list) > 0 {
			ptr := list[len(list)-1]
			a.free[block] = list[:len(list)-1]
			a.live[ptr] = block
			return ptr, nil
		}
		align = blockAlign
	}
	ptr := types.AlignUp(a.next, align)
	end := uint64(ptr) + uint64(block)
	if end > uint64(mem.Size()) {
		pages := uint32((end - uint64(mem.Size()) + pageSize - 1) / pageSize)
		if _, ok := mem.Grow(pages); !ok {
			return 0, errors.New(errors.PhaseRuntime, errors.KindLimit).
				Value(size).Detail("out of memory allocating %d bytes", size).Build()
		}
	}
	a.next = uint32(end)
	a.live[ptr] = block
	return ptr, nil
}

func (a *allocator) release(ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	block, ok := a.live[ptr]
	if !ok {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Value(ptr).Detail("free of unallocated address %#x", ptr).Build()
	}
	delete(a.live, ptr)
	a.free[block] = append(a.free[block], ptr)
	return nil
}

// inUse is the number of live allocations.
func (a *allocator) inUse() int { return len(a.live) }
