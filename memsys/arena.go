/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import "sort"

// freeRange is a contiguous run of unallocated bytes within an arena.
// Ranges rather than fixed-size buffers, since object sizes are
// arbitrary.
type freeRange struct {
	offset int64
	size   int64
}

// arena is a byte-granular, first-fit allocator over a fixed-capacity
// span of bytes (host memory, device 0). It never grows past capacity:
// once exhausted, Allocate fails and the caller (memsys.Allocator,
// driven by the lifecycle manager) is responsible for evicting and
// retrying.
type arena struct {
	id       int64
	capacity int64
	used     int64
	free     []freeRange // kept sorted by offset, non-adjacent after merge
}

func newArena(id, capacity int64) *arena {
	return &arena{
		id:       id,
		capacity: capacity,
		free:     []freeRange{{offset: 0, size: capacity}},
	}
}

// allocate finds the first free range large enough for size and
// carves it out. Returns ok=false if no range fits.
func (a *arena) allocate(size int64) (offset int64, ok bool) {
	if size < 0 {
		return 0, false
	}
	// A zero-size allocation always succeeds without consuming capacity:
	// it sits at the first free offset, or at the end of the span when
	// the arena is full.
	if size == 0 {
		if len(a.free) > 0 {
			return a.free[0].offset, true
		}
		return a.capacity, true
	}
	for i := range a.free {
		fr := &a.free[i]
		if fr.size < size {
			continue
		}
		offset = fr.offset
		if fr.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			fr.offset += size
			fr.size -= size
		}
		a.used += size
		return offset, true
	}
	return 0, false
}

// release returns a previously allocated [offset, offset+size) range to
// the arena, merging with adjacent free ranges so later allocations
// can reclaim the coalesced span.
func (a *arena) release(offset, size int64) {
	if size == 0 {
		return
	}
	a.used -= size
	a.free = append(a.free, freeRange{offset: offset, size: size})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].offset < a.free[j].offset })

	merged := a.free[:1]
	for _, fr := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.offset+last.size == fr.offset {
			last.size += fr.size
		} else {
			merged = append(merged, fr)
		}
	}
	a.free = merged
}
