// Package memsys implements the allocator port consumed by the object
// lifecycle core: byte-granular primary and fallback allocation over a
// single address space, with footprint accounting.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import "github.com/plasmacore/plasmacore/cmn"

// IAllocator is the port the lifecycle manager consumes; it never sees
// a concrete allocator type, only this interface.
type IAllocator interface {
	Allocate(size int64) (cmn.Allocation, bool)
	FallbackAllocate(size int64) (cmn.Allocation, bool)
	Free(a cmn.Allocation)
	FootprintLimit() int64
	Allocated() int64
	FallbackAllocated() int64
}
