// Package memsys: the default allocator, combining a primary in-memory
// arena and a secondary, disk-backed fallback pool behind the single
// IAllocator port.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"sync"

	"github.com/plasmacore/plasmacore/cmn"
)

const (
	primaryArenaID  = 0
	fallbackArenaID = 1
)

// Allocator is the default IAllocator implementation: a fixed-capacity
// primary arena plus an optional, larger fallback pool.
type Allocator struct {
	mu       sync.Mutex
	primary  *arena
	fallback *fallbackPool
}

// NewAllocator builds an Allocator with the given primary footprint
// limit. fallbackDir == "" disables the fallback path entirely (every
// FallbackAllocate call then fails, as if allow_fallback had no effect).
func NewAllocator(primaryLimit int64, fallbackDir string, fallbackLimit int64) *Allocator {
	return &Allocator{
		primary:  newArena(primaryArenaID, primaryLimit),
		fallback: newFallbackPool(fallbackDir, fallbackLimit, fallbackArenaID),
	}
}

func (m *Allocator) Allocate(size int64) (cmn.Allocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, ok := m.primary.allocate(size)
	if !ok {
		return cmn.Allocation{}, false
	}
	return cmn.Allocation{
		Address:       uintptr(off),
		Size:          size,
		BackingFileID: primaryArenaID,
		Offset:        off,
		DeviceNum:     cmn.HostMemoryDevice,
		MappingSize:   m.primary.capacity,
	}, true
}

func (m *Allocator) FallbackAllocate(size int64) (cmn.Allocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.fallback.configured() {
		return cmn.Allocation{}, false
	}
	off, ok := m.fallback.allocate(size)
	if !ok {
		return cmn.Allocation{}, false
	}
	return cmn.Allocation{
		Address:       uintptr(off),
		Size:          size,
		BackingFileID: fallbackArenaID,
		Offset:        off,
		DeviceNum:     cmn.HostMemoryDevice,
		MappingSize:   m.fallback.capacity,
		FromFallback:  true,
	}, true
}

// Free returns an allocation to whichever pool produced it. Pairs
// exactly with the Allocate/FallbackAllocate call that returned the
// token.
func (m *Allocator) Free(a cmn.Allocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.FromFallback {
		m.fallback.release(a.Offset, a.Size)
		return
	}
	m.primary.release(a.Offset, a.Size)
}

func (m *Allocator) FootprintLimit() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primary.capacity
}

func (m *Allocator) Allocated() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primary.used
}

func (m *Allocator) FallbackAllocated() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback.used
}

// Close releases any backing file used by the fallback pool.
func (m *Allocator) Close() {
	m.fallback.close()
}

var _ IAllocator = (*Allocator)(nil)
