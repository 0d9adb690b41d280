// Package eviction tracks the set of sealed, unreferenced ("evictable")
// objects and selects victims under memory pressure: least recently
// released first, with a container/heap min-heap keyed by release order.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package eviction

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/plasmacore/plasmacore/cmn"
)

// entry is one evictable object: its size (so RequireSpace can answer
// "how many bytes would evicting this free") and a monotonically
// increasing sequence number standing in for "last used" - assigned
// either at creation (objects restored/received already unreferenced)
// or each time EndObjectAccess makes the object evictable (a seal at
// reference count zero, or the last reference dropping). Lower
// sequence sorts first: least-recently-ended access is the first
// victim, ties broken by insertion order. An object sealed without
// ever being referenced therefore ranks by when it was sealed, not by
// when it was created.
type entry struct {
	id    cmn.ObjectID
	size  int64
	seq   int64
	index int // heap.Interface bookkeeping
}

// minHeap orders entries by ascending seq - the oldest release (or
// registration, for restored objects) pops first.
type minHeap []*entry

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *minHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Policy tracks the evictable set plus the bytes currently pinned (in
// use), so future extensions can answer capacity-planning questions
// without consulting the object store.
type Policy struct {
	evictable   minHeap
	byID        map[cmn.ObjectID]*entry // only entries currently in the heap
	tracked     map[cmn.ObjectID]int64  // every object this policy knows about, evictable or not
	pinnedBytes int64
	nextSeq     int64
}

func New() *Policy {
	p := &Policy{
		byID:    make(map[cmn.ObjectID]*entry),
		tracked: make(map[cmn.ObjectID]int64),
	}
	heap.Init(&p.evictable)
	return p
}

// ObjectCreated registers a newly created object. isCreateOp=true is
// the normal create→seal→unref path: the object is tracked but not yet
// evictable. isCreateOp=false models a restore/injection that arrives
// already unreferenced, so it becomes evictable immediately.
func (p *Policy) ObjectCreated(id cmn.ObjectID, size int64, isCreateOp bool) {
	cmn.AssertMsg(!p.isTracked(id), "object_created called for an already-tracked id: "+id.String())
	p.tracked[id] = size
	if isCreateOp {
		p.pinnedBytes += size
		return
	}
	p.pushEvictable(id, size)
}

// BeginObjectAccess removes id from the evictable set: the reference
// count transitioned 0 → 1. An id that is tracked but not currently
// evictable is already counted as pinned, so it is left unchanged.
func (p *Policy) BeginObjectAccess(id cmn.ObjectID) {
	e, ok := p.byID[id]
	if !ok {
		cmn.AssertMsg(p.isTracked(id), "begin_object_access on an untracked id: "+id.String())
		return
	}
	heap.Remove(&p.evictable, e.index)
	delete(p.byID, id)
	p.pinnedBytes += e.size
}

// EndObjectAccess adds id back to the evictable set with a fresh
// "last used" sequence: the reference count transitioned 1 → 0.
func (p *Policy) EndObjectAccess(id cmn.ObjectID) {
	size, ok := p.tracked[id]
	cmn.AssertMsg(ok, "end_object_access on an untracked id: "+id.String())
	p.pinnedBytes -= size
	p.pushEvictable(id, size)
}

func (p *Policy) pushEvictable(id cmn.ObjectID, size int64) {
	e := &entry{id: id, size: size, seq: p.nextSeq}
	p.nextSeq++
	p.byID[id] = e
	heap.Push(&p.evictable, e)
}

func (p *Policy) isTracked(id cmn.ObjectID) bool {
	_, ok := p.tracked[id]
	return ok
}

// RequireSpace pops victims, oldest-released first, until bytesFreed
// reaches numBytes or the evictable set is exhausted. Returned victims
// are removed from every internal structure as part of this call - the
// caller is contractually obligated to delete each one.
func (p *Policy) RequireSpace(numBytes int64) (victims []cmn.ObjectID, bytesFreed int64) {
	for bytesFreed < numBytes && p.evictable.Len() > 0 {
		e := heap.Pop(&p.evictable).(*entry)
		delete(p.byID, e.id)
		delete(p.tracked, e.id)
		victims = append(victims, e.id)
		bytesFreed += e.size
	}
	return victims, bytesFreed
}

// Remove unconditionally drops id from every internal structure -
// used when the lifecycle manager deletes an object for reasons other
// than eviction (abort, explicit delete, deferred delete on unref).
func (p *Policy) Remove(id cmn.ObjectID) {
	if e, ok := p.byID[id]; ok {
		heap.Remove(&p.evictable, e.index)
		delete(p.byID, id)
	} else if size, ok := p.tracked[id]; ok {
		p.pinnedBytes -= size
	}
	delete(p.tracked, id)
}

// PinnedBytes returns the total size of objects this policy knows
// about that are not currently evictable (created-but-unsealed, or
// sealed-and-referenced).
func (p *Policy) PinnedBytes() int64 { return p.pinnedBytes }

// DebugString renders a human-readable snapshot, in victim-selection
// order.
func (p *Policy) DebugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eviction policy: %d evictable, %d tracked, %d bytes pinned\n",
		p.evictable.Len(), len(p.tracked), p.pinnedBytes)
	ordered := make([]entry, len(p.evictable))
	for i, e := range p.evictable {
		ordered[i] = *e
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	for _, e := range ordered {
		fmt.Fprintf(&b, "  %s: %d bytes (seq %d)\n", e.id, e.size, e.seq)
	}
	return b.String()
}
