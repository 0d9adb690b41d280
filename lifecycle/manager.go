// Package lifecycle implements the object lifecycle manager: the public
// façade that sequences the allocator, object store, and eviction policy
// so that client references pin objects against reclamation, memory
// pressure is relieved by evicting unreferenced sealed objects, and
// every allocated byte is accounted for until its backing memory is
// returned to the allocator.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"

	"github.com/plasmacore/plasmacore/cmn"
	"github.com/plasmacore/plasmacore/eviction"
	"github.com/plasmacore/plasmacore/memsys"
	"github.com/plasmacore/plasmacore/objstore"
)

// DeleteCallback is the delete-notification port: invoked exactly once
// per object, after it has left the store. It must not call back into
// the Manager with the same object id.
type DeleteCallback func(id cmn.ObjectID)

// Manager orchestrates object state transitions, reference counting,
// and the allocate-with-eviction loop. Nothing about it is
// process-global: the surrounding service may construct as many
// independent Managers as it likes.
type Manager struct {
	store    *objstore.Store
	policy   *eviction.Policy
	alloc    memsys.IAllocator
	onDelete DeleteCallback
	cfg      *cmn.Config

	deletionCache map[cmn.ObjectID]struct{}

	// numBytesInUse is read from debug/accounting paths that may run
	// concurrently with the single-threaded mutating path, so it is an
	// atomic even though every mutation happens on one thread.
	numBytesInUse atomic.Int64
	lastUsageLog  time.Time
}

// NewManager wires a Manager around the given allocator and delete
// callback. cfg may be nil, in which case cmn.DefaultConfig() is used.
func NewManager(alloc memsys.IAllocator, onDelete DeleteCallback, cfg *cmn.Config) *Manager {
	if cfg == nil {
		cfg = cmn.DefaultConfig()
	}
	return &Manager{
		store:         objstore.New(),
		policy:        eviction.New(),
		alloc:         alloc,
		onDelete:      onDelete,
		cfg:           cfg,
		deletionCache: make(map[cmn.ObjectID]struct{}),
		lastUsageLog:  time.Now(),
	}
}

// CreateObject allocates backing memory (evicting unreferenced sealed
// objects if the allocator is under pressure) and registers a new
// object in the Created state. Only device 0 (host memory) is
// supported; a create that cannot be satisfied even after eviction and
// the optional fallback path fails with OutOfMemory.
func (m *Manager) CreateObject(info cmn.ObjectInfo, source cmn.ObjectSource, deviceNum cmn.DeviceNum, allowFallback bool) (*objstore.LocalObject, error) {
	if deviceNum != cmn.HostMemoryDevice {
		return nil, cmn.ErrInvalidDeviceNum
	}
	if m.store.Get(info.ObjectID) != nil {
		return nil, cmn.ErrObjectExists
	}
	size := info.Size()
	if size > m.alloc.FootprintLimit() {
		return nil, cmn.NewError(cmn.OutOfMemory, "requested size exceeds footprint limit")
	}

	alloc, err := m.allocateMemory(size, true /* isCreate */, allowFallback)
	if err != nil {
		return nil, cmn.Wrapf(err, "create_object %s (%d bytes)", info.ObjectID, size)
	}

	obj := m.store.Create(alloc, info, source)
	m.policy.ObjectCreated(info.ObjectID, size, true /* isCreateOp */)
	m.numBytesInUse.Add(size)
	glog.V(2).Infof("lifecycle: created %s", obj)
	m.maybeLogUsage()
	return obj, nil
}

// GetObject delegates to the store; a pure lookup.
func (m *Manager) GetObject(id cmn.ObjectID) *objstore.LocalObject { return m.store.Get(id) }

// SealObject delegates to the store. A sealed object is evictable
// exactly while its reference count is zero: sealing at ref count 0
// (uncommon - the usual flow is create → AddReference → seal →
// RemoveReference) enters the evictable set right here, the same
// transition RemoveReference performs when the last reference drops.
func (m *Manager) SealObject(id cmn.ObjectID) *objstore.LocalObject {
	obj := m.store.Seal(id)
	if obj == nil {
		return nil
	}
	// Sealing ends the object's "unsealed" contribution to
	// num_bytes_in_use. If it is also unreferenced it isn't pinned by a
	// reference either, so the whole size drops out of num_bytes_in_use
	// and the object becomes evictable until AddReference next pins it.
	if obj.RefCount == 0 {
		m.policy.EndObjectAccess(id)
		m.numBytesInUse.Sub(obj.ObjectInfo.Size())
	}
	return obj
}

// AbortObject fails if the object is absent or already sealed,
// otherwise deletes it outright (never deferred, even while references
// are held; any pending deferred delete for the id is cleared).
func (m *Manager) AbortObject(id cmn.ObjectID) bool {
	obj := m.store.Get(id)
	if obj == nil || obj.State != cmn.ObjectCreated {
		return false
	}
	m.deleteImpl(obj)
	return true
}

// DeleteObject deletes id immediately when unreferenced. A delete of a
// still-referenced object is deferred: the id goes into the deletion
// cache and the record is removed when the last reference drops.
func (m *Manager) DeleteObject(id cmn.ObjectID) error {
	obj := m.store.Get(id)
	if obj == nil {
		return cmn.ErrObjectNonexistent
	}
	if obj.RefCount > 0 {
		m.deletionCache[id] = struct{}{}
		return cmn.ErrObjectInUse
	}
	m.deleteImpl(obj)
	return nil
}

// AddReference pins id. A sealed object whose reference count
// transitions 0 → 1 leaves the evictable set.
func (m *Manager) AddReference(id cmn.ObjectID) bool {
	obj := m.store.Get(id)
	if obj == nil {
		return false
	}
	if obj.State == cmn.ObjectSealed && obj.RefCount == 0 {
		m.policy.BeginObjectAccess(id)
		m.numBytesInUse.Add(obj.ObjectInfo.Size())
	}
	obj.RefCount++
	return true
}

// RemoveReference unpins id. A sealed object whose reference count
// drops back to 0 becomes evictable; if its deletion was deferred, it
// is deleted on the spot.
func (m *Manager) RemoveReference(id cmn.ObjectID) bool {
	obj := m.store.Get(id)
	if obj == nil || obj.RefCount == 0 {
		return false
	}
	obj.RefCount--
	if obj.RefCount != 0 {
		return true
	}

	if obj.State == cmn.ObjectSealed {
		m.policy.EndObjectAccess(id)
		m.numBytesInUse.Sub(obj.ObjectInfo.Size())
	}
	if _, deferred := m.deletionCache[id]; deferred {
		m.deleteImpl(obj)
	}
	return true
}

// RequireSpace asks the eviction policy for victims covering
// targetBytes, deletes each through the uniform deletion path, and
// returns the total bytes reclaimed.
func (m *Manager) RequireSpace(targetBytes int64) int64 {
	return m.evict(targetBytes)
}

// evict asks the eviction policy for victims covering targetBytes and
// deletes each through the uniform deletion path, returning the total
// bytes reclaimed. Shared by the public RequireSpace and by the
// allocate-with-eviction loop below.
func (m *Manager) evict(targetBytes int64) int64 {
	victims, freed := m.policy.RequireSpace(targetBytes)
	for _, id := range victims {
		m.deleteStoreOnly(id)
	}
	return freed
}

// allocateMemory is the allocate-with-eviction loop: try the primary
// path, evict and retry on failure, then (caller permitting) fall back
// to the slower disk-backed path. Eviction is strictly best-effort
// reclamation - this never blocks waiting for references to drop.
func (m *Manager) allocateMemory(size int64, isCreate, allowFallback bool) (cmn.Allocation, error) {
	if alloc, ok := m.alloc.Allocate(size); ok {
		return alloc, nil
	}

	freed := m.evict(size)
	if freed > 0 {
		glog.Infof("lifecycle: evicted %d bytes to satisfy a %d-byte allocation", freed, size)
	}

	if alloc, ok := m.alloc.Allocate(size); ok {
		return alloc, nil
	}

	if !allowFallback {
		return cmn.Allocation{}, cmn.ErrOutOfMemory
	}

	if alloc, ok := m.alloc.FallbackAllocate(size); ok {
		glog.Warningf("lifecycle: primary allocator exhausted, using fallback for %d bytes (create=%v)", size, isCreate)
		return alloc, nil
	}

	// Neither the in-memory arena nor the file-backed fallback ever
	// signal "retry later, this may succeed" (neither models a
	// concurrently-draining allocator); a fully exhausted cascade is
	// therefore always permanent from this allocator's point of view.
	// ErrTransientOutOfMemory is reserved for an IAllocator
	// implementation that can make that distinction.
	return cmn.Allocation{}, cmn.ErrOutOfMemory
}

// deleteStoreOnly runs the uniform deletion path for an id the
// eviction policy has already dropped from its own bookkeeping (a
// victim returned by RequireSpace): remove from the store, fire the
// callback, return the allocation.
func (m *Manager) deleteStoreOnly(id cmn.ObjectID) {
	alloc := m.store.Delete(id)
	if m.onDelete != nil {
		m.onDelete(id)
	}
	m.alloc.Free(alloc)
}

// deleteImpl is the uniform deletion path for user-requested,
// deferred, and abort deletions (eviction victims, already dropped by
// the policy, go through deleteStoreOnly): it drops the id from the
// policy and the deletion cache, removes the record, fires the callback
// exactly once (after the record has left the store, so observers
// cannot race a concurrent Get), and returns the allocation to the
// allocator.
func (m *Manager) deleteImpl(obj *objstore.LocalObject) {
	id := obj.ObjectID
	// An abort can race a pending deferred delete on the same id; the
	// record is going away now, so a stale cache entry must not survive
	// to ambush a future object that reuses the id.
	delete(m.deletionCache, id)
	if obj.State == cmn.ObjectCreated {
		// A Created object's creation-time contribution to
		// num_bytes_in_use is retired only after sealing (by Seal, or by
		// the last RemoveReference after it); an object deleted/aborted
		// before it was ever sealed must retire it here instead.
		m.numBytesInUse.Sub(obj.ObjectInfo.Size())
	}
	m.policy.Remove(id)
	alloc := m.store.Delete(id)
	if m.onDelete != nil {
		m.onDelete(id)
	}
	m.alloc.Free(alloc)
}

// NumBytesInUse is the sum of sizes of all objects with ref_count > 0
// plus all unsealed objects.
func (m *Manager) NumBytesInUse() int64 { return m.numBytesInUse.Load() }

func (m *Manager) NumBytesCreatedTotal() int64 { return m.store.NumBytesCreatedTotal() }
func (m *Manager) NumBytesUnsealed() int64     { return m.store.NumBytesUnsealed() }
func (m *Manager) NumObjectsUnsealed() int64   { return m.store.NumObjectsUnsealed() }

func (m *Manager) IsObjectSealed(id cmn.ObjectID) bool {
	obj := m.store.Get(id)
	return obj != nil && obj.State == cmn.ObjectSealed
}

func (m *Manager) EvictionPolicyDebugString() string { return m.policy.DebugString() }

// Snapshot returns a flattened, queryable view of every tracked
// object, feeding the debugdb index behind the CLI's inspect command.
func (m *Manager) Snapshot() []objstore.Record { return m.store.Snapshot() }

// GetDebugDump renders a human-readable snapshot of the whole core:
// store, policy, and manager-level counters.
func (m *Manager) GetDebugDump(buf *strings.Builder) {
	m.store.DebugDump(buf)
	buf.WriteString(m.policy.DebugString())
	fmt.Fprintf(buf, "lifecycle: %d bytes in use, %d pending deferred deletes\n",
		m.numBytesInUse.Load(), len(m.deletionCache))
}

// maybeLogUsage logs a usage summary at cfg.Lifecycle.UsageLogInterval.
func (m *Manager) maybeLogUsage() {
	if time.Since(m.lastUsageLog) < m.cfg.Lifecycle.UsageLogInterval {
		return
	}
	m.lastUsageLog = time.Now()
	glog.Infof("lifecycle: in_use=%s created_total=%s unsealed=%s (%d objects)",
		cmn.B2S(m.numBytesInUse.Load(), 2),
		cmn.B2S(m.store.NumBytesCreatedTotal(), 2),
		cmn.B2S(m.store.NumBytesUnsealed(), 2),
		m.store.NumObjectsUnsealed())
}
