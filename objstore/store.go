// Package objstore implements the authoritative, single-writer
// object_id → LocalObject registry. It has no reference-counting or
// eviction knowledge of its own; the lifecycle manager sequences those
// concerns around it.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package objstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/plasmacore/plasmacore/cmn"
)

// LocalObject is the per-object record. The store owns every
// LocalObject uniquely; pointers handed back to callers are read-only
// views valid until the next mutating call on the same id.
type LocalObject struct {
	ObjectID          cmn.ObjectID
	Allocation        cmn.Allocation
	ObjectInfo        cmn.ObjectInfo
	Source            cmn.ObjectSource
	State             cmn.ObjectState
	RefCount          int
	CreateTime        time.Time
	ConstructDuration time.Duration
}

func (o *LocalObject) String() string {
	return fmt.Sprintf("%s[%s refs=%d size=%d]", o.ObjectID, o.State, o.RefCount, o.ObjectInfo.Size())
}

// Store tracks the full object set plus the unsealed-byte counters and
// the monotone created-bytes total.
type Store struct {
	objects map[cmn.ObjectID]*LocalObject

	numBytesUnsealed     int64
	numObjectsUnsealed   int64
	numBytesCreatedTotal int64
}

func New() *Store {
	return &Store{objects: make(map[cmn.ObjectID]*LocalObject)}
}

// Create inserts a new Created-state record. Fatal (panics) if an
// entry for object_info.ObjectID already exists - duplicate ids are a
// programming error in the surrounding service, never a recoverable
// condition at this layer (the lifecycle manager is responsible for
// turning a pre-existing id into the caller-facing ObjectExists error
// before it ever reaches Create).
func (s *Store) Create(allocation cmn.Allocation, info cmn.ObjectInfo, source cmn.ObjectSource) *LocalObject {
	cmn.AssertMsg(s.objects[info.ObjectID] == nil, "duplicate object id on create: "+info.ObjectID.String())
	obj := &LocalObject{
		ObjectID:   info.ObjectID,
		Allocation: allocation,
		ObjectInfo: info,
		Source:     source,
		State:      cmn.ObjectCreated,
		RefCount:   0,
		CreateTime: time.Now(),
	}
	s.objects[info.ObjectID] = obj

	size := info.Size()
	s.numBytesUnsealed += size
	s.numObjectsUnsealed++
	s.numBytesCreatedTotal += size
	return obj
}

// Get is a pure lookup; no side effects.
func (s *Store) Get(id cmn.ObjectID) *LocalObject {
	return s.objects[id]
}

// Seal transitions a Created object to Sealed. Returns nil if the
// object doesn't exist or isn't in the Created state - a second Seal
// on the same id, or a Seal after Delete, are both treated uniformly
// as a no-op.
func (s *Store) Seal(id cmn.ObjectID) *LocalObject {
	obj := s.objects[id]
	if obj == nil || obj.State != cmn.ObjectCreated {
		return nil
	}
	obj.State = cmn.ObjectSealed
	obj.ConstructDuration = time.Since(obj.CreateTime)

	size := obj.ObjectInfo.Size()
	s.numBytesUnsealed -= size
	s.numObjectsUnsealed--
	return obj
}

// Delete removes the record entirely and returns its Allocation
// verbatim so the caller can return it to the allocator. Fatal if the
// entry is absent: every internal caller is expected to have checked
// existence first.
func (s *Store) Delete(id cmn.ObjectID) cmn.Allocation {
	obj := s.objects[id]
	cmn.AssertMsg(obj != nil, "delete of an absent object id: "+id.String())
	delete(s.objects, id)
	if obj.State == cmn.ObjectCreated {
		size := obj.ObjectInfo.Size()
		s.numBytesUnsealed -= size
		s.numObjectsUnsealed--
	}
	return obj.Allocation
}

func (s *Store) NumBytesCreatedTotal() int64 { return s.numBytesCreatedTotal }
func (s *Store) NumBytesUnsealed() int64     { return s.numBytesUnsealed }
func (s *Store) NumObjectsUnsealed() int64   { return s.numObjectsUnsealed }

// Record is a flattened, JSON-friendly view of a LocalObject, used by
// the debugdb package to build an ad hoc queryable index of the store.
// Fingerprint is a short xxHash64 digest of the object id, handier than
// the full 40-hex-character id in debug output.
type Record struct {
	ObjectID    string `json:"object_id"`
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
	OwnerID     string `json:"owner_id"`
	Size        int64  `json:"size"`
	RefCount    int    `json:"ref_count"`
}

// Snapshot returns a Record for every tracked object. Unlike Get, the
// returned values are detached copies: mutating them has no effect on
// the store.
func (s *Store) Snapshot() []Record {
	out := make([]Record, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, Record{
			ObjectID:    obj.ObjectID.String(),
			Fingerprint: cmn.XXHashString(obj.ObjectID[:]),
			State:       obj.State.String(),
			OwnerID:     obj.ObjectInfo.OwnerID,
			Size:        obj.ObjectInfo.Size(),
			RefCount:    obj.RefCount,
		})
	}
	return out
}

// DebugDump writes a human-readable snapshot of every tracked object.
func (s *Store) DebugDump(buf *strings.Builder) {
	fmt.Fprintf(buf, "object store: %d objects, %d unsealed (%d bytes), %d bytes created total\n",
		len(s.objects), s.numObjectsUnsealed, s.numBytesUnsealed, s.numBytesCreatedTotal)
	for _, obj := range s.objects {
		fmt.Fprintf(buf, "  %s\n", obj)
	}
}
