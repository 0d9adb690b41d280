/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"encoding/hex"
	"fmt"
)

// ObjectIDSize is the fixed width of an ObjectID, matching the
// object-manager's wire identifiers: opaque to the core, which treats
// collisions strictly as caller programming errors.
const ObjectIDSize = 20

// ObjectID is the opaque, fixed-width identifier of an object. The core
// never mints one itself - it is always supplied by the caller.
type ObjectID [ObjectIDSize]byte

func (id ObjectID) String() string { return hex.EncodeToString(id[:]) }

// IsNil reports whether id is the zero ObjectID - used only for
// argument sanity, never as a "no object" sentinel in the store.
func (id ObjectID) IsNil() bool { return id == ObjectID{} }

// ObjectIDFromBytes copies b into a new ObjectID. Panics if the length
// doesn't match ObjectIDSize: a caller handing us the wrong width is a
// programming error in the surrounding service, not a recoverable one.
func ObjectIDFromBytes(b []byte) ObjectID {
	Assertf(len(b) == ObjectIDSize, "object id must be %d bytes, got %d", ObjectIDSize, len(b))
	var id ObjectID
	copy(id[:], b)
	return id
}

// DeviceNum identifies the backing device an allocation lives on. The
// core only ever accepts device 0 (host memory); other values are
// rejected with InvalidArgument before any allocator call is made.
type DeviceNum int32

const HostMemoryDevice DeviceNum = 0

// Allocation is the opaque token returned by the allocator (memsys)
// describing where an object's bytes live. The core stores it verbatim
// on Create and hands it back byte-for-byte on Delete - it never
// interprets Address, never dereferences it.
type Allocation struct {
	Address       uintptr
	Size          int64
	BackingFileID int64
	Offset        int64
	DeviceNum     DeviceNum
	MappingSize   int64
	FromFallback  bool // which allocator path produced this token
}

func (a Allocation) String() string {
	return fmt.Sprintf("alloc{addr=%#x size=%d file=%d off=%d dev=%d map=%d fallback=%v}",
		a.Address, a.Size, a.BackingFileID, a.Offset, a.DeviceNum, a.MappingSize, a.FromFallback)
}

// ObjectInfo is the caller-supplied descriptor of an object. DataSize
// plus MetadataSize equals the allocated size.
type ObjectInfo struct {
	ObjectID     ObjectID
	OwnerID      string
	DataSize     int64
	MetadataSize int64
}

// Size is the total byte footprint of the object's allocation.
func (oi ObjectInfo) Size() int64 { return oi.DataSize + oi.MetadataSize }

// ObjectSource tags the origin of an object; opaque to the core and
// carried through purely for callers/debug output.
type ObjectSource int

const (
	SourceCreatedByWorker ObjectSource = iota
	SourceRestored
	SourceReceivedFromRemote
)

func (s ObjectSource) String() string {
	switch s {
	case SourceCreatedByWorker:
		return "created-by-worker"
	case SourceRestored:
		return "restored"
	case SourceReceivedFromRemote:
		return "received-from-remote"
	default:
		return "unknown"
	}
}

// ObjectState is the per-object lifecycle state. Deletion removes the
// record entirely rather than entering a third, terminal state.
type ObjectState int

const (
	ObjectCreated ObjectState = iota
	ObjectSealed
)

func (s ObjectState) String() string {
	switch s {
	case ObjectCreated:
		return "created"
	case ObjectSealed:
		return "sealed"
	default:
		return "unknown"
	}
}
