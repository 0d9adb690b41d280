// End-to-end scenarios driving the lifecycle manager against the real
// arena allocator: counter bookkeeping, deferred deletion, and the
// eviction cascade under memory pressure.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package lifecycle_test

import (
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/plasmacore/plasmacore/cmn"
	"github.com/plasmacore/plasmacore/lifecycle"
	"github.com/plasmacore/plasmacore/memsys"
)

func objID(b byte) cmn.ObjectID {
	var out cmn.ObjectID
	out[0] = b
	return out
}

func info(objID cmn.ObjectID, dataSize, metaSize int64) cmn.ObjectInfo {
	return cmn.ObjectInfo{ObjectID: objID, OwnerID: "tester", DataSize: dataSize, MetadataSize: metaSize}
}

// deletionRecorder tracks delete callback invocations, so tests can
// assert the callback fires exactly once per object.
type deletionRecorder struct {
	calls []cmn.ObjectID
}

func (r *deletionRecorder) callback(id cmn.ObjectID) { r.calls = append(r.calls, id) }

func (r *deletionRecorder) countOf(id cmn.ObjectID) int {
	n := 0
	for _, c := range r.calls {
		if c == id {
			n++
		}
	}
	return n
}

var _ = Describe("LifecycleManager", func() {
	var (
		alloc *memsys.Allocator
		rec   *deletionRecorder
		mgr   *lifecycle.Manager
	)

	BeforeEach(func() {
		alloc = memsys.NewAllocator(100, "", 0)
		rec = &deletionRecorder{}
		mgr = lifecycle.NewManager(alloc, rec.callback, nil)
	})

	AfterEach(func() {
		alloc.Close()
	})

	// create-seal-delete happy path (size 10).
	It("tracks counters through create, seal, and delete", func() {
		a := objID('A')
		_, err := mgr.CreateObject(info(a, 3, 7), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.NumBytesCreatedTotal()).To(Equal(int64(10)))
		Expect(mgr.NumBytesUnsealed()).To(Equal(int64(10)))
		Expect(mgr.NumObjectsUnsealed()).To(Equal(int64(1)))

		sealed := mgr.SealObject(a)
		Expect(sealed).NotTo(BeNil())
		Expect(mgr.NumBytesUnsealed()).To(Equal(int64(0)))
		Expect(mgr.NumObjectsUnsealed()).To(Equal(int64(0)))

		Expect(mgr.DeleteObject(a)).To(Succeed())
		Expect(mgr.GetObject(a)).To(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))
	})

	// delete of an unsealed object keeps the monotone created total.
	It("leaves num_bytes_created_total unchanged by deleting an unsealed object", func() {
		b := objID('B')
		_, err := mgr.CreateObject(info(b, 5, 7), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())

		Expect(mgr.DeleteObject(b)).To(Succeed())
		Expect(mgr.NumBytesCreatedTotal()).To(Equal(int64(12)))
		Expect(mgr.NumBytesUnsealed()).To(Equal(int64(0)))
		Expect(mgr.NumObjectsUnsealed()).To(Equal(int64(0)))
	})

	// duplicate create.
	It("rejects a duplicate create with ObjectExists and leaves the first record untouched", func() {
		a := objID('A')
		first, err := mgr.CreateObject(info(a, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.CreateObject(info(a, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).To(MatchError(cmn.ErrObjectExists))
		Expect(mgr.GetObject(a)).To(BeIdenticalTo(first))
	})

	// delete-while-referenced defers until the last reference drops.
	It("defers delete until the last reference is released", func() {
		a := objID('A')
		_, err := mgr.CreateObject(info(a, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		mgr.SealObject(a)
		Expect(mgr.AddReference(a)).To(BeTrue())

		err = mgr.DeleteObject(a)
		Expect(err).To(MatchError(cmn.ErrObjectInUse))
		Expect(mgr.GetObject(a)).NotTo(BeNil())

		Expect(mgr.RemoveReference(a)).To(BeTrue())
		Expect(mgr.GetObject(a)).To(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))
	})

	// eviction under pressure - exactly the 5 least-recently-ended
	// objects are evicted to satisfy a 50-byte create.
	It("evicts just enough least-recently-used objects to satisfy an allocation", func() {
		var victims []cmn.ObjectID
		for i := 0; i < 10; i++ {
			id := objID(byte('C' + i))
			victims = append(victims, id)
			_, err := mgr.CreateObject(info(id, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
			Expect(err).NotTo(HaveOccurred())
			mgr.SealObject(id)
			Expect(mgr.AddReference(id)).To(BeTrue())
			Expect(mgr.RemoveReference(id)).To(BeTrue())
		}

		a := objID('A')
		_, err := mgr.CreateObject(info(a, 30, 20), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.calls).To(HaveLen(5))
		Expect(rec.calls).To(Equal(victims[:5]))
		Expect(mgr.NumBytesCreatedTotal()).To(Equal(int64(150)))
		for _, id := range victims[5:] {
			Expect(mgr.GetObject(id)).NotTo(BeNil())
		}
	})

	// eviction insufficient to satisfy the request still fails,
	// but the partial evictions that did happen are observable.
	It("fails with OutOfMemory after draining the evictable set when it is still not enough", func() {
		pinned := objID('P')
		_, err := mgr.CreateObject(info(pinned, 70, 0), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		mgr.SealObject(pinned)
		Expect(mgr.AddReference(pinned)).To(BeTrue())

		var reclaimable []cmn.ObjectID
		for i := 0; i < 3; i++ {
			id := objID(byte('E' + i))
			reclaimable = append(reclaimable, id)
			_, err := mgr.CreateObject(info(id, 10, 0), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
			Expect(err).NotTo(HaveOccurred())
			mgr.SealObject(id)
			Expect(mgr.AddReference(id)).To(BeTrue())
			Expect(mgr.RemoveReference(id)).To(BeTrue())
		}

		a := objID('A')
		_, err = mgr.CreateObject(info(a, 80, 0), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).To(HaveOccurred())
		Expect(errCode(err)).To(Equal(cmn.OutOfMemory))

		Expect(rec.calls).To(ConsistOf(reclaimable[0], reclaimable[1], reclaimable[2]))
		for _, id := range reclaimable {
			Expect(mgr.GetObject(id)).To(BeNil())
		}
		Expect(mgr.GetObject(pinned)).NotTo(BeNil())
	})

	// a sealed object with no references is evictable straight away,
	// without ever passing through AddReference/RemoveReference.
	It("treats a sealed, never-referenced object as evictable", func() {
		a := objID('A')
		_, err := mgr.CreateObject(info(a, 10, 0), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SealObject(a)).NotTo(BeNil())

		// referencing it again must pin it without incident
		Expect(mgr.AddReference(a)).To(BeTrue())
		Expect(mgr.RemoveReference(a)).To(BeTrue())

		b := objID('B')
		_, err = mgr.CreateObject(info(b, 100, 0), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.GetObject(a)).To(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))
	})

	// aborting an object whose delete was deferred must also clear the
	// deferred-delete entry, so a later object reusing the id is safe.
	It("clears a pending deferred delete when the object is aborted", func() {
		a := objID('A')
		_, err := mgr.CreateObject(info(a, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.AddReference(a)).To(BeTrue())
		Expect(mgr.DeleteObject(a)).To(MatchError(cmn.ErrObjectInUse))

		Expect(mgr.AbortObject(a)).To(BeTrue())
		Expect(mgr.GetObject(a)).To(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))

		// a new object under the same id must survive its ref count
		// dropping to zero
		_, err = mgr.CreateObject(info(a, 5, 5), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SealObject(a)).NotTo(BeNil())
		Expect(mgr.AddReference(a)).To(BeTrue())
		Expect(mgr.RemoveReference(a)).To(BeTrue())
		Expect(mgr.GetObject(a)).NotTo(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))
	})

	It("rejects a non-host device with InvalidArgument", func() {
		_, err := mgr.CreateObject(info(objID('D'), 1, 1), cmn.SourceCreatedByWorker, cmn.DeviceNum(1), false)
		Expect(errCode(err)).To(Equal(cmn.InvalidArgument))
	})

	It("rejects delete of a nonexistent object", func() {
		Expect(mgr.DeleteObject(objID('Z'))).To(MatchError(cmn.ErrObjectNonexistent))
	})

	It("aborts an unsealed object without invoking delete for a sealed one", func() {
		a := objID('A')
		_, err := mgr.CreateObject(info(a, 4, 4), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.AbortObject(a)).To(BeTrue())
		Expect(mgr.GetObject(a)).To(BeNil())
		Expect(rec.countOf(a)).To(Equal(1))

		b := objID('B')
		mgr.CreateObject(info(b, 4, 4), cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, false)
		mgr.SealObject(b)
		Expect(mgr.AbortObject(b)).To(BeFalse())
	})
})

func errCode(err error) cmn.ErrorCode {
	if pe, ok := errors.Cause(err).(*cmn.PlasmaError); ok {
		return pe.Code
	}
	return cmn.OK
}
