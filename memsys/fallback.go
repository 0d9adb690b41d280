/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"io/ioutil"
	"os"

	"github.com/golang/glog"
)

// fallbackPool is the slower, disk-backed allocation path used only
// when the caller opts in (allow_fallback=true): a single backing
// file, partitioned the same way the primary arena partitions its
// in-memory span, so the accounting logic (freeRange/first-fit) is
// shared via the embedded *arena.
type fallbackPool struct {
	*arena
	file *os.File
}

// newFallbackPool creates the backing file for the fallback path in
// dir. An empty dir means "no fallback storage
// configured" - FallbackAllocate then always fails, which is a valid
// configuration (allow_fallback is per-call, not mandatory).
func newFallbackPool(dir string, limit int64, arenaID int64) *fallbackPool {
	fp := &fallbackPool{arena: newArena(arenaID, limit)}
	if dir == "" {
		return fp
	}
	f, err := ioutil.TempFile(dir, "plasmacore-fallback-*.bin")
	if err != nil {
		glog.Warningf("memsys: fallback storage unavailable in %q: %v", dir, err)
		return fp
	}
	if err := f.Truncate(limit); err != nil {
		glog.Warningf("memsys: failed to size fallback file %q: %v", f.Name(), err)
		f.Close()
		os.Remove(f.Name())
		return fp
	}
	fp.file = f
	return fp
}

func (fp *fallbackPool) configured() bool { return fp.file != nil }

func (fp *fallbackPool) close() {
	if fp.file == nil {
		return
	}
	name := fp.file.Name()
	fp.file.Close()
	os.Remove(name)
}
