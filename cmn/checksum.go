/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// XXHashString hashes b with xxHash64 and renders the digest as hex.
// The lifecycle core never reads an object's actual bytes (the
// allocation is opaque), so this is used only to fingerprint the
// caller-visible identity of an object (its id) for debug output -
// not a content checksum.
func XXHashString(b []byte) string {
	h := xxhash.New64()
	h.Write(b) // hash.Hash never returns an error from Write
	return strconv.FormatUint(h.Sum64(), 16)
}
