/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// Assert and AssertMsg encode invariant violations: duplicate insert,
// delete of an absent id on an internal path, or a seal call hitting
// unexpected state. These are programming errors in the surrounding
// service, not conditions callers can recover from, so they panic
// rather than return an error.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// Assertf is AssertMsg with fmt-style formatting, for the call sites
// that want the failing ids/sizes in the panic message.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
