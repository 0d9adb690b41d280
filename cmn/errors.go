/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "github.com/pkg/errors"

// ErrorCode enumerates the caller-facing error kinds of the lifecycle
// API. OK is the zero value so a zero ErrorCode reads naturally as
// success.
type ErrorCode int

const (
	OK ErrorCode = iota
	ObjectExists
	ObjectNonexistent
	ObjectInUse
	OutOfMemory
	TransientOutOfMemory
	InvalidArgument
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ObjectExists:
		return "ObjectExists"
	case ObjectNonexistent:
		return "ObjectNonexistent"
	case ObjectInUse:
		return "ObjectInUse"
	case OutOfMemory:
		return "OutOfMemory"
	case TransientOutOfMemory:
		return "TransientOutOfMemory"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// PlasmaError is the error type returned across the lifecycle API. It
// carries a stable ErrorCode callers can switch on, while still being
// wrappable/unwrappable with github.com/pkg/errors. Invariant
// violations never go through this type; they panic via cmn.Assert.
type PlasmaError struct {
	Code ErrorCode
	msg  string
}

func NewError(code ErrorCode, msg string) *PlasmaError {
	return &PlasmaError{Code: code, msg: msg}
}

func (e *PlasmaError) Error() string {
	if e.msg == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.msg
}

// Is lets errors.Is(err, cmn.NewError(ObjectExists, "")) match on code
// alone, ignoring the message.
func (e *PlasmaError) Is(target error) bool {
	other, ok := target.(*PlasmaError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

var (
	ErrObjectExists         = NewError(ObjectExists, "object already exists")
	ErrObjectNonexistent    = NewError(ObjectNonexistent, "object does not exist")
	ErrObjectInUse          = NewError(ObjectInUse, "object is in use")
	ErrOutOfMemory          = NewError(OutOfMemory, "out of memory")
	ErrTransientOutOfMemory = NewError(TransientOutOfMemory, "transient out of memory, retry later")
	ErrInvalidDeviceNum     = NewError(InvalidArgument, "only device 0 (host memory) is supported")
)

// Wrapf wraps err with additional context while preserving the
// PlasmaError code for callers that unwrap to errors.Cause.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
