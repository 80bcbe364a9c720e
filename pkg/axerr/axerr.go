// Copyright 2023 The axos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package axerr defines the error values shared by the task core and the
// scheme dispatch layer, and the encoding of results into return words.
package axerr

import "errors"

// Errno is a Unix-style error number.
type Errno int32

// Error numbers used by the core. Values match the conventional Unix
// assignments so that encoded return words look familiar in traces.
const (
	ENOENT Errno = 2
	EINTR  Errno = 4
	EBADF  Errno = 9
	EAGAIN Errno = 11
	EACCES Errno = 13
	EFAULT Errno = 14
	EINVAL Errno = 22
)

// Error is an immutable error consisting of an errno and a description.
// Errors are compared by identity; use the package-level sentinels below
// rather than constructing new values for the same condition.
type Error struct {
	errno   Errno
	message string
}

// New creates a new Error. It should only be used to extend the sentinel
// set, never for transient values.
func New(errno Errno, message string) *Error {
	return &Error{errno: errno, message: message}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Errno returns the error number carried by e.
func (e *Error) Errno() Errno { return e.errno }

// The error taxonomy of the task core and scheme dispatcher.
var (
	ErrInvalidData       = New(EINVAL, "malformed path or argument shape")
	ErrBadAddress        = New(EFAULT, "bad buffer address or length")
	ErrBadFileDescriptor = New(EBADF, "bad file descriptor")
	ErrNotFound          = New(ENOENT, "not found")
	ErrPermissionDenied  = New(EACCES, "permission denied")
	ErrInterrupted       = New(EINTR, "interrupted")
	ErrWouldBlock        = New(EAGAIN, "operation would block")
)

// MaxErrno bounds the encoded error range: return words in
// [-MaxErrno, -1] decode as errors, everything below is a payload.
const MaxErrno = 4096

// ErrnoOf extracts the error number from err. Errors that did not originate
// from this package degrade to EINVAL.
func ErrnoOf(err error) Errno {
	var e *Error
	if errors.As(err, &e) {
		return e.errno
	}
	return EINVAL
}

// RetCode encodes a (result, error) pair into a single return word: the
// payload itself on success, the two's complement of the errno on failure.
func RetCode(n uintptr, err error) uintptr {
	if err == nil {
		return n
	}
	return -uintptr(ErrnoOf(err))
}

// IsErrorCode reports whether an encoded return word represents an error.
func IsErrorCode(v uintptr) bool {
	return v >= ^uintptr(MaxErrno-1)
}

// ErrnoFromRet decodes the errno from a return word previously produced by
// RetCode. It must only be called when IsErrorCode(v) holds.
func ErrnoFromRet(v uintptr) Errno {
	return Errno(-int64(v))
}
