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

package axerr

import (
	"fmt"
	"testing"
)

func TestRetCodeSuccess(t *testing.T) {
	for _, n := range []uintptr{0, 1, 42, 1 << 20} {
		if got := RetCode(n, nil); got != n {
			t.Errorf("RetCode(%d, nil) = %d, want %d", n, got, n)
		}
		if IsErrorCode(RetCode(n, nil)) {
			t.Errorf("RetCode(%d, nil) decodes as error", n)
		}
	}
}

func TestRetCodeErrors(t *testing.T) {
	for _, tc := range []struct {
		err  *Error
		want Errno
	}{
		{ErrInvalidData, EINVAL},
		{ErrBadAddress, EFAULT},
		{ErrBadFileDescriptor, EBADF},
		{ErrNotFound, ENOENT},
		{ErrPermissionDenied, EACCES},
		{ErrInterrupted, EINTR},
		{ErrWouldBlock, EAGAIN},
	} {
		v := RetCode(999, tc.err)
		if !IsErrorCode(v) {
			t.Errorf("RetCode(_, %v) = %#x does not decode as error", tc.err, v)
			continue
		}
		if got := ErrnoFromRet(v); got != tc.want {
			t.Errorf("ErrnoFromRet(RetCode(_, %v)) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrnoOfWrapped(t *testing.T) {
	wrapped := fmt.Errorf("during open: %w", ErrNotFound)
	if got := ErrnoOf(wrapped); got != ENOENT {
		t.Errorf("ErrnoOf(wrapped ErrNotFound) = %d, want %d", got, ENOENT)
	}
	if got := ErrnoOf(fmt.Errorf("opaque")); got != EINVAL {
		t.Errorf("ErrnoOf(opaque) = %d, want EINVAL", got)
	}
}

func TestSentinelIdentity(t *testing.T) {
	if ErrNotFound == ErrBadFileDescriptor {
		t.Error("distinct sentinels compare equal")
	}
	var err error = ErrWouldBlock
	if err.Error() == "" {
		t.Error("sentinel has empty message")
	}
}
