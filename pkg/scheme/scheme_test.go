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

package scheme

import (
	"testing"
	"unsafe"

	"axos.dev/axos/pkg/axerr"
)

// recordingScheme records what the dispatcher routed to it.
type recordingScheme struct {
	BaseScheme

	opened    string
	openFlags uintptr
	readID    uintptr
	readLen   int
	wrote     []byte
	anyCall   bool
}

func (s *recordingScheme) Open(path string, flags uintptr, uid, gid uint32) (uintptr, error) {
	s.anyCall = true
	s.opened = path
	s.openFlags = flags
	return 7, nil
}

func (s *recordingScheme) Read(id uintptr, buf []byte) (uintptr, error) {
	s.anyCall = true
	s.readID = id
	s.readLen = len(buf)
	for i := range buf {
		buf[i] = byte(i)
	}
	return uintptr(len(buf)), nil
}

func (s *recordingScheme) Write(id uintptr, buf []byte) (uintptr, error) {
	s.anyCall = true
	s.wrote = append([]byte(nil), buf...)
	return uintptr(len(buf)), nil
}

func (s *recordingScheme) Seek(id uintptr, pos int64, whence uintptr) (int64, error) {
	s.anyCall = true
	return pos + 100, nil
}

func (s *recordingScheme) Fstat(id uintptr, stat *Stat) (uintptr, error) {
	s.anyCall = true
	stat.Size = 123
	stat.Mode = ModeFile | 0o644
	return 0, nil
}

func TestDispatchRead(t *testing.T) {
	s := &recordingScheme{}
	buf := make([]byte, 64)
	p := Packet{
		A: SysRead,
		B: 3,
		C: uintptr(unsafe.Pointer(&buf[0])),
		D: uintptr(len(buf)),
	}
	Handle(s, &p)
	if s.readID != 3 {
		t.Errorf("read id = %d, want 3", s.readID)
	}
	if s.readLen != len(buf) {
		t.Errorf("read buffer len = %d, want %d", s.readLen, len(buf))
	}
	if p.A != uintptr(len(buf)) {
		t.Errorf("packet.A = %d, want %d", p.A, len(buf))
	}
	if buf[1] != 1 {
		t.Error("handler writes did not reach the caller's buffer")
	}
}

func TestDispatchUnknownSyscall(t *testing.T) {
	s := &recordingScheme{}
	p := Packet{A: 0xDEAD}
	Handle(s, &p)
	if s.anyCall {
		t.Error("a handler method was invoked for an unknown number")
	}
	if !axerr.IsErrorCode(p.A) {
		t.Fatalf("packet.A = %#x, not an error code", p.A)
	}
	if got := axerr.ErrnoFromRet(p.A); got != axerr.EBADF {
		t.Errorf("errno = %d, want EBADF", got)
	}
}

func TestDispatchOpenPath(t *testing.T) {
	s := &recordingScheme{}
	path := []byte("dev/console")
	p := Packet{
		A:   SysOpen,
		B:   uintptr(unsafe.Pointer(&path[0])),
		C:   uintptr(len(path)),
		D:   0o2, // flags
		UID: 1000,
		GID: 1000,
	}
	Handle(s, &p)
	if s.opened != "dev/console" {
		t.Errorf("opened %q, want %q", s.opened, "dev/console")
	}
	if s.openFlags != 0o2 {
		t.Errorf("flags = %#o, want %#o", s.openFlags, 0o2)
	}
	if p.A != 7 {
		t.Errorf("packet.A = %d, want 7", p.A)
	}
}

func TestDispatchInvalidPath(t *testing.T) {
	s := &recordingScheme{}
	bad := []byte{0xff, 0xfe, 0xfd}
	p := Packet{
		A: SysOpen,
		B: uintptr(unsafe.Pointer(&bad[0])),
		C: uintptr(len(bad)),
	}
	Handle(s, &p)
	if s.anyCall {
		t.Error("handler invoked on malformed path bytes")
	}
	if got := axerr.ErrnoFromRet(p.A); got != axerr.EINVAL {
		t.Errorf("errno = %d, want EINVAL", got)
	}
}

func TestDispatchFstat(t *testing.T) {
	s := &recordingScheme{}
	var st Stat
	p := Packet{
		A: SysFstat,
		B: 5,
		C: uintptr(unsafe.Pointer(&st)),
		D: unsafe.Sizeof(st),
	}
	Handle(s, &p)
	if p.A != 0 {
		t.Fatalf("packet.A = %#x, want 0", p.A)
	}
	if st.Size != 123 {
		t.Errorf("stat.Size = %d, want 123", st.Size)
	}
	if st.Mode&ModeFile == 0 {
		t.Error("stat.Mode missing file bit")
	}
}

func TestDispatchFstatShortBuffer(t *testing.T) {
	s := &recordingScheme{}
	var st Stat
	p := Packet{
		A: SysFstat,
		B: 5,
		C: uintptr(unsafe.Pointer(&st)),
		D: unsafe.Sizeof(st) - 1,
	}
	Handle(s, &p)
	if s.anyCall {
		t.Error("handler aliased a short buffer")
	}
	if got := axerr.ErrnoFromRet(p.A); got != axerr.EFAULT {
		t.Errorf("errno = %d, want EFAULT", got)
	}
}

func TestDispatchSeek(t *testing.T) {
	s := &recordingScheme{}
	p := Packet{A: SysLseek, B: 1, C: 11, D: 0}
	Handle(s, &p)
	if p.A != 111 {
		t.Errorf("packet.A = %d, want 111", p.A)
	}
}

func TestDefaults(t *testing.T) {
	s := struct{ BaseScheme }{}
	path := []byte("nope")
	for _, tc := range []struct {
		name string
		p    Packet
		want axerr.Errno
	}{
		{"open", Packet{A: SysOpen, B: uintptr(unsafe.Pointer(&path[0])), C: uintptr(len(path))}, axerr.ENOENT},
		{"unlink", Packet{A: SysUnlink, B: uintptr(unsafe.Pointer(&path[0])), C: uintptr(len(path))}, axerr.ENOENT},
		{"rmdir", Packet{A: SysRmdir, B: uintptr(unsafe.Pointer(&path[0])), C: uintptr(len(path))}, axerr.ENOENT},
		{"close", Packet{A: SysClose, B: 1}, axerr.EBADF},
		{"fsync", Packet{A: SysFsync, B: 1}, axerr.EBADF},
		{"fcntl", Packet{A: SysFcntl, B: 1}, axerr.EBADF},
		{"ftruncate", Packet{A: SysFtruncate, B: 1}, axerr.EBADF},
	} {
		p := tc.p
		Handle(&s, &p)
		if got := axerr.ErrnoFromRet(p.A); got != tc.want {
			t.Errorf("%s: errno = %d, want %d", tc.name, got, tc.want)
		}
	}
}
