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

// Package scheme defines the flat syscall-dispatch surface: a Scheme is a
// set of file-like operations, and Handle routes a fixed-shape request
// packet to the matching method. The dispatcher performs no scheduling and
// is callable with interrupts disabled.
package scheme

import (
	"unicode/utf8"
	"unsafe"

	"axos.dev/axos/pkg/axerr"
)

// Scheme is the set of operations a service handler may implement. Embed
// BaseScheme to inherit the default responses and override only what the
// handler supports.
type Scheme interface {
	// Open opens path and returns a handler-scoped id.
	Open(path string, flags uintptr, uid, gid uint32) (uintptr, error)

	// Chmod changes the mode of path. Declared for handlers that need it;
	// no syscall number currently routes here.
	Chmod(path string, mode uint16, uid, gid uint32) (uintptr, error)

	// Rmdir removes the directory at path.
	Rmdir(path string, uid, gid uint32) (uintptr, error)

	// Unlink removes the file at path.
	Unlink(path string, uid, gid uint32) (uintptr, error)

	// Dup duplicates id. A non-empty buf selects handler-defined behavior
	// instead of plain duplication.
	Dup(id uintptr, buf []byte) (uintptr, error)

	// Read fills buf from id and returns the byte count.
	Read(id uintptr, buf []byte) (uintptr, error)

	// Write stores buf to id and returns the byte count.
	Write(id uintptr, buf []byte) (uintptr, error)

	// Seek moves the position of id and returns the new offset.
	Seek(id uintptr, pos int64, whence uintptr) (int64, error)

	// Fchmod changes the mode of id.
	Fchmod(id uintptr, mode uint16) (uintptr, error)

	// Fchown changes the ownership of id.
	Fchown(id uintptr, uid, gid uint32) (uintptr, error)

	// Fcntl performs a control operation on id.
	Fcntl(id uintptr, cmd, arg uintptr) (uintptr, error)

	// Fpath writes the path of id into buf.
	Fpath(id uintptr, buf []byte) (uintptr, error)

	// Frename moves id to path.
	Frename(id uintptr, path string, uid, gid uint32) (uintptr, error)

	// Fstat fills stat for id.
	Fstat(id uintptr, stat *Stat) (uintptr, error)

	// Fsync flushes id.
	Fsync(id uintptr) (uintptr, error)

	// Ftruncate resizes id to length bytes.
	Ftruncate(id uintptr, length uintptr) (uintptr, error)

	// Close releases id.
	Close(id uintptr) (uintptr, error)
}

// Handle dispatches one packet to s and encodes the outcome back into
// packet.A. Path-bearing calls reconstruct a UTF-8 path from a (ptr, len)
// pair; fixed-record calls validate the buffer length before aliasing.
func Handle(s Scheme, packet *Packet) {
	var (
		n   uintptr
		err error
	)
	switch packet.A {
	case SysOpen:
		if path, ok := strFromRawParts(packet.B, packet.C); ok {
			n, err = s.Open(path, packet.D, packet.UID, packet.GID)
		} else {
			err = axerr.ErrInvalidData
		}
	case SysRmdir:
		if path, ok := strFromRawParts(packet.B, packet.C); ok {
			n, err = s.Rmdir(path, packet.UID, packet.GID)
		} else {
			err = axerr.ErrInvalidData
		}
	case SysUnlink:
		if path, ok := strFromRawParts(packet.B, packet.C); ok {
			n, err = s.Unlink(path, packet.UID, packet.GID)
		} else {
			err = axerr.ErrInvalidData
		}
	case SysDup:
		n, err = s.Dup(packet.B, bytesFromRawParts(packet.C, packet.D))
	case SysRead:
		n, err = s.Read(packet.B, bytesFromRawParts(packet.C, packet.D))
	case SysWrite:
		n, err = s.Write(packet.B, bytesFromRawParts(packet.C, packet.D))
	case SysLseek:
		var off int64
		off, err = s.Seek(packet.B, int64(packet.C), packet.D)
		n = uintptr(off)
	case SysFchmod:
		n, err = s.Fchmod(packet.B, uint16(packet.C))
	case SysFchown:
		n, err = s.Fchown(packet.B, uint32(packet.C), uint32(packet.D))
	case SysFcntl:
		n, err = s.Fcntl(packet.B, packet.C, packet.D)
	case SysFpath:
		n, err = s.Fpath(packet.B, bytesFromRawParts(packet.C, packet.D))
	case SysFrename:
		if path, ok := strFromRawParts(packet.C, packet.D); ok {
			n, err = s.Frename(packet.B, path, packet.UID, packet.GID)
		} else {
			err = axerr.ErrInvalidData
		}
	case SysFstat:
		if packet.D >= unsafe.Sizeof(Stat{}) {
			n, err = s.Fstat(packet.B, (*Stat)(unsafe.Pointer(packet.C)))
		} else {
			err = axerr.ErrBadAddress
		}
	case SysFsync:
		n, err = s.Fsync(packet.B)
	case SysFtruncate:
		n, err = s.Ftruncate(packet.B, packet.C)
	case SysClose:
		n, err = s.Close(packet.B)
	default:
		err = axerr.ErrBadFileDescriptor
	}
	packet.A = axerr.RetCode(n, err)
}

// strFromRawParts reconstructs a UTF-8 string from a (ptr, len) pair. A nil
// pointer with nonzero length or invalid UTF-8 fails.
func strFromRawParts(ptr, n uintptr) (string, bool) {
	if n == 0 {
		return "", true
	}
	if ptr == 0 {
		return "", false
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// bytesFromRawParts aliases a (ptr, len) pair as a byte slice. The bytes
// stay shared with the caller, unlike strFromRawParts which copies.
func bytesFromRawParts(ptr, n uintptr) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}

// BaseScheme provides the default response for every operation: NotFound
// for path-based calls, BadFileDescriptor for id-based ones. Handlers embed
// it and override the operations they support.
type BaseScheme struct{}

// Open implements Scheme.Open.
func (BaseScheme) Open(path string, flags uintptr, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrNotFound
}

// Chmod implements Scheme.Chmod.
func (BaseScheme) Chmod(path string, mode uint16, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrNotFound
}

// Rmdir implements Scheme.Rmdir.
func (BaseScheme) Rmdir(path string, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrNotFound
}

// Unlink implements Scheme.Unlink.
func (BaseScheme) Unlink(path string, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrNotFound
}

// Dup implements Scheme.Dup.
func (BaseScheme) Dup(id uintptr, buf []byte) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Read implements Scheme.Read.
func (BaseScheme) Read(id uintptr, buf []byte) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Write implements Scheme.Write.
func (BaseScheme) Write(id uintptr, buf []byte) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Seek implements Scheme.Seek.
func (BaseScheme) Seek(id uintptr, pos int64, whence uintptr) (int64, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fchmod implements Scheme.Fchmod.
func (BaseScheme) Fchmod(id uintptr, mode uint16) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fchown implements Scheme.Fchown.
func (BaseScheme) Fchown(id uintptr, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fcntl implements Scheme.Fcntl.
func (BaseScheme) Fcntl(id uintptr, cmd, arg uintptr) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fpath implements Scheme.Fpath.
func (BaseScheme) Fpath(id uintptr, buf []byte) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Frename implements Scheme.Frename.
func (BaseScheme) Frename(id uintptr, path string, uid, gid uint32) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fstat implements Scheme.Fstat.
func (BaseScheme) Fstat(id uintptr, stat *Stat) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Fsync implements Scheme.Fsync.
func (BaseScheme) Fsync(id uintptr) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Ftruncate implements Scheme.Ftruncate.
func (BaseScheme) Ftruncate(id uintptr, length uintptr) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}

// Close implements Scheme.Close.
func (BaseScheme) Close(id uintptr) (uintptr, error) {
	return 0, axerr.ErrBadFileDescriptor
}
