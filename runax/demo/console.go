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

package demo

import (
	"io"
	"unsafe"

	"axos.dev/axos/pkg/scheme"
)

// ConsoleScheme is a minimal write-only scheme backed by an io.Writer,
// standing in for a console device. Reads return zero bytes; Open, Fsync
// and Close succeed; everything else keeps the dispatcher defaults.
type ConsoleScheme struct {
	scheme.BaseScheme

	// W receives everything written to the console.
	W io.Writer
}

// consoleID is the sole id the scheme hands out.
const consoleID = 1

// Open implements scheme.Scheme.Open. Any path opens the console.
func (c *ConsoleScheme) Open(path string, flags uintptr, uid, gid uint32) (uintptr, error) {
	return consoleID, nil
}

// Read implements scheme.Scheme.Read: the console has no input.
func (c *ConsoleScheme) Read(id uintptr, buf []byte) (uintptr, error) {
	return 0, nil
}

// Write implements scheme.Scheme.Write.
func (c *ConsoleScheme) Write(id uintptr, buf []byte) (uintptr, error) {
	n, err := c.W.Write(buf)
	return uintptr(n), err
}

// Fsync implements scheme.Scheme.Fsync.
func (c *ConsoleScheme) Fsync(id uintptr) (uintptr, error) {
	return 0, nil
}

// Close implements scheme.Scheme.Close.
func (c *ConsoleScheme) Close(id uintptr) (uintptr, error) {
	return 0, nil
}

// WriteString pushes s through the dispatcher as a SysWrite packet, the
// same path a user task's syscall would take.
func (c *ConsoleScheme) WriteString(s string) uintptr {
	buf := []byte(s)
	p := scheme.Packet{
		A: scheme.SysWrite,
		B: consoleID,
		C: uintptr(unsafe.Pointer(&buf[0])),
		D: uintptr(len(buf)),
	}
	scheme.Handle(c, &p)
	return p.A
}
