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

package arch

import (
	"sync/atomic"
)

// Platform performs the transfers that on real hardware are privileged
// instruction sequences: the supervisor-return into user code. On RISC-V
// this is the sret path that installs the trap stack in sscratch, loads
// sepc/sstatus from the frame, restores all general registers and reloads
// the user sp; it cannot be expressed in Go, so implementations supply it
// (a hardware port, or a test double that records the hand-off).
type Platform interface {
	// EnterUserspace transfers to the user code described by tf. The frame
	// pointer's layout is ABI. kstackTop has already been written to
	// tf.Kstack so the next trap finds its kernel stack. Does not return
	// to the caller's flow on real hardware; test platforms may return to
	// let the hosting goroutine unwind.
	EnterUserspace(tf *TrapFrame, kstackTop uintptr)

	// CurrentSatp returns the live page-table root.
	CurrentSatp() uintptr

	// TrapHandlerAddr returns the trap-vector entry address new trap
	// frames are stamped with.
	TrapHandlerAddr() uintptr
}

var platform atomic.Pointer[platformHolder]

type platformHolder struct{ p Platform }

// SetPlatform installs the platform implementation. It must be called
// before any user task is entered.
func SetPlatform(p Platform) {
	platform.Store(&platformHolder{p: p})
}

func installedPlatform() Platform {
	if h := platform.Load(); h != nil {
		return h.p
	}
	return nil
}

// EnterUserspace writes the kernel trap stack into tf and transfers to the
// user code the frame describes. Entering user space without a platform is
// unrecoverable.
func EnterUserspace(tf *TrapFrame, kstackTop uintptr) {
	// The frame's kstack is (re)written on every entry, immediately before
	// the trap path may read it.
	tf.Kstack = kstackTop
	p := installedPlatform()
	if p == nil {
		panic("arch: entering user space with no platform installed")
	}
	p.EnterUserspace(tf, kstackTop)
}

// TrapFrameProvider locates the current task's trap frame for trap-entry
// code. Per-task frames live at virtual addresses that are a pure function
// of the task identity, so providers can answer without touching the task
// object, which may not be mapped in the faulting address space.
type TrapFrameProvider interface {
	// CurrentTrapFrame returns the current task's trap frame.
	CurrentTrapFrame() *TrapFrame

	// CurrentTrapFrameVaddr returns the user-visible virtual address of
	// the current task's trap frame.
	CurrentTrapFrameVaddr() uintptr
}

var trapFrameProvider atomic.Pointer[tfpHolder]

type tfpHolder struct{ p TrapFrameProvider }

// SetTrapFrameProvider installs the provider. The task core installs itself
// here during scheduler initialization.
func SetTrapFrameProvider(p TrapFrameProvider) {
	trapFrameProvider.Store(&tfpHolder{p: p})
}

// CurrentTrapFrame returns the current task's trap frame via the installed
// provider.
func CurrentTrapFrame() *TrapFrame {
	h := trapFrameProvider.Load()
	if h == nil {
		panic("arch: no trap frame provider installed")
	}
	return h.p.CurrentTrapFrame()
}

// CurrentTrapFrameVaddr returns the virtual address of the current task's
// trap frame via the installed provider.
func CurrentTrapFrameVaddr() uintptr {
	h := trapFrameProvider.Load()
	if h == nil {
		panic("arch: no trap frame provider installed")
	}
	return h.p.CurrentTrapFrameVaddr()
}
