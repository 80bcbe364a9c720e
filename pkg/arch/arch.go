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

// Package arch provides the architecture seam of the task core: the saved
// kernel execution state of a task (TaskContext), the trap-entry register
// file (TrapFrame), context switching, interrupt masking, and the per-CPU
// current-task slot.
//
// The register layouts follow the RISC-V supervisor ABI. Execution itself is
// hosted: every task context is backed by a goroutine, and a context switch
// is a parked-goroutine handoff rather than a register swap, the same way
// the sentry hosts its tasks on goroutines instead of hand-switched stacks.
// The register fields remain authoritative for everything that is ABI: trap
// frames, entry PCs, and stack tops.
package arch

import (
	"reflect"
	"runtime"
)

// TaskContext is the saved hardware state of a paused task: the callee-saved
// registers, the stack pointer, and the return address. This is the minimum
// state needed to resume kernel execution.
//
// The zero value is a valid, never-run context. Exactly one of Init or Adopt
// must be called before the context takes part in a switch.
type TaskContext struct {
	// RA is the return address (x1): the PC at which the context resumes.
	RA uintptr
	// SP is the stack pointer (x2).
	SP uintptr
	// S holds the callee-saved registers s0-s11 (x8-x9, x18-x27).
	S [12]uintptr

	// entry runs on the hosting goroutine the first time the context is
	// switched to. It is the trampoline installed by Init.
	entry func()

	// gate resumes the hosting goroutine after a suspend. It is buffered so
	// that the resuming side never blocks on a context that has not yet
	// reached its suspend point.
	gate chan struct{}

	// started is true once a goroutine hosts this context. It is only
	// accessed under the scheduler lock that serializes all switches.
	started bool
}

// Init initializes the context so that the first switch to it begins
// executing entry on a fresh flow whose stack top is kstackTop.
func (c *TaskContext) Init(entry func(), kstackTop uintptr) {
	c.SP = kstackTop
	c.RA = reflect.ValueOf(entry).Pointer()
	c.entry = entry
	c.gate = make(chan struct{}, 1)
}

// Adopt marks the context as describing the flow that is already executing,
// i.e. the boot flow that becomes the init task. The first switch away from
// an adopted context suspends the caller in place.
func (c *TaskContext) Adopt() {
	c.started = true
	c.gate = make(chan struct{}, 1)
}

// SwitchTo saves the current execution state into c, resumes next, and
// suspends until some later switch resumes c again.
//
// Preconditions:
//   - c describes the caller's own flow.
//   - c != next.
//   - The caller holds whatever lock serializes scheduling decisions; the
//     switched-in side inherits and releases it.
func (c *TaskContext) SwitchTo(next *TaskContext) {
	next.resume()
	c.suspend()
}

// ExitTo resumes next and terminates the calling flow. It never returns.
//
// Preconditions: same as SwitchTo.
func (c *TaskContext) ExitTo(next *TaskContext) {
	next.resume()
	runtime.Goexit()
}

func (c *TaskContext) resume() {
	if !c.started {
		c.started = true
		go c.entry()
		return
	}
	c.gate <- struct{}{}
}

func (c *TaskContext) suspend() {
	<-c.gate
}
