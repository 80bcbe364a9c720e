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

package kernel

import (
	"unsafe"

	"axos.dev/axos/pkg/arch"
)

// The current-task slot is a per-CPU raw pointer held by the arch layer.
// It counts as one strong reference to the task: a task never leaves the
// slot until its replacement is installed, and an exited task is only
// dropped after that. Hosted, the garbage collector enforces the lifetime;
// the accounting below keeps the installed pointer the single source of
// truth for "what is running".

// TryCurrent returns the current task, or nil before Init.
func TryCurrent() *Task {
	return (*Task)(arch.CurrentTaskPtr())
}

// Current returns the current task.
func Current() *Task {
	t := TryCurrent()
	if t == nil {
		panic("kernel: current task is uninitialized")
	}
	return t
}

// initCurrent installs the init task into the empty current slot.
func initCurrent(t *Task) {
	if arch.CurrentTaskPtr() != nil {
		panic("kernel: current task already initialized")
	}
	arch.SetCurrentTaskPtr(unsafe.Pointer(t))
}

// setCurrentTask replaces the current slot during a switch.
//
// Preconditions: rq locked.
func setCurrentTask(t *Task) {
	arch.SetCurrentTaskPtr(unsafe.Pointer(t))
}
