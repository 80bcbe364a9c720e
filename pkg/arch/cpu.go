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
	"unsafe"
)

// Per-CPU state. The core is single-CPU; these are process-wide.
var (
	irqsOn      atomic.Bool
	currentTask atomic.Pointer[byte] // opaque *Task owned by the kernel package
)

// EnableIRQs enables interrupt delivery on the current CPU.
func EnableIRQs() {
	irqsOn.Store(true)
}

// DisableIRQs disables interrupt delivery on the current CPU.
func DisableIRQs() {
	irqsOn.Store(false)
}

// IRQsEnabled reports whether interrupts are currently deliverable.
func IRQsEnabled() bool {
	return irqsOn.Load()
}

// SaveDisableIRQs disables interrupts and returns the previous state, for
// restore with RestoreIRQs.
func SaveDisableIRQs() bool {
	return irqsOn.Swap(false)
}

// RestoreIRQs restores an interrupt state saved by SaveDisableIRQs.
func RestoreIRQs(enabled bool) {
	irqsOn.Store(enabled)
}

// CurrentTaskPtr returns the current-task slot of this CPU. The pointer is
// opaque to this package; the kernel stores its task object here and the
// slot counts as one strong reference to it.
func CurrentTaskPtr() unsafe.Pointer {
	return unsafe.Pointer(currentTask.Load())
}

// SetCurrentTaskPtr installs p as the current-task slot of this CPU.
func SetCurrentTaskPtr(p unsafe.Pointer) {
	currentTask.Store((*byte)(p))
}
