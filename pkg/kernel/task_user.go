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
	"fmt"

	"axos.dev/axos/pkg/arch"
	"axos.dev/axos/pkg/mem"
)

// Per-task user-mode storage sits at virtual addresses that are a pure
// function of the task id. Trap entry depends on this: it can find the
// current task's trap frame and stack without the task object, which may
// not be mapped in the faulting address space.
const trapFrameBase = 0xffff_ffff_ffff_f000

func trapFrameVaddr(id TaskID) mem.VirtAddr {
	return mem.VirtAddr(trapFrameBase - uintptr(id)*mem.PageSize4K)
}

func ustackVaddr(id TaskID) mem.VirtAddr {
	return mem.VirtAddr(mem.UStackBase - uintptr(id)*mem.UStackSize)
}

// setupUstack allocates and maps the task's user stack. Failure to back a
// stack would corrupt the task before it ever ran; it is fatal.
func (t *Task) setupUstack() {
	va := ustackVaddr(t.id)
	pg, err := mem.AllocUserPage(va, mem.UStackSize, mem.FlagRead|mem.FlagWrite|mem.FlagUser)
	if err != nil {
		panic(fmt.Sprintf("kernel: allocating user stack for %s: %v", t.IDName(), err))
	}
	t.ustack = &userPage{page: pg, vaddr: va}
}

// setupTrapFrame allocates the task's trap-frame page and stamps it with a
// first-entry frame: PC at start, user sp at the stack top, and the
// kernel stack recorded for the next trap.
func (t *Task) setupTrapFrame(start uintptr) {
	va := trapFrameVaddr(t.id)
	pg, err := mem.AllocUserPage(va, mem.PageSize4K, mem.FlagRead|mem.FlagWrite|mem.FlagUser)
	if err != nil {
		panic(fmt.Sprintf("kernel: allocating trap frame for %s: %v", t.IDName(), err))
	}
	tf := (*arch.TrapFrame)(pg.Ptr())
	*tf = *arch.NewTrapFrame(start, uintptr(t.ustack.vaddr)+mem.UStackSize)
	tf.Kstack = t.kstack.Top()
	t.trapFrame = &userPage{page: pg, vaddr: va}
}

// TrapFrame returns the task's trap frame. Only valid for user tasks.
func (t *Task) TrapFrame() *arch.TrapFrame {
	return (*arch.TrapFrame)(t.trapFrame.page.Ptr())
}

// TrapFrameVaddr returns the user-visible address of the trap frame.
func (t *Task) TrapFrameVaddr() mem.VirtAddr {
	return t.trapFrame.vaddr
}

// UStackVaddr returns the base address of the task's user stack.
func (t *Task) UStackVaddr() mem.VirtAddr {
	return t.ustack.vaddr
}

// OnExit releases the task's user-mode mappings through remove, which the
// process layer points at its address space.
func (t *Task) OnExit(remove func(mem.VirtAddr)) {
	if t.ustack != nil {
		remove(t.ustack.vaddr)
	}
	if t.trapFrame != nil {
		remove(t.trapFrame.vaddr)
	}
}

// firstUserEntry performs the first drop into user space for the current
// task: interrupts are already masked by the trampoline, the trap frame
// carries the initial register file, and the kernel stack is installed for
// the trap that will eventually bring the task back.
func firstUserEntry() {
	t := Current()
	arch.EnterUserspace(t.TrapFrame(), t.kstack.Top())
}

// CurrentPID returns the process id of the current task, or 0 before the
// scheduler is up.
func CurrentPID() uint64 {
	if t := TryCurrent(); t != nil {
		return t.PID()
	}
	return 0
}
