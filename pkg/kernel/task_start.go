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
	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/mem"
)

// This file builds tasks. Three kinds exist: kernel tasks carrying an
// entry closure, the init task adopting the boot flow, and user tasks
// whose first schedule drops into user space (constructed here and in
// task_exec.go for the fork/exec variants).

// newCommonTask builds the fields every task shares. The initial state is
// Ready; the task only becomes visible to the scheduler once a constructor
// finishes and the caller enqueues it.
func newCommonTask(id TaskID, name string) *Task {
	t := &Task{
		id:   id,
		name: name,
	}
	t.setState(TaskStateReady)
	return t
}

// newTask builds a kernel task: an owned stack rounded up to 4 KiB, the
// entry closure parked for the trampoline, and a context resuming at
// taskEntry on the stack top. A task named "idle" becomes the idle task.
func newTask(entry func(), name string, stackSize uintptr) *Task {
	t := newCommonTask(newTaskID(), name)
	logrus.Debugf("new task: %s", t.IDName())
	stack := newTaskStack(mem.AlignUp4K(stackSize))
	t.entry = entry
	t.ctx.Init(taskEntry, stack.Top())
	t.kstack = stack
	if t.name == "idle" {
		t.isIdle = true
	}
	return t
}

// newInitTask represents the flow that is already executing at boot: no
// entry closure, and no kernel stack of its own unless user paging needs
// one for trap entry. With an allocator installed it also receives the
// user stack and trap frame of pid 1.
func newInitTask(name string) *Task {
	t := newCommonTask(newTaskID(), name)
	t.isInit = true
	if t.name == "idle" {
		t.isIdle = true
	}
	logrus.Debugf("init task: %s", t.IDName())
	if mem.HaveAllocator() {
		t.setupUstack()
		t.kstack = newTaskStack(DefaultStackSize)
		t.setupTrapFrame(mem.UserStart)
	}
	t.pid.Store(1)
	t.ctx.Adopt()
	return t
}

// NewUserTask builds a task whose first schedule enters user space at
// entry, with args in the a0 register. The user stack and trap frame live
// at virtual addresses fixed by the task id.
func NewUserTask(entry uintptr, kstackSize uintptr, args uintptr) *Task {
	t := newCommonTask(newTaskID(), "")
	logrus.Debugf("new user task: %s entry=%#x", t.IDName(), entry)
	stack := newTaskStack(mem.AlignUp4K(kstackSize))
	t.ctx.Init(taskUserEntry, stack.Top())
	t.kstack = stack

	t.setupUstack()
	t.setupTrapFrame(entry)
	t.TrapFrame().Regs.A0 = args

	t.pid.Store(CurrentPID())
	return t
}

// SpawnUser creates a user task and makes it schedulable.
func SpawnUser(entry uintptr, kstackSize uintptr, args uintptr) *Task {
	t := NewUserTask(entry, kstackSize, args)
	runQueue.AddTask(t)
	return t
}
