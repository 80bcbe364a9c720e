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

// This file implements the machinery behind fork and exec.
//
// Fork creates a task that shares the parent's memory map. The parent's
// trap frame is cloned into a fresh page mapped at the child's own
// trap-frame address; the clone's kernel stack field points at the child's
// newly allocated kernel stack, and its a0 is zeroed so the child observes
// a 0 return value. The user stack mapping is shared with the parent.
//
// Exec builds a fresh task in the existing address space, with its own
// user stack and trap frame at the addresses fixed by the new id, and
// replaces the current task on the CPU: the old task exits in place and
// the new one takes over the current slot without ever visiting the ready
// list.

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/arch"
	"axos.dev/axos/pkg/mem"
)

// newFork builds the child of t for the process pid, sharing the memory
// map as.
func (t *Task) newFork(pid uint64, as *mem.AddrSpace) *Task {
	c := newCommonTask(newTaskID(), "")
	c.pid.Store(pid)
	logrus.Debugf("fork task: %s -> %s", t.IDName(), c.IDName())

	stack := newTaskStack(DefaultStackSize)
	c.ctx.Init(taskUserEntry, stack.Top())
	c.kstack = stack

	// The child's trap-frame page goes into the shared map at the address
	// derived from the child id; the parent's page stays where it is.
	pg := mem.NewPage(mem.PageSize4K)
	va := trapFrameVaddr(c.id)
	pg.IncRef()
	if err := as.AddRegion(va, pg, mem.FlagRead|mem.FlagWrite|mem.FlagUser); err != nil {
		panic(fmt.Sprintf("kernel: mapping fork trap frame: %v", err))
	}

	parent, ok := as.Query(trapFrameVaddr(t.id))
	if !ok {
		panic(fmt.Sprintf("kernel: fork from %s with no trap frame mapped", t.IDName()))
	}
	src := (*arch.TrapFrame)(parent.Page.Ptr())
	dst := (*arch.TrapFrame)(pg.Ptr())
	*dst = *src
	dst.Kstack = c.kstack.Top()
	dst.Regs.A0 = 0
	c.trapFrame = &userPage{page: pg, vaddr: va}

	// The user stack mapping is inherited from the parent; the child keeps
	// running on it until the process layer gives it one of its own.
	return c
}

// newExec builds the replacement task for an exec in the current address
// space.
func newExec() *Task {
	t := newCommonTask(newTaskID(), "")
	logrus.Debugf("task exec: %s", t.IDName())

	stack := newTaskStack(DefaultStackSize)
	t.ctx.Init(taskUserEntry, stack.Top())
	t.kstack = stack

	t.setupUstack()
	t.setupTrapFrame(mem.UserStart)

	t.pid.Store(CurrentPID())
	return t
}

// HandleFork copies the current task into the process pid over the shared
// memory map, schedules the child, and returns it. The caller (the fork
// syscall path) is responsible for setting the parent's return register.
func HandleFork(pid uint64, as *mem.AddrSpace) *Task {
	child := Current().newFork(pid, as)
	runQueue.AddTask(child)
	return child
}

// HandleExec replaces the current task with a fresh one for the new
// program. post runs on the new task before it is installed, giving the
// process layer a chance to record it. HandleExec does not return.
func HandleExec(post func(*Task)) {
	t := newExec()
	post(t)
	rq := runQueue
	rq.Lock()
	rq.execCurrent(t)
	panic("unreachable: exec switched away")
}
