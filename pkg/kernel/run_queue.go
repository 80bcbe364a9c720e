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

	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/arch"
)

// RunQueue is the single ready queue plus the idle task: a FIFO of Ready
// tasks and the primitives that pick, switch, block and exit the current
// task.
//
// The destructive operations (resched, blockCurrent, exitCurrent,
// execCurrent) require the lock held on entry. The lock is released on the
// far side of the context switch by the switched-in task, so across any
// switch there is exactly one unlock per lock, distributed between the
// outgoing and incoming paths.
type RunQueue struct {
	mu    rqMutex
	ready []*Task
	idle  *Task
}

func newRunQueue(idle *Task) *RunQueue {
	return &RunQueue{idle: idle}
}

// Lock acquires the run-queue lock, masking interrupts for the critical
// section the way a spin-no-irq lock would.
func (rq *RunQueue) Lock() {
	arch.DisableIRQs()
	rq.mu.Lock()
}

// Unlock releases the run-queue lock and re-enables interrupts.
func (rq *RunQueue) Unlock() {
	rq.mu.Unlock()
	arch.EnableIRQs()
}

// forceUnlock releases a lock acquired on the other side of a context
// switch, without touching the interrupt state; the trampolines set that
// themselves.
func (rq *RunQueue) forceUnlock() {
	rq.mu.Unlock()
}

// AddTask makes t schedulable.
func (rq *RunQueue) AddTask(t *Task) {
	rq.Lock()
	defer rq.Unlock()
	logrus.Tracef("task spawn: %s", t.IDName())
	t.setState(TaskStateReady)
	rq.addReady(t)
}

// Preconditions: rq locked.
func (rq *RunQueue) addReady(t *Task) {
	rq.ready = append(rq.ready, t)
}

// putPrevTask re-enqueues the task that was just running. Round-robin:
// always at the tail, regardless of whether the switch is voluntary.
//
// Preconditions: rq locked.
func (rq *RunQueue) putPrevTask(t *Task, preempt bool) {
	rq.ready = append(rq.ready, t)
}

// pickNextTask returns the next ready task, or nil when the queue is
// empty. The idle task is never enqueued here.
//
// Preconditions: rq locked.
func (rq *RunQueue) pickNextTask() *Task {
	if len(rq.ready) == 0 {
		return nil
	}
	t := rq.ready[0]
	rq.ready = rq.ready[1:]
	return t
}

// Len returns the number of ready tasks.
func (rq *RunQueue) Len() int {
	rq.Lock()
	defer rq.Unlock()
	return len(rq.ready)
}

// resched picks the next task and switches to it. The previous task, if
// still Running, goes back to the tail of the ready queue (never the idle
// task). With nothing ready, the idle task runs.
//
// Preconditions: rq locked; the lock transits the switch.
func (rq *RunQueue) resched(preempt bool) {
	prev := Current()
	if prev.State() == TaskStateRunning {
		prev.setState(TaskStateReady)
		if !prev.isIdle {
			rq.putPrevTask(prev, preempt)
		}
	}
	next := rq.pickNextTask()
	if next == nil {
		next = rq.idle
	}
	rq.switchTo(prev, next)
}

// switchTo installs next as the current task and performs the context
// switch. Switching to an exited task would corrupt the scheduler and is
// fatal.
//
// Preconditions: rq locked.
func (rq *RunQueue) switchTo(prev, next *Task) {
	next.setPreemptPending(false)
	if next.State() == TaskStateExited {
		panic(fmt.Sprintf("kernel: switching to exited %s", next.IDName()))
	}
	next.setState(TaskStateRunning)
	if prev == next {
		return
	}
	logrus.Tracef("context switch: %s -> %s", prev.IDName(), next.IDName())
	setCurrentTask(next)
	prev.ctxPtr().SwitchTo(next.ctxPtr())
}

// yieldCurrent gives up the CPU voluntarily, re-enqueueing the caller at
// the tail.
//
// Preconditions: rq locked; the caller is the current, Running task.
func (rq *RunQueue) yieldCurrent() {
	curr := Current()
	logrus.Tracef("task yield: %s", curr.IDName())
	if curr.State() != TaskStateRunning {
		panic(fmt.Sprintf("kernel: yield from non-running %s", curr))
	}
	rq.resched(false)
}

// blockCurrent parks the current task: push hands it to the structure that
// will own it while Blocked (a wait queue, or nothing but the timer list),
// then the CPU is given away. The call returns when the task is unblocked
// and scheduled again, with the lock held once more by hand-off.
//
// Preconditions: rq locked; the caller is Running; parking the idle task
// or parking inside a no-preemption region is fatal.
func (rq *RunQueue) blockCurrent(push func(*Task)) {
	curr := Current()
	logrus.Tracef("task block: %s", curr.IDName())
	if curr.State() != TaskStateRunning {
		panic(fmt.Sprintf("kernel: blocking non-running %s", curr))
	}
	if curr.isIdle {
		panic("kernel: blocking the idle task")
	}
	if !curr.canPreempt(0) {
		panic(fmt.Sprintf("kernel: blocking %s with preemption disabled", curr.IDName()))
	}
	curr.setState(TaskStateBlocked)
	push(curr)
	rq.resched(false)
}

// unblockTaskLocked moves a Blocked task to the ready list. When resched
// is requested, the current task is marked preempt-pending; the switch
// itself happens at the next preemption boundary. Unblocking a task that
// is not Blocked is a no-op (it lost a wake-up race).
//
// Preconditions: rq locked.
func (rq *RunQueue) unblockTaskLocked(t *Task, resched bool) {
	if t.State() != TaskStateBlocked {
		return
	}
	logrus.Tracef("task unblock: %s", t.IDName())
	t.setState(TaskStateReady)
	rq.addReady(t)
	if resched {
		Current().setPreemptPending(true)
	}
}

// exitCurrent terminates the current task and never returns. The exit code
// is published before the Exited state; joiners wake through waitForExit;
// the task itself parks in the exited set until the gc task drops it.
//
// Exiting the idle task is fatal. Exiting the init task shuts the
// scheduler down.
//
// Preconditions: rq locked.
func (rq *RunQueue) exitCurrent(code int32) {
	curr := Current()
	logrus.Debugf("task exit: %s, exit_code=%d", curr.IDName(), code)
	if curr.isIdle {
		panic("kernel: exit of the idle task")
	}
	if curr.isInit {
		curr.notifyExit(code, rq)
		drainExitedTasks()
		close(shutdownCh)
		rq.forceUnlock()
		arch.EnableIRQs()
		exitFlow()
	}
	curr.notifyExit(code, rq)
	pushExitedTask(curr)
	waitForExits.NotifyOneLocked(false, rq)

	next := rq.pickNextTask()
	if next == nil {
		next = rq.idle
	}
	next.setPreemptPending(false)
	next.setState(TaskStateRunning)
	setCurrentTask(next)
	curr.ctxPtr().ExitTo(next.ctxPtr())
}

// execCurrent replaces the current task with next on this CPU: the old
// task exits in place (code 0) and next takes over the current slot. Never
// returns.
//
// Preconditions: rq locked; next has never run.
func (rq *RunQueue) execCurrent(next *Task) {
	curr := Current()
	logrus.Debugf("task exec: %s -> %s", curr.IDName(), next.IDName())
	if curr.isIdle {
		panic("kernel: exec on the idle task")
	}
	curr.notifyExit(0, rq)
	pushExitedTask(curr)
	waitForExits.NotifyOneLocked(false, rq)

	next.setPreemptPending(false)
	next.setState(TaskStateRunning)
	setCurrentTask(next)
	curr.ctxPtr().ExitTo(next.ctxPtr())
}
