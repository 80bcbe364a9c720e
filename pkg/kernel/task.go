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
	"sync/atomic"
	"unsafe"

	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/arch"
	"axos.dev/axos/pkg/mem"
)

// TaskID is a unique identifier for a task, issued by a process-wide
// monotonic counter starting at 1.
type TaskID uint64

var idCounter atomic.Uint64

func newTaskID() TaskID {
	return TaskID(idCounter.Add(1))
}

// AsUint64 returns the numeric value of the id.
func (id TaskID) AsUint64() uint64 {
	return uint64(id)
}

// TaskState is the scheduling state of a task.
type TaskState uint8

// The task state machine. A task is Running iff it occupies the CPU's
// current slot; Ready iff it sits in the run queue; Blocked iff it is
// parked on a wait queue or the timer list; Exited once it has terminated.
const (
	TaskStateRunning TaskState = 1
	TaskStateReady   TaskState = 2
	TaskStateBlocked TaskState = 3
	TaskStateExited  TaskState = 4
)

// String implements fmt.Stringer.
func (s TaskState) String() string {
	switch s {
	case TaskStateRunning:
		return "Running"
	case TaskStateReady:
		return "Ready"
	case TaskStateBlocked:
		return "Blocked"
	case TaskStateExited:
		return "Exited"
	default:
		return fmt.Sprintf("TaskState(%d)", uint8(s))
	}
}

// userPage is a (page, virtual address) pair backing per-task user-mode
// storage. The page is refcounted because fork maps it into several
// address spaces.
type userPage struct {
	page  *mem.Page
	vaddr mem.VirtAddr
}

// Task is one independent execution context: identity, scheduling state,
// stacks, saved CPU context, and the optional user-mode artefacts.
//
// A task is jointly owned by whichever structure currently contains it
// (ready list, wait queue, timer list, or the exited set), by the CPU's
// current slot while it runs, and by any holder of the handle returned
// from Spawn. The garbage collector stands in for the reference count; the
// structural-membership invariant is maintained explicitly.
type Task struct {
	id     TaskID
	name   string
	isIdle bool
	isInit bool

	// entry is the one-shot entry closure, consumed by the trampoline on
	// first schedule.
	entry func()

	// state holds a TaskState byte with release stores and acquire loads,
	// so that everything written before a state transition is visible to
	// whoever observes the new state.
	state atomic.Uint32

	// inWaitQueue is set (before the enqueue is visible) while the task is
	// parked on some wait queue, and cleared after the dequeue.
	inWaitQueue atomic.Bool

	// inTimerList is set while a deadline for this task sits in the timer
	// list; it guards against double removal. timerGen distinguishes the
	// live registration from stale entries left behind by lazy
	// cancellation.
	inTimerList atomic.Bool
	timerGen    atomic.Uint64

	needResched         atomic.Bool
	preemptDisableCount atomic.Uint32

	// exitCode is written, at most once, strictly before the Exited state
	// is published.
	exitCode atomic.Int32

	// waitForExit parks joiners until the task exits.
	waitForExit WaitQueue

	// kstack is the task's own kernel stack. It is freed only after the
	// task has exited and left every CPU's current slot.
	kstack *taskStack

	// ctx is a single-writer cell: only the context-switch path saving
	// this task (running on the task itself) ever writes it. Every other
	// access is a read after an acquiring load of state.
	ctx arch.TaskContext

	// trapFrame and ustack are only populated for user tasks.
	trapFrame *userPage
	ustack    *userPage

	pid atomic.Uint64
}

// ID returns the task's unique id.
func (t *Task) ID() TaskID {
	return t.id
}

// Name returns the task's display name.
func (t *Task) Name() string {
	return t.name
}

// IDName returns a combined "Task(id, name)" string for diagnostics.
func (t *Task) IDName() string {
	return fmt.Sprintf("Task(%d, %q)", t.id, t.name)
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	return fmt.Sprintf("Task{id: %d, name: %q, state: %v}", t.id, t.name, t.State())
}

// State returns the task's scheduling state with acquire semantics.
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

func (t *Task) setState(s TaskState) {
	t.state.Store(uint32(s))
}

// IsInit reports whether the task is the boot flow.
func (t *Task) IsInit() bool {
	return t.isInit
}

// IsIdle reports whether the task is the idle task.
func (t *Task) IsIdle() bool {
	return t.isIdle
}

// InWaitQueue reports whether the task is parked on a wait queue.
func (t *Task) InWaitQueue() bool {
	return t.inWaitQueue.Load()
}

func (t *Task) setInWaitQueue(v bool) {
	t.inWaitQueue.Store(v)
}

// InTimerList reports whether the task has a pending deadline.
func (t *Task) InTimerList() bool {
	return t.inTimerList.Load()
}

func (t *Task) setInTimerList(v bool) {
	t.inTimerList.Store(v)
}

// PID returns the process id of the task, if process support is in use.
func (t *Task) PID() uint64 {
	return t.pid.Load()
}

// setPreemptPending marks or clears the pending reschedule on t.
func (t *Task) setPreemptPending(pending bool) {
	t.needResched.Store(pending)
}

// NeedResched reports whether an involuntary reschedule is pending.
func (t *Task) NeedResched() bool {
	return t.needResched.Load()
}

// DisablePreempt enters a no-preemption region; regions nest.
func (t *Task) DisablePreempt() {
	t.preemptDisableCount.Add(1)
}

// EnablePreempt leaves a no-preemption region. When the outermost region
// ends and resched is true, a pending involuntary reschedule fires here;
// this is the only point at which the scheduler may displace the current
// task involuntarily.
func (t *Task) EnablePreempt(resched bool) {
	if t.preemptDisableCount.Add(^uint32(0)) == 0 && resched {
		currentCheckPreemptPending()
	}
}

// PreemptDisableCount returns the current nesting depth.
func (t *Task) PreemptDisableCount() uint32 {
	return t.preemptDisableCount.Load()
}

// canPreempt reports whether the disable count equals expected, i.e.
// whether preemption is permitted at that nesting depth.
func (t *Task) canPreempt(expected uint32) bool {
	return t.preemptDisableCount.Load() == expected
}

func currentCheckPreemptPending() {
	curr := Current()
	if curr.needResched.Load() && curr.canPreempt(0) {
		rq := runQueue
		rq.Lock()
		if curr.needResched.Load() {
			rq.resched(true)
		}
		rq.Unlock()
	}
}

// takeEntry consumes the one-shot entry closure.
func (t *Task) takeEntry() func() {
	entry := t.entry
	t.entry = nil
	return entry
}

// notifyExit records the exit code and wakes all joiners. The code is
// published before the Exited state so that a joiner passing the state
// check always reads the final value.
//
// Preconditions: rq is locked.
func (t *Task) notifyExit(exitCode int32, rq *RunQueue) {
	t.exitCode.Store(exitCode)
	t.setState(TaskStateExited)
	t.waitForExit.NotifyAllLocked(false, rq)
}

// ExitCode returns the task's exit code; meaningful once State is Exited.
func (t *Task) ExitCode() int32 {
	return t.exitCode.Load()
}

// Join waits for the task to exit and returns its exit code. It returns
// immediately if the task has already exited.
func (t *Task) Join() int32 {
	t.waitForExit.WaitUntil(func() bool {
		return t.State() == TaskStateExited
	})
	return t.exitCode.Load()
}

// ctxPtr returns the task's context cell for the switch path.
func (t *Task) ctxPtr() *arch.TaskContext {
	return &t.ctx
}

// taskEntry is the trampoline a kernel task first runs on. The run-queue
// lock was taken by the scheduler that switched here and is transferred to
// this side of the switch; it must be released exactly once.
func taskEntry() {
	runQueue.forceUnlock()
	arch.EnableIRQs()
	t := Current()
	if entry := t.takeEntry(); entry != nil {
		entry()
	}
	Exit(0)
}

// taskUserEntry is the first-schedule trampoline of user tasks: release
// the handed-off run-queue lock, mask interrupts, and perform the
// architecture's first entry into user space. Hosted platforms may return
// from the transfer; that unwinds as a normal exit.
func taskUserEntry() {
	runQueue.forceUnlock()
	arch.DisableIRQs()
	firstUserEntry()
	Exit(0)
}

// taskStack is an owned kernel stack: base pointer, size, 16-byte
// alignment. The top is the high address.
type taskStack struct {
	buf  []byte
	base uintptr
	size uintptr
}

const stackAlign = 16

func newTaskStack(size uintptr) *taskStack {
	buf := make([]byte, size+stackAlign)
	base := uintptr(unsafe.Pointer(&buf[0]))
	if rem := base % stackAlign; rem != 0 {
		base += stackAlign - rem
	}
	return &taskStack{buf: buf, base: base, size: size}
}

// Top returns the high end of the stack.
func (s *taskStack) Top() uintptr {
	return s.base + s.size
}

func (t *Task) dropLog() {
	logrus.Debugf("task drop: %s", t.IDName())
}
