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

// Package kernel implements the task core: task objects, the run queue,
// wait queues, preemption gating, timers, and user-mode task setup.
//
// The core is single-CPU preemptive. Tasks are hosted on goroutines, but
// at most one of them executes kernel code at a time: every suspension
// point goes through the run-queue lock, and the lock is handed across
// each context switch to the switched-in side.
package kernel

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/arch"
)

// Default stack sizes, in bytes.
const (
	// DefaultStackSize backs tasks whose creator does not care.
	DefaultStackSize = 0x10000

	idleStackSize = 0x4000
	gcStackSize   = 0x4000
)

type rqMutex struct {
	sync.Mutex
}

// Process-wide scheduler state: the run-queue singleton, the exited set
// awaiting drop, and the shutdown signal. The current-task slot lives in
// the arch package and the task-id counter in task.go; together with the
// run queue these are the three independently initialized singletons, and
// Init builds the idle task before anything else can reference them.
var (
	runQueue *RunQueue

	exitedTasks struct {
		mu   sync.Mutex
		list []*Task
	}
	waitForExits WaitQueue

	shutdownCh chan struct{}
)

// Init brings up the scheduler: idle task first, then the run queue, the
// timer list, the init task adopting the calling flow, and the gc task.
// The caller's flow becomes the init task "main".
func Init() {
	if runQueue != nil {
		panic("kernel: scheduler already initialized")
	}
	logrus.Info("initialize task scheduling")

	idle := newTask(idleEntry, "idle", idleStackSize)
	runQueue = newRunQueue(idle)
	initTimers()
	shutdownCh = make(chan struct{})

	main := newInitTask("main")
	main.setState(TaskStateRunning)
	initCurrent(main)
	arch.SetTrapFrameProvider(currentTaskProvider{})

	Spawn(gcEntry, "gc", gcStackSize)
	arch.EnableIRQs()
}

// Spawn creates a kernel task running entry and makes it schedulable.
func Spawn(entry func(), name string, stackSize uintptr) *Task {
	t := newTask(entry, name, stackSize)
	runQueue.AddTask(t)
	return t
}

// Yield gives up the CPU, letting the next ready task run.
func Yield() {
	rq := runQueue
	rq.Lock()
	rq.yieldCurrent()
	rq.Unlock()
}

// Exit terminates the current task with the given code. It does not
// return; for the init task it shuts the scheduler down first.
func Exit(code int32) {
	rq := runQueue
	rq.Lock()
	rq.exitCurrent(code)
	panic("unreachable: task exited")
}

// Sleep blocks the current task for at least d.
func Sleep(d time.Duration) {
	SleepUntil(time.Now().Add(d))
}

// SleepUntil blocks the current task until the deadline. Past deadlines
// degrade to a yield.
func SleepUntil(deadline time.Time) {
	if !deadline.After(time.Now()) {
		Yield()
		return
	}
	curr := Current()
	setTimer(deadline, curr)
	rq := runQueue
	rq.Lock()
	rq.blockCurrent(func(*Task) {})
	rq.Unlock()
	cancelTimer(curr)
}

// OnTimerTick is the timer-interrupt hook: the embedder's tick source
// calls it on every tick. Expired deadlines fire, and the current task is
// marked for involuntary reschedule; the switch itself happens at the next
// preemption boundary.
func OnTimerTick(now time.Time) {
	checkTimerEvents(now)
	if t := TryCurrent(); t != nil && !t.isIdle {
		t.setPreemptPending(true)
	}
}

// ShutdownSignal returns a channel closed when the init task exits.
func ShutdownSignal() <-chan struct{} {
	return shutdownCh
}

// GlobalRunQueue exposes the run-queue singleton to collaborators that
// build on the *_Locked notify operations.
func GlobalRunQueue() *RunQueue {
	return runQueue
}

// idleEntry runs whenever nothing is ready. It never blocks and is never
// enqueued into the ready list; each pass offers the CPU back and lets the
// host breathe so external tick sources make progress.
func idleEntry() {
	for {
		Yield()
		runtime.Gosched()
	}
}

// gcEntry drops the references the scheduler held on exited tasks. Tasks
// park here between exitCurrent and their final release.
func gcEntry() {
	for {
		drainExitedTasks()
		waitForExits.WaitUntil(func() bool {
			return exitedLen() > 0
		})
	}
}

// Preconditions: rq locked (exit and exec paths).
func pushExitedTask(t *Task) {
	exitedTasks.mu.Lock()
	exitedTasks.list = append(exitedTasks.list, t)
	exitedTasks.mu.Unlock()
}

func exitedLen() int {
	exitedTasks.mu.Lock()
	defer exitedTasks.mu.Unlock()
	return len(exitedTasks.list)
}

func drainExitedTasks() {
	exitedTasks.mu.Lock()
	list := exitedTasks.list
	exitedTasks.list = nil
	exitedTasks.mu.Unlock()
	for _, t := range list {
		t.dropLog()
	}
}

// exitFlow terminates the calling flow without unwinding into task code.
func exitFlow() {
	runtime.Goexit()
}

// currentTaskProvider lets trap-entry code locate the current task's trap
// frame without touching the task object.
type currentTaskProvider struct{}

// CurrentTrapFrame implements arch.TrapFrameProvider.CurrentTrapFrame.
func (currentTaskProvider) CurrentTrapFrame() *arch.TrapFrame {
	return Current().TrapFrame()
}

// CurrentTrapFrameVaddr implements
// arch.TrapFrameProvider.CurrentTrapFrameVaddr.
func (currentTaskProvider) CurrentTrapFrameVaddr() uintptr {
	return uintptr(Current().TrapFrameVaddr())
}
