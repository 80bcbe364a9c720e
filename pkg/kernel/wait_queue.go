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
	"sync"
	"time"
)

// WaitQueue is an ordered set of tasks parked on a condition. Waiters park
// under the run-queue lock; wakers move tasks back to the ready list.
//
// The notify operations take the already-locked run queue as a parameter.
// That shape is load-bearing: it keeps the lock order run-queue -> wait-
// queue everywhere, and it lets code that is already making a scheduling
// decision (task exit, timer expiry) wake waiters without a second
// lock/unlock cycle racing its own state transitions.
//
// The zero value is an empty, usable queue.
type WaitQueue struct {
	mu    sync.Mutex
	queue []*Task
}

// pushCurrent is the blockCurrent callback: flag first, so any observer of
// inWaitQueue sees it before the enqueue is visible.
func (q *WaitQueue) pushCurrent(t *Task) {
	t.setInWaitQueue(true)
	q.mu.Lock()
	q.queue = append(q.queue, t)
	q.mu.Unlock()
}

// popFront dequeues the oldest waiter, clearing its membership flag after
// the dequeue.
func (q *WaitQueue) popFront() *Task {
	q.mu.Lock()
	if len(q.queue) == 0 {
		q.mu.Unlock()
		return nil
	}
	t := q.queue[0]
	q.queue = q.queue[1:]
	q.mu.Unlock()
	t.setInWaitQueue(false)
	return t
}

// removeTask drops a specific task from the queue, for waiters that woke
// up some other way (timer expiry) and are still enqueued.
func (q *WaitQueue) removeTask(target *Task) {
	q.mu.Lock()
	for i, t := range q.queue {
		if t == target {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	target.setInWaitQueue(false)
}

// Len returns the number of parked tasks.
func (q *WaitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Wait parks the current task until somebody notifies the queue.
func (q *WaitQueue) Wait() {
	rq := runQueue
	rq.Lock()
	rq.blockCurrent(q.pushCurrent)
	rq.Unlock()
}

// WaitUntil parks the current task until pred holds. The predicate is
// evaluated under the run-queue lock, so a waker that makes it true and
// then notifies cannot slip between the check and the park. Wake-ups
// re-check the predicate; there is no timeout.
func (q *WaitQueue) WaitUntil(pred func() bool) {
	rq := runQueue
	for {
		rq.Lock()
		if pred() {
			rq.Unlock()
			return
		}
		rq.blockCurrent(q.pushCurrent)
		rq.Unlock()
	}
}

// WaitTimeout parks the current task until a notification or the timeout,
// whichever comes first, and reports whether the timeout fired. A waiter
// woken by its deadline is still enqueued here and removes itself.
func (q *WaitQueue) WaitTimeout(timeout time.Duration) bool {
	curr := Current()
	deadline := time.Now().Add(timeout)
	setTimer(deadline, curr)

	rq := runQueue
	rq.Lock()
	rq.blockCurrent(q.pushCurrent)
	rq.Unlock()

	timedOut := !time.Now().Before(deadline)
	cancelTimer(curr)
	if curr.InWaitQueue() {
		q.removeTask(curr)
	}
	return timedOut
}

// NotifyOneLocked wakes the oldest waiter, moving it to the ready list and
// clearing its membership flag. With resched set, a successful wake also
// requests a reschedule of the current task. Returns whether a task was
// woken.
//
// Preconditions: rq locked.
func (q *WaitQueue) NotifyOneLocked(resched bool, rq *RunQueue) bool {
	t := q.popFront()
	if t == nil {
		return false
	}
	rq.unblockTaskLocked(t, resched)
	return true
}

// NotifyAllLocked wakes every waiter. Returns the number woken.
//
// Preconditions: rq locked.
func (q *WaitQueue) NotifyAllLocked(resched bool, rq *RunQueue) int {
	n := 0
	for q.NotifyOneLocked(resched, rq) {
		n++
	}
	return n
}

// NotifyOne wakes the oldest waiter, taking the run-queue lock itself.
func (q *WaitQueue) NotifyOne(resched bool) bool {
	rq := runQueue
	rq.Lock()
	defer rq.Unlock()
	return q.NotifyOneLocked(resched, rq)
}

// NotifyAll wakes every waiter, taking the run-queue lock itself.
func (q *WaitQueue) NotifyAll(resched bool) int {
	rq := runQueue
	rq.Lock()
	defer rq.Unlock()
	return q.NotifyAllLocked(resched, rq)
}
