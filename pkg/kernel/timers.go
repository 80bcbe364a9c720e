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

	"github.com/google/btree"
)

// The timer list wakes Blocked tasks whose deadline has passed. Entries
// are ordered by (deadline, sequence). Cancellation is lazy: a cancelled
// entry stays in the tree and is discarded when it surfaces, identified by
// the task's registration generation, so expiry and cancel cannot
// double-remove and a stale entry cannot wake a later registration.

type timerEvent struct {
	deadline time.Time
	seq      uint64
	task     *Task
	gen      uint64
}

// Less implements btree.Item.Less.
func (e *timerEvent) Less(than btree.Item) bool {
	o := than.(*timerEvent)
	if !e.deadline.Equal(o.deadline) {
		return e.deadline.Before(o.deadline)
	}
	return e.seq < o.seq
}

var timers struct {
	mu   sync.Mutex
	tree *btree.BTree
	seq  uint64
}

func initTimers() {
	timers.tree = btree.New(8)
}

// setTimer registers a deadline for t. The membership flag goes up before
// the entry is visible.
func setTimer(deadline time.Time, t *Task) {
	t.setInTimerList(true)
	gen := t.timerGen.Add(1)
	timers.mu.Lock()
	timers.seq++
	timers.tree.ReplaceOrInsert(&timerEvent{
		deadline: deadline,
		seq:      timers.seq,
		task:     t,
		gen:      gen,
	})
	timers.mu.Unlock()
}

// cancelTimer drops t's pending deadline. The tree entry stays behind and
// dies when the expiry scan reaches it.
func cancelTimer(t *Task) {
	t.timerGen.Add(1)
	t.setInTimerList(false)
}

// checkTimerEvents fires every deadline at or before now, unblocking the
// owning tasks and requesting a reschedule for them. A deadline that
// expires before its owner has finished parking is retried on a later
// tick rather than dropped.
func checkTimerEvents(now time.Time) {
	var retry []*timerEvent
	for {
		timers.mu.Lock()
		item := timers.tree.Min()
		if item == nil || item.(*timerEvent).deadline.After(now) {
			for _, ev := range retry {
				timers.tree.ReplaceOrInsert(ev)
			}
			timers.mu.Unlock()
			return
		}
		ev := timers.tree.DeleteMin().(*timerEvent)
		timers.mu.Unlock()

		t := ev.task
		if ev.gen != t.timerGen.Load() {
			// Cancelled or superseded; the entry was stale.
			continue
		}
		rq := runQueue
		rq.Lock()
		if t.State() != TaskStateBlocked {
			// The owner is still on its way to the park.
			rq.Unlock()
			retry = append(retry, ev)
			continue
		}
		t.setInTimerList(false)
		t.timerGen.Add(1)
		rq.unblockTaskLocked(t, true)
		rq.Unlock()
	}
}
