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
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/arch"
	"axos.dev/axos/pkg/mem"
)

var (
	testAS       *mem.AddrSpace
	testPlatform = &fakePlatform{}
)

// fakePlatform records user-space entries and returns, so user tasks
// unwind as ordinary exits.
type fakePlatform struct {
	mu      sync.Mutex
	entries []fakeEntry
}

type fakeEntry struct {
	sepc   uintptr
	kstack uintptr
	a0     uintptr
}

func (p *fakePlatform) EnterUserspace(tf *arch.TrapFrame, kstackTop uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, fakeEntry{sepc: tf.Sepc, kstack: kstackTop, a0: tf.Regs.A0})
}

func (p *fakePlatform) CurrentSatp() uintptr { return 0x8000_0000 }

func (p *fakePlatform) TrapHandlerAddr() uintptr { return 0xffff_ff00 }

func (p *fakePlatform) take() []fakeEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.entries
	p.entries = nil
	return entries
}

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.WarnLevel)
	testAS = mem.NewAddrSpace(0x8000_0000)
	mem.SetAllocator(&mem.SimpleAllocator{AS: testAS})
	arch.SetPlatform(testPlatform)
	Init()
	os.Exit(m.Run())
}

func TestTaskIDsUniqueMonotonic(t *testing.T) {
	prev := newTaskID()
	for i := 0; i < 100; i++ {
		id := newTaskID()
		if id <= prev {
			t.Fatalf("id %d issued after %d", id, prev)
		}
		prev = id
	}
	a := Spawn(func() {}, "id-a", DefaultStackSize)
	b := Spawn(func() {}, "id-b", DefaultStackSize)
	if b.ID() <= a.ID() {
		t.Errorf("later task got id %d <= %d", b.ID(), a.ID())
	}
	a.Join()
	b.Join()
}

func TestCooperativeYieldOrder(t *testing.T) {
	var (
		schedule []string
		tasks    []*Task
	)
	const rounds = 3
	for _, name := range []string{"A", "B", "C"} {
		name := name
		tasks = append(tasks, Spawn(func() {
			for r := 0; r < rounds; r++ {
				schedule = append(schedule, name)
				Yield()
			}
		}, name, DefaultStackSize))
	}
	for _, task := range tasks {
		if code := task.Join(); code != 0 {
			t.Errorf("%s: join = %d, want 0", task.Name(), code)
		}
	}
	want := []string{"A", "B", "C", "A", "B", "C", "A", "B", "C"}
	if len(schedule) < len(want) {
		t.Fatalf("schedule = %v, want at least %d entries", schedule, len(want))
	}
	if diff := cmp.Diff(want, schedule[:len(want)]); diff != "" {
		t.Errorf("schedule mismatch (-want +got):\n%s", diff)
	}
	for _, task := range tasks {
		if task.State() != TaskStateExited {
			t.Errorf("%s: state = %v, want Exited", task.Name(), task.State())
		}
	}
}

func TestJoinReturnsExitCode(t *testing.T) {
	var (
		wq    WaitQueue
		woken bool
	)
	x := Spawn(func() {
		wq.WaitUntil(func() bool { return woken })
		Exit(7)
	}, "X", DefaultStackSize)

	// Let X reach the wait queue, then wake it.
	for wq.Len() == 0 {
		Yield()
	}
	if !x.InWaitQueue() {
		t.Error("parked task does not report wait-queue membership")
	}
	if x.State() != TaskStateBlocked {
		t.Errorf("parked task state = %v, want Blocked", x.State())
	}
	woken = true
	wq.NotifyAll(false)

	if code := x.Join(); code != 7 {
		t.Errorf("join = %d, want 7", code)
	}
	// Joining an already-exited task returns immediately with the same
	// code, and repeated reads agree.
	if code := x.Join(); code != 7 {
		t.Errorf("second join = %d, want 7", code)
	}
	if x.ExitCode() != 7 {
		t.Errorf("ExitCode = %d, want 7", x.ExitCode())
	}
}

func TestNotifyAllDrain(t *testing.T) {
	var wq WaitQueue
	const n = 4
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, Spawn(func() {
			wq.Wait()
		}, fmt.Sprintf("drain-%d", i), DefaultStackSize))
	}
	for wq.Len() < n {
		Yield()
	}

	rq := GlobalRunQueue()
	rq.Lock()
	before := len(rq.ready)
	woken := wq.NotifyAllLocked(false, rq)
	after := len(rq.ready)
	rq.Unlock()

	if woken != n {
		t.Errorf("NotifyAllLocked woke %d, want %d", woken, n)
	}
	if after-before != n {
		t.Errorf("ready list grew by %d, want %d", after-before, n)
	}
	for _, task := range tasks {
		if task.InWaitQueue() {
			t.Errorf("%s still marked in wait queue", task.Name())
		}
		if task.State() != TaskStateReady {
			t.Errorf("%s state = %v, want Ready", task.Name(), task.State())
		}
	}
	for _, task := range tasks {
		task.Join()
	}
}

func TestPreemptGate(t *testing.T) {
	var witnessRuns atomic.Int32
	witness := Spawn(func() {
		witnessRuns.Add(1)
	}, "witness", DefaultStackSize)

	curr := Current()
	curr.DisablePreempt()

	// Several timer ticks land while preemption is held off; none may
	// displace us.
	for i := 0; i < 3; i++ {
		OnTimerTick(time.Now())
	}
	if !curr.NeedResched() {
		t.Fatal("tick did not mark the current task preempt-pending")
	}
	if got := witnessRuns.Load(); got != 0 {
		t.Fatalf("witness ran %d times inside a no-preemption region", got)
	}
	if curr.PreemptDisableCount() != 1 {
		t.Fatalf("disable count = %d, want 1", curr.PreemptDisableCount())
	}

	// The enable boundary is the one place the pending switch may fire.
	curr.EnablePreempt(true)
	if got := witnessRuns.Load(); got != 1 {
		t.Errorf("witness ran %d times after the enable boundary, want 1", got)
	}
	if curr.NeedResched() {
		t.Error("needResched still set after being switched back in")
	}
	if curr.PreemptDisableCount() != 0 {
		t.Errorf("disable count = %d, want 0", curr.PreemptDisableCount())
	}
	witness.Join()
}

func TestPreemptCountNesting(t *testing.T) {
	curr := Current()
	for depth := 0; depth < 5; depth++ {
		curr.DisablePreempt()
		if got := curr.PreemptDisableCount(); got != uint32(depth+1) {
			t.Fatalf("count = %d at depth %d", got, depth+1)
		}
	}
	for depth := 5; depth > 0; depth-- {
		curr.EnablePreempt(false)
		if got := curr.PreemptDisableCount(); got != uint32(depth-1) {
			t.Fatalf("count = %d unwinding to depth %d", got, depth-1)
		}
	}
}

func TestExitedTaskMembership(t *testing.T) {
	done := Spawn(func() {}, "membership", DefaultStackSize)
	if code := done.Join(); code != 0 {
		t.Fatalf("join = %d", code)
	}
	if done.State() != TaskStateExited {
		t.Fatalf("state = %v, want Exited", done.State())
	}
	if done.InWaitQueue() || done.InTimerList() {
		t.Error("exited task still claims structural membership")
	}
}

func TestYieldWithEmptyQueueIsNoSwitch(t *testing.T) {
	curr := Current()
	// Drain: no other ready work besides possibly gc/idle internals.
	for GlobalRunQueue().Len() > 0 {
		Yield()
	}
	Yield()
	if Current() != curr {
		t.Error("yield with an empty ready queue changed the current task")
	}
	if curr.State() != TaskStateRunning {
		t.Errorf("state = %v, want Running", curr.State())
	}
}
