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
	"testing"

	"axos.dev/axos/pkg/mem"
)

func TestUserTaskLayout(t *testing.T) {
	const (
		entry = uintptr(mem.UserStart)
		args  = uintptr(99)
	)
	ut := NewUserTask(entry, DefaultStackSize, args)

	wantTF := mem.VirtAddr(trapFrameBase - uintptr(ut.ID())*mem.PageSize4K)
	if ut.TrapFrameVaddr() != wantTF {
		t.Errorf("trap frame vaddr = %s, want %s", ut.TrapFrameVaddr(), wantTF)
	}
	wantUS := mem.VirtAddr(mem.UStackBase - uintptr(ut.ID())*mem.UStackSize)
	if ut.UStackVaddr() != wantUS {
		t.Errorf("user stack vaddr = %s, want %s", ut.UStackVaddr(), wantUS)
	}

	tf := ut.TrapFrame()
	if tf.Sepc != entry {
		t.Errorf("Sepc = %#x, want %#x", tf.Sepc, entry)
	}
	if tf.Regs.SP != uintptr(wantUS)+mem.UStackSize {
		t.Errorf("user sp = %#x, want %#x", tf.Regs.SP, uintptr(wantUS)+mem.UStackSize)
	}
	if tf.Regs.A0 != args {
		t.Errorf("a0 = %#x, want %#x", tf.Regs.A0, args)
	}
	if tf.Kstack != ut.kstack.Top() {
		t.Errorf("Kstack = %#x, want %#x", tf.Kstack, ut.kstack.Top())
	}

	// Both mappings are visible in the shared address space.
	if _, ok := testAS.Query(ut.TrapFrameVaddr()); !ok {
		t.Error("trap frame not mapped")
	}
	if _, ok := testAS.Query(ut.UStackVaddr()); !ok {
		t.Error("user stack not mapped")
	}

	// OnExit releases both mappings.
	ut.OnExit(testAS.RemoveRegion)
	if _, ok := testAS.Query(ut.TrapFrameVaddr()); ok {
		t.Error("trap frame still mapped after OnExit")
	}
	if _, ok := testAS.Query(ut.UStackVaddr()); ok {
		t.Error("user stack still mapped after OnExit")
	}
}

func TestUserTaskEntersPlatform(t *testing.T) {
	testPlatform.take()
	ut := SpawnUser(uintptr(mem.UserStart), DefaultStackSize, 5)
	if code := ut.Join(); code != 0 {
		t.Fatalf("join = %d", code)
	}
	entries := testPlatform.take()
	if len(entries) != 1 {
		t.Fatalf("platform entered %d times, want 1", len(entries))
	}
	if entries[0].sepc != uintptr(mem.UserStart) {
		t.Errorf("entered at %#x, want %#x", entries[0].sepc, mem.UserStart)
	}
	if entries[0].kstack != ut.kstack.Top() {
		t.Errorf("trap stack = %#x, want %#x", entries[0].kstack, ut.kstack.Top())
	}
	if entries[0].a0 != 5 {
		t.Errorf("a0 = %#x, want 5", entries[0].a0)
	}
}

func TestForkReturnValues(t *testing.T) {
	parent := Current()
	parentTF := parent.TrapFrame()
	parentTF.Regs.A0 = 0xabcd // stale value the child must not inherit via a0

	child := HandleFork(77, testAS)
	childTF := child.TrapFrame()

	if childTF.Regs.A0 != 0 {
		t.Errorf("child a0 = %#x, want 0", childTF.Regs.A0)
	}
	if child.PID() != 77 {
		t.Errorf("child pid = %d, want 77", child.PID())
	}
	if childTF.Sepc != parentTF.Sepc {
		t.Errorf("child sepc = %#x, parent %#x; fork must clone the frame", childTF.Sepc, parentTF.Sepc)
	}
	if childTF.Kstack == parentTF.Kstack {
		t.Error("child shares the parent's kernel trap stack")
	}
	if childTF.Kstack != child.kstack.Top() {
		t.Errorf("child Kstack = %#x, want its own stack top %#x", childTF.Kstack, child.kstack.Top())
	}

	gap := uintptr(parent.TrapFrameVaddr()) - uintptr(child.TrapFrameVaddr())
	want := uintptr(child.ID()-parent.ID()) * mem.PageSize4K
	if gap != want {
		t.Errorf("trap frame vaddr gap = %#x, want %#x", gap, want)
	}
	// The child's frame lives in the shared map.
	if _, ok := testAS.Query(child.TrapFrameVaddr()); !ok {
		t.Error("child trap frame not mapped in the shared address space")
	}

	if code := child.Join(); code != 0 {
		t.Errorf("child join = %d", code)
	}
}

func TestExecReplacesCurrent(t *testing.T) {
	testPlatform.take()
	var replacement *Task
	execer := Spawn(func() {
		HandleExec(func(nt *Task) {
			replacement = nt
		})
	}, "execer", DefaultStackSize)

	if code := execer.Join(); code != 0 {
		t.Fatalf("execer join = %d, want 0 (exec exits the old task in place)", code)
	}
	if replacement == nil {
		t.Fatal("exec did not hand the replacement to post")
	}
	if code := replacement.Join(); code != 0 {
		t.Fatalf("replacement join = %d", code)
	}
	if replacement.ID() <= execer.ID() {
		t.Error("replacement did not get a fresh id")
	}
	entries := testPlatform.take()
	if len(entries) != 1 {
		t.Fatalf("platform entered %d times, want 1", len(entries))
	}
	if entries[0].sepc != uintptr(mem.UserStart) {
		t.Errorf("replacement entered at %#x, want %#x", entries[0].sepc, mem.UserStart)
	}
}
