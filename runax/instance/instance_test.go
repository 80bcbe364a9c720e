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

package instance

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockSaveLoadRelease(t *testing.T) {
	root := filepath.Join(t.TempDir(), "state")
	inst, err := Lock(root)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	want := &State{PID: os.Getpid(), StartedAt: time.Now().Truncate(time.Second), Workload: "test"}
	if err := inst.SaveState(want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	got, err := inst.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got.PID != want.PID || got.Workload != want.Workload {
		t.Errorf("LoadState = %+v, want %+v", got, want)
	}
	if err := inst.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := inst.LoadState(); err == nil {
		t.Error("state file survived Release")
	}

	// The directory is reusable after release.
	inst2, err := Lock(root)
	if err != nil {
		t.Fatalf("re-Lock: %v", err)
	}
	inst2.Release()
}

func TestLoadStateCorrupt(t *testing.T) {
	root := filepath.Join(t.TempDir(), "state")
	inst, err := Lock(root)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer inst.Release()
	if err := os.WriteFile(filepath.Join(root, stateFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.LoadState(); err == nil {
		t.Error("corrupt state file loaded without error")
	}
}
