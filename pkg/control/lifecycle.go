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

// Package control provides the embedder-facing surface for starting and
// observing workloads on the task core.
package control

import (
	"fmt"
	"sync"

	"axos.dev/axos/pkg/kernel"
)

// workloadState is the state of a workload.
type workloadState int

const (
	// stateCreated is the state when the workload was registered. It is
	// the initial state.
	stateCreated workloadState = iota

	// stateRunning is the state while the workload's task is live.
	stateRunning

	// stateStopped is the state once the task has exited.
	stateStopped
)

// Workload is one named body of work hosted on a kernel task.
type Workload struct {
	name  string
	task  *kernel.Task
	state workloadState
}

// Lifecycle starts, tracks and waits on workloads.
type Lifecycle struct {
	// ShutdownCh signals the embedder that the scheduler is going away.
	ShutdownCh <-chan struct{}

	// mu protects the fields below.
	mu sync.RWMutex

	// workloads maps names to their records.
	workloads map[string]*Workload
}

// New creates a Lifecycle bound to the running scheduler.
func New() *Lifecycle {
	return &Lifecycle{
		ShutdownCh: kernel.ShutdownSignal(),
		workloads:  make(map[string]*Workload),
	}
}

// StartWorkload spawns a task named name running body and begins tracking
// it. Names are unique.
func (l *Lifecycle) StartWorkload(name string, stackSize uintptr, body func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.workloads[name]; ok {
		return fmt.Errorf("workload %q already exists", name)
	}
	w := &Workload{name: name, state: stateCreated}
	w.task = kernel.Spawn(body, name, stackSize)
	w.state = stateRunning
	l.workloads[name] = w
	return nil
}

// WaitWorkload joins the named workload's task and returns its exit code.
func (l *Lifecycle) WaitWorkload(name string) (int32, error) {
	l.mu.RLock()
	w, ok := l.workloads[name]
	l.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("workload %q not found", name)
	}
	code := w.task.Join()
	l.mu.Lock()
	w.state = stateStopped
	l.mu.Unlock()
	return code, nil
}

// IsRunning reports whether the named workload has started and not yet
// been reaped.
func (l *Lifecycle) IsRunning(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	w, ok := l.workloads[name]
	return ok && w.state == stateRunning
}

// Names returns the registered workload names.
func (l *Lifecycle) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.workloads))
	for name := range l.workloads {
		names = append(names, name)
	}
	return names
}
