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

// Package instance manages the on-disk state of one runax run: a state
// directory, an advisory lock so concurrent runs do not share it, and a
// small JSON record describing the live instance.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
)

const (
	lockFileName  = "runax.lock"
	stateFileName = "state.json"

	// lockRetries bounds how long a starting instance waits for a
	// previous one to let go of the directory.
	lockRetries = 10
)

// State is the persisted record of a live instance.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Workload  string    `json:"workload"`
}

// Instance is a locked state directory.
type Instance struct {
	// Root is the state directory.
	Root string

	lock *flock.Flock
}

// Lock claims the state directory at root, creating it if needed. A
// directory still held by a dying instance is retried with exponential
// backoff before giving up.
func Lock(root string) (*Instance, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	l := flock.New(filepath.Join(root, lockFileName))
	op := func() error {
		ok, err := l.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return fmt.Errorf("state directory %q is locked by another instance", root)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), lockRetries)); err != nil {
		return nil, err
	}
	return &Instance{Root: root, lock: l}, nil
}

// SaveState writes the instance record.
func (i *Instance) SaveState(s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(i.Root, stateFileName), data, 0o644)
}

// LoadState reads the instance record, if present.
func (i *Instance) LoadState() (*State, error) {
	data, err := os.ReadFile(filepath.Join(i.Root, stateFileName))
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt state file: %w", err)
	}
	return &s, nil
}

// Release removes the state record and lets go of the lock.
func (i *Instance) Release() error {
	os.Remove(filepath.Join(i.Root, stateFileName))
	return i.lock.Unlock()
}
