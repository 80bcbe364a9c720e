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

// Package demo hosts the workloads the runax CLI runs on the task core.
package demo

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"axos.dev/axos/pkg/kernel"
)

// YieldStorm spawns tasks that each yield rounds times, then joins them
// all. It exercises FIFO round-robin end to end.
func YieldStorm(tasks, rounds int) error {
	spawned := make([]*kernel.Task, 0, tasks)
	for i := 0; i < tasks; i++ {
		name := fmt.Sprintf("storm-%d", i)
		spawned = append(spawned, kernel.Spawn(func() {
			for r := 0; r < rounds; r++ {
				kernel.Yield()
			}
		}, name, kernel.DefaultStackSize))
	}
	for _, t := range spawned {
		if code := t.Join(); code != 0 {
			return fmt.Errorf("%s exited with %d", t.IDName(), code)
		}
	}
	logrus.Infof("yield storm finished: %d tasks x %d rounds", tasks, rounds)
	return nil
}

// Sleepers spawns tasks that sleep on the timer list and checks they all
// come back. The tick driver must be running.
func Sleepers(tasks int, d time.Duration) error {
	spawned := make([]*kernel.Task, 0, tasks)
	for i := 0; i < tasks; i++ {
		name := fmt.Sprintf("sleeper-%d", i)
		spawned = append(spawned, kernel.Spawn(func() {
			kernel.Sleep(d)
		}, name, kernel.DefaultStackSize))
	}
	for _, t := range spawned {
		if code := t.Join(); code != 0 {
			return fmt.Errorf("%s exited with %d", t.IDName(), code)
		}
	}
	logrus.Infof("sleepers finished: %d tasks x %v", tasks, d)
	return nil
}

// PingPong runs two tasks handing a token back and forth over a wait
// queue, rounds times each way.
func PingPong(rounds int) error {
	var (
		wq   kernel.WaitQueue
		turn = 0 // guarded by the run-queue lock via WaitUntil predicates
	)
	ping := kernel.Spawn(func() {
		for i := 0; i < rounds; i++ {
			wq.WaitUntil(func() bool { return turn == 0 })
			turn = 1
			wq.NotifyAll(false)
		}
	}, "ping", kernel.DefaultStackSize)
	pong := kernel.Spawn(func() {
		for i := 0; i < rounds; i++ {
			wq.WaitUntil(func() bool { return turn == 1 })
			turn = 0
			wq.NotifyAll(false)
		}
	}, "pong", kernel.DefaultStackSize)
	if code := ping.Join(); code != 0 {
		return fmt.Errorf("ping exited with %d", code)
	}
	if code := pong.Join(); code != 0 {
		return fmt.Errorf("pong exited with %d", code)
	}
	logrus.Infof("ping-pong finished: %d rounds", rounds)
	return nil
}
