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

// Binary demo_app exercises awkward scheduler behavior on purpose: it is
// run manually against a booted core to poke at preemption gating and
// spawn pressure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"

	"axos.dev/axos/pkg/kernel"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(new(uncooperative), "")
	subcommands.Register(new(taskTree), "")
	flag.Parse()

	kernel.Init()
	go func() {
		for {
			time.Sleep(time.Millisecond)
			kernel.OnTimerTick(time.Now())
		}
	}()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// uncooperative holds preemption off while burning CPU, then lets the
// pending reschedule fire on the enable boundary.
type uncooperative struct {
	spin time.Duration
}

// Name implements subcommands.Command.Name.
func (*uncooperative) Name() string { return "uncooperative" }

// Synopsis implements subcommands.Command.Synopsis.
func (*uncooperative) Synopsis() string { return "burn CPU inside a no-preemption region" }

// Usage implements subcommands.Command.Usage.
func (*uncooperative) Usage() string { return "uncooperative [-spin duration]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (u *uncooperative) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&u.spin, "spin", 50*time.Millisecond, "how long to burn inside the region")
}

// Execute implements subcommands.Command.Execute.
func (u *uncooperative) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	witness := kernel.Spawn(func() {}, "witness", kernel.DefaultStackSize)

	curr := kernel.Current()
	curr.DisablePreempt()
	deadline := time.Now().Add(u.spin)
	for time.Now().Before(deadline) {
	}
	pending := curr.NeedResched()
	curr.EnablePreempt(true)

	witness.Join()
	fmt.Printf("resched pending at enable boundary: %v\n", pending)
	return subcommands.ExitSuccess
}

// taskTree spawns a tree of tasks, each joining its children.
type taskTree struct {
	fanout int
	depth  int
}

// Name implements subcommands.Command.Name.
func (*taskTree) Name() string { return "tasktree" }

// Synopsis implements subcommands.Command.Synopsis.
func (*taskTree) Synopsis() string { return "spawn a tree of tasks joining their children" }

// Usage implements subcommands.Command.Usage.
func (*taskTree) Usage() string { return "tasktree [-fanout n] [-depth n]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (tt *taskTree) SetFlags(f *flag.FlagSet) {
	f.IntVar(&tt.fanout, "fanout", 3, "children per node")
	f.IntVar(&tt.depth, "depth", 3, "tree depth")
}

// Execute implements subcommands.Command.Execute.
func (tt *taskTree) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	var total atomic.Int64
	spawnTree(&total, tt.fanout, tt.depth)
	fmt.Printf("joined %d tasks\n", total.Load())
	return subcommands.ExitSuccess
}

func spawnTree(total *atomic.Int64, fanout, depth int) {
	if depth == 0 {
		return
	}
	children := make([]*kernel.Task, 0, fanout)
	for i := 0; i < fanout; i++ {
		name := fmt.Sprintf("node-%d-%d", depth, i)
		children = append(children, kernel.Spawn(func() {
			total.Add(1)
			spawnTree(total, fanout, depth-1)
		}, name, kernel.DefaultStackSize))
	}
	for _, c := range children {
		c.Join()
	}
}
