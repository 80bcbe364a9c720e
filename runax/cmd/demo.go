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

package cmd

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/time/rate"

	"axos.dev/axos/pkg/control"
	"axos.dev/axos/pkg/kernel"
	"axos.dev/axos/pkg/mem"
	"axos.dev/axos/runax/config"
	"axos.dev/axos/runax/demo"
)

// Demo implements subcommands.Command for the "demo" command. It boots the
// core, starts one named workload through the control surface, and waits
// for its exit code.
type Demo struct {
	scenario string
}

// Name implements subcommands.Command.Name.
func (*Demo) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Demo) Synopsis() string {
	return "run one demo scenario and wait for it"
}

// Usage implements subcommands.Command.Usage.
func (*Demo) Usage() string {
	return "demo [-scenario yield|pingpong|sleep]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Demo) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.scenario, "scenario", "yield", "scenario to run: yield, pingpong, or sleep")
}

// Execute implements subcommands.Command.Execute. It waits for the
// workload task to exit before returning.
func (d *Demo) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	as := mem.NewAddrSpace(0)
	mem.SetAllocator(&mem.SimpleAllocator{AS: as})
	kernel.Init()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		limiter := rate.NewLimiter(rate.Every(conf.TickInterval), 1)
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			kernel.OnTimerTick(time.Now())
		}
	}()

	var body func()
	switch d.scenario {
	case "yield":
		body = func() {
			if err := demo.YieldStorm(conf.DemoTasks, conf.DemoRounds); err != nil {
				kernel.Exit(1)
			}
		}
	case "pingpong":
		body = func() {
			if err := demo.PingPong(conf.DemoRounds); err != nil {
				kernel.Exit(1)
			}
		}
	case "sleep":
		body = func() {
			if err := demo.Sleepers(conf.DemoTasks, 2*conf.TickInterval); err != nil {
				kernel.Exit(1)
			}
		}
	default:
		f.Usage()
		return subcommands.ExitUsageError
	}

	life := control.New()
	if err := life.StartWorkload(d.scenario, kernel.DefaultStackSize, body); err != nil {
		Fatalf("starting workload: %v", err)
	}
	code, err := life.WaitWorkload(d.scenario)
	if err != nil {
		Fatalf("waiting on workload: %v", err)
	}
	if code != 0 {
		Fatalf("workload %q exited with %d", d.scenario, code)
	}
	return subcommands.ExitSuccess
}
