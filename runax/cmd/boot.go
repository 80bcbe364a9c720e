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
	"os"
	"os/signal"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"axos.dev/axos/pkg/kernel"
	"axos.dev/axos/pkg/mem"
	"axos.dev/axos/runax/config"
	"axos.dev/axos/runax/demo"
	"axos.dev/axos/runax/instance"
)

// Boot implements subcommands.Command for the "boot" command. It brings
// the task core up in this process, drives a simulated timer interrupt,
// and runs the full demo suite on it. It's to be used to quickly see the
// scheduler working without a hardware port.
type Boot struct {
	skipSleepers bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the task core and run the demo workloads"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boots the scheduler, starts a paced timer tick, and
runs the demo workloads (yield storm, ping-pong, sleepers) to completion.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&b.skipSleepers, "skip-sleepers", false, "skip the timer-driven sleeper workload")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	inst, err := instance.Lock(conf.RootDir)
	if err != nil {
		Fatalf("locking state directory: %v", err)
	}
	defer inst.Release()
	if err := inst.SaveState(&instance.State{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Workload:  "boot",
	}); err != nil {
		Fatalf("saving instance state: %v", err)
	}

	as := mem.NewAddrSpace(0)
	mem.SetAllocator(&mem.SimpleAllocator{AS: as})
	kernel.Init()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// The timer interrupt: a paced host goroutine injecting ticks.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter := rate.NewLimiter(rate.Every(conf.TickInterval), 1)
		for {
			if err := limiter.Wait(gctx); err != nil {
				return nil
			}
			kernel.OnTimerTick(time.Now())
		}
	})

	console := &demo.ConsoleScheme{W: os.Stdout}
	console.WriteString("runax: task core online\n")

	// The calling flow is the init task; workloads run as its children.
	if err := demo.YieldStorm(conf.DemoTasks, conf.DemoRounds); err != nil {
		Fatalf("yield storm: %v", err)
	}
	if err := demo.PingPong(conf.DemoRounds); err != nil {
		Fatalf("ping-pong: %v", err)
	}
	if !b.skipSleepers {
		if err := demo.Sleepers(conf.DemoTasks, 2*conf.TickInterval); err != nil {
			Fatalf("sleepers: %v", err)
		}
	}

	console.WriteString("runax: demo complete\n")
	cancel()
	g.Wait()
	return subcommands.ExitSuccess
}
