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

// Binary runax hosts the task core in an ordinary process: it boots the
// scheduler, drives a simulated timer interrupt, and runs demo workloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"axos.dev/axos/runax/cmd"
	"axos.dev/axos/runax/config"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Boot), "")
	subcommands.Register(new(cmd.Demo), "")
	subcommands.Register(new(cmd.VersionCmd), "")

	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runax: %v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}
	conf.ApplyLogging()
	setDebugSigHandler()

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}
