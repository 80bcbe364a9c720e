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

package config

import (
	"flag"
	"time"
)

// Reused flag names.
const (
	flagRoot         = "root"
	flagConfigFile   = "config"
	flagDebug        = "debug"
	flagLogLevel     = "log-level"
	flagTickInterval = "tick-interval"
	flagDemoTasks    = "demo-tasks"
	flagDemoRounds   = "demo-rounds"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(flagRoot, defaultConfig.RootDir, "root directory for storage of instance state.")
	flagSet.String(flagConfigFile, "", "TOML file layered between the defaults and the flags.")
	flagSet.Bool(flagDebug, false, "enable debug logging.")
	flagSet.String(flagLogLevel, defaultConfig.LogLevel, "log level: error, warn (default), info, debug, or trace.")
	flagSet.Duration(flagTickInterval, defaultConfig.TickInterval, "period of the simulated timer interrupt.")
	flagSet.Int(flagDemoTasks, defaultConfig.DemoTasks, "number of tasks demo workloads spawn.")
	flagSet.Int(flagDemoRounds, defaultConfig.DemoRounds, "number of yield rounds demo workloads run.")
}

// NewFromFlags resolves the configuration: defaults, then the TOML file
// named by -config (if any), then every flag that was set explicitly.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := Default()

	if f := flagSet.Lookup(flagConfigFile); f != nil {
		if path := f.Value.String(); path != "" {
			if err := conf.LoadFile(path); err != nil {
				return nil, err
			}
		}
	}

	var ferr error
	flagSet.Visit(func(f *flag.Flag) {
		if ferr != nil {
			return
		}
		switch f.Name {
		case flagRoot:
			conf.RootDir = f.Value.String()
		case flagDebug:
			conf.Debug = f.Value.(flag.Getter).Get().(bool)
		case flagLogLevel:
			conf.LogLevel = f.Value.String()
		case flagTickInterval:
			var d time.Duration
			if d, ferr = time.ParseDuration(f.Value.String()); ferr == nil {
				conf.TickInterval = d
			}
		case flagDemoTasks:
			conf.DemoTasks = f.Value.(flag.Getter).Get().(int)
		case flagDemoRounds:
			conf.DemoRounds = f.Value.(flag.Getter).Get().(int)
		}
	})
	if ferr != nil {
		return nil, ferr
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
