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

// Package config holds the runax runtime configuration: defaults, a TOML
// file layer, and a flag layer on top, resolved in that order.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"
)

// Config is the resolved runax configuration.
type Config struct {
	// RootDir is the directory for instance state and the lock file.
	RootDir string `toml:"root"`

	// Debug forces the log level to debug.
	Debug bool `toml:"debug"`

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string `toml:"log-level"`

	// TickInterval is the period of the simulated timer interrupt.
	TickInterval time.Duration `toml:"tick-interval"`

	// DemoTasks is the number of tasks demo workloads spawn.
	DemoTasks int `toml:"demo-tasks"`

	// DemoRounds is the number of yield rounds demo workloads run.
	DemoRounds int `toml:"demo-rounds"`
}

var defaultConfig = Config{
	RootDir:      "/var/run/runax",
	LogLevel:     "warn",
	TickInterval: 10 * time.Millisecond,
	DemoTasks:    3,
	DemoRounds:   3,
}

// Default returns a fresh copy of the built-in defaults.
func Default() *Config {
	c := deepcopy.Copy(defaultConfig).(Config)
	return &c
}

// LoadFile layers the TOML file at path over c.
func (c *Config) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("loading config %q: %w", path, err)
	}
	return nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.effectiveLevel()); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.DemoTasks < 1 {
		return fmt.Errorf("demo-tasks must be at least 1, got %d", c.DemoTasks)
	}
	return nil
}

func (c *Config) effectiveLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// ApplyLogging points the process-wide logger at the configured level.
func (c *Config) ApplyLogging() {
	level, err := logrus.ParseLevel(c.effectiveLevel())
	if err != nil {
		level = logrus.WarnLevel
	}
	logrus.SetLevel(level)
}
