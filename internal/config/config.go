// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config holds the configuration of a test run.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"go.chromium.org/stest/errors"
	"go.chromium.org/stest/internal/supervisor"
	"go.chromium.org/stest/shutil"
)

// Default values of Config fields.
const (
	DefaultOutDir         = "stest_out"
	DefaultCommandTimeout = time.Minute
	DefaultTestTimeout    = 10 * time.Minute
	DefaultGracePeriod    = 5 * time.Second
)

// Config contains the settings of a run. It can be loaded from a YAML file,
// e.g.:
//
//	outdir: /tmp/stest
//	command_timeout: 30s
//	env:
//	  LC_ALL: C
//	vars:
//	  mode: release
type Config struct {
	// OutDir is the directory under which test directories are created.
	OutDir string `yaml:"outdir"`
	// DebugPrefix is written in front of commands in command logs.
	DebugPrefix string `yaml:"debug_prefix"`
	// CommandTimeout is the default timeout of commands run by tests.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// TestTimeout is the default timeout of test bodies.
	TestTimeout time.Duration `yaml:"test_timeout"`
	// PollInterval is the interval at which commands are checked against
	// their timeouts.
	PollInterval time.Duration `yaml:"poll_interval"`
	// GracePeriod is the time given to tests to clean up after a timeout or
	// an interrupt.
	GracePeriod time.Duration `yaml:"grace_period"`
	// Env holds environment variables set for every command run by tests.
	Env map[string]string `yaml:"env"`
	// Vars are named options forwarded to tests. Vars given on the command
	// line take precedence.
	Vars map[string]string `yaml:"vars"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		OutDir:         DefaultOutDir,
		DebugPrefix:    supervisor.DefaultDebugPrefix,
		CommandTimeout: DefaultCommandTimeout,
		TestTimeout:    DefaultTestTimeout,
		PollInterval:   supervisor.DefaultPollInterval,
		GracePeriod:    DefaultGracePeriod,
		Env:            make(map[string]string),
		Vars:           make(map[string]string),
	}
}

// Load returns the default Config overridden by the YAML file at path.
// Unknown keys are errors. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.UnmarshalStrict(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	if cfg.Vars == nil {
		cfg.Vars = make(map[string]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "bad config %s", path)
	}
	return cfg, nil
}

// Validate checks that c describes a usable run.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("outdir is empty")
	}
	for name, d := range map[string]time.Duration{
		"command_timeout": c.CommandTimeout,
		"test_timeout":    c.TestTimeout,
		"poll_interval":   c.PollInterval,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive; got %v", name, d)
		}
	}
	if c.GracePeriod < 0 {
		return errors.Errorf("grace_period must not be negative; got %v", c.GracePeriod)
	}
	if _, err := shutil.Assignments(c.Env); err != nil {
		return err
	}
	return nil
}

// MergeVars sets vars on top of c.Vars, overriding existing values.
func (c *Config) MergeVars(vars map[string]string) {
	for k, v := range vars {
		c.Vars[k] = v
	}
}
