// Package cmn provides common types, configuration, and validation for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/NVIDIA/iotop/cmn/cos"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// sortable columns, as named on the command line and in the config file
const (
	ColID      = "id"
	ColPrio    = "prio"
	ColUser    = "user"
	ColRead    = "read"
	ColWrite   = "write"
	ColSwapin  = "swapin"
	ColIO      = "io"
	ColCommand = "command"
)

var SortColumns = []string{ColID, ColPrio, ColUser, ColRead, ColWrite, ColSwapin, ColIO, ColCommand}

const (
	DfltDelay       = 1.0 // seconds
	DfltMaxInflight = 64
	maxMaxInflight  = 4096
	DfltProcRoot    = "/proc"
)

type (
	Config struct {
		ProcRoot   string        `json:"proc_root"  yaml:"proc_root"`
		Delay      float64       `json:"delay"      yaml:"delay"`      // seconds between ticks, fractional
		Iterations int           `json:"iterations" yaml:"iterations"` // 0: unlimited
		Output     OutputConf    `json:"output"     yaml:"output"`
		View       ViewConf      `json:"view"       yaml:"view"`
		Taskstats  TaskstatsConf `json:"taskstats"  yaml:"taskstats"`
		Log        LogConf       `json:"log"        yaml:"log"`
	}
	OutputConf struct {
		Batch     bool `json:"batch"     yaml:"batch"`     // non-interactive
		Timestamp bool `json:"timestamp" yaml:"timestamp"` // prefix each line with time of day
		Quiet     bool `json:"quiet"     yaml:"quiet"`     // suppress header lines
		JSON      bool `json:"json"      yaml:"json"`      // JSON lines instead of text
	}
	ViewConf struct {
		Sort        string   `json:"sort"        yaml:"sort"`
		Ascending   bool     `json:"ascending"   yaml:"ascending"`
		Processes   bool     `json:"processes"   yaml:"processes"`
		Accumulated bool     `json:"accumulated" yaml:"accumulated"`
		OnlyActive  bool     `json:"only"        yaml:"only"`
		Kilobytes   bool     `json:"kilobytes"   yaml:"kilobytes"`
		Pids        []int    `json:"pids"        yaml:"pids"`
		Users       []string `json:"users"       yaml:"users"`
	}
	TaskstatsConf struct {
		MaxInflight int          `json:"max_inflight" yaml:"max_inflight"`
		Timeout     cos.Duration `json:"timeout"      yaml:"timeout"` // 0: one tick interval
	}
	LogConf struct {
		Dir      string `json:"dir"       yaml:"dir"`
		Level    string `json:"level"     yaml:"level"`
		ToStderr bool   `json:"to_stderr" yaml:"to_stderr"`
	}
)

// ErrConfig is returned by Validate and LoadConfig; the run never starts.
type ErrConfig struct {
	field string
	msg   string
}

func NewErrConfig(field, format string, a ...any) *ErrConfig {
	return &ErrConfig{field: field, msg: fmt.Sprintf(format, a...)}
}

func (e *ErrConfig) Error() string { return "invalid " + e.field + ": " + e.msg }

func IsErrConfig(err error) bool {
	var e *ErrConfig
	return errors.As(err, &e)
}

func DefaultConfig() *Config {
	return &Config{
		ProcRoot: DfltProcRoot,
		Delay:    DfltDelay,
		View:     ViewConf{Sort: ColIO},
		Taskstats: TaskstatsConf{
			MaxInflight: DfltMaxInflight,
		},
		Log: LogConf{
			Dir:   os.TempDir() + "/iotop",
			Level: "info",
		},
	}
}

// LoadConfig returns the defaults overridden by the (optional) YAML file.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, NewErrConfig("config file", "%v", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, NewErrConfig("config file", "%s: %v", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if math.IsNaN(c.Delay) || math.IsInf(c.Delay, 0) || c.Delay <= 0 {
		return NewErrConfig("delay", "expecting positive number of seconds, got %v", c.Delay)
	}
	if c.Interval() < time.Millisecond {
		return NewErrConfig("delay", "%vs is too small", c.Delay)
	}
	if c.Iterations < 0 {
		return NewErrConfig("iterations", "expecting non-negative number, got %d", c.Iterations)
	}
	if c.ProcRoot == "" {
		return NewErrConfig("proc_root", "empty")
	}
	c.View.Sort = strings.ToLower(c.View.Sort)
	if !slices.Contains(SortColumns, c.View.Sort) {
		return NewErrConfig("sort", "unknown column %q (expecting one of %v)", c.View.Sort, SortColumns)
	}
	for _, pid := range c.View.Pids {
		if pid <= 0 {
			return NewErrConfig("pid", "expecting positive process or thread ID, got %d", pid)
		}
	}
	for _, user := range c.View.Users {
		if user == "" {
			return NewErrConfig("user", "empty user name")
		}
	}
	if c.Taskstats.MaxInflight < 1 || c.Taskstats.MaxInflight > maxMaxInflight {
		return NewErrConfig("max_inflight", "expecting [1, %d], got %d", maxMaxInflight, c.Taskstats.MaxInflight)
	}
	if c.Taskstats.Timeout < 0 {
		return NewErrConfig("taskstats timeout", "negative %v", c.Taskstats.Timeout)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return NewErrConfig("log level", "%q (expecting debug, info, warn, or error)", c.Log.Level)
	}
	if !c.Log.ToStderr && c.Log.Dir == "" {
		return NewErrConfig("log dir", "empty")
	}
	return nil
}

// Interval converts fractional seconds to time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Delay * float64(time.Second))
}

// FetchTimeout defaults to one tick interval.
func (c *Config) FetchTimeout() time.Duration {
	if c.Taskstats.Timeout > 0 {
		return c.Taskstats.Timeout.D()
	}
	return c.Interval()
}

func (c *Config) JSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(c, "", "    ")
}
