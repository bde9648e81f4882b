// Package main is iotop: a top-like monitor of per-thread and per-process disk I/O.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/cmn/nlog"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/sys"
	"github.com/NVIDIA/iotop/taskstats"
	"github.com/NVIDIA/iotop/view"

	"github.com/spf13/pflag"
)

// exit codes
const (
	exitOK     = 0
	exitFatal  = 1
	exitConfig = 2
)

const usage = `Usage: iotop [OPTIONS]

Display per-thread (or per-process) disk I/O bandwidth, as reported by the kernel's
taskstats interface. Requires CAP_NET_ADMIN for I/O counters.

Keys (interactive mode): left/right/home/end: sort column, r: reverse,
o: only active, p: processes/threads, a: accumulated/bandwidth, space: pause,
up/down/pgup/pgdn/g/G: scroll, q: quit

Options:
`

type cliFlags struct {
	config       string
	sort         string
	delay        float64
	iterations   int
	pids         []int
	users        []string
	maxInflight  int
	fetchTimeout time.Duration
	only         bool
	processes    bool
	accumulated  bool
	ascending    bool
	kilobytes    bool
	batch        bool
	timestamp    bool
	quiet        bool
	json         bool
	logStderr    bool
	showConfig   bool
}

func main() { os.Exit(run(os.Args[1:], os.Stdout, os.Stderr)) }

func run(args []string, stdout, stderr io.Writer) int {
	config, st, err := parse(args, stderr)
	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	default:
		fmt.Fprintln(stderr, "iotop:", err)
		return exitConfig
	}
	if config == nil { // --show-config
		return exitOK
	}

	logOpts := nlog.Opts{Dir: config.Log.Dir, Level: config.Log.Level, ToStderr: config.Log.ToStderr}
	if err := nlog.Init(logOpts); err != nil {
		fmt.Fprintln(stderr, "iotop: failed to initialize logging:", err)
		return exitFatal
	}
	defer nlog.Close()

	if err := start(config, st, stdout, stderr); err != nil {
		nlog.Errorln(err)
		fmt.Fprintln(stderr, "iotop:", err)
		return exitFatal
	}
	return exitOK
}

// parse returns (nil, _, nil) when the only job was to print the configuration.
func parse(args []string, stderr io.Writer) (*cmn.Config, view.State, error) {
	var (
		f  cliFlags
		fs = pflag.NewFlagSet("iotop", pflag.ContinueOnError)
	)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&f.config, "config", "", "YAML configuration file (flags take precedence)")
	fs.BoolVarP(&f.only, "only", "o", false, "only show processes or threads actually doing I/O")
	fs.BoolVarP(&f.processes, "processes", "P", false, "only show processes, not all threads")
	fs.BoolVarP(&f.accumulated, "accumulated", "a", false, "show accumulated I/O instead of bandwidth")
	fs.Float64VarP(&f.delay, "delay", "d", cmn.DfltDelay, "delay between iterations, in seconds")
	fs.IntVarP(&f.iterations, "iter", "n", 0, "number of iterations before ending (0: infinite)")
	fs.BoolVarP(&f.batch, "batch", "b", false, "non-interactive mode")
	fs.IntSliceVarP(&f.pids, "pid", "p", nil, "processes or threads to monitor (all by default)")
	fs.StringSliceVarP(&f.users, "user", "u", nil, "users to monitor (all by default)")
	fs.BoolVarP(&f.timestamp, "time", "t", false, "add a timestamp on each line (implies --batch)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "suppress header lines (implies --batch)")
	fs.BoolVarP(&f.kilobytes, "kilobytes", "k", false, "use kilobytes instead of a human friendly unit")
	fs.StringVar(&f.sort, "sort", cmn.ColIO, fmt.Sprintf("sort column, one of %v", cmn.SortColumns))
	fs.BoolVar(&f.ascending, "ascending", false, "sort in ascending order")
	fs.BoolVar(&f.json, "json", false, "print one JSON object per iteration (implies --batch)")
	fs.IntVar(&f.maxInflight, "max-inflight", cmn.DfltMaxInflight, "maximum number of concurrent taskstats requests")
	fs.DurationVar(&f.fetchTimeout, "fetch-timeout", 0, "taskstats reply timeout (0: one iteration delay)")
	fs.BoolVar(&f.logStderr, "logtostderr", false, "log to standard error instead of a file")
	fs.BoolVar(&f.showConfig, "show-config", false, "print the effective configuration and exit")
	if err := fs.Parse(args); err != nil {
		return nil, view.State{}, err
	}
	if fs.NArg() > 0 {
		return nil, view.State{}, cmn.NewErrConfig("arguments", "unexpected %q", fs.Args())
	}

	config, err := cmn.LoadConfig(f.config)
	if err != nil {
		return nil, view.State{}, err
	}
	f.apply(fs, config)
	if err := config.Validate(); err != nil {
		return nil, view.State{}, err
	}
	uids, err := lookupUsers(config.View.Users)
	if err != nil {
		return nil, view.State{}, err
	}
	st, err := view.StateFromConfig(&config.View, uids)
	if err != nil {
		return nil, view.State{}, err
	}
	if f.showConfig {
		b, err := config.JSON()
		if err != nil {
			return nil, st, err
		}
		fmt.Fprintln(stderr, string(b))
		return nil, st, nil
	}
	return config, st, nil
}

// apply overrides the configuration with explicitly set flags
func (f *cliFlags) apply(fs *pflag.FlagSet, config *cmn.Config) {
	set := fs.Changed
	if set("delay") {
		config.Delay = f.delay
	}
	if set("iter") {
		config.Iterations = f.iterations
	}
	if set("only") {
		config.View.OnlyActive = f.only
	}
	if set("processes") {
		config.View.Processes = f.processes
	}
	if set("accumulated") {
		config.View.Accumulated = f.accumulated
	}
	if set("kilobytes") {
		config.View.Kilobytes = f.kilobytes
	}
	if set("sort") {
		config.View.Sort = f.sort
	}
	if set("ascending") {
		config.View.Ascending = f.ascending
	}
	if set("pid") {
		config.View.Pids = f.pids
	}
	if set("user") {
		config.View.Users = f.users
	}
	if set("batch") {
		config.Output.Batch = f.batch
	}
	if set("time") {
		config.Output.Timestamp = f.timestamp
	}
	if set("quiet") {
		config.Output.Quiet = f.quiet
	}
	if set("json") {
		config.Output.JSON = f.json
	}
	if set("max-inflight") {
		config.Taskstats.MaxInflight = f.maxInflight
	}
	if set("fetch-timeout") {
		config.Taskstats.Timeout = cos.Duration(f.fetchTimeout)
	}
	if set("logtostderr") {
		config.Log.ToStderr = f.logStderr
	}
	if config.Output.Timestamp || config.Output.Quiet || config.Output.JSON {
		config.Output.Batch = true
	}
}

func lookupUsers(names []string) ([]uint32, error) {
	uids := make([]uint32, 0, len(names))
	for _, name := range names {
		uid, err := sys.LookupUser(name)
		if err != nil {
			return nil, cmn.NewErrConfig("user", "%q: %v", name, err)
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func start(config *cmn.Config, st view.State, stdout, stderr io.Writer) error {
	if err := sys.CheckRequirements(config.ProcRoot); err != nil {
		return err
	}
	inv, err := sys.NewInventory(config.ProcRoot)
	if err != nil {
		return err
	}

	var fetcher ios.Fetcher
	client, err := taskstats.Open(taskstats.Opts{Timeout: config.FetchTimeout(), MaxInflight: config.Taskstats.MaxInflight})
	if err != nil {
		nlog.Warningln(err)
		fmt.Fprintln(stderr, "iotop: I/O counters not available (CONFIG_TASKSTATS, CAP_NET_ADMIN?):", err)
	} else {
		defer client.Close()
		fetcher = client
	}

	opts := []ios.Option{
		ios.WithFilter(sys.NewFilter(config.View.Pids, st.UIDs)),
		ios.WithMode(st.Mode),
		ios.WithMaxInflight(config.Taskstats.MaxInflight),
		ios.WithDelayAcct(func() (bool, bool) { return sys.DelayAcctEnabled(inv.Root()) }),
	}
	sysRoot := filepath.Join(filepath.Dir(filepath.Clean(inv.Root())), "sys")
	if disks, err := ios.NewDiskSampler(inv.Root(), sysRoot); err == nil {
		opts = append(opts, ios.WithDisks(disks))
	} else {
		nlog.Warningln("actual disk I/O not available:", err)
	}
	engine := ios.NewEngine(inv, fetcher, opts...)
	defer engine.Tracker().Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nlog.Infof("starting: %s, every %v, proc root %q", st.Mode, config.Interval(), config.ProcRoot)
	model := view.New(st)
	if config.Output.Batch {
		return runBatch(ctx, engine, model, config, stdout)
	}
	return runTUI(ctx, engine, model, config)
}
