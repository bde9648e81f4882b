// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	ratomic "sync/atomic"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/sys"
	"github.com/NVIDIA/iotop/taskstats"
)

type (
	// fakeInv: tgid => tids; metadata is derived from ids
	fakeInv struct {
		procs   map[int][]int
		start   map[int]uint64 // tid => start time (default 1)
		metaErr map[int]error  // tid => ReadMeta error
		enumErr error
		mu      sync.Mutex
	}
	fakeTsc struct {
		stats map[int]taskstats.Stats
		errs  map[int]error
		calls  ratomic.Int64
		strays ratomic.Int64
		mu     sync.Mutex
	}
	fakeDisks struct {
		disks map[string]ios.DiskCounters
		mu    sync.Mutex
	}
	fakeClock struct {
		now ratomic.Int64
	}
)

var (
	_ ios.Inventory   = (*fakeInv)(nil)
	_ ios.Fetcher     = (*fakeTsc)(nil)
	_ ios.DiskSampler = (*fakeDisks)(nil)
)

func newFakeInv() *fakeInv {
	return &fakeInv{procs: map[int][]int{}, start: map[int]uint64{}, metaErr: map[int]error{}}
}

func (f *fakeInv) add(tgid int, tids ...int) {
	f.mu.Lock()
	if len(tids) == 0 {
		tids = []int{tgid}
	}
	f.procs[tgid] = slices.Sorted(slices.Values(tids))
	f.mu.Unlock()
}

func (f *fakeInv) remove(tgid int) {
	f.mu.Lock()
	delete(f.procs, tgid)
	f.mu.Unlock()
}

func (f *fakeInv) Enumerate(mode cmn.Mode, _ *sys.Filter) ([]sys.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	tgids := make([]int, 0, len(f.procs))
	for tgid := range f.procs {
		tgids = append(tgids, tgid)
	}
	slices.Sort(tgids)
	var entities []sys.Entity
	for _, tgid := range tgids {
		if mode == cmn.ModeProcesses {
			entities = append(entities, sys.Entity{ID: tgid, TGID: tgid, Threads: f.procs[tgid]})
			continue
		}
		for _, tid := range f.procs[tgid] {
			entities = append(entities, sys.Entity{ID: tid, TGID: tgid, Threads: []int{tid}})
		}
	}
	return entities, nil
}

func (f *fakeInv) ReadMeta(tgid, tid int) (*sys.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.metaErr[tid]; err != nil {
		return nil, err
	}
	start, ok := f.start[tid]
	if !ok {
		start = 1
	}
	return &sys.Meta{
		Comm:      fmt.Sprintf("meta-%d", tid),
		Command:   fmt.Sprintf("cmd-%d", tgid),
		User:      "root",
		Prio:      "be/4",
		State:     'S',
		StartTime: start,
		TGID:      tgid,
	}, nil
}

func newFakeTsc() *fakeTsc {
	return &fakeTsc{stats: map[int]taskstats.Stats{}, errs: map[int]error{}}
}

func (f *fakeTsc) set(tid int, st taskstats.Stats) {
	f.mu.Lock()
	st.PID = uint32(tid)
	if st.Comm == "" {
		st.Comm = fmt.Sprintf("ts-%d", tid)
	}
	f.stats[tid] = st
	f.mu.Unlock()
}

func (f *fakeTsc) Strays() int64 { return f.strays.Load() }

func (f *fakeTsc) fail(tid int, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.errs, tid)
	} else {
		f.errs[tid] = err
	}
	f.mu.Unlock()
}

func (f *fakeTsc) Fetch(ctx context.Context, tid int) (*taskstats.Stats, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[tid]; err != nil {
		return nil, err
	}
	st, ok := f.stats[tid]
	if !ok {
		return nil, cos.NewErrNotFound("task", tid)
	}
	return &st, nil
}

func (f *fakeDisks) set(name string, rd, wr uint64) {
	f.mu.Lock()
	if f.disks == nil {
		f.disks = map[string]ios.DiskCounters{}
	}
	f.disks[name] = ios.DiskCounters{ReadBytes: rd, WriteBytes: wr}
	f.mu.Unlock()
}

func (f *fakeDisks) Sample() (map[string]ios.DiskCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]ios.DiskCounters, len(f.disks))
	for name, c := range f.disks {
		out[name] = c
	}
	return out, nil
}

func (c *fakeClock) nanotime() int64 { return c.now.Load() }
func (c *fakeClock) advance(d time.Duration) { c.now.Add(int64(d)) }
