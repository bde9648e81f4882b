// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/cmn/nlog"

	mapset "github.com/deckarep/golang-set"
	"github.com/karrick/godirwalk"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// static metadata (command line, owner) of a task identified by (tgid, tid, start time)
const (
	staticTTL   = 5 * time.Minute
	staticSweep = time.Minute
)

// ErrInventoryRead: procfs entry exists but cannot be read or parsed
var ErrInventoryRead = errors.New("inventory read error")

type (
	// Entity: unit of reporting; in thread mode ID is a tid and Threads holds just that tid,
	// in process mode ID is a tgid and Threads lists all its live threads (ascending)
	Entity struct {
		Threads []int
		ID      int
		TGID    int
	}

	// Filter: allow-lists applied at enumeration; nil sets allow all
	Filter struct {
		Pids mapset.Set // process or thread IDs
		Uids mapset.Set // owner uids (uint32)
	}

	Inventory struct {
		fs     procfs.FS
		static *gocache.Cache
		users  *gocache.Cache
		ioprio func(tid int) (int, error)
		root   string
	}

	Option func(*Inventory)
)

func WithIOPrio(getter func(tid int) (int, error)) Option {
	return func(inv *Inventory) { inv.ioprio = getter }
}

func NewInventory(root string, opts ...Option) (*Inventory, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventoryRead, err)
	}
	inv := &Inventory{
		fs:     fs,
		root:   root,
		static: gocache.New(staticTTL, staticSweep),
		users:  gocache.New(gocache.NoExpiration, 0),
		ioprio: IOPrioGet,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

func NewFilter(pids []int, uids []uint32) *Filter {
	f := &Filter{}
	if len(pids) > 0 {
		f.Pids = mapset.NewSet()
		for _, pid := range pids {
			f.Pids.Add(pid)
		}
	}
	if len(uids) > 0 {
		f.Uids = mapset.NewSet()
		for _, uid := range uids {
			f.Uids.Add(uid)
		}
	}
	return f
}

func (f *Filter) pidOK(id int) bool { return f == nil || f.Pids == nil || f.Pids.Contains(id) }
func (f *Filter) uidOK(uid uint32) bool {
	return f == nil || f.Uids == nil || f.Uids.Contains(uid)
}
func (f *Filter) byUID() bool { return f != nil && f.Uids != nil }

func (inv *Inventory) Root() string { return inv.root }

// Enumerate returns the live population ordered by entity id. Entities outside
// the filter are never returned. Tasks that vanish while being listed are skipped.
func (inv *Inventory) Enumerate(mode cmn.Mode, f *Filter) ([]Entity, error) {
	tgids, err := inv.ids(inv.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventoryRead, err)
	}
	entities := make([]Entity, 0, len(tgids))
	for _, tgid := range tgids {
		if f.byUID() {
			uid, err := inv.owner(filepath.Join(inv.root, strconv.Itoa(tgid)))
			if err != nil || !f.uidOK(uid) {
				continue
			}
		}
		tids, err := inv.ids(filepath.Join(inv.root, strconv.Itoa(tgid), "task"))
		if err != nil || len(tids) == 0 {
			continue // gone
		}
		pidOK := f.pidOK(tgid)
		if mode == cmn.ModeProcesses {
			if !pidOK && !slices.ContainsFunc(tids, f.pidOK) {
				continue
			}
			entities = append(entities, Entity{ID: tgid, TGID: tgid, Threads: tids})
			continue
		}
		for _, tid := range tids {
			if pidOK || f.pidOK(tid) {
				entities = append(entities, Entity{ID: tid, TGID: tgid, Threads: []int{tid}})
			}
		}
	}
	if mode == cmn.ModeThreads {
		slices.SortFunc(entities, func(a, b Entity) int { return a.ID - b.ID })
	}
	return entities, nil
}

// ids returns the sorted numeric entries of a procfs directory
func (*Inventory) ids(dir string) ([]int, error) {
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(names))
	for _, name := range names {
		if name[0] < '0' || name[0] > '9' {
			continue
		}
		if id, err := strconv.Atoi(name); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (*Inventory) owner(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return st.Uid, nil
}

// classify procfs read errors: vanished => not-found, anything else => inventory read error
func readErr(tid int, err error) error {
	if cos.IsNotExist(err) {
		return cos.NewErrNotFound("task", tid)
	}
	return fmt.Errorf("%w: tid %d: %v", ErrInventoryRead, tid, err)
}

func (inv *Inventory) Flush() {
	inv.static.Flush()
	nlog.Infoln("inventory: static metadata cache flushed")
}
