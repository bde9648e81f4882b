// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NVIDIA/iotop/cmn/cos"

	"github.com/prometheus/procfs"
)

// PF_KTHREAD (include/linux/sched.h)
const pfKthread = 0x00200000

type (
	Meta struct {
		Comm      string // thread name
		Command   string // display command line
		User      string
		Prio      string // "be/4", "rt/0", "idle"
		State     byte   // R, S, D, Z, ...
		StartTime uint64 // clock ticks since boot
		PPID      int
		TGID      int
		Nice      int
		Policy    uint
		UID       uint32
	}

	// cached per (tgid, tid, start time)
	static struct {
		command string
		user    string
		uid     uint32
	}
)

func staticKey(tgid, tid int, starttime uint64) string {
	return strconv.Itoa(tgid) + "/" + strconv.Itoa(tid) + "@" + strconv.FormatUint(starttime, 10)
}

// ReadMeta reads the metadata of thread `tid` of process `tgid`.
// Returns cos.ErrNotFound if the task is gone or its id was recycled mid-read.
func (inv *Inventory) ReadMeta(tgid, tid int) (*Meta, error) {
	task, err := inv.task(tgid, tid)
	if err != nil {
		return nil, readErr(tid, err)
	}
	stat, err := task.Stat()
	if err != nil {
		return nil, readErr(tid, err)
	}

	var (
		st  *static
		key = staticKey(tgid, tid, stat.Starttime)
	)
	if v, ok := inv.static.Get(key); ok {
		st = v.(*static)
	} else {
		if st, err = inv.readStatic(task, tgid, tid, &stat); err != nil {
			return nil, err
		}
		inv.static.SetDefault(key, st)
	}

	meta := &Meta{
		Comm:      stat.Comm,
		Command:   st.command,
		User:      st.user,
		UID:       st.uid,
		PPID:      stat.PPID,
		TGID:      tgid,
		Nice:      stat.Nice,
		Policy:    stat.Policy,
		StartTime: stat.Starttime,
	}
	if stat.State != "" {
		meta.State = stat.State[0]
	}
	meta.Prio = inv.prio(tid, stat.Policy, stat.Nice)
	return meta, nil
}

func (inv *Inventory) task(tgid, tid int) (procfs.Proc, error) {
	fs, err := procfs.NewFS(filepath.Join(inv.root, strconv.Itoa(tgid), "task"))
	if err != nil {
		return procfs.Proc{}, err
	}
	return fs.Proc(tid)
}

// readStatic reads status and cmdline between two reads of stat: the start time
// and thread group must not change, otherwise the id was recycled
func (inv *Inventory) readStatic(task procfs.Proc, tgid, tid int, stat *procfs.ProcStat) (*static, error) {
	status, err := task.NewStatus()
	if err != nil {
		return nil, readErr(tid, err)
	}
	if status.TGID != tgid {
		return nil, cos.NewErrNotFound("task", tid)
	}
	uid, err := inv.owner(filepath.Join(inv.root, strconv.Itoa(tgid), "task", strconv.Itoa(tid)))
	if err != nil {
		return nil, readErr(tid, err)
	}
	command, err := inv.command(tgid, tid, stat)
	if err != nil {
		return nil, readErr(tid, err)
	}
	again, err := task.Stat()
	if err != nil {
		return nil, readErr(tid, err)
	}
	if again.Starttime != stat.Starttime {
		return nil, cos.NewErrNotFound("task", tid)
	}
	return &static{command: command, uid: uid, user: inv.Username(uid)}, nil
}

// command formats the display command line:
//   - basename of argv[0] (unless it is not a path, e.g. "sshd: user@pts/0"), followed by the arguments
//   - "[comm]" for kernel threads and tasks with an empty command line
//   - " [comm]" suffix for a non-leader thread named differently from its leader
func (inv *Inventory) command(tgid, tid int, stat *procfs.ProcStat) (string, error) {
	if stat.Flags&pfKthread != 0 {
		return "[" + stat.Comm + "]", nil
	}
	leader, err := inv.fs.Proc(tgid)
	if err != nil {
		return "", err
	}
	args, err := leader.CmdLine()
	if err != nil {
		return "", err
	}
	command := FormatCmdline(args)
	if command == "" {
		return "[" + stat.Comm + "]", nil
	}
	if tid != tgid {
		if name, err := leader.Comm(); err == nil && name != stat.Comm {
			command += " [" + stat.Comm + "]"
		}
	}
	return command, nil
}

func FormatCmdline(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg != "" {
			parts = append(parts, arg)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	first := parts[0]
	if slash := strings.LastIndexByte(first, '/'); slash >= 0 {
		colon := strings.IndexByte(first, ':')
		if colon < 0 || colon > slash {
			parts[0] = first[slash+1:]
		}
	}
	return strings.Join(parts, " ")
}

func (inv *Inventory) prio(tid int, policy uint, nice int) string {
	ioprio, err := inv.ioprio(tid)
	if err != nil {
		ioprio = 0
	}
	return FormatIOPrio(ioprio, policy, nice)
}
