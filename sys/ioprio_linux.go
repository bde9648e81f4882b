// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import "golang.org/x/sys/unix"

const ioprioWhoProcess = 1

// IOPrioGet returns the raw I/O priority of a thread (ioprio_get(2)).
func IOPrioGet(tid int) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_IOPRIO_GET, ioprioWhoProcess, uintptr(tid), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}
