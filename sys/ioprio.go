// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import "strconv"

// include/uapi/linux/ioprio.h
const (
	ioprioClassShift = 13
	ioprioPrioMask   = (1 << ioprioClassShift) - 1

	ioprioClassNone = 0
	ioprioClassRT   = 1
	ioprioClassBE   = 2
	ioprioClassIdle = 3
)

// sched(7) policies
const (
	schedFIFO = 1
	schedRR   = 2
	schedIdle = 5
)

// FormatIOPrio renders an ioprio_get(2) value. Tasks that never set their I/O priority
// (class NONE) get the kernel's effective one, derived from scheduling policy and nice.
func FormatIOPrio(ioprio int, policy uint, nice int) string {
	class, level := ioprio>>ioprioClassShift, ioprio&ioprioPrioMask
	if class == ioprioClassNone {
		level = min(max((nice+20)/5, 0), 7)
		switch policy {
		case schedFIFO, schedRR:
			class = ioprioClassRT
		case schedIdle:
			class = ioprioClassIdle
		default:
			class = ioprioClassBE
		}
	}
	switch class {
	case ioprioClassRT:
		return "rt/" + strconv.Itoa(level)
	case ioprioClassBE:
		return "be/" + strconv.Itoa(level)
	case ioprioClassIdle:
		return "idle"
	default:
		return "?"
	}
}
