// Package cmn provides common types, configuration, and validation for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// Mode selects the unit of reporting: individual threads or whole processes
// (thread groups). Every snapshot is built in exactly one mode.
type Mode int

const (
	ModeThreads Mode = iota
	ModeProcesses
)

func (m Mode) String() string {
	if m == ModeProcesses {
		return "processes"
	}
	return "threads"
}

// IDName is the header of the entity id column.
func (m Mode) IDName() string {
	if m == ModeProcesses {
		return "PID"
	}
	return "TID"
}

func (m Mode) Toggle() Mode {
	if m == ModeProcesses {
		return ModeThreads
	}
	return ModeProcesses
}
