// Package taskstats is a client of the kernel's generic-netlink TASKSTATS family:
// per-task delay accounting and storage I/O counters
/*
 * Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
 */
package taskstats

import (
	"errors"
	"time"
)

const (
	DfltMaxInflight = 64
	DfltTimeout     = time.Second
)

type (
	// Stats: cumulative counters of a single task (thread) since its start
	Stats struct {
		Comm                string // ac_comm (truncated by the kernel to 15 chars)
		Version             uint16
		PID                 uint32
		PPID                uint32
		UID                 uint32
		ReadBytes           uint64 // storage reads
		WriteBytes          uint64 // storage writes, including those later cancelled
		CancelledWriteBytes uint64 // e.g. truncated dirty pages
		CPUDelay            uint64 // ns spent waiting for a CPU
		BlkioDelay          uint64 // ns spent waiting for synchronous block I/O
		SwapinDelay         uint64 // ns spent waiting for swap-in
	}
	Opts struct {
		Timeout     time.Duration // per-fetch reply timeout; 0: DfltTimeout
		MaxInflight int           // bound on concurrently outstanding requests; 0: DfltMaxInflight
	}
)

var (
	// ErrUnsupported: the family cannot be resolved or used (kernel config, missing privileges)
	ErrUnsupported = errors.New("taskstats: not supported")
	// ErrProtocol: malformed, short, or unexpected reply
	ErrProtocol = errors.New("taskstats: protocol error")
	// ErrTimeout: no reply within the fetch timeout
	ErrTimeout = errors.New("taskstats: timeout")
	// ErrChannel: the socket is broken; every pending and future fetch fails
	ErrChannel = errors.New("taskstats: channel failure")
)

// IsTransient returns true for errors that affect a single fetch of a single tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrTimeout)
}

func (o *Opts) init() {
	if o.Timeout <= 0 {
		o.Timeout = DfltTimeout
	}
	if o.MaxInflight <= 0 {
		o.MaxInflight = DfltMaxInflight
	}
}
