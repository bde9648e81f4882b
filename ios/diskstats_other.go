//go:build !linux && !darwin

// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios

import "errors"

func NewDiskSampler(_, _ string) (DiskSampler, error) {
	return nil, errors.New("block device statistics not supported on this platform")
}
