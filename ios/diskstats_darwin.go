// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios

import (
	"github.com/lufia/iostat"
)

type driveDisks struct{}

// interface guard
var _ DiskSampler = driveDisks{}

func NewDiskSampler(_, _ string) (DiskSampler, error) { return driveDisks{}, nil }

func (driveDisks) Sample() (map[string]DiskCounters, error) {
	driveStats, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, err
	}
	out := make(map[string]DiskCounters, len(driveStats))
	for _, driveStat := range driveStats {
		out[driveStat.Name] = DiskCounters{
			ReadBytes:  uint64(max(driveStat.BytesRead, 0)),
			WriteBytes: uint64(max(driveStat.BytesWritten, 0)),
		}
	}
	return out, nil
}
