// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios

import (
	"strings"

	"github.com/prometheus/procfs/blockdevice"
)

const sectorSize = 512

// virtual devices whose I/O is accounted on some other disk
var virtualPrefixes = []string{"loop", "ram", "zram"}

type blockDisks struct {
	fs blockdevice.FS
}

// interface guard
var _ DiskSampler = (*blockDisks)(nil)

// NewDiskSampler samples whole-disk counters from <procRoot>/diskstats, limited to
// physical devices listed under <sysRoot>/block.
func NewDiskSampler(procRoot, sysRoot string) (DiskSampler, error) {
	fs, err := blockdevice.NewFS(procRoot, sysRoot)
	if err != nil {
		return nil, err
	}
	return &blockDisks{fs: fs}, nil
}

func (d *blockDisks) Sample() (map[string]DiskCounters, error) {
	names, err := d.fs.SysBlockDevices()
	if err != nil {
		return nil, err
	}
	whole := make(map[string]struct{}, len(names))
	for _, name := range names {
		if d.physical(name) {
			whole[name] = struct{}{}
		}
	}
	diskstats, err := d.fs.ProcDiskstats()
	if err != nil {
		return nil, err
	}
	out := make(map[string]DiskCounters, len(whole))
	for i := range diskstats {
		ds := &diskstats[i]
		if _, ok := whole[ds.DeviceName]; !ok {
			continue // partition or stacked
		}
		out[ds.DeviceName] = DiskCounters{
			ReadBytes:  ds.ReadSectors * sectorSize,
			WriteBytes: ds.WriteSectors * sectorSize,
		}
	}
	return out, nil
}

// physical: not a loop/ram device and not stacked on top of other devices (dm, md)
func (d *blockDisks) physical(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	under, err := d.fs.SysBlockDeviceUnderlyingDevices(name)
	return err != nil || len(under.DeviceNames) == 0
}
