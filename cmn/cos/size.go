// Package cos provides common low-level types and utilities for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"math"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
	PiB = 1024 * TiB
)

var sizeUnits = [...]string{"B", "K", "M", "G", "T", "P"}

// ToSizeIEC formats bytes with a single-letter binary suffix: "512 B", "1.50 K", "12.3 M".
// Values below 10 (in the selected unit) keep two decimals, larger ones keep one.
func ToSizeIEC(b float64) string {
	var (
		size = math.Abs(b)
		i    int
	)
	for size >= 1024 && i < len(sizeUnits)-1 {
		size /= 1024
		i++
	}
	if b < 0 {
		size = -size
	}
	switch {
	case i == 0:
		return fmt.Sprintf("%.0f %s", size, sizeUnits[i])
	case math.Abs(size) >= 10:
		return fmt.Sprintf("%.1f %s", size, sizeUnits[i])
	default:
		return fmt.Sprintf("%.2f %s", size, sizeUnits[i])
	}
}

// ToSizeKiB formats bytes in fixed kilobytes: "1.50 K".
func ToSizeKiB(b float64) string { return fmt.Sprintf("%.2f K", b/KiB) }

// SubU64 returns a - b, or 0 when the subtraction would underflow.
func SubU64(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
