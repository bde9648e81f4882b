// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/NVIDIA/iotop/cmn/cos"
)

// DelayAcctEnabled reads the delay accounting sysctl (Linux 5.14+).
// `known` is false when the sysctl does not exist or cannot be read.
func DelayAcctEnabled(root string) (enabled, known bool) {
	line, err := cos.ReadOneLine(filepath.Join(root, "sys", "kernel", "task_delayacct"))
	if err != nil {
		return false, false
	}
	return line != "" && line != "0", true
}

// CheckRequirements verifies that the kernel maintains per-task I/O accounting.
func CheckRequirements(root string) error {
	if _, err := os.Stat(filepath.Join(root, "self", "io")); err != nil {
		return fmt.Errorf("per-task I/O accounting is not available (CONFIG_TASK_IO_ACCOUNTING): %w", err)
	}
	return nil
}
