//go:build !linux

// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import "errors"

func IOPrioGet(int) (int, error) { return 0, errors.ErrUnsupported }
