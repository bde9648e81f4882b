// Package cos provides common low-level types and utilities for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}
