// Package cos provides common low-level types and utilities for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"bufio"
	"os"
	"strings"
)

// ReadOneLine returns the first line of the file, with surrounding whitespace trimmed.
func ReadOneLine(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", scanner.Err()
}
