//go:build !linux

// Package taskstats is a client of the kernel's generic-netlink TASKSTATS family:
// per-task delay accounting and storage I/O counters
/*
 * Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
 */
package taskstats

import "context"

type Client struct{}

func Open(Opts) (*Client, error) { return nil, ErrUnsupported }

func (*Client) Family() uint16 { return 0 }

func (*Client) Fetch(context.Context, int) (*Stats, error) { return nil, ErrUnsupported }

func (*Client) Close() error { return nil }
