// Package sys enumerates live processes and threads and reads their metadata from procfs
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os/user"
	"strconv"

	gocache "github.com/patrickmn/go-cache"
)

// LookupUser resolves a user name, or a numeric uid, to uid.
func LookupUser(name string) (uint32, error) {
	if uid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(uid), nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(uid), nil
}

// Username returns the login name of uid, or the uid itself when it has none.
func (inv *Inventory) Username(uid uint32) string {
	key := strconv.FormatUint(uint64(uid), 10)
	if v, ok := inv.users.Get(key); ok {
		return v.(string)
	}
	name := key
	if u, err := user.LookupId(key); err == nil && u.Username != "" {
		name = u.Username
	}
	inv.users.Set(key, name, gocache.NoExpiration)
	return name
}
