// Package cos provides common low-level types and utilities for all iotop packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"slices"
	"strconv"
	"sync"
	"syscall"

	"github.com/NVIDIA/iotop/cmn/debug"
)

type (
	// ErrNotFound: a task (thread or process) that is gone or was recycled
	ErrNotFound struct {
		what string
		id   int
	}
	// Errs is a thread-safe, bounded, de-duplicated collection of errors
	Errs struct {
		errs []error
		cnt  int64
		cap  int
		mu   sync.Mutex
	}
)

// ErrNotFound

func NewErrNotFound(what string, id int) *ErrNotFound {
	return &ErrNotFound{what: what, id: id}
}

func (e *ErrNotFound) Error() string {
	return e.what + " " + strconv.Itoa(e.id) + " does not exist"
}

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

//
// gen-purpose not-finding-anything: tasks, procfs entries, ...
//

func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	return IsErrNotFound(err) || errors.Is(err, iofs.ErrNotExist) || errors.Is(err, syscall.ESRCH)
}

// Errs

const defaultMaxErrs = 8

func NewErrs(maxErrs ...int) Errs {
	capacity := defaultMaxErrs
	if len(maxErrs) > 0 && maxErrs[0] > 0 {
		capacity = maxErrs[0]
	}
	return Errs{
		errs: make([]error, 0, capacity),
		cap:  capacity,
	}
}

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	e.cnt++
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < e.cap {
		e.errs = append(e.errs, err)
	}
	e.mu.Unlock()
}

// Cnt returns the total number of added errors, duplicates included.
func (e *Errs) Cnt() int {
	e.mu.Lock()
	cnt := e.cnt
	e.mu.Unlock()
	return int(cnt)
}

func (e *Errs) JoinErr() (cnt int, err error) {
	e.mu.Lock()
	if cnt = int(e.cnt); cnt > 0 {
		err = errors.Join(e.errs...)
	}
	e.mu.Unlock()
	return
}

func (e *Errs) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cnt == 0 {
		return ""
	}
	err := e.errs[0]
	if e.cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, e.cnt-1, Plural(int(e.cnt-1)))
	}
	return err.Error()
}

func (e *Errs) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.errs)
}

//
// IS-syscall helpers
//

func IsErrnoOneOf(err error, errnos ...syscall.Errno) bool {
	for _, errno := range errnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
