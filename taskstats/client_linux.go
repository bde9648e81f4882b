// Package taskstats is a client of the kernel's generic-netlink TASKSTATS family:
// per-task delay accounting and storage I/O counters
/*
 * Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
 */
package taskstats

import (
	"context"
	"sync"
	ratomic "sync/atomic"
	"syscall"
	"time"

	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/cmn/debug"
	"github.com/NVIDIA/iotop/cmn/nlog"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

type (
	// channel is the request/reply transport; implemented by nlSocket
	// and, in tests, by a fake kernel
	channel interface {
		Send(req *nl.NetlinkRequest) error
		Receive() ([]syscall.NetlinkMessage, error)
		Close() error
	}

	// Client owns one generic-netlink socket for its lifetime. Fetch may be called
	// concurrently: replies are demultiplexed by sequence number by a single reader.
	Client struct {
		ch      channel
		sem     *semaphore.Weighted
		pending map[uint32]chan syscall.NetlinkMessage
		dead    chan struct{} // closed upon channel failure or Close
		fatal   error
		wg      sync.WaitGroup
		timeout time.Duration
		strays  ratomic.Int64
		mu      sync.Mutex
		family  uint16
		closing ratomic.Bool
	}

	nlSocket struct {
		s *nl.NetlinkSocket
	}
)

// interface guard
var _ channel = (*nlSocket)(nil)

// Open creates the socket, starts the reader, and resolves the TASKSTATS family.
// All errors returned by Open match ErrUnsupported.
func Open(opts Opts) (*Client, error) {
	s, err := nl.Subscribe(unix.NETLINK_GENERIC)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupported, "generic netlink socket: %v", err)
	}
	c := newClient(&nlSocket{s: s}, opts)
	if err := c.resolveFamily(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func newClient(ch channel, opts Opts) *Client {
	opts.init()
	c := &Client{
		ch:      ch,
		sem:     semaphore.NewWeighted(int64(opts.MaxInflight)),
		pending: make(map[uint32]chan syscall.NetlinkMessage, opts.MaxInflight),
		dead:    make(chan struct{}),
		timeout: opts.Timeout,
	}
	c.wg.Add(1)
	go c.receive()
	return c
}

// Family returns the resolved family id (constant for the lifetime of the client).
func (c *Client) Family() uint16 { return c.family }

// Strays returns the number of replies that arrived after their request had expired.
func (c *Client) Strays() int64 { return c.strays.Load() }

func (c *Client) resolveFamily() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	m, err := c.exchange(ctx, newFamilyRequest())
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return err
		}
		return errors.Wrapf(ErrUnsupported, "resolve %q: %v", unix.TASKSTATS_GENL_NAME, err)
	}
	family, err := parseFamily(&m)
	if err != nil {
		return err
	}
	c.family = family
	nlog.Infof("taskstats: family %q => %d", unix.TASKSTATS_GENL_NAME, family)
	return nil
}

// Fetch returns the cumulative counters of the given thread.
// A task that no longer exists yields cos.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, tid int) (*Stats, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	m, err := c.exchange(ctx, newStatsRequest(c.family, tid))
	if err != nil {
		return nil, errors.WithMessagef(err, "tid %d", tid)
	}
	return parseStats(&m, tid)
}

func (c *Client) exchange(ctx context.Context, req *nl.NetlinkRequest) (syscall.NetlinkMessage, error) {
	var (
		seq   = req.Seq
		reply = make(chan syscall.NetlinkMessage, 1)
	)
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return syscall.NetlinkMessage{}, err
	}
	c.pending[seq] = reply
	c.mu.Unlock()

	if err := c.ch.Send(req); err != nil {
		c.forget(seq)
		if cerr := c.fatalErr(); cerr != nil {
			return syscall.NetlinkMessage{}, cerr
		}
		if cos.IsErrnoOneOf(err, unix.ENOBUFS, unix.EAGAIN) {
			return syscall.NetlinkMessage{}, errors.Wrapf(ErrTimeout, "send: %v", err)
		}
		return syscall.NetlinkMessage{}, c.fail(errors.Wrapf(ErrChannel, "send: %v", err))
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case m := <-reply:
		return m, nil
	case <-timer.C:
		c.forget(seq)
		return syscall.NetlinkMessage{}, errors.Wrapf(ErrTimeout, "no reply in %v", c.timeout)
	case <-ctx.Done():
		c.forget(seq)
		return syscall.NetlinkMessage{}, ctx.Err()
	case <-c.dead:
		return syscall.NetlinkMessage{}, c.fatalErr()
	}
}

func (c *Client) forget(seq uint32) {
	c.mu.Lock()
	c.take(seq)
	c.mu.Unlock()
}

// take removes and returns the waiter for seq; caller holds c.mu
func (c *Client) take(seq uint32) (chan syscall.NetlinkMessage, bool) {
	debug.AssertMutexLocked(&c.mu)
	reply, ok := c.pending[seq]
	delete(c.pending, seq)
	return reply, ok
}

// receive is the only reader of the socket
func (c *Client) receive() {
	defer c.wg.Done()
	for {
		msgs, err := c.ch.Receive()
		if err != nil {
			if c.closing.Load() {
				return
			}
			if errors.Is(err, unix.ENOBUFS) {
				// receive queue overflow: the lost replies time out
				nlog.Warningln("taskstats: receive buffer overrun")
				continue
			}
			if cos.IsErrnoOneOf(err, unix.EINTR, unix.EAGAIN) {
				continue
			}
			c.fail(errors.Wrapf(ErrChannel, "receive: %v", err))
			return
		}
		for i := range msgs {
			c.dispatch(msgs[i])
		}
	}
}

func (c *Client) dispatch(m syscall.NetlinkMessage) {
	c.mu.Lock()
	reply, ok := c.take(m.Header.Seq)
	c.mu.Unlock()
	if !ok {
		c.strays.Add(1)
		nlog.Debugf("taskstats: dropping stray reply seq=%d type=%d", m.Header.Seq, m.Header.Type)
		return
	}
	reply <- m // cap 1, sole writer
}

// fail records the first fatal error and wakes up all waiters
func (c *Client) fail(err error) error {
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
		close(c.dead)
		if !c.closing.Load() {
			nlog.Errorln(err)
		}
	}
	err = c.fatal
	c.mu.Unlock()
	return err
}

func (c *Client) fatalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

func (c *Client) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	c.fail(errors.Wrap(ErrChannel, "closed"))
	err := c.ch.Close()
	c.wg.Wait()
	return err
}

//
// nlSocket
//

func (s *nlSocket) Send(req *nl.NetlinkRequest) error { return s.s.Send(req) }

func (s *nlSocket) Receive() ([]syscall.NetlinkMessage, error) {
	msgs, from, err := s.s.Receive()
	if err != nil {
		return nil, err
	}
	if from.Pid != 0 {
		return nil, nil // not from the kernel
	}
	return msgs, nil
}

func (s *nlSocket) Close() error {
	s.s.Close()
	return nil
}
