// Package taskstats is a client of the kernel's generic-netlink TASKSTATS family:
// per-task delay accounting and storage I/O counters
/*
 * Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
 */
package taskstats

import (
	"bytes"
	"syscall"

	"github.com/NVIDIA/iotop/cmn/cos"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// byte offsets within struct taskstats (include/uapi/linux/taskstats.h)
const (
	offVersion       = 0
	offCPUDelay      = 24
	offBlkioDelay    = 40
	offSwapinDelay   = 56
	offComm          = 80
	lenComm          = 32
	offUID           = 120
	offPID           = 128
	offPPID          = 132
	offReadBytes     = 248
	offWriteBytes    = 256
	offCancelledWB   = 264
	minTaskstatsSize = offCancelledWB + 8
)

const nlaTypeMask = ^uint16(unix.NLA_F_NESTED | unix.NLA_F_NET_BYTEORDER)

//
// requests
//

func newFamilyRequest() *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(nl.GENL_ID_CTRL, 0)
	req.AddData(&nl.Genlmsg{Command: nl.GENL_CTRL_CMD_GETFAMILY, Version: nl.GENL_CTRL_VERSION})
	req.AddData(nl.NewRtAttr(nl.GENL_CTRL_ATTR_FAMILY_NAME, nl.ZeroTerminated(unix.TASKSTATS_GENL_NAME)))
	return req
}

func newStatsRequest(family uint16, tid int) *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(int(family), 0)
	req.AddData(&nl.Genlmsg{Command: unix.TASKSTATS_CMD_GET, Version: unix.TASKSTATS_GENL_VERSION})
	req.AddData(nl.NewRtAttr(unix.TASKSTATS_CMD_ATTR_PID, nl.Uint32Attr(uint32(tid))))
	return req
}

//
// replies
//

// replyErrno returns the (positive) errno carried by an NLMSG_ERROR reply;
// zero for acks and for all other message types.
func replyErrno(m *syscall.NetlinkMessage) (syscall.Errno, error) {
	if m.Header.Type != unix.NLMSG_ERROR {
		return 0, nil
	}
	if len(m.Data) < 4 {
		return 0, errors.Wrapf(ErrProtocol, "short error reply (%d bytes)", len(m.Data))
	}
	code := int32(nl.NativeEndian().Uint32(m.Data[0:4]))
	return syscall.Errno(-code), nil
}

func genlAttrs(m *syscall.NetlinkMessage) ([]syscall.NetlinkRouteAttr, error) {
	if len(m.Data) < nl.SizeofGenlmsg {
		return nil, errors.Wrapf(ErrProtocol, "short generic netlink reply (%d bytes)", len(m.Data))
	}
	attrs, err := nl.ParseRouteAttr(m.Data[nl.SizeofGenlmsg:])
	if err != nil {
		return nil, errors.Wrapf(ErrProtocol, "failed to parse attributes: %v", err)
	}
	return attrs, nil
}

func parseFamily(m *syscall.NetlinkMessage) (uint16, error) {
	errno, err := replyErrno(m)
	if err != nil {
		return 0, err
	}
	if errno != 0 {
		return 0, errors.Wrapf(ErrUnsupported, "resolve %q: %v", unix.TASKSTATS_GENL_NAME, errno)
	}
	attrs, err := genlAttrs(m)
	if err != nil {
		return 0, err
	}
	for _, a := range attrs {
		if a.Attr.Type&nlaTypeMask == nl.GENL_CTRL_ATTR_FAMILY_ID && len(a.Value) >= 2 {
			return nl.NativeEndian().Uint16(a.Value), nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupported, "resolve %q: no family id in reply", unix.TASKSTATS_GENL_NAME)
}

func parseStats(m *syscall.NetlinkMessage, tid int) (*Stats, error) {
	errno, err := replyErrno(m)
	if err != nil {
		return nil, err
	}
	switch errno {
	case 0:
	case unix.ESRCH:
		return nil, cos.NewErrNotFound("task", tid)
	case unix.EPERM, unix.EACCES:
		return nil, errors.Wrapf(ErrUnsupported, "tid %d: %v", tid, errno)
	default:
		return nil, errors.Wrapf(ErrProtocol, "tid %d: %v", tid, errno)
	}

	attrs, err := genlAttrs(m)
	if err != nil {
		return nil, errors.WithMessagef(err, "tid %d", tid)
	}
	for _, a := range attrs {
		switch a.Attr.Type & nlaTypeMask {
		case unix.TASKSTATS_TYPE_AGGR_PID, unix.TASKSTATS_TYPE_AGGR_TGID:
			return parseAggr(a.Value, tid)
		case unix.TASKSTATS_TYPE_NULL:
		}
	}
	return nil, errors.Wrapf(ErrProtocol, "tid %d: no aggregate attribute in reply", tid)
}

func parseAggr(b []byte, tid int) (*Stats, error) {
	nested, err := nl.ParseRouteAttr(b)
	if err != nil {
		return nil, errors.Wrapf(ErrProtocol, "tid %d: failed to parse nested attributes: %v", tid, err)
	}
	var (
		stats *Stats
		pid   = -1
	)
	for _, a := range nested {
		switch a.Attr.Type & nlaTypeMask {
		case unix.TASKSTATS_TYPE_PID, unix.TASKSTATS_TYPE_TGID:
			if len(a.Value) < 4 {
				return nil, errors.Wrapf(ErrProtocol, "tid %d: short pid attribute", tid)
			}
			pid = int(nl.NativeEndian().Uint32(a.Value))
		case unix.TASKSTATS_TYPE_STATS:
			if stats, err = decodeStats(a.Value); err != nil {
				return nil, errors.WithMessagef(err, "tid %d", tid)
			}
		}
	}
	if stats == nil {
		return nil, errors.Wrapf(ErrProtocol, "tid %d: no stats in reply", tid)
	}
	if pid != tid {
		return nil, errors.Wrapf(ErrProtocol, "tid %d: reply for %d", tid, pid)
	}
	return stats, nil
}

func decodeStats(b []byte) (*Stats, error) {
	if len(b) < minTaskstatsSize {
		return nil, errors.Wrapf(ErrProtocol, "short taskstats payload (%d < %d bytes)", len(b), minTaskstatsSize)
	}
	var (
		ne   = nl.NativeEndian()
		comm = b[offComm : offComm+lenComm]
	)
	if i := bytes.IndexByte(comm, 0); i >= 0 {
		comm = comm[:i]
	}
	return &Stats{
		Version:             ne.Uint16(b[offVersion:]),
		Comm:                string(comm),
		UID:                 ne.Uint32(b[offUID:]),
		PID:                 ne.Uint32(b[offPID:]),
		PPID:                ne.Uint32(b[offPPID:]),
		CPUDelay:            ne.Uint64(b[offCPUDelay:]),
		BlkioDelay:          ne.Uint64(b[offBlkioDelay:]),
		SwapinDelay:         ne.Uint64(b[offSwapinDelay:]),
		ReadBytes:           ne.Uint64(b[offReadBytes:]),
		WriteBytes:          ne.Uint64(b[offWriteBytes:]),
		CancelledWriteBytes: ne.Uint64(b[offCancelledWB:]),
	}, nil
}
