// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios

import (
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/sys"
	"github.com/NVIDIA/iotop/taskstats"
)

type (
	// Rate is a derived value: bytes per second, or percentage of elapsed time.
	// !Valid means "no data" (first sighting, counter decrease, no previous snapshot).
	Rate struct {
		Value float64
		Valid bool
	}

	// Counters: cumulative, since task start; for a process, the sum over its current threads
	Counters struct {
		Read      uint64 // bytes
		Write     uint64 // bytes
		Cancelled uint64 // cancelled write bytes
		Swapin    uint64 // ns
		Blkio     uint64 // ns
		CPU       uint64 // ns
	}

	Rates struct {
		Read      Rate // B/s
		Write     Rate // B/s
		Cancelled Rate // B/s
		Swapin    Rate // % of elapsed
		Blkio     Rate // % of elapsed
		CPU       Rate // % of elapsed
	}

	Record struct {
		Comm    string // taskstats ac_comm of the representative thread
		Meta    sys.Meta
		Raw     Counters
		Rates   Rates
		ID      int // tid or tgid, depending on mode
		TGID    int
		Threads int  // number of threads folded into the record
		State   byte // run state, from procfs
		Avail   bool // counters present (taskstats available)
	}

	Totals struct {
		Read        Rate // sum over entities
		Write       Rate // sum over entities, net of cancelled
		ActualRead  Rate // block devices
		ActualWrite Rate // block devices
	}

	// Snapshot is immutable once published. Records are accessed by copy.
	Snapshot struct {
		time      time.Time
		records   map[int]*Record
		disks     map[string]DiskCounters
		ids       []int // ascending
		totals    Totals
		elapsed   time.Duration
		seq       int64
		nanotime  int64 // mono
		mode      cmn.Mode
		delayAcct bool
		counters  bool
	}
)

////////////
// Record //
////////////

func (c *Counters) add(s *taskstats.Stats) {
	c.Read += s.ReadBytes
	c.Write += s.WriteBytes
	c.Cancelled += s.CancelledWriteBytes
	c.Swapin += s.SwapinDelay
	c.Blkio += s.BlkioDelay
	c.CPU += s.CPUDelay
}

func (c *Counters) zero() bool {
	return c.Read == 0 && c.Write == 0 && c.Cancelled == 0 && c.Swapin == 0 && c.Blkio == 0
}

// WriteNet returns written bytes net of cancelled ones.
func (c *Counters) WriteNet() uint64 { return cos.SubU64(c.Write, c.Cancelled) }

// WriteNet returns write bandwidth net of cancelled writes.
func (r *Rates) WriteNet() Rate {
	if !r.Write.Valid || !r.Cancelled.Valid {
		return Rate{}
	}
	return Rate{Value: max(r.Write.Value-r.Cancelled.Value, 0), Valid: true}
}

// Active: any nonzero rate (bandwidth) or any nonzero counter (accumulated).
func (rec *Record) Active(accumulated bool) bool {
	if !rec.Avail {
		return false
	}
	if accumulated {
		return !rec.Raw.zero()
	}
	r := &rec.Rates
	return (r.Read.Valid && r.Read.Value > 0) || (r.Write.Valid && r.Write.Value > 0) || (r.Cancelled.Valid && r.Cancelled.Value > 0) ||
		(r.Swapin.Valid && r.Swapin.Value > 0) || (r.Blkio.Valid && r.Blkio.Value > 0)
}

//////////////
// Snapshot //
//////////////

func (s *Snapshot) Time() time.Time        { return s.time }
func (s *Snapshot) Elapsed() time.Duration { return s.elapsed }
func (s *Snapshot) Seq() int64             { return s.seq }
func (s *Snapshot) Mode() cmn.Mode         { return s.mode }
func (s *Snapshot) Len() int               { return len(s.ids) }
func (s *Snapshot) Totals() Totals         { return s.totals }

// DelayAcct returns true when the kernel collects delay accounting.
func (s *Snapshot) DelayAcct() bool { return s.delayAcct }

// Counters returns false when taskstats is unavailable: records carry metadata only.
func (s *Snapshot) Counters() bool { return s.counters }

func (s *Snapshot) Get(id int) (Record, bool) {
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// IDs returns a copy of the entity ids, ascending.
func (s *Snapshot) IDs() []int { return append([]int(nil), s.ids...) }

// Range calls fn for each record in ascending id order until fn returns false.
func (s *Snapshot) Range(fn func(rec Record) bool) {
	for _, id := range s.ids {
		if !fn(*s.records[id]) {
			return
		}
	}
}
