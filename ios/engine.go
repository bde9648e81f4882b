// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios

import (
	"context"
	"errors"
	"fmt"
	"slices"
	ratomic "sync/atomic"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/cmn/debug"
	"github.com/NVIDIA/iotop/cmn/mono"
	"github.com/NVIDIA/iotop/cmn/nlog"
	"github.com/NVIDIA/iotop/stats"
	"github.com/NVIDIA/iotop/sys"
	"github.com/NVIDIA/iotop/taskstats"

	"golang.org/x/sync/errgroup"
)

const DfltMaxInflight = 64

// ErrBusy: a tick is already in progress
var ErrBusy = errors.New("tick in progress")

type (
	Inventory interface {
		Enumerate(mode cmn.Mode, f *sys.Filter) ([]sys.Entity, error)
		ReadMeta(tgid, tid int) (*sys.Meta, error)
	}
	Fetcher interface {
		Fetch(ctx context.Context, tid int) (*taskstats.Stats, error)
	}
	DiskSampler interface {
		Sample() (map[string]DiskCounters, error)
	}

	// DiskCounters: cumulative whole-disk bytes
	DiskCounters struct {
		ReadBytes  uint64
		WriteBytes uint64
	}

	Engine struct {
		inv       Inventory
		tsc       Fetcher
		disks     DiskSampler
		filter    *sys.Filter
		tracker   *stats.Tracker
		nanotime  func() int64
		delayAcct func() (enabled, known bool)
		cur       ratomic.Pointer[Snapshot]
		seq       int64
		inflight  int
		mode      ratomic.Int32
		busy      ratomic.Bool
		noTsc     ratomic.Bool // disabled at runtime (permission)
		delaySeen bool         // sticky; used when the sysctl is unreadable
	}
	Option func(*Engine)
)

// interface guards
var (
	_ Inventory = (*sys.Inventory)(nil)
	_ Fetcher   = (*taskstats.Client)(nil)
)

func WithFilter(f *sys.Filter) Option { return func(e *Engine) { e.filter = f } }
func WithDisks(d DiskSampler) Option { return func(e *Engine) { e.disks = d } }
func WithTracker(t *stats.Tracker) Option { return func(e *Engine) { e.tracker = t } }
func WithMode(mode cmn.Mode) Option { return func(e *Engine) { e.mode.Store(int32(mode)) } }
func WithClock(nanotime func() int64) Option  { return func(e *Engine) { e.nanotime = nanotime } }
func WithMaxInflight(n int) Option { return func(e *Engine) { e.inflight = n } }
func WithDelayAcct(f func() (bool, bool)) Option { return func(e *Engine) { e.delayAcct = f } }

// NewEngine: tsc == nil when the taskstats protocol is unavailable;
// the engine then reports metadata only.
func NewEngine(inv Inventory, tsc Fetcher, opts ...Option) *Engine {
	e := &Engine{inv: inv, tsc: tsc, nanotime: mono.NanoTime, inflight: DfltMaxInflight}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = stats.NewTracker()
	}
	if e.delayAcct == nil {
		e.delayAcct = func() (bool, bool) { return false, false }
	}
	if e.inflight <= 0 {
		e.inflight = DfltMaxInflight
	}
	// interface holding a typed nil
	if c, ok := tsc.(*taskstats.Client); ok && c == nil {
		e.tsc = nil
	}
	if s, ok := e.tsc.(interface{ Strays() int64 }); ok {
		e.tracker.TrackStrays(s.Strays)
	}
	return e
}

// IsFatal: the run cannot continue (the protocol channel is gone).
func IsFatal(err error) bool { return errors.Is(err, taskstats.ErrChannel) }

// Latest returns the last published snapshot, or nil before the first tick.
func (e *Engine) Latest() *Snapshot { return e.cur.Load() }

func (e *Engine) Mode() cmn.Mode { return cmn.Mode(e.mode.Load()) }

// SetMode takes effect with the next tick.
func (e *Engine) SetMode(mode cmn.Mode) { e.mode.Store(int32(mode)) }

func (e *Engine) Tracker() *stats.Tracker { return e.tracker }

func (e *Engine) fetcher() Fetcher {
	if e.tsc == nil || e.noTsc.Load() {
		return nil
	}
	return e.tsc
}

// Run ticks every interval (first tick immediate) and calls fn with each published snapshot.
// Returns nil when ctx is done or after `iterations` snapshots (iterations > 0);
// returns the error when it is fatal.
func (e *Engine) Run(ctx context.Context, interval time.Duration, iterations int, fn func(*Snapshot)) error {
	debug.Assert(interval > 0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for n := 0; ; {
		snap, err := e.Tick(ctx)
		switch {
		case err == nil:
			n++
			if fn != nil {
				fn(snap)
			}
			if iterations > 0 && n >= iterations {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		case IsFatal(err):
			return err
		default:
			nlog.Errorln(err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick builds and publishes one snapshot. On error nothing is published
// and the previous snapshot remains current.
func (e *Engine) Tick(ctx context.Context) (*Snapshot, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	var (
		started = mono.NanoTime()
		mode    = e.Mode()
		last    = e.cur.Load()
		tsc     = e.fetcher()
	)
	entities, err := e.inv.Enumerate(mode, e.filter)
	if err != nil {
		e.tracker.IncCancelled()
		return nil, fmt.Errorf("enumerate %ss: %w", mode, err)
	}

	var (
		records = make([]*Record, len(entities))
		errs    = cos.NewErrs()
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.inflight)
	for i := range entities {
		g.Go(func() error {
			rec, err := e.collect(gctx, &entities[i], mode, tsc)
			if err == nil {
				records[i] = rec
				return nil
			}
			return e.classify(gctx, err, &errs)
		})
	}
	if err := g.Wait(); err != nil {
		e.tracker.IncCancelled()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		e.tracker.IncCancelled()
		return nil, err
	}

	// a permission error during this tick leaves metadata-only records
	snap := e.build(records, mode, tsc != nil && !e.noTsc.Load(), last)
	e.cur.Store(snap)
	e.tracker.ObserveTick(mono.Since(started), snap.Len())

	if cnt, err := errs.JoinErr(); cnt > 0 {
		nlog.Warningf("tick %d: dropped %d %s%s: %v", snap.seq, cnt, mode, cos.Plural(cnt), err)
	}
	return snap, nil
}

// collect reads metadata and fetches the counters of all threads of the entity;
// in process mode, vanished threads are skipped and the rest are summed.
func (e *Engine) collect(ctx context.Context, ent *sys.Entity, mode cmn.Mode, tsc Fetcher) (*Record, error) {
	meta, rid, err := e.meta(ent, mode)
	if err != nil {
		return nil, err
	}
	rec := &Record{ID: ent.ID, TGID: ent.TGID, Meta: *meta, State: meta.State, Comm: meta.Comm}
	if tsc == nil {
		rec.Threads = len(ent.Threads)
		return rec, nil
	}
	var commID int
	for _, tid := range ent.Threads {
		st, err := tsc.Fetch(ctx, tid)
		if err != nil {
			switch {
			case mode == cmn.ModeProcesses && cos.IsErrNotFound(err):
				continue
			case errors.Is(err, taskstats.ErrUnsupported):
				e.disableTsc(err)
				rec.Raw, rec.Threads = Counters{}, len(ent.Threads)
				return rec, nil
			}
			return nil, err
		}
		rec.Raw.add(st)
		rec.Threads++
		switch {
		case tid == rid:
			rec.Comm, commID = st.Comm, tid
		case commID == 0:
			rec.Comm, commID = st.Comm, tid
		}
	}
	if rec.Threads == 0 {
		return nil, cos.NewErrNotFound(mode.String(), ent.ID)
	}
	rec.Avail = true
	return rec, nil
}

// meta of the representative thread: the leader, else the lowest surviving tid
func (e *Engine) meta(ent *sys.Entity, mode cmn.Mode) (meta *sys.Meta, tid int, err error) {
	if mode == cmn.ModeThreads {
		meta, err = e.inv.ReadMeta(ent.TGID, ent.ID)
		return meta, ent.ID, err
	}
	candidates := make([]int, 0, len(ent.Threads)+1)
	candidates = append(candidates, ent.TGID)
	for _, tid := range ent.Threads {
		if tid != ent.TGID {
			candidates = append(candidates, tid)
		}
	}
	for _, tid = range candidates {
		meta, err = e.inv.ReadMeta(ent.TGID, tid)
		if err == nil || !cos.IsErrNotFound(err) {
			return meta, tid, err
		}
	}
	return nil, 0, err
}

// disableTsc turns the counter columns off for the rest of the run
func (e *Engine) disableTsc(err error) {
	e.tracker.IncErr(stats.ErrUnsupported)
	if e.noTsc.CompareAndSwap(false, true) {
		nlog.Errorln("disabling taskstats for the rest of the run:", err)
	}
}

// classify counts and records a per-entity error; returns non-nil only when the tick must abort
func (e *Engine) classify(ctx context.Context, err error, errs *cos.Errs) error {
	switch {
	case IsFatal(err):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case cos.IsErrNotFound(err):
		e.tracker.IncErr(stats.ErrNotFound)
	case errors.Is(err, taskstats.ErrUnsupported):
		e.disableTsc(err)
	case errors.Is(err, taskstats.ErrTimeout):
		e.tracker.IncErr(stats.ErrTimeout)
		errs.Add(err)
	case errors.Is(err, sys.ErrInventoryRead):
		e.tracker.IncErr(stats.ErrInventory)
		errs.Add(err)
	default:
		e.tracker.IncErr(stats.ErrProtocol)
		errs.Add(err)
	}
	return nil
}

//////////////
// snapshot //
//////////////

func (e *Engine) build(records []*Record, mode cmn.Mode, counters bool, last *Snapshot) *Snapshot {
	e.seq++
	snap := &Snapshot{
		time:     time.Now(),
		nanotime: e.nanotime(),
		records:  make(map[int]*Record, len(records)),
		ids:      make([]int, 0, len(records)),
		seq:      e.seq,
		mode:     mode,
		counters: counters,
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if !counters && rec.Avail {
			rec.Raw, rec.Avail = Counters{}, false
		}
		debug.Assertf(snap.records[rec.ID] == nil, "duplicate id %d", rec.ID)
		snap.records[rec.ID] = rec
		snap.ids = append(snap.ids, rec.ID)
	}
	slices.Sort(snap.ids)

	if last != nil {
		snap.elapsed = time.Duration(snap.nanotime - last.nanotime)
	}
	// never mix modes
	prev := last
	if prev != nil && (prev.mode != mode || snap.elapsed <= 0) {
		prev = nil
	}
	e.rates(snap, prev)
	e.actual(snap, last)
	snap.delayAcct = e.delayAccounting(snap)
	return snap
}

func (*Engine) rates(snap, prev *Snapshot) {
	var (
		secs       = snap.elapsed.Seconds()
		read, wrt  float64
		haveTotals = prev != nil && snap.counters
	)
	for _, id := range snap.ids {
		rec := snap.records[id]
		if !rec.Avail || prev == nil {
			continue
		}
		p, ok := prev.records[id]
		if !ok || !p.Avail || p.Meta.StartTime != rec.Meta.StartTime {
			continue // new (or recycled) id
		}
		var (
			cur, was = &rec.Raw, &p.Raw
			r        = &rec.Rates
			threads  = max(rec.Threads, 1)
		)
		r.Read = bandwidth(cur.Read, was.Read, secs)
		r.Write = bandwidth(cur.Write, was.Write, secs)
		r.Cancelled = bandwidth(cur.Cancelled, was.Cancelled, secs)
		r.Swapin = percent(cur.Swapin, was.Swapin, snap.elapsed, threads)
		r.Blkio = percent(cur.Blkio, was.Blkio, snap.elapsed, threads)
		r.CPU = percent(cur.CPU, was.CPU, snap.elapsed, threads)

		if r.Read.Valid {
			read += r.Read.Value
		}
		if w := r.WriteNet(); w.Valid {
			wrt += w.Value
		}
	}
	if haveTotals {
		snap.totals.Read = Rate{Value: read, Valid: true}
		snap.totals.Write = Rate{Value: wrt, Valid: true}
	}
}

// whole-disk totals do not depend on the mode
func (e *Engine) actual(snap, last *Snapshot) {
	if e.disks == nil {
		return
	}
	disks, err := e.disks.Sample()
	if err != nil {
		nlog.Warningln("failed to sample block devices:", err)
		return
	}
	snap.disks = disks
	if last == nil || last.disks == nil || snap.elapsed <= 0 {
		return
	}
	var (
		secs     = snap.elapsed.Seconds()
		rd, wr   float64
		rok, wok = true, true
	)
	for name, cur := range disks {
		was, ok := last.disks[name]
		if !ok {
			continue // hot-plugged
		}
		r, w := bandwidth(cur.ReadBytes, was.ReadBytes, secs), bandwidth(cur.WriteBytes, was.WriteBytes, secs)
		rd, rok = rd+r.Value, rok && r.Valid
		wr, wok = wr+w.Value, wok && w.Valid
	}
	snap.totals.ActualRead = Rate{Value: rd, Valid: rok}
	snap.totals.ActualWrite = Rate{Value: wr, Valid: wok}
}

func (e *Engine) delayAccounting(snap *Snapshot) bool {
	if enabled, known := e.delayAcct(); known {
		return enabled
	}
	if !e.delaySeen {
		for _, rec := range snap.records {
			if rec.Raw.Blkio != 0 {
				e.delaySeen = true
				break
			}
		}
	}
	return e.delaySeen
}

func bandwidth(cur, prev uint64, secs float64) Rate {
	if cur < prev || secs <= 0 {
		return Rate{}
	}
	return Rate{Value: float64(cur-prev) / secs, Valid: true}
}

func percent(cur, prev uint64, elapsed time.Duration, threads int) Rate {
	if cur < prev || elapsed <= 0 {
		return Rate{}
	}
	return Rate{Value: float64(cur-prev) * 100 / float64(elapsed) / float64(threads), Valid: true}
}
