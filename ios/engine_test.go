// Package ios builds per-tick snapshots of per-task disk I/O: it reconciles the
// procfs inventory with taskstats counters and derives bandwidth across ticks.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package ios_test

import (
	"context"
	"fmt"
	ratomic "sync/atomic"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/stats"
	"github.com/NVIDIA/iotop/sys"
	"github.com/NVIDIA/iotop/taskstats"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine", func() {
	var (
		inv     *fakeInv
		tsc     *fakeTsc
		disks   *fakeDisks
		clock   *fakeClock
		tracker *stats.Tracker
		engine  *ios.Engine
		ctx     context.Context
	)

	newEngine := func(mode cmn.Mode, fetcher ios.Fetcher, opts ...ios.Option) *ios.Engine {
		opts = append([]ios.Option{
			ios.WithMode(mode),
			ios.WithClock(clock.nanotime),
			ios.WithTracker(tracker),
			ios.WithDisks(disks),
			ios.WithMaxInflight(4),
		}, opts...)
		return ios.NewEngine(inv, fetcher, opts...)
	}

	tick := func() *ios.Snapshot {
		snap, err := engine.Tick(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap).NotTo(BeNil())
		Expect(engine.Latest()).To(BeIdenticalTo(snap))
		clock.advance(time.Second)
		return snap
	}

	get := func(snap *ios.Snapshot, id int) ios.Record {
		rec, ok := snap.Get(id)
		ExpectWithOffset(1, ok).To(BeTrue(), "id %d", id)
		return rec
	}

	BeforeEach(func() {
		inv, tsc, disks, clock = newFakeInv(), newFakeTsc(), &fakeDisks{}, &fakeClock{}
		clock.advance(time.Hour)
		tracker = stats.NewTracker()
		ctx = context.Background()
	})

	Describe("thread mode", func() {
		BeforeEach(func() {
			inv.add(100, 100, 101)
			inv.add(200)
			tsc.set(100, taskstats.Stats{ReadBytes: 1000, WriteBytes: 4096})
			tsc.set(101, taskstats.Stats{ReadBytes: 10})
			tsc.set(200, taskstats.Stats{})
			engine = newEngine(cmn.ModeThreads, tsc)
		})

		It("has no rates on the first tick", func() {
			Expect(engine.Latest()).To(BeNil())
			snap := tick()
			Expect(snap.Mode()).To(Equal(cmn.ModeThreads))
			Expect(snap.IDs()).To(Equal([]int{100, 101, 200}))
			Expect(snap.Counters()).To(BeTrue())
			Expect(snap.Elapsed()).To(BeZero())

			rec := get(snap, 100)
			Expect(rec.Avail).To(BeTrue())
			Expect(rec.Raw.Read).To(BeEquivalentTo(1000))
			Expect(rec.Rates.Read.Valid).To(BeFalse())
			Expect(rec.Rates.Blkio.Valid).To(BeFalse())
			Expect(rec.TGID).To(Equal(100))
			Expect(rec.Comm).To(Equal("ts-100"))
			Expect(rec.State).To(BeEquivalentTo('S'))
			Expect(snap.Totals().Read.Valid).To(BeFalse())
		})

		It("derives bandwidth against the previous snapshot", func() {
			tick()
			tsc.set(100, taskstats.Stats{ReadBytes: 1500, WriteBytes: 4096})
			snap := tick()

			Expect(snap.Elapsed()).To(Equal(time.Second))
			rec := get(snap, 100)
			Expect(rec.Rates.Read).To(Equal(ios.Rate{Value: 500, Valid: true}))
			Expect(rec.Raw.Read).To(BeEquivalentTo(1500))
			Expect(rec.Rates.Write).To(Equal(ios.Rate{Value: 0, Valid: true}))
			Expect(rec.Active(false)).To(BeTrue())
			idle, busy := get(snap, 200), get(snap, 101)
			Expect(idle.Active(false)).To(BeFalse())
			Expect(idle.Active(true)).To(BeFalse())
			Expect(busy.Active(true)).To(BeTrue())
			Expect(snap.Totals().Read).To(Equal(ios.Rate{Value: 500, Valid: true}))
		})

		It("keeps accumulated counters monotonic across ticks", func() {
			var last uint64
			for i := range 5 {
				tsc.set(100, taskstats.Stats{ReadBytes: uint64(1000 * (i + 1))})
				rec := get(tick(), 100)
				Expect(rec.Raw.Read).To(BeNumerically(">=", last))
				last = rec.Raw.Read
			}
			Expect(last).To(BeEquivalentTo(5000))
		})

		It("reports no data for a decreasing counter", func() {
			tick()
			tsc.set(100, taskstats.Stats{ReadBytes: 900, WriteBytes: 8192})
			rec := get(tick(), 100)
			Expect(rec.Rates.Read.Valid).To(BeFalse())
			Expect(rec.Rates.Write).To(Equal(ios.Rate{Value: 4096, Valid: true}))
		})

		It("nets cancelled writes out of write bandwidth", func() {
			tick()
			tsc.set(100, taskstats.Stats{ReadBytes: 1000, WriteBytes: 4096 + 2048, CancelledWriteBytes: 4096})
			rec := get(tick(), 100)
			Expect(rec.Rates.WriteNet()).To(Equal(ios.Rate{Value: 0, Valid: true}))
			Expect(rec.Raw.WriteNet()).To(BeEquivalentTo(2048))
		})

		It("drops exited entities and treats new ones as first sightings", func() {
			tick()
			inv.remove(200)
			inv.add(300)
			tsc.set(300, taskstats.Stats{ReadBytes: 100})
			snap := tick()
			_, ok := snap.Get(200)
			Expect(ok).To(BeFalse())
			Expect(get(snap, 300).Rates.Read.Valid).To(BeFalse())

			tsc.set(300, taskstats.Stats{ReadBytes: 300})
			Expect(get(tick(), 300).Rates.Read).To(Equal(ios.Rate{Value: 200, Valid: true}))
		})

		It("treats a recycled id as new", func() {
			tick()
			inv.start[200] = 42
			Expect(get(tick(), 200).Rates.Read.Valid).To(BeFalse())
		})

		It("drops vanished and failing tasks without aborting the tick", func() {
			tsc.fail(101, cos.NewErrNotFound("task", 101))
			tsc.fail(200, fmt.Errorf("%w: timed out", taskstats.ErrTimeout))
			inv.metaErr[100] = fmt.Errorf("%w: permission denied", sys.ErrInventoryRead)
			snap := tick()
			Expect(snap.Len()).To(BeZero())

			counters := tracker.Counters()
			Expect(counters["iotop_errors_total.notfound"]).To(BeEquivalentTo(1))
			Expect(counters["iotop_errors_total.timeout"]).To(BeEquivalentTo(1))
			Expect(counters["iotop_errors_total.inventory"]).To(BeEquivalentTo(1))
			Expect(counters["iotop_ticks_total"]).To(BeEquivalentTo(1))
		})

		It("records scheduling delays as a percentage of elapsed time", func() {
			tick()
			tsc.set(200, taskstats.Stats{BlkioDelay: uint64(250 * time.Millisecond), SwapinDelay: uint64(100 * time.Millisecond)})
			rec := get(tick(), 200)
			Expect(rec.Rates.Blkio.Value).To(BeNumerically("~", 25, 1e-9))
			Expect(rec.Rates.Swapin.Value).To(BeNumerically("~", 10, 1e-9))
		})
	})

	Describe("process mode", func() {
		BeforeEach(func() {
			inv.add(100, 100, 101, 102)
			tsc.set(100, taskstats.Stats{Comm: "leader", ReadBytes: 1000, BlkioDelay: 0})
			tsc.set(101, taskstats.Stats{Comm: "worker", ReadBytes: 2000})
			tsc.set(102, taskstats.Stats{Comm: "worker", ReadBytes: 3000})
			engine = newEngine(cmn.ModeProcesses, tsc)
		})

		It("folds threads into their process", func() {
			snap := tick()
			Expect(snap.IDs()).To(Equal([]int{100}))
			rec := get(snap, 100)
			Expect(rec.Raw.Read).To(BeEquivalentTo(6000))
			Expect(rec.Threads).To(Equal(3))
			Expect(rec.Comm).To(Equal("leader"))
			Expect(rec.Meta.Comm).To(Equal("meta-100"))

			tsc.set(101, taskstats.Stats{ReadBytes: 2600})
			tsc.set(102, taskstats.Stats{ReadBytes: 3300})
			rec = get(tick(), 100)
			Expect(rec.Raw.Read).To(BeEquivalentTo(6900))
			Expect(rec.Rates.Read).To(Equal(ios.Rate{Value: 900, Valid: true}))
		})

		It("divides delay percentages by the number of threads", func() {
			tick()
			for _, tid := range []int{100, 101, 102} {
				tsc.set(tid, taskstats.Stats{BlkioDelay: uint64(500 * time.Millisecond), ReadBytes: 4000})
			}
			rec := get(tick(), 100)
			Expect(rec.Rates.Blkio.Value).To(BeNumerically("~", 50, 1e-9))
		})

		It("falls back to the lowest surviving thread when the leader is gone", func() {
			inv.metaErr[100] = cos.NewErrNotFound("task", 100)
			tsc.fail(100, cos.NewErrNotFound("task", 100))
			rec := get(tick(), 100)
			Expect(rec.Threads).To(Equal(2))
			Expect(rec.Comm).To(Equal("worker"))
			Expect(rec.Meta.Comm).To(Equal("meta-101"))
			Expect(rec.Raw.Read).To(BeEquivalentTo(5000))
		})

		It("drops a process whose threads have all exited", func() {
			for _, tid := range []int{100, 101, 102} {
				tsc.fail(tid, cos.NewErrNotFound("task", tid))
			}
			Expect(tick().Len()).To(BeZero())
		})

		It("never mixes modes", func() {
			tick()
			engine.SetMode(cmn.ModeThreads)
			snap := tick()
			Expect(snap.Mode()).To(Equal(cmn.ModeThreads))
			Expect(snap.IDs()).To(Equal([]int{100, 101, 102}))
			Expect(get(snap, 101).Rates.Read.Valid).To(BeFalse())

			engine.SetMode(cmn.ModeProcesses)
			snap = tick()
			Expect(get(snap, 100).Rates.Read.Valid).To(BeFalse())
			Expect(get(tick(), 100).Rates.Read.Valid).To(BeTrue())
		})
	})

	Describe("degraded and failing runs", func() {
		BeforeEach(func() {
			inv.add(100)
			tsc.set(100, taskstats.Stats{ReadBytes: 1})
		})

		It("runs without the protocol", func() {
			engine = newEngine(cmn.ModeThreads, nil)
			snap := tick()
			Expect(snap.Counters()).To(BeFalse())
			rec := get(snap, 100)
			Expect(rec.Avail).To(BeFalse())
			Expect(rec.Meta.Command).To(Equal("cmd-100"))
			Expect(rec.Active(false)).To(BeFalse())
		})

		It("treats a typed nil client as no protocol", func() {
			var client *taskstats.Client
			engine = newEngine(cmn.ModeThreads, client)
			Expect(tick().Counters()).To(BeFalse())
		})

		It("exports stray replies of the fetcher", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			tsc.strays.Store(3)
			tick()
			Expect(tracker.Counters()["iotop_stray_replies_total"]).To(BeEquivalentTo(3))
		})

		It("disables the protocol on a permission error", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			tsc.fail(100, fmt.Errorf("%w: operation not permitted", taskstats.ErrUnsupported))
			tick()
			calls := tsc.calls.Load()
			snap := tick()
			Expect(snap.Counters()).To(BeFalse())
			Expect(snap.Len()).To(Equal(1))
			Expect(tsc.calls.Load()).To(Equal(calls))
		})

		It("keeps metadata rows on the tick that hits a permission error", func() {
			inv.add(200)
			tsc.set(200, taskstats.Stats{ReadBytes: 2})
			engine = newEngine(cmn.ModeThreads, tsc)
			denied := fmt.Errorf("%w: operation not permitted", taskstats.ErrUnsupported)
			tsc.fail(100, denied)
			tsc.fail(200, denied)

			snap := tick()
			Expect(snap.Counters()).To(BeFalse())
			Expect(snap.Len()).To(Equal(2))
			for _, id := range snap.IDs() {
				rec := get(snap, id)
				Expect(rec.Avail).To(BeFalse())
				Expect(rec.Threads).To(Equal(1))
				Expect(rec.Meta.Command).To(Equal(fmt.Sprintf("cmd-%d", id)))
			}
			Expect(tracker.Counters()["iotop_errors_total.unsupported"]).To(BeNumerically(">=", 1))
			Expect(tick().Len()).To(Equal(2))
		})

		It("hides counters fetched before a permission error in the same tick", func() {
			inv.add(200)
			tsc.set(200, taskstats.Stats{ReadBytes: 2})
			engine = newEngine(cmn.ModeThreads, tsc, ios.WithMaxInflight(1))
			tsc.fail(200, fmt.Errorf("%w: operation not permitted", taskstats.ErrUnsupported))

			snap := tick()
			Expect(snap.Counters()).To(BeFalse())
			rec := get(snap, 100)
			Expect(rec.Avail).To(BeFalse())
			Expect(rec.Raw.Read).To(BeZero())
		})

		It("aborts on a broken channel and keeps the last snapshot", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			last := tick()
			tsc.fail(100, fmt.Errorf("%w: socket closed", taskstats.ErrChannel))
			snap, err := engine.Tick(ctx)
			Expect(snap).To(BeNil())
			Expect(ios.IsFatal(err)).To(BeTrue())
			Expect(engine.Latest()).To(BeIdenticalTo(last))
		})

		It("publishes nothing when cancelled", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			last := tick()
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			snap, err := engine.Tick(cctx)
			Expect(snap).To(BeNil())
			Expect(err).To(MatchError(context.Canceled))
			Expect(engine.Latest()).To(BeIdenticalTo(last))
			Expect(tracker.Counters()["iotop_ticks_cancelled_total"]).To(BeEquivalentTo(1))
		})

		It("fails the tick when enumeration fails", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			inv.enumErr = sys.ErrInventoryRead
			_, err := engine.Tick(ctx)
			Expect(err).To(MatchError(sys.ErrInventoryRead))
			Expect(ios.IsFatal(err)).To(BeFalse())
			Expect(engine.Latest()).To(BeNil())
		})
	})

	Describe("system totals", func() {
		BeforeEach(func() {
			inv.add(100)
			inv.add(200)
			tsc.set(100, taskstats.Stats{ReadBytes: 1000, WriteBytes: 1000})
			tsc.set(200, taskstats.Stats{ReadBytes: 1000, WriteBytes: 1000})
			disks.set("sda", 0, 0)
			disks.set("nvme0n1", 0, 0)
			engine = newEngine(cmn.ModeProcesses, tsc)
		})

		It("sums entity bandwidth and samples whole disks", func() {
			first := tick()
			Expect(first.Totals().ActualRead.Valid).To(BeFalse())

			tsc.set(100, taskstats.Stats{ReadBytes: 2000, WriteBytes: 1500})
			tsc.set(200, taskstats.Stats{ReadBytes: 1500, WriteBytes: 1000})
			disks.set("sda", 4096, 8192)
			disks.set("nvme0n1", 4096, 0)
			totals := tick().Totals()
			Expect(totals.Read).To(Equal(ios.Rate{Value: 1500, Valid: true}))
			Expect(totals.Write).To(Equal(ios.Rate{Value: 500, Valid: true}))
			Expect(totals.ActualRead).To(Equal(ios.Rate{Value: 8192, Valid: true}))
			Expect(totals.ActualWrite).To(Equal(ios.Rate{Value: 8192, Valid: true}))
		})

		It("keeps disk totals across a mode change", func() {
			tick()
			engine.SetMode(cmn.ModeThreads)
			disks.set("sda", 1024, 0)
			totals := tick().Totals()
			Expect(totals.Read.Valid).To(BeFalse())
			Expect(totals.ActualRead).To(Equal(ios.Rate{Value: 1024, Valid: true}))
		})
	})

	Describe("delay accounting", func() {
		BeforeEach(func() {
			inv.add(100)
			tsc.set(100, taskstats.Stats{})
		})

		It("follows the sysctl when known", func() {
			engine = newEngine(cmn.ModeThreads, tsc, ios.WithDelayAcct(func() (bool, bool) { return true, true }))
			Expect(tick().DelayAcct()).To(BeTrue())
		})

		It("is enabled once a nonzero delay was observed", func() {
			engine = newEngine(cmn.ModeThreads, tsc)
			Expect(tick().DelayAcct()).To(BeFalse())
			tsc.set(100, taskstats.Stats{BlkioDelay: 1})
			Expect(tick().DelayAcct()).To(BeTrue())
			tsc.set(100, taskstats.Stats{})
			Expect(tick().DelayAcct()).To(BeTrue())
		})
	})

	Describe("Run", func() {
		BeforeEach(func() {
			inv.add(100)
			tsc.set(100, taskstats.Stats{ReadBytes: 1})
			engine = ios.NewEngine(inv, tsc, ios.WithTracker(tracker))
		})

		It("stops after the requested number of iterations", func() {
			var n ratomic.Int32
			err := engine.Run(ctx, time.Millisecond, 3, func(snap *ios.Snapshot) {
				Expect(snap.Seq()).To(BeEquivalentTo(n.Add(1)))
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n.Load()).To(BeEquivalentTo(3))
		})

		It("stops on cancellation with the last snapshot intact", func() {
			cctx, cancel := context.WithCancel(ctx)
			err := engine.Run(cctx, time.Millisecond, 0, func(snap *ios.Snapshot) {
				if snap.Seq() == 2 {
					cancel()
				}
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Latest().Seq()).To(BeEquivalentTo(2))
		})

		It("returns a fatal error", func() {
			tsc.fail(100, taskstats.ErrChannel)
			err := engine.Run(ctx, time.Millisecond, 0, nil)
			Expect(ios.IsFatal(err)).To(BeTrue())
		})
	})
})
