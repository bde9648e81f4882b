// Package view orders, filters, and formats the rows of an immutable snapshot
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package view_test

import (
	"strings"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/taskstats"
	"github.com/NVIDIA/iotop/view"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ids(rows []view.Row) []int {
	out := make([]int, len(rows))
	for i := range rows {
		out[i] = rows[i].Record.ID
	}
	return out
}

func ms(n int) uint64 { return uint64(time.Duration(n) * time.Millisecond) }

var _ = Describe("Model", func() {
	var (
		ts     *tasks
		engine *ios.Engine
		model  *view.Model
	)

	// second tick: 10 and 20 read 1000 B/s, 40 reads 5000 B/s, 30 is idle
	load := func(withCounters, delayAcct bool) *ios.Snapshot {
		ts = newTasks()
		ts.add(10, "root", "Zed", taskstats.Stats{})
		ts.add(20, "alice", "alpha", taskstats.Stats{})
		ts.add(30, "bob", "beta", taskstats.Stats{})
		ts.add(40, "root", "gamma", taskstats.Stats{})
		ts.m[20].meta.UID = 1000
		engine = ts.engine(withCounters, delayAcct)
		ts.tick(engine)

		ts.m[10].stats = taskstats.Stats{ReadBytes: 1000, BlkioDelay: ms(100)}
		ts.m[20].stats = taskstats.Stats{ReadBytes: 1000, BlkioDelay: ms(300)}
		ts.m[40].stats = taskstats.Stats{ReadBytes: 5000, WriteBytes: 2048, BlkioDelay: ms(200)}
		return ts.tick(engine)
	}

	BeforeEach(func() {
		model = view.New(view.DefaultState())
		model.SetSnapshot(load(true, true))
	})

	Describe("sorting", func() {
		It("defaults to IO descending", func() {
			Expect(model.State().Sort).To(Equal(view.ColIO))
			Expect(ids(model.RenderRows())).To(Equal([]int{20, 40, 10, 30}))
			model.ReverseSort()
			Expect(ids(model.RenderRows())).To(Equal([]int{30, 10, 40, 20}))
		})

		It("breaks ties by ascending id in both directions", func() {
			model.SetSort(view.ColRead, true)
			Expect(ids(model.RenderRows())).To(Equal([]int{30, 10, 20, 40}))
			model.SetSort(view.ColRead, false)
			Expect(ids(model.RenderRows())).To(Equal([]int{40, 10, 20, 30}))
		})

		It("compares strings case-sensitively", func() {
			model.SetSort(view.ColCommand, true)
			Expect(ids(model.RenderRows())).To(Equal([]int{10, 20, 30, 40}))
			model.SetSort(view.ColUser, true)
			Expect(ids(model.RenderRows())).To(Equal([]int{20, 30, 10, 40}))
		})

		It("sorts entities without data below all values", func() {
			ts.add(5, "root", "new", taskstats.Stats{ReadBytes: 1 << 20})
			model.SetSnapshot(ts.tick(engine))
			model.SetSort(view.ColRead, false)
			rows := model.RenderRows()
			Expect(rows[len(rows)-1].Record.ID).To(Equal(5))
			Expect(rows[len(rows)-1].Cells[view.ColRead]).To(Equal(view.NoData))
			model.ReverseSort()
			Expect(model.RenderRows()[0].Record.ID).To(Equal(5))
		})

		It("orders by id on the first tick", func() {
			ts = newTasks()
			for _, pid := range []int{3, 1, 2} {
				ts.add(pid, "root", "x", taskstats.Stats{ReadBytes: uint64(pid)})
			}
			model.SetSnapshot(ts.tick(ts.engine(true, true)))
			Expect(ids(model.RenderRows())).To(Equal([]int{1, 2, 3}))
		})

		It("falls back to DISK READ without delay accounting", func() {
			model.SetSnapshot(load(true, false))
			Expect(model.SortColumn()).To(Equal(view.ColRead))
			Expect(ids(model.RenderRows())).To(Equal([]int{40, 10, 20, 30}))
			Expect(model.State().Sort).To(Equal(view.ColIO))
		})

		It("steps through available columns", func() {
			model.SetSort(view.ColWrite, false)
			model.NextColumn()
			Expect(model.State().Sort).To(Equal(view.ColSwapin))

			model.SetSnapshot(load(true, false))
			model.SetSort(view.ColWrite, false)
			model.NextColumn()
			Expect(model.State().Sort).To(Equal(view.ColCommand))
			model.NextColumn()
			Expect(model.State().Sort).To(Equal(view.ColID))
			model.PrevColumn()
			Expect(model.State().Sort).To(Equal(view.ColCommand))
		})

		It("jumps to the first and last column", func() {
			model.LastColumn()
			Expect(model.State().Sort).To(Equal(view.ColCommand))
			model.FirstColumn()
			Expect(model.State().Sort).To(Equal(view.ColID))
		})
	})

	Describe("filtering", func() {
		It("hides idle entities and shows them again once active", func() {
			model.SetOnlyActive(true)
			rows := model.RenderRows()
			Expect(ids(rows)).NotTo(ContainElement(30))
			for _, row := range rows {
				Expect(row.Active).To(BeTrue())
			}

			ts.m[30].stats = taskstats.Stats{WriteBytes: 4096}
			model.SetSnapshot(ts.tick(engine))
			Expect(ids(model.RenderRows())).To(ContainElement(30))

			// idle again: no bandwidth, but still some accumulated I/O
			model.SetSnapshot(ts.tick(engine))
			Expect(ids(model.RenderRows())).NotTo(ContainElement(30))
			model.SetMetric(view.MetricAccumulated)
			Expect(ids(model.RenderRows())).To(ContainElement(30))
		})

		It("applies allow-lists and custom predicates", func() {
			model = view.New(view.State{Sort: view.ColID, Ascending: true, Pids: []int{20, 40}})
			model.SetSnapshot(engine.Latest())
			Expect(ids(model.RenderRows())).To(Equal([]int{20, 40}))

			model = view.New(view.State{Sort: view.ColID, Ascending: true, UIDs: []uint32{1000}})
			model.SetSnapshot(engine.Latest())
			Expect(ids(model.RenderRows())).To(Equal([]int{20}))

			model = view.New(view.State{Sort: view.ColID, Ascending: true})
			model.SetSnapshot(engine.Latest())
			model.SetFilter(func(rec *ios.Record) bool { return strings.HasPrefix(rec.Meta.Command, "g") })
			Expect(ids(model.RenderRows())).To(Equal([]int{40}))
		})
	})

	Describe("formatting", func() {
		cells := func(id int) [8]string {
			for _, row := range model.RenderRows() {
				if row.Record.ID == id {
					return row.Cells
				}
			}
			Fail("row not found")
			return [8]string{}
		}

		It("formats bandwidth and delays", func() {
			c := cells(40)
			Expect(c[view.ColID]).To(Equal("40"))
			Expect(c[view.ColPrio]).To(Equal("be/4"))
			Expect(c[view.ColUser]).To(Equal("root"))
			Expect(c[view.ColRead]).To(Equal("4.88 K/s"))
			Expect(c[view.ColWrite]).To(Equal("2.00 K/s"))
			Expect(c[view.ColIO]).To(Equal("20.00 %"))
			Expect(c[view.ColSwapin]).To(Equal("0.00 %"))
			Expect(c[view.ColCommand]).To(Equal("gamma"))
			Expect(cells(10)[view.ColRead]).To(Equal("1000 B/s"))
		})

		It("formats accumulated values and kilobytes", func() {
			model.SetMetric(view.MetricAccumulated)
			Expect(cells(40)[view.ColRead]).To(Equal("4.88 K"))

			st := model.State()
			st.Units = view.UnitsKilobytes
			model = view.New(st)
			model.SetSnapshot(engine.Latest())
			Expect(cells(10)[view.ColRead]).To(Equal("0.98 K"))
			model.SetMetric(view.MetricBandwidth)
			Expect(cells(10)[view.ColRead]).To(Equal("0.98 K/s"))
		})

		It("marks counters as not available without taskstats", func() {
			model.SetSnapshot(load(false, true))
			c := cells(10)
			Expect(c[view.ColRead]).To(Equal(view.NotAvailable))
			Expect(c[view.ColIO]).To(Equal(view.NotAvailable))
			Expect(c[view.ColCommand]).To(Equal("Zed"))
		})

		It("renders header and lines", func() {
			header := model.Header()
			Expect(header).To(HavePrefix("    TID  PRIO  USER    "))
			Expect(header).To(ContainSubstring("IO>"))
			Expect(header).To(HaveSuffix("COMMAND"))

			model.SetSnapshot(load(true, false))
			Expect(model.Header()).To(ContainSubstring(view.Unavailable))
			Expect(model.Header()).To(ContainSubstring("DISK READ>"))
			cols := model.Columns()
			Expect(cols[view.ColIO].Available).To(BeFalse())
			Expect(cols[view.ColRead].Available).To(BeTrue())

			rows := model.RenderRows()
			line := model.Line(&rows[0])
			Expect(line).To(HavePrefix("     40  be/4  root    "))
			Expect(line).To(ContainSubstring("4.88 K/s"))
			Expect(line).To(HaveSuffix(view.Unavailable + "  gamma"))
		})

		It("keeps titles aligned with cells when marking the sort column", func() {
			model.SetSnapshot(load(true, true))
			rows := model.RenderRows()
			line := model.Line(&rows[0])
			for _, col := range []view.Column{view.ColID, view.ColUser, view.ColRead} {
				model.SetSort(col, col == view.ColID)
				header := model.Header()
				Expect(strings.Index(header, "PRIO")).To(Equal(9))
				Expect(strings.Index(header, "COMMAND")).To(Equal(len(line) - len(rows[0].Cells[view.ColCommand])))
			}
			model.SetSort(view.ColID, true)
			Expect(model.Header()).To(HavePrefix("    TID< PRIO  USER    "))
		})

		It("summarizes totals", func() {
			lines := view.Summary(engine.Latest(), view.UnitsHuman)
			Expect(lines[0]).To(ContainSubstring("6.84 K/s"))
			Expect(lines[0]).To(ContainSubstring("2.00 K/s"))
			Expect(lines[1]).To(HavePrefix("Actual DISK READ:"))
			Expect(lines[1]).To(ContainSubstring(view.NoData))
		})
	})

	Describe("state", func() {
		It("parses sort columns", func() {
			for _, name := range cmn.SortColumns {
				col, err := view.ParseColumn(name)
				Expect(err).NotTo(HaveOccurred())
				Expect(col.String()).To(Equal(name))
			}
			_, err := view.ParseColumn("cpu")
			Expect(err).To(HaveOccurred())
		})

		It("is built from the view config", func() {
			conf := cmn.ViewConf{Sort: "read", Ascending: true, Processes: true, Accumulated: true, OnlyActive: true, Kilobytes: true, Pids: []int{1}}
			st, err := view.StateFromConfig(&conf, []uint32{0})
			Expect(err).NotTo(HaveOccurred())
			Expect(st).To(Equal(view.State{
				Pids: []int{1}, UIDs: []uint32{0}, Sort: view.ColRead, Mode: cmn.ModeProcesses,
				Metric: view.MetricAccumulated, Units: view.UnitsKilobytes, Ascending: true, OnlyActive: true,
			}))

			_, err = view.StateFromConfig(&cmn.ViewConf{Sort: "bogus"}, nil)
			Expect(cmn.IsErrConfig(err)).To(BeTrue())
		})

		It("reports the snapshot mode in the id column", func() {
			engine.SetMode(cmn.ModeProcesses)
			model.SetSnapshot(ts.tick(engine))
			Expect(model.Columns()[view.ColID].Title).To(Equal("PID"))
		})
	})
})
