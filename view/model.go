// Package view orders, filters, and formats the rows of an immutable snapshot
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package view

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/ios"

	mapset "github.com/deckarep/golang-set"
)

type (
	Metric int
	Units  int

	// State is the presentation state: everything needed to turn a snapshot into rows.
	State struct {
		Pids       []int    // allow-list: tgid or tid
		UIDs       []uint32 // allow-list: owner uid
		Sort       Column
		Mode       cmn.Mode
		Metric     Metric
		Units      Units
		Ascending  bool
		OnlyActive bool
	}

	// Predicate: additional row filter; nil passes everything
	Predicate func(rec *ios.Record) bool

	Row struct {
		Cells  [numColumns]string
		Record ios.Record
		Active bool // did some I/O, per the metric
	}

	Model struct {
		snap   *ios.Snapshot
		filter Predicate
		pids   mapset.Set
		uids   mapset.Set
		st     State
		mu     sync.RWMutex
	}
)

const (
	MetricBandwidth Metric = iota
	MetricAccumulated
)

const (
	UnitsHuman Units = iota
	UnitsKilobytes
)

func (m Metric) String() string {
	if m == MetricAccumulated {
		return "accumulated"
	}
	return "bandwidth"
}

func (m Metric) Toggle() Metric {
	if m == MetricAccumulated {
		return MetricBandwidth
	}
	return MetricAccumulated
}

// DefaultState: descending by IO, thread mode, bandwidth
func DefaultState() State { return State{Sort: ColIO} }

// StateFromConfig translates the startup view config; uids are resolved by the caller.
func StateFromConfig(conf *cmn.ViewConf, uids []uint32) (State, error) {
	st := DefaultState()
	if conf.Sort != "" {
		col, err := ParseColumn(conf.Sort)
		if err != nil {
			return st, cmn.NewErrConfig("view.sort", "%v", err)
		}
		st.Sort = col
	}
	st.Ascending = conf.Ascending
	st.OnlyActive = conf.OnlyActive
	st.Pids = conf.Pids
	st.UIDs = uids
	if conf.Processes {
		st.Mode = cmn.ModeProcesses
	}
	if conf.Accumulated {
		st.Metric = MetricAccumulated
	}
	if conf.Kilobytes {
		st.Units = UnitsKilobytes
	}
	return st, nil
}

func New(st State) *Model {
	m := &Model{}
	m.setState(st)
	return m
}

func (m *Model) setState(st State) {
	m.st = st
	m.pids, m.uids = nil, nil
	if len(st.Pids) > 0 {
		m.pids = mapset.NewThreadUnsafeSet()
		for _, pid := range st.Pids {
			m.pids.Add(pid)
		}
	}
	if len(st.UIDs) > 0 {
		m.uids = mapset.NewThreadUnsafeSet()
		for _, uid := range st.UIDs {
			m.uids.Add(uid)
		}
	}
}

func (m *Model) State() State {
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	return st
}

func (m *Model) SetSnapshot(snap *ios.Snapshot) {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

func (m *Model) Snapshot() *ios.Snapshot {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()
	return snap
}

func (m *Model) SetSort(col Column, ascending bool) {
	m.mu.Lock()
	m.st.Sort, m.st.Ascending = col, ascending
	m.mu.Unlock()
}

func (m *Model) ReverseSort() {
	m.mu.Lock()
	m.st.Ascending = !m.st.Ascending
	m.mu.Unlock()
}

func (m *Model) SetFilter(p Predicate) {
	m.mu.Lock()
	m.filter = p
	m.mu.Unlock()
}

func (m *Model) SetMetric(metric Metric) {
	m.mu.Lock()
	m.st.Metric = metric
	m.mu.Unlock()
}

func (m *Model) SetOnlyActive(only bool) {
	m.mu.Lock()
	m.st.OnlyActive = only
	m.mu.Unlock()
}

// SetMode changes the presentation mode; the engine must be told separately.
func (m *Model) SetMode(mode cmn.Mode) {
	m.mu.Lock()
	m.st.Mode = mode
	m.mu.Unlock()
}

func (m *Model) NextColumn() { m.stepColumn(1) }
func (m *Model) PrevColumn() { m.stepColumn(-1) }

// FirstColumn and LastColumn select the first and last available sort column.
func (m *Model) FirstColumn() { m.edgeColumn(false) }
func (m *Model) LastColumn() { m.edgeColumn(true) }

func (m *Model) edgeColumn(last bool) {
	m.mu.Lock()
	if avail := available(m.columns()); len(avail) > 0 {
		m.st.Sort = avail[0]
		if last {
			m.st.Sort = avail[len(avail)-1]
		}
	}
	m.mu.Unlock()
}

func (m *Model) stepColumn(dir int) {
	m.mu.Lock()
	m.st.Sort = step(m.st.Sort, m.columns(), dir)
	m.mu.Unlock()
}

// Columns returns column metadata for the current snapshot.
func (m *Model) Columns() []ColumnInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.columns()
}

func (m *Model) columns() []ColumnInfo {
	var (
		mode      = m.st.Mode
		delayAcct = true
	)
	if m.snap != nil {
		mode, delayAcct = m.snap.Mode(), m.snap.DelayAcct()
	}
	cols := make([]ColumnInfo, numColumns)
	for c := range numColumns {
		cols[c] = info(c, mode, delayAcct)
	}
	return cols
}

// SortColumn is the column rows are actually ordered by: delay columns fall back
// to DISK READ when the kernel does not collect delay accounting.
func (m *Model) SortColumn() Column {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortColumn()
}

func (m *Model) sortColumn() Column {
	if m.st.Sort.delay() && m.snap != nil && !m.snap.DelayAcct() {
		return ColRead
	}
	return m.st.Sort
}

// RenderRows filters and orders the current snapshot. Ties are broken by ascending id
// in both directions; "no data" sorts below any value.
func (m *Model) RenderRows() []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil
	}
	var (
		snap        = m.snap
		accumulated = m.st.Metric == MetricAccumulated
		rows        = make([]Row, 0, snap.Len())
	)
	snap.Range(func(rec ios.Record) bool {
		if !m.allowed(&rec) {
			return true
		}
		active := rec.Active(accumulated)
		if m.st.OnlyActive && !active {
			return true
		}
		rows = append(rows, Row{Record: rec, Active: active})
		return true
	})

	col, asc := m.sortColumn(), m.st.Ascending
	slices.SortStableFunc(rows, func(a, b Row) int {
		c := m.compare(&a.Record, &b.Record, col)
		if !asc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})

	f := formatter{counters: snap.Counters(), delayAcct: snap.DelayAcct(), metric: m.st.Metric, units: m.st.Units}
	for i := range rows {
		f.cells(&rows[i])
	}
	return rows
}

func (m *Model) allowed(rec *ios.Record) bool {
	if m.pids != nil && !m.pids.Contains(rec.ID) && !m.pids.Contains(rec.TGID) {
		return false
	}
	if m.uids != nil && !m.uids.Contains(rec.Meta.UID) {
		return false
	}
	return m.filter == nil || m.filter(rec)
}

func (m *Model) compare(a, b *ios.Record, col Column) int {
	switch col {
	case ColID:
		return cmp.Compare(a.ID, b.ID)
	case ColPrio:
		return strings.Compare(a.Meta.Prio, b.Meta.Prio)
	case ColUser:
		return strings.Compare(a.Meta.User, b.Meta.User)
	case ColCommand:
		return strings.Compare(command(a), command(b))
	}
	va, vb := m.value(a, col), m.value(b, col)
	switch {
	case !va.Valid && !vb.Valid:
		return 0
	case !va.Valid:
		return -1
	case !vb.Valid:
		return 1
	}
	return cmp.Compare(va.Value, vb.Value)
}

// value of a numeric column per the metric
func (m *Model) value(rec *ios.Record, col Column) ios.Rate {
	if !rec.Avail {
		return ios.Rate{}
	}
	accumulated := m.st.Metric == MetricAccumulated
	switch col {
	case ColRead:
		if accumulated {
			return ios.Rate{Value: float64(rec.Raw.Read), Valid: true}
		}
		return rec.Rates.Read
	case ColWrite:
		if accumulated {
			return ios.Rate{Value: float64(rec.Raw.WriteNet()), Valid: true}
		}
		return rec.Rates.WriteNet()
	case ColSwapin:
		return rec.Rates.Swapin
	case ColIO:
		return rec.Rates.Blkio
	}
	return ios.Rate{}
}
