// Package view orders, filters, and formats the rows of an immutable snapshot
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NVIDIA/iotop/cmn/cos"
	"github.com/NVIDIA/iotop/ios"
)

// placeholder cells
const (
	NotAvailable = "n/a"           // no taskstats
	NoData       = "-"             // first sighting, counter decrease
	Unavailable  = "?unavailable?" // no delay accounting
)

type formatter struct {
	metric    Metric
	units     Units
	counters  bool
	delayAcct bool
}

func (f *formatter) cells(row *Row) {
	rec := &row.Record
	row.Cells[ColID] = strconv.Itoa(rec.ID)
	row.Cells[ColPrio] = rec.Meta.Prio
	row.Cells[ColUser] = rec.Meta.User
	row.Cells[ColCommand] = command(rec)
	switch {
	case !f.counters || !rec.Avail:
		for _, c := range []Column{ColRead, ColWrite, ColSwapin, ColIO} {
			row.Cells[c] = NotAvailable
		}
		return
	case f.metric == MetricAccumulated:
		row.Cells[ColRead] = FormatSize(rec.Raw.Read, f.units)
		row.Cells[ColWrite] = FormatSize(rec.Raw.WriteNet(), f.units)
	default:
		row.Cells[ColRead] = FormatRate(rec.Rates.Read, f.units)
		row.Cells[ColWrite] = FormatRate(rec.Rates.WriteNet(), f.units)
	}
	if f.delayAcct {
		row.Cells[ColSwapin] = FormatPercent(rec.Rates.Swapin)
		row.Cells[ColIO] = FormatPercent(rec.Rates.Blkio)
	}
}

func command(rec *ios.Record) string {
	if rec.Meta.Command != "" {
		return rec.Meta.Command
	}
	return "[" + rec.Comm + "]"
}

// FormatRate formats bandwidth: "12.3 M/s", or "12595.20 K/s" in fixed kilobytes.
func FormatRate(r ios.Rate, units Units) string {
	if !r.Valid {
		return NoData
	}
	if units == UnitsKilobytes {
		return cos.ToSizeKiB(r.Value) + "/s"
	}
	return cos.ToSizeIEC(r.Value) + "/s"
}

func FormatSize(b uint64, units Units) string {
	if units == UnitsKilobytes {
		return cos.ToSizeKiB(float64(b))
	}
	return cos.ToSizeIEC(float64(b))
}

func FormatPercent(r ios.Rate) string {
	if !r.Valid {
		return NoData
	}
	return fmt.Sprintf("%.2f %%", r.Value)
}

// Summary returns the two header lines: entity totals and whole-disk totals.
func Summary(snap *ios.Snapshot, units Units) [2]string {
	t := snap.Totals()
	return [2]string{
		fmt.Sprintf("Total DISK READ :   %14s | Total DISK WRITE :   %14s", FormatRate(t.Read, units), FormatRate(t.Write, units)),
		fmt.Sprintf("Actual DISK READ:   %14s | Actual DISK WRITE:   %14s", FormatRate(t.ActualRead, units), FormatRate(t.ActualWrite, units)),
	}
}

// Header returns the column titles line. The sort marker follows the padded
// title of the active sort column and takes one space of the next gap, so
// titles stay aligned with Line.
func (m *Model) Header() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		cols   = m.columns()
		sc     = m.sortColumn()
		sb     strings.Builder
		marked bool
	)
	for i := range cols {
		ci := &cols[i]
		m.appendCell(&sb, ci, ci.Title, i, ternary(marked, " ", gap))
		marked = false
		if ci.Column == sc && ci.Available {
			sb.WriteString(ternary(m.st.Ascending, "<", ">"))
			marked = true
		}
	}
	return sb.String()
}

// Line formats a row in column order.
func (m *Model) Line(row *Row) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		cols = m.columns()
		sb   strings.Builder
	)
	for i := range cols {
		ci := &cols[i]
		m.appendCell(&sb, ci, row.Cells[ci.Column], i, gap)
	}
	return sb.String()
}

const gap = "  "

func (*Model) appendCell(sb *strings.Builder, ci *ColumnInfo, s string, i int, sep string) {
	if !ci.Available {
		if ci.Column == ColSwapin { // one marker for both delay columns
			sb.WriteString(sep)
			sb.WriteString(Unavailable)
		}
		return
	}
	if i > 0 {
		sb.WriteString(sep)
	}
	sb.WriteString(ci.Pad(s))
}

func ternary(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
