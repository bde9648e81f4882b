// Package view orders, filters, and formats the rows of an immutable snapshot
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package view

import (
	"fmt"
	"slices"
	"strings"

	"github.com/NVIDIA/iotop/cmn"
)

type (
	Column int
	Align  int

	// ColumnInfo describes a column as rendered for the current snapshot.
	ColumnInfo struct {
		Name      string // as in cmn.SortColumns
		Title     string
		Width     int
		Align     Align
		Column    Column
		Numeric   bool // sorted by magnitude; otherwise lexicographically
		Available bool // false: delay columns without kernel delay accounting
	}
)

const (
	ColID Column = iota
	ColPrio
	ColUser
	ColRead
	ColWrite
	ColSwapin
	ColIO
	ColCommand

	numColumns
)

const (
	AlignRight Align = iota
	AlignLeft
)

var columns = [numColumns]ColumnInfo{
	ColID:      {Name: cmn.ColID, Title: "TID", Width: 7, Numeric: true},
	ColPrio:    {Name: cmn.ColPrio, Title: "PRIO", Width: 4},
	ColUser:    {Name: cmn.ColUser, Title: "USER", Width: 8, Align: AlignLeft},
	ColRead:    {Name: cmn.ColRead, Title: "DISK READ", Width: 11, Numeric: true},
	ColWrite:   {Name: cmn.ColWrite, Title: "DISK WRITE", Width: 11, Numeric: true},
	ColSwapin:  {Name: cmn.ColSwapin, Title: "SWAPIN", Width: 8, Numeric: true},
	ColIO:      {Name: cmn.ColIO, Title: "IO", Width: 8, Numeric: true},
	ColCommand: {Name: cmn.ColCommand, Title: "COMMAND", Align: AlignLeft},
}

func init() {
	for i := range columns {
		columns[i].Column = Column(i)
	}
}

func ParseColumn(name string) (Column, error) {
	for i := range columns {
		if strings.EqualFold(columns[i].Name, name) {
			return Column(i), nil
		}
	}
	return 0, fmt.Errorf("invalid sort column %q (expecting one of: %s)", name, strings.Join(cmn.SortColumns, ", "))
}

func (c Column) String() string {
	if c < 0 || c >= numColumns {
		return fmt.Sprintf("column(%d)", int(c))
	}
	return columns[c].Name
}

func (c Column) delay() bool { return c == ColSwapin || c == ColIO }

// info for a given mode and delay-accounting status
func info(c Column, mode cmn.Mode, delayAcct bool) ColumnInfo {
	ci := columns[c]
	ci.Available = delayAcct || !c.delay()
	if c == ColID {
		ci.Title = mode.IDName()
	}
	return ci
}

// Pad aligns s to the column width; the last (unbounded) column is left as is.
func (ci *ColumnInfo) Pad(s string) string {
	if ci.Width == 0 {
		return s
	}
	if ci.Align == AlignLeft {
		return fmt.Sprintf("%-*s", ci.Width, s)
	}
	return fmt.Sprintf("%*s", ci.Width, s)
}

func available(cols []ColumnInfo) []Column {
	out := make([]Column, 0, len(cols))
	for i := range cols {
		if cols[i].Available {
			out = append(out, cols[i].Column)
		}
	}
	return out
}

// step moves to the next (dir > 0) or previous available column, wrapping around
func step(cur Column, cols []ColumnInfo, dir int) Column {
	avail := available(cols)
	if len(avail) == 0 {
		return cur
	}
	i := slices.Index(avail, cur)
	if i < 0 {
		return avail[0]
	}
	return avail[(i+dir+len(avail))%len(avail)]
}
