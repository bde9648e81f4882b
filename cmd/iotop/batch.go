// Package main is iotop: a top-like monitor of per-thread and per-process disk I/O.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"syscall"
	"time"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/view"

	jsoniter "github.com/json-iterator/go"
)

const timeLayout = "15:04:05 "

type (
	printer struct {
		w      *bufio.Writer
		enc    *jsoniter.Encoder
		model  *view.Model
		output cmn.OutputConf
		cancel context.CancelFunc
		err    error
		n      int
	}

	jsonTick struct {
		Time      time.Time  `json:"time"`
		Mode      string     `json:"mode"`
		Totals    jsonTotals `json:"totals"`
		Tasks     []jsonTask `json:"tasks"`
		Seq       int64      `json:"seq"`
		Elapsed   float64    `json:"elapsed_s"`
		DelayAcct bool       `json:"delay_acct"`
		Counters  bool       `json:"counters"`
	}
	jsonTotals struct {
		Read        *float64 `json:"read_bps"`
		Write       *float64 `json:"write_bps"`
		ActualRead  *float64 `json:"actual_read_bps"`
		ActualWrite *float64 `json:"actual_write_bps"`
	}
	jsonTask struct {
		Prio       string   `json:"prio"`
		User       string   `json:"user"`
		State      string   `json:"state"`
		Command    string   `json:"command"`
		ReadBps    *float64 `json:"read_bps"`
		WriteBps   *float64 `json:"write_bps"`
		SwapinPct  *float64 `json:"swapin_pct"`
		IOPct      *float64 `json:"io_pct"`
		ReadBytes  *uint64  `json:"read_bytes"`
		WriteBytes *uint64  `json:"write_bytes"`
		ID         int      `json:"id"`
		TGID       int      `json:"tgid"`
		Threads    int      `json:"threads"`
	}
)

func runBatch(ctx context.Context, engine *ios.Engine, model *view.Model, config *cmn.Config, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := newPrinter(w, model, config.Output, cancel)
	err := engine.Run(ctx, config.Interval(), config.Iterations, p.print)
	if err == nil {
		err = p.err
	}
	return err
}

func newPrinter(w io.Writer, model *view.Model, output cmn.OutputConf, cancel context.CancelFunc) *printer {
	p := &printer{w: bufio.NewWriter(w), model: model, output: output, cancel: cancel}
	if output.JSON {
		p.enc = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(p.w)
	}
	return p
}

func (p *printer) print(snap *ios.Snapshot) {
	if p.err != nil {
		return
	}
	p.model.SetSnapshot(snap)
	rows := p.model.RenderRows()
	if p.output.JSON {
		p.json(snap, rows)
	} else {
		p.text(snap, rows)
	}
	if err := p.w.Flush(); err != nil {
		// reader went away (e.g. `iotop -b | head`): not an error
		if !errors.Is(err, syscall.EPIPE) {
			p.err = err
		}
		p.cancel()
	}
	p.n++
}

func (p *printer) text(snap *ios.Snapshot, rows []view.Row) {
	var ts string
	if p.output.Timestamp {
		ts = snap.Time().Format(timeLayout)
	}
	if !p.output.Quiet {
		for _, line := range view.Summary(snap, p.model.State().Units) {
			p.line(ts, line)
		}
		if p.n == 0 {
			var prefix string
			if p.output.Timestamp {
				prefix = "    TIME "
			}
			p.line(prefix, p.model.Header())
		}
	}
	for i := range rows {
		p.line(ts, p.model.Line(&rows[i]))
	}
}

func (p *printer) line(prefix, s string) {
	p.w.WriteString(prefix)
	p.w.WriteString(s)
	p.w.WriteByte('\n')
}

func (p *printer) json(snap *ios.Snapshot, rows []view.Row) {
	totals := snap.Totals()
	tick := jsonTick{
		Time:      snap.Time(),
		Mode:      snap.Mode().String(),
		Seq:       snap.Seq(),
		Elapsed:   snap.Elapsed().Seconds(),
		DelayAcct: snap.DelayAcct(),
		Counters:  snap.Counters(),
		Totals: jsonTotals{
			Read:        rate(totals.Read),
			Write:       rate(totals.Write),
			ActualRead:  rate(totals.ActualRead),
			ActualWrite: rate(totals.ActualWrite),
		},
		Tasks: make([]jsonTask, 0, len(rows)),
	}
	accumulated := p.model.State().Metric == view.MetricAccumulated
	for i := range rows {
		rec := &rows[i].Record
		task := jsonTask{
			ID:      rec.ID,
			TGID:    rec.TGID,
			Threads: rec.Threads,
			Prio:    rec.Meta.Prio,
			User:    rec.Meta.User,
			Command: rows[i].Cells[view.ColCommand],
		}
		if rec.State != 0 {
			task.State = string(rec.State)
		}
		if rec.Avail {
			task.ReadBps, task.WriteBps = rate(rec.Rates.Read), rate(rec.Rates.WriteNet())
			if snap.DelayAcct() {
				task.SwapinPct, task.IOPct = rate(rec.Rates.Swapin), rate(rec.Rates.Blkio)
			}
			if accumulated {
				rd, wr := rec.Raw.Read, rec.Raw.WriteNet()
				task.ReadBytes, task.WriteBytes = &rd, &wr
			}
		}
		tick.Tasks = append(tick.Tasks, task)
	}
	if err := p.enc.Encode(&tick); err != nil {
		p.err = err
	}
}

// "no data" => null
func rate(r ios.Rate) *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}
