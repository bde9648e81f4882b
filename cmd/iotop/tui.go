// Package main is iotop: a top-like monitor of per-thread and per-process disk I/O.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/NVIDIA/iotop/cmn"
	"github.com/NVIDIA/iotop/ios"
	"github.com/NVIDIA/iotop/view"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

const summaryHeight = 3

type screen struct {
	model   *view.Model
	engine  *ios.Engine
	summary *widgets.Paragraph
	table   *widgets.List
	paused  bool
}

func runTUI(ctx context.Context, engine *ios.Engine, model *view.Model, config *cmn.Config) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w (try --batch)", err)
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		snaps = make(chan *ios.Snapshot, 1)
		done  = make(chan error, 1)
		s     = newScreen(engine, model)
	)
	// latest wins: acquisition never waits for the screen
	go func() {
		done <- engine.Run(ctx, config.Interval(), config.Iterations, func(snap *ios.Snapshot) {
			for {
				select {
				case snaps <- snap:
					return
				default:
				}
				select {
				case <-snaps:
				default:
				}
			}
		})
	}()

	s.resize(ui.TerminalDimensions())
	s.render()
	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			if s.handle(e) {
				cancel()
				return <-done
			}
			s.render()
		case snap := <-snaps:
			if !s.paused {
				model.SetSnapshot(snap)
				s.render()
			}
		case err := <-done:
			return err
		}
	}
}

func newScreen(engine *ios.Engine, model *view.Model) *screen {
	s := &screen{model: model, engine: engine, summary: widgets.NewParagraph(), table: widgets.NewList()}
	s.summary.Border = false
	s.table.BorderStyle.Fg = ui.ColorCyan
	s.table.TitleStyle.Modifier = ui.ModifierBold
	s.table.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorWhite)
	s.table.TextStyle = ui.NewStyle(ui.ColorWhite)
	return s
}

func (s *screen) resize(width, height int) {
	s.summary.SetRect(0, 0, width, summaryHeight)
	s.table.SetRect(0, summaryHeight, width, height)
}

// handle returns true to quit
func (s *screen) handle(e ui.Event) bool {
	switch e.Type {
	case ui.ResizeEvent:
		payload := e.Payload.(ui.Resize)
		s.resize(payload.Width, payload.Height)
		ui.Clear()
		return false
	case ui.KeyboardEvent:
	default:
		return false
	}
	st := s.model.State()
	switch e.ID {
	case "q", "Q", "<C-c>", "<Escape>":
		return true
	case "o", "O":
		s.model.SetOnlyActive(!st.OnlyActive)
	case "a", "A":
		s.model.SetMetric(st.Metric.Toggle())
	case "r", "R":
		s.model.ReverseSort()
	case "p", "P":
		mode := st.Mode.Toggle()
		s.model.SetMode(mode)
		s.engine.SetMode(mode)
	case "<Space>":
		s.paused = !s.paused
	case "<Left>":
		s.model.PrevColumn()
	case "<Right>":
		s.model.NextColumn()
	case "<Home>":
		s.model.FirstColumn()
	case "<End>":
		s.model.LastColumn()
	case "<Down>", "j":
		s.table.ScrollDown()
	case "<Up>", "k":
		s.table.ScrollUp()
	case "<PageDown>":
		s.table.ScrollPageDown()
	case "<PageUp>":
		s.table.ScrollPageUp()
	case "g":
		s.table.ScrollTop()
	case "G":
		s.table.ScrollBottom()
	}
	return false
}

func (s *screen) render() {
	st := s.model.State()
	snap := s.model.Snapshot()
	if snap == nil {
		s.summary.Text = "collecting..."
		ui.Render(s.summary)
		return
	}
	lines := view.Summary(snap, st.Units)
	s.summary.Text = lines[0] + "\n" + lines[1] + "\n" + s.status(&st, snap)

	rows := s.model.RenderRows()
	s.table.Title = s.model.Header()
	texts := make([]string, len(rows))
	for i := range rows {
		texts[i] = escape(s.model.Line(&rows[i]))
	}
	s.table.Rows = texts
	if s.table.SelectedRow >= len(texts) {
		s.table.SelectedRow = max(len(texts)-1, 0)
	}
	ui.Render(s.summary, s.table)
}

func (s *screen) status(st *view.State, snap *ios.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(toggle('o', "nly", st.OnlyActive))
	sb.WriteString(toggle('p', "rocesses", st.Mode == cmn.ModeProcesses))
	sb.WriteString(toggle('a', "ccumulated", st.Metric == view.MetricAccumulated))
	sb.WriteString(toggle('r', "everse", st.Ascending))
	if s.paused {
		sb.WriteString(" [paused](fg:yellow)")
	}
	if !snap.Counters() {
		sb.WriteString(" [I/O counters not available](fg:red)")
	} else if !snap.DelayAcct() {
		sb.WriteString(" [delay accounting disabled](fg:yellow)")
	}
	return sb.String()
}

func toggle(key byte, rest string, on bool) string {
	label := string(key) + rest
	if on {
		return fmt.Sprintf(" [%s](fg:black,bg:white)", label)
	}
	return " " + label
}

// rows are plain text; keep brackets from being parsed as style markup
func escape(s string) string { return strings.ReplaceAll(s, "](", "] (") }
