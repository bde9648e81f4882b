// Package stats tracks the acquisition flow: ticks, per-kind fetch errors, entity counts,
// and tick latency, in a private Prometheus registry
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NVIDIA/iotop/cmn/nlog"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iotop"

// error kinds (label values)
const (
	ErrNotFound    = "notfound"
	ErrProtocol    = "protocol"
	ErrTimeout     = "timeout"
	ErrInventory   = "inventory"
	ErrUnsupported = "unsupported"
)

type Tracker struct {
	reg        *prometheus.Registry
	ticks      prometheus.Counter
	cancelled  prometheus.Counter
	errs       *prometheus.CounterVec
	entities   prometheus.Gauge
	tickTime   prometheus.Histogram
	lastTickNs prometheus.Gauge
}

func NewTracker() *Tracker {
	t := &Tracker{
		reg: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "number of published snapshots",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_cancelled_total",
			Help: "number of discarded (cancelled or failed) ticks",
		}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "per-entity errors, by kind",
		}, []string{"kind"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "entities",
			Help: "number of entities in the last snapshot",
		}),
		tickTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_seconds",
			Help:    "time to build one snapshot",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		lastTickNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_tick_ns",
			Help: "duration of the last tick, in nanoseconds",
		}),
	}
	t.reg.MustRegister(t.ticks, t.cancelled, t.errs, t.entities, t.tickTime, t.lastTickNs)
	return t
}

func (t *Tracker) Registry() *prometheus.Registry { return t.reg }

// TrackStrays exports the number of protocol replies that arrived late or matched no request.
func (t *Tracker) TrackStrays(strays func() int64) {
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "stray_replies_total",
		Help: "number of late or unmatched taskstats replies",
	}, func() float64 { return float64(strays()) })
	if err := t.reg.Register(c); err != nil {
		nlog.Warningln("stats:", err)
	}
}

func (t *Tracker) IncErr(kind string) { t.errs.WithLabelValues(kind).Inc() }

func (t *Tracker) IncCancelled() { t.cancelled.Inc() }

func (t *Tracker) ObserveTick(elapsed time.Duration, entities int) {
	t.ticks.Inc()
	t.entities.Set(float64(entities))
	t.tickTime.Observe(elapsed.Seconds())
	t.lastTickNs.Set(float64(elapsed.Nanoseconds()))
}

// Counters returns name => value for all counters and gauges (histograms excluded).
func (t *Tracker) Counters() map[string]float64 {
	out := make(map[string]float64, 8)
	mfs, err := t.reg.Gather()
	if err != nil {
		nlog.Errorln("stats: gather:", err)
		return out
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "." + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

// Log writes a one-line summary, e.g. at exit.
func (t *Tracker) Log() {
	counters := t.Counters()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strings.TrimPrefix(name, namespace+"_"))
		sb.WriteByte('=')
		sb.WriteString(formatValue(counters[name]))
	}
	nlog.Infoln("stats:", sb.String())
}

func formatValue(v float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 3, 64), "0"), ".")
}
