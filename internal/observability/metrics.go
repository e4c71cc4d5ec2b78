// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package observability records hook invocation metrics in a private
// Prometheus registry and writes them for node_exporter's textfile
// collector.
package observability

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/bodo-run/bodo-bridge/internal/bridge"
)

var _ bridge.Recorder = (*Recorder)(nil)

// Recorder holds the bridge's metrics.
type Recorder struct {
	registry    *prometheus.Registry
	duration    *prometheus.HistogramVec
	lastRun     *prometheus.GaugeVec
	invocations *prometheus.CounterVec
	now         func() time.Time
}

// NewRecorder creates a recorder with its own registry so nothing from the
// global default registry ends up in the textfile.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bodo_plugin_hook_duration_seconds",
				Help:    "Wall time spent loading a plugin and running one hook",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"hook"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bodo_plugin_hook_last_run_timestamp_seconds",
				Help: "Unix time the hook last finished",
			},
			[]string{"hook"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bodo_plugin_hook_invocations_total",
				Help: "Hook invocations by outcome",
			},
			[]string{"hook", "outcome"},
		),
		now: time.Now,
	}

	r.registry.MustRegister(r.duration, r.lastRun, r.invocations)
	return r
}

// ObserveHook records one finished invocation.
func (r *Recorder) ObserveHook(hook string, elapsed time.Duration, outcome string) {
	r.duration.WithLabelValues(hook).Observe(elapsed.Seconds())
	r.lastRun.WithLabelValues(hook).Set(float64(r.now().UnixNano()) / float64(time.Second))
	r.invocations.WithLabelValues(hook, outcome).Inc()
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile merges the current metrics into the textfile at path and
// atomically replaces it. Each bridge process records a single hook, so
// counters and histograms are added to the values already in the file and
// series for other hooks are kept.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	errb := oops.In("observability").With("path", path)

	current, err := r.registry.Gather()
	if err != nil {
		return errb.Wrapf(err, "failed to gather metrics")
	}
	previous, err := readTextfile(filepath.Clean(path))
	if err != nil {
		return errb.Wrapf(err, "failed to read metrics textfile")
	}
	if err := writeTextfile(filepath.Clean(path), mergeFamilies(previous, current)); err != nil {
		return errb.Wrapf(err, "failed to write metrics textfile")
	}
	return nil
}
