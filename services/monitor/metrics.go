// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the monitor's Prometheus collectors.
type Metrics struct {
	snapshots       *prometheus.CounterVec
	captureFailures *prometheus.CounterVec
	restores        *prometheus.CounterVec
	gameRunning     prometheus.Gauge
	inRaid          prometheus.Gauge
	eventsDropped   prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg uses a private
// registry, which keeps tests and repeated engines from colliding.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddarchive_snapshots_created_total",
			Help: "Snapshots published by bucket",
		}, []string{"bucket"}),
		captureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddarchive_capture_failures_total",
			Help: "Captures that failed after all attempts, by bucket",
		}, []string{"bucket"}),
		restores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddarchive_restores_total",
			Help: "Restores by result",
		}, []string{"result"}),
		gameRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddarchive_game_running",
			Help: "1 while the game process is running",
		}),
		inRaid: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ddarchive_in_raid",
			Help: "1 while the profile reports being in a raid",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ddarchive_events_dropped_total",
			Help: "Events dropped because no consumer kept up",
		}),
	}
}

func (m *Metrics) snapshotCreated(bucket string) {
	m.snapshots.WithLabelValues(bucket).Inc()
}

func (m *Metrics) captureFailed(bucket string) {
	m.captureFailures.WithLabelValues(bucket).Inc()
}

func (m *Metrics) restored(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.restores.WithLabelValues(result).Inc()
}

func (m *Metrics) setState(running bool, inraid *bool) {
	m.gameRunning.Set(boolGauge(running))
	m.inRaid.Set(boolGauge(inraid != nil && *inraid))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
