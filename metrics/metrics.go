// Copyright (C) 2024  Katzenpost Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes the RECORDS_SENT/BYTES_SENT counters from
// spec.md §4.5/§6, labelled by gate (the STEP label) and role, plus a
// heartbeat stall counter for §5/§8 S6. The CounterVec shape
// mirrors the Prometheus collector style used by the pack's
// runZeroInc-sockstats exporter (pkg/exporter/exporter.go), adapted from
// a custom Collector to the simpler Vec metrics since this package has
// no per-connection state to scrape on demand.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	labelStep = "step"
	labelRole = "role"
)

// Metrics bundles every counter/gauge the Gateway and SendingEnd report.
// A fresh Metrics should be registered with exactly one
// prometheus.Registerer (tests typically use a private
// prometheus.NewRegistry() to avoid collisions between table-driven
// subtests).
type Metrics struct {
	RecordsSent *prometheus.CounterVec
	BytesSent   *prometheus.CounterVec
	StallCount  *prometheus.CounterVec
}

// New constructs and registers the metric family with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipa_mesh_records_sent_total",
			Help: "Number of records committed to the OrderingSender per channel.",
		}, []string{labelStep, labelRole}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipa_mesh_bytes_sent_total",
			Help: "Number of serialized message bytes committed to the OrderingSender per channel.",
		}, []string{labelStep, labelRole}),
		StallCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipa_mesh_heartbeat_stalls_total",
			Help: "Number of stalled receive requests reported by heartbeat ticks.",
		}, []string{labelRole}),
	}
	reg.MustRegister(m.RecordsSent, m.BytesSent, m.StallCount)
	return m
}

// RecordSend increments RecordsSent/BytesSent for one committed record,
// called from SendingEnd.Send after the OrderingSender commit per
// spec.md §5's ordering guarantee (3): a crash may lose the counter
// increment but never the message.
func (m *Metrics) RecordSend(step, role string, nbytes int) {
	m.RecordsSent.WithLabelValues(step, role).Inc()
	m.BytesSent.WithLabelValues(step, role).Add(float64(nbytes))
}
