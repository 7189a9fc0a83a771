// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the process-local registry backing the §6 JSON snapshot,
// which is built on demand for each GET /metrics request
// (metrics_server.go); nothing publishes it on a timer. One Metrics is created per generator; counters are labeled by
// the owning plugin's id so the snapshot can regroup them per plugin.
type Metrics struct {
	registry *prometheus.Registry

	activeWorkers prometheus.Gauge
	produced      *prometheus.CounterVec
	produceFailed *prometheus.CounterVec
	renderFailed  *prometheus.CounterVec
	written       *prometheus.CounterVec
	writeFailed   *prometheus.CounterVec
	formatFailed  *prometheus.CounterVec

	mu      sync.Mutex
	started time.Time
}

// NewMetrics builds a fresh registry with the families described in
// SPEC_FULL.md §2.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventum_active_workers",
			Help: "Number of currently running pipeline worker goroutines.",
		}),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_produced_total",
			Help: "Events successfully produced, by event plugin id.",
		}, []string{"plugin"}),
		produceFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_produce_failed_total",
			Help: "Events that failed to render, by event plugin id.",
		}, []string{"plugin"}),
		renderFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_render_failed_total",
			Help: "Render failures by template alias.",
		}, []string{"alias"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_written_total",
			Help: "Events successfully written, by sink id.",
		}, []string{"sink"}),
		writeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_write_failed_total",
			Help: "Events that failed to write, by sink id.",
		}, []string{"sink"}),
		formatFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventum_format_failed_total",
			Help: "Events that failed to format, by sink id.",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.activeWorkers, m.produced, m.produceFailed,
		m.renderFailed, m.written, m.writeFailed, m.formatFailed,
	)
	return m
}

// Registry exposes the underlying prometheus registry, e.g. for an
// /metrics HTTP handler wired up by an external collaborator.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WorkerStarted increments the active-worker gauge.
func (m *Metrics) WorkerStarted() { m.activeWorkers.Inc() }

// WorkerStopped decrements the active-worker gauge.
func (m *Metrics) WorkerStopped() { m.activeWorkers.Dec() }

// EventProduced records one successfully rendered event for pluginID.
func (m *Metrics) EventProduced(pluginID string) {
	m.produced.WithLabelValues(pluginID).Inc()
}

// EventProduceFailed records one rendering failure for pluginID.
func (m *Metrics) EventProduceFailed(pluginID string) {
	m.produceFailed.WithLabelValues(pluginID).Inc()
}

// RenderFailed records one template-level render failure.
func (m *Metrics) RenderFailed(alias string) {
	m.renderFailed.WithLabelValues(alias).Inc()
}

// EventWritten records one successful write to sinkID.
func (m *Metrics) EventWritten(sinkID string) {
	m.written.WithLabelValues(sinkID).Inc()
}

// WriteFailed records one failed write to sinkID.
func (m *Metrics) WriteFailed(sinkID string) {
	m.writeFailed.WithLabelValues(sinkID).Inc()
}

// FormatFailed records one formatting failure for sinkID.
func (m *Metrics) FormatFailed(sinkID string) {
	m.formatFailed.WithLabelValues(sinkID).Inc()
}

// counterValue reads a single counter's current value out of its
// protobuf wire representation — prometheus counters expose no direct
// getter, since they are meant to be scraped, not read back in-process.
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// ProducedValue returns the current produced count for pluginID.
func (m *Metrics) ProducedValue(pluginID string) float64 {
	return counterValue(m.produced.WithLabelValues(pluginID))
}

// ProduceFailedValue returns the current produce-failed count for pluginID.
func (m *Metrics) ProduceFailedValue(pluginID string) float64 {
	return counterValue(m.produceFailed.WithLabelValues(pluginID))
}

// WrittenValue returns the current written count for sinkID.
func (m *Metrics) WrittenValue(sinkID string) float64 {
	return counterValue(m.written.WithLabelValues(sinkID))
}

// WriteFailedValue returns the current write-failed count for sinkID.
func (m *Metrics) WriteFailedValue(sinkID string) float64 {
	return counterValue(m.writeFailed.WithLabelValues(sinkID))
}

// FormatFailedValue returns the current format-failed count for sinkID.
func (m *Metrics) FormatFailedValue(sinkID string) float64 {
	return counterValue(m.formatFailed.WithLabelValues(sinkID))
}

// Snapshot is the §6 metrics JSON shape.
type Snapshot struct {
	Common struct {
		Started    time.Time              `json:"started"`
		Parameters map[string]interface{} `json:"parameters"`
	} `json:"common"`
	Plugins struct {
		Input []InputPluginSnapshot `json:"input"`
		Event EventPluginSnapshot   `json:"event"`
		Output []OutputPluginSnapshot `json:"output"`
	} `json:"plugins"`
}

// InputPluginSnapshot describes one running producer for the §6 snapshot.
type InputPluginSnapshot struct {
	Name          string                 `json:"name"`
	ID            string                 `json:"id"`
	Configuration map[string]interface{} `json:"configuration"`
	Created       time.Time              `json:"created"`
}

// EventPluginSnapshot describes the single running event plugin.
type EventPluginSnapshot struct {
	Name          string                 `json:"name"`
	ID            string                 `json:"id"`
	Configuration map[string]interface{} `json:"configuration"`
	Produced      float64                `json:"produced"`
	ProduceFailed float64                `json:"produce_failed"`
	State         EventPluginState       `json:"state"`
}

// EventPluginState summarizes the size of each state scope.
type EventPluginState struct {
	Locals  int `json:"locals"`
	Shared  int `json:"shared"`
	Globals int `json:"globals"`
}

// OutputPluginSnapshot describes one running sink for the §6 snapshot.
type OutputPluginSnapshot struct {
	Name          string                 `json:"name"`
	ID            string                 `json:"id"`
	Configuration map[string]interface{} `json:"configuration"`
	Written       float64                `json:"written"`
	WriteFailed   float64                `json:"write_failed"`
	FormatFailed  float64                `json:"format_failed"`
}

// Started returns the time this Metrics registry (and therefore the
// generator it belongs to) was created.
func (m *Metrics) Started() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
