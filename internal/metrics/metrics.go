/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics exposes Prometheus collectors for the worker host.
// metrics 包为工作进程宿主提供 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seatunnel/workerhost/internal/eventbus"
	"github.com/seatunnel/workerhost/internal/supervisor"
	"github.com/seatunnel/workerhost/internal/worker"
)

const namespace = "workerhost"

// Metrics owns a private registry and every collector registered on it.
// Metrics 持有独立的注册表及其上注册的所有指标。
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	restartsTotal *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec

	workerCPU     *prometheus.GaugeVec
	workerRSS     *prometheus.GaugeVec
	workerThreads *prometheus.GaugeVec
	usageErrors   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors, including the Go runtime and process collectors.
// New 创建所有指标，包括 Go 运行时和进程指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events published, by event kind and worker kind",
		}, []string{"kind", "worker_kind"}),

		restartsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Worker restarts, manual and automatic",
		}, []string{"worker_kind"}),

		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Worker error events, including unexpected exits",
		}, []string{"worker_kind"}),

		workerCPU: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_cpu_percent",
			Help:      "Last sampled CPU usage of a subprocess worker",
		}, []string{"worker_id", "worker_kind"}),

		workerRSS: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_rss_bytes",
			Help:      "Last sampled resident memory of a subprocess worker",
		}, []string{"worker_id", "worker_kind"}),

		workerThreads: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_threads",
			Help:      "Last sampled thread count of a subprocess worker",
		}, []string{"worker_id", "worker_kind"}),

		usageErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_sample_errors_total",
			Help:      "Failed usage samples",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control plane HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control plane HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
// Handler 以 Prometheus 文本格式输出指标。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveBus counts every event on bus and drops usage series of stopped
// workers.
// ObserveBus 统计 bus 上的所有事件，并清理已停止工作进程的资源用量序列。
func (m *Metrics) ObserveBus(bus *eventbus.Bus) eventbus.Subscription {
	return bus.Subscribe(m.observe)
}

func (m *Metrics) observe(e eventbus.Event) {
	wk := string(e.Worker.Kind)
	m.eventsTotal.WithLabelValues(string(e.Kind()), wk).Inc()

	switch e.Payload.(type) {
	case eventbus.Restarted:
		m.restartsTotal.WithLabelValues(wk).Inc()
	case eventbus.Error:
		m.failuresTotal.WithLabelValues(wk).Inc()
	case eventbus.Stopped:
		m.ForgetWorker(e.Worker.ID, e.Worker.Kind)
	}
}

// ObserveUsage records a usage sample for a worker.
// ObserveUsage 记录工作进程的一次资源用量采样。
func (m *Metrics) ObserveUsage(id string, kind worker.Kind, u worker.Usage) {
	m.workerCPU.WithLabelValues(id, string(kind)).Set(u.CPUPercent)
	m.workerRSS.WithLabelValues(id, string(kind)).Set(float64(u.RSSBytes))
	m.workerThreads.WithLabelValues(id, string(kind)).Set(float64(u.NumThreads))
}

// UsageError counts a failed usage sample.
func (m *Metrics) UsageError() {
	m.usageErrors.Inc()
}

// ForgetWorker deletes the usage series of a worker.
func (m *Metrics) ForgetWorker(id string, kind worker.Kind) {
	m.workerCPU.DeleteLabelValues(id, string(kind))
	m.workerRSS.DeleteLabelValues(id, string(kind))
	m.workerThreads.DeleteLabelValues(id, string(kind))
}

// ObserveHTTP records one control plane request.
// ObserveHTTP 记录一次控制面请求。
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterGaugeFunc exposes fn as a gauge evaluated at scrape time.
// RegisterGaugeFunc 注册在抓取时求值的 gauge。
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// StatsSource is satisfied by *supervisor.Supervisor.
type StatsSource interface {
	Stats() supervisor.Stats
}

// RegisterSupervisor exposes the handle table as gauges read at scrape time.
// RegisterSupervisor 将句柄表以 gauge 形式暴露，在抓取时读取。
func (m *Metrics) RegisterSupervisor(src StatsSource) error {
	return m.registry.Register(&tableCollector{src: src})
}

var (
	byStateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "workers_by_state"),
		"Tracked workers by lifecycle state",
		[]string{"state"}, nil,
	)
	byKindDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "workers_by_kind"),
		"Tracked workers by kind",
		[]string{"kind"}, nil,
	)
	capacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "capacity"),
		"Maximum concurrent workers",
		nil, nil,
	)
)

type tableCollector struct {
	src StatsSource
}

func (c *tableCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- byStateDesc
	ch <- byKindDesc
	ch <- capacityDesc
}

func (c *tableCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(capacityDesc, prometheus.GaugeValue, float64(st.Capacity))
	for state, n := range st.ByState {
		ch <- prometheus.MustNewConstMetric(byStateDesc, prometheus.GaugeValue, float64(n), string(state))
	}
	for kind, n := range st.ByKind {
		ch <- prometheus.MustNewConstMetric(byKindDesc, prometheus.GaugeValue, float64(n), string(kind))
	}
}
