package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and result counters via
// expvar, for deployments that prefer process-local metrics without an
// external scrape target. Totals are kept in milliseconds per operation with
// success/error counters.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes
// it under the supplied name. When name is empty, a unique one is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("shelter_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe records a service operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := "error"
	if success {
		status = "success"
	}

	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// PrometheusMetricsRecorder exposes operation counters and latency histograms
// through a prometheus registry.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder builds a recorder and registers its collectors
// with the given registerer. A nil registerer uses the default one.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelter",
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shelter",
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, collector := range []prometheus.Collector{rec.operations, rec.latency} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

var occupancyDescs = map[string]*prometheus.Desc{
	"available":   prometheus.NewDesc("shelter_beds_available", "Active beds currently available.", nil, nil),
	"occupied":    prometheus.NewDesc("shelter_beds_occupied", "Active beds currently occupied.", nil, nil),
	"reserved":    prometheus.NewDesc("shelter_beds_reserved", "Active beds currently reserved.", nil, nil),
	"maintenance": prometheus.NewDesc("shelter_beds_maintenance", "Active beds under maintenance.", nil, nil),
	"rate":        prometheus.NewDesc("shelter_occupancy_rate_percent", "Occupied share of in-service beds.", nil, nil),
}

// OccupancyCollector derives bed statistics from the store on every scrape.
type OccupancyCollector struct {
	service *Service
}

// NewOccupancyCollector wires the collector to a service.
func NewOccupancyCollector(service *Service) *OccupancyCollector {
	return &OccupancyCollector{service: service}
}

// Describe implements prometheus.Collector.
func (c *OccupancyCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range occupancyDescs {
		ch <- desc
	}
}

// Collect implements prometheus.Collector. A failed snapshot yields no
// samples; scrapes never fail the exporter.
func (c *OccupancyCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.service.LoadSnapshot(context.Background())
	if snapshot.Err != nil {
		return
	}
	stats := snapshot.Stats
	ch <- prometheus.MustNewConstMetric(occupancyDescs["available"], prometheus.GaugeValue, float64(stats.Available))
	ch <- prometheus.MustNewConstMetric(occupancyDescs["occupied"], prometheus.GaugeValue, float64(stats.Occupied))
	ch <- prometheus.MustNewConstMetric(occupancyDescs["reserved"], prometheus.GaugeValue, float64(stats.Reserved))
	ch <- prometheus.MustNewConstMetric(occupancyDescs["maintenance"], prometheus.GaugeValue, float64(stats.Maintenance))
	ch <- prometheus.MustNewConstMetric(occupancyDescs["rate"], prometheus.GaugeValue, float64(stats.OccupancyRate))
}
