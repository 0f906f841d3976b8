package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

const (
	MetricPredictions        = "aquasense_predictions_total"
	MetricPredictionFailures = "aquasense_prediction_failures_total"
	MetricRecordsAppended    = "aquasense_records_appended_total"
	MetricRecordFailures     = "aquasense_record_failures_total"
)

var metricHelp = map[string]string{
	MetricPredictions:        "Predictions served, by label",
	MetricPredictionFailures: "Prediction requests rejected or failed",
	MetricRecordsAppended:    "Observations durably appended",
	MetricRecordFailures:     "Observations that could not be stored",
}

type series struct {
	name   string
	labels string
	value  float64
}

// MetricsCollector keeps in-process counters and renders them in the
// Prometheus text format.
type MetricsCollector struct {
	mu        sync.RWMutex
	series    map[string]*series
	startTime time.Time
}

// NewMetricsCollector starts the uptime clock; all series start at zero.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string]*series),
		startTime: time.Now(),
	}
}

// IncrCounter adds one to the series identified by name and labels.
func (mc *MetricsCollector) IncrCounter(name string, labels map[string]string) {
	mc.Add(name, 1, labels)
}

// Add adds value to a counter series, creating it on first use.
func (mc *MetricsCollector) Add(name string, value float64, labels map[string]string) {
	rendered := renderLabels(labels)
	key := name + rendered

	mc.mu.Lock()
	defer mc.mu.Unlock()
	s, ok := mc.series[key]
	if !ok {
		s = &series{name: name, labels: rendered}
		mc.series[key] = s
	}
	s.value += value
}

// Value returns the current value of one series, zero if never touched.
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if s, ok := mc.series[name+renderLabels(labels)]; ok {
		return s.value
	}
	return 0
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// ExportPrometheus renders counters sorted by name, then the process gauges.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	all := make([]series, 0, len(mc.series))
	for _, s := range mc.series {
		all = append(all, *s)
	}
	mc.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].name != all[j].name {
			return all[i].name < all[j].name
		}
		return all[i].labels < all[j].labels
	})

	var b strings.Builder
	last := ""
	for _, s := range all {
		if s.name != last {
			help := metricHelp[s.name]
			if help == "" {
				help = fmt.Sprintf("Metric %s", s.name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", s.name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", s.name, MetricTypeCounter)
			last = s.name
		}
		fmt.Fprintf(&b, "%s%s %g\n", s.name, s.labels, s.value)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	gauges := []struct {
		name  string
		help  string
		value float64
	}{
		{"aquasense_uptime_seconds", "Seconds since the collector started", mc.GetUptime().Seconds()},
		{"aquasense_goroutines", "Number of goroutines", float64(runtime.NumGoroutine())},
		{"aquasense_memory_heap_alloc_bytes", "Memory heap allocated in bytes", float64(m.HeapAlloc)},
	}
	for _, g := range gauges {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %g\n", g.name, g.help, g.name, MetricTypeGauge, g.name, g.value)
	}
	return b.String()
}

func renderLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
