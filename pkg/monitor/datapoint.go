package monitor

import "time"

// MetricType classifies a datapoint value.
type MetricType string

const (
	Gauge             MetricType = "gauge"
	Counter           MetricType = "counter"
	CumulativeCounter MetricType = "cumulative_counter"
)

// Datapoint is a single metric value produced by a monitor.
type Datapoint struct {
	MonitorID  string            `json:"monitorId"`
	Metric     string            `json:"metric"`
	Type       MetricType        `json:"metricType"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// stamp fills in the fields a collector leaves to the manager. Collector
// dimensions win over configured ones.
func (dp *Datapoint) stamp(monitorID string, now time.Time, dims map[string]string) {
	dp.MonitorID = monitorID
	if dp.Timestamp.IsZero() {
		dp.Timestamp = now
	}
	if dp.Type == "" {
		dp.Type = Gauge
	}
	if len(dims) == 0 {
		return
	}
	merged := make(map[string]string, len(dims)+len(dp.Dimensions))
	for k, v := range dims {
		merged[k] = v
	}
	for k, v := range dp.Dimensions {
		merged[k] = v
	}
	dp.Dimensions = merged
}
