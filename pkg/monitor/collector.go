package monitor

import (
	"context"
	"runtime"
)

// Collector gathers one batch of datapoints.
type Collector interface {
	Collect(ctx context.Context) ([]Datapoint, error)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context) ([]Datapoint, error)

// Collect implements Collector.
func (f CollectorFunc) Collect(ctx context.Context) ([]Datapoint, error) {
	return f(ctx)
}

// Factory builds a Collector for a monitor config.
type Factory func(cfg Config) (Collector, error)

// RuntimeType is the monitor type of NewRuntimeCollector.
const RuntimeType = "runtime"

// NewRuntimeCollector reports Go runtime statistics of this process.
func NewRuntimeCollector(_ Config) (Collector, error) {
	return CollectorFunc(func(ctx context.Context) ([]Datapoint, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		return []Datapoint{
			{Metric: "go.goroutines", Type: Gauge, Value: float64(runtime.NumGoroutine())},
			{Metric: "go.memstats.heap_alloc", Type: Gauge, Value: float64(ms.HeapAlloc)},
			{Metric: "go.memstats.heap_objects", Type: Gauge, Value: float64(ms.HeapObjects)},
			{Metric: "go.memstats.num_gc", Type: CumulativeCounter, Value: float64(ms.NumGC)},
		}, nil
	}), nil
}
