package metrics_collectors

import (
	"context"
)

// MetricCollector defines the interface for collecting a specific host fact.
type MetricCollector interface {
	Name() string                            // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) interface{} // Collect the metric data, nil when unavailable
	Unit() string                            // Unit of the metric (e.g., "KiB")
	Description() string                     // Description of the metric
}
