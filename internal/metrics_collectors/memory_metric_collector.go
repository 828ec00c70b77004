package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"
)

// MemoryMetricCollector collects the amount of physical memory.
type MemoryMetricCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the memory metric collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect retrieves the total physical memory.
func (m *MemoryMetricCollector) Collect(ctx context.Context) interface{} {
	m.Logger.Debug().Msg("Collecting memory statistics")

	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return nil
	}

	total := float64(memStats.Total) / 1024
	m.Logger.Debug().Float64("total_memory_kib", total).Msg("Memory statistics collected successfully")

	return &total
}

// Unit specifies the unit for memory metrics.
func (m *MemoryMetricCollector) Unit() string {
	return "KiB"
}

// Description provides details of the memory metrics collected.
func (m *MemoryMetricCollector) Description() string {
	return "Total physical memory."
}
