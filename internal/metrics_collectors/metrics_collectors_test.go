package metrics_collectors

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.Register(&MemoryMetricCollector{Logger: zerolog.Nop()})
	registry.Register(&ProcessMetricCollector{Logger: zerolog.Nop()})

	c, ok := registry.Get("memory")
	require.True(t, ok)
	assert.Equal(t, "KiB", c.Unit())

	_, ok = registry.Get("network")
	assert.False(t, ok)
	assert.Len(t, registry.GetCollectors(), 2)
}

func TestMemoryMetricCollector(t *testing.T) {
	total, ok := (&MemoryMetricCollector{Logger: zerolog.Nop()}).Collect(context.Background()).(*float64)
	require.True(t, ok)
	assert.Greater(t, *total, 0.0)
}

func TestProcessMetricCollector(t *testing.T) {
	workingSet, ok := (&ProcessMetricCollector{Logger: zerolog.Nop()}).Collect(context.Background()).(*float64)
	require.True(t, ok)
	assert.Greater(t, *workingSet, 0.0)
}

func TestDiskMetricCollector_MissingPath(t *testing.T) {
	c := &DiskMetricCollector{Logger: zerolog.Nop(), Path: "/does/not/exist/anywhere"}
	assert.Nil(t, c.Collect(context.Background()))
}
