package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
)

// CPUMetricCollector collects the processor vendor.
type CPUMetricCollector struct {
	Logger zerolog.Logger
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

func (c *CPUMetricCollector) Collect(ctx context.Context) interface{} {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get CPU information")
		return nil
	}

	if len(infos) == 0 || infos[0].VendorID == "" {
		c.Logger.Warn().Msg("CPU vendor is not available")
		return nil
	}

	c.Logger.Debug().Str("vendor", infos[0].VendorID).Msg("CPU vendor collected successfully")
	return infos[0].VendorID
}

func (c *CPUMetricCollector) Unit() string {
	return "text"
}

func (c *CPUMetricCollector) Description() string {
	return "Vendor of the first processor."
}
