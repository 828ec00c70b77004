package metrics_collectors

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// HostInfo describes the operating system.
type HostInfo struct {
	OSName       string
	Architecture string
}

// HostMetricCollector collects the operating system name and architecture.
type HostMetricCollector struct {
	Logger zerolog.Logger
}

func (h *HostMetricCollector) Name() string {
	return "host"
}

func (h *HostMetricCollector) Collect(ctx context.Context) interface{} {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to get host information")
		return nil
	}

	osName := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if osName == "" {
		osName = info.OS
	}
	return &HostInfo{OSName: osName, Architecture: info.KernelArch}
}

func (h *HostMetricCollector) Unit() string {
	return "text"
}

func (h *HostMetricCollector) Description() string {
	return "Operating system name and kernel architecture."
}
