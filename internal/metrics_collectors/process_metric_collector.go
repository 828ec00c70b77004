package metrics_collectors

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// ProcessMetricCollector collects the working set of the current process.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
}

func (p *ProcessMetricCollector) Name() string {
	return "process"
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) interface{} {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p.Logger.Error().Err(err).Msg("Failed to open own process")
		return nil
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Int32("pid", proc.Pid).Msg("Failed to get memory information")
		return nil
	}

	workingSet := float64(memInfo.RSS) / 1024
	p.Logger.Debug().Float64("working_set_kib", workingSet).Msg("Process metrics collection completed successfully")
	return &workingSet
}

func (p *ProcessMetricCollector) Unit() string {
	return "KiB"
}

func (p *ProcessMetricCollector) Description() string {
	return "Resident memory of the device process."
}
