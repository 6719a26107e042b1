package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker periodically samples the server's own process
// metrics together with the connection count. Logging is the only
// surface; there is no external metrics endpoint.
type HealthMonitoringWorker struct {
	log         *slog.Logger
	interval    time.Duration
	connections func() int
}

func NewHealthMonitoringWorker(log *slog.Logger, interval time.Duration, connections func() int) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, interval: interval, connections: connections}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Error while reading process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Error("Error while reading process ram usage", "err", err)
				continue
			}
			w.log.Info("Server health",
				"cpu_percent", cpu,
				"ram_percent", ram,
				"goroutines", runtime.NumGoroutine(),
				"connections", w.connections())
		}
	}
}
