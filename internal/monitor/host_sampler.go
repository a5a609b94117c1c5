package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/metrics"
)

// HostSampler periodically samples CPU and memory on the monitoring
// host and exports the readings as gauges. A starved capture host is
// a common cause of camera timeouts, so the readings sit next to the
// camera health metrics.
type HostSampler struct {
	logger   *zap.Logger
	interval time.Duration
	stop     chan struct{}
}

// NewHostSampler creates a sampler with the given interval.
func NewHostSampler(logger *zap.Logger, interval time.Duration) *HostSampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HostSampler{
		logger:   logger.Named("host-sampler"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the sampling loop.
func (s *HostSampler) Start(ctx context.Context) {
	s.logger.Info("Starting host sampler",
		zap.Duration("interval", s.interval))
	go s.sampleLoop(ctx)
}

// Stop stops the sampling loop.
func (s *HostSampler) Stop() {
	s.logger.Info("Stopping host sampler")
	close(s.stop)
}

func (s *HostSampler) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *HostSampler) sample() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		s.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		s.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	metrics.HostCPUUsage.Set(cpuPercent[0])
	metrics.HostMemoryUsage.Set(memInfo.UsedPercent)

	s.logger.Debug("Host metrics sampled",
		zap.Float64("cpu_usage", cpuPercent[0]),
		zap.Float64("memory_usage", memInfo.UsedPercent))
}
