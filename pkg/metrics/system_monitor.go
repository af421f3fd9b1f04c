package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMonitor 周期采集系统指标
type SystemMonitor struct {
	metrics  *Metrics
	interval time.Duration
}

// NewSystemMonitor 创建系统监控器
func NewSystemMonitor(m *Metrics, interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SystemMonitor{metrics: m, interval: interval}
}

// Start 启动采集循环，ctx 取消后退出
func (s *SystemMonitor) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.collect()
			}
		}
	}()
}

func (s *SystemMonitor) collect() {
	if vm, err := mem.VirtualMemory(); err == nil {
		s.metrics.systemMemoryUsage.Set(vm.UsedPercent)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.metrics.systemCPUUsage.Set(percents[0])
	}
	s.metrics.systemGoroutines.Set(float64(runtime.NumGoroutine()))
}
