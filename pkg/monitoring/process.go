// Copyright 2026 fanjia1024
// Process / host resource snapshot for /health

package monitoring

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats 网关进程与主机资源快照
type ProcessStats struct {
	PID           int32   `json:"pid"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	Goroutines    int     `json:"goroutines"`
	HostCPU       float64 `json:"host_cpu_percent"`
	HostMemory    float64 `json:"host_memory_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

var startedAt = time.Now()

// Collect 采集当前进程与主机资源；单项采集失败时该字段保持零值
func Collect(ctx context.Context) (*ProcessStats, error) {
	stats := &ProcessStats{
		PID:           int32(os.Getpid()),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(startedAt).Seconds()),
	}

	p, err := process.NewProcessWithContext(ctx, stats.PID)
	if err != nil {
		return nil, err
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		stats.RSSBytes = mi.RSS
	}
	if pct, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = pct
	}

	// interval 为 0：与上次调用比较，不阻塞请求
	if usages, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(usages) > 0 {
		stats.HostCPU = usages[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.HostMemory = vm.UsedPercent
	}
	return stats, nil
}
