package monitor

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostMetrics is the machine-wide summary shown above the service charts.
type HostMetrics struct {
	CPUPercent    float64 `json:"cpuPercent"`
	RAMPercent    float64 `json:"ramPercent"`
	RAMUsedMB     uint64  `json:"ramUsedMb"`
	RAMTotalMB    uint64  `json:"ramTotalMb"`
	ProcessCount  int     `json:"processCount,omitempty"`
	UptimeSeconds uint64  `json:"uptimeSeconds,omitempty"`
	Hostname      string  `json:"hostname,omitempty"`
}

// CollectHost reads host-wide CPU, memory and process counts. Counters that
// fail to read are left zero.
func CollectHost() HostMetrics {
	var m HostMetrics

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.RAMPercent = vmem.UsedPercent
		m.RAMUsedMB = vmem.Used / 1024 / 1024
		m.RAMTotalMB = vmem.Total / 1024 / 1024
	}
	if pids, err := process.Pids(); err == nil {
		m.ProcessCount = len(pids)
	}
	if info, err := host.Info(); err == nil {
		m.UptimeSeconds = info.Uptime
		m.Hostname = info.Hostname
	}
	return m
}
