// metrics.go - Node resource and registry metrics for /nodehealth and /status
package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	Accounts       int     `json:"accounts"`
	Events         uint64  `json:"events"`
	Subscribers    int     `json:"stream_subscribers"`
	BannedClients  int     `json:"banned_clients"`
	TrackedClients int     `json:"tracked_clients"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
	Goroutines     int     `json:"goroutines"`
	StoreError     string  `json:"store_error,omitempty"`
}

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	m := NodeMetrics{
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	if s.stats != nil {
		st, err := s.stats.Stats()
		if err != nil {
			m.StoreError = err.Error()
		}
		m.Accounts = st.Accounts
		m.Events = st.Events
	}
	if s.hub != nil {
		m.Subscribers = s.hub.Subscribers()
	}
	if s.limiter != nil {
		m.BannedClients = s.limiter.Banned()
		m.TrackedClients = s.limiter.Tracked()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemoryMB = float64(mem.Alloc) / (1024 * 1024)

	if usage, err := disk.Usage("/"); err == nil {
		m.DiskFreeMB = float64(usage.Free) / (1024 * 1024)
	}

	// CPU usage: Use gopsutil to get current CPU percent
	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		m.CPULoadPercent = cpuPercents[0]
	}
	return m
}

func nodeStatus(m NodeMetrics) string {
	if m.StoreError != "" {
		return "degraded"
	}
	return "healthy"
}
